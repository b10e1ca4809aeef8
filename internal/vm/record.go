package vm

import (
	"math"

	"github.com/rtm0/wfde5/internal/table"
)

// Record is the daily precipitation of one grid cell.
type Record struct {
	// Dimensions
	Timestamp int64 // unix ms at the start of the day
	Cell      int
	Latitude  float64
	Longitude float64

	// Metrics
	Precipitation float64 // mm/day
}

// Records flattens a merged table into records, day by day. Missing values
// are skipped.
func Records(d *table.Daily) []Record {
	recs := make([]Record, 0, len(d.Days)*len(d.Cells))
	for r, day := range d.Days {
		ts := day.UnixMilli()
		for c, cell := range d.Cells {
			if math.IsNaN(d.Values[r][c]) {
				continue
			}
			recs = append(recs, Record{
				Timestamp:     ts,
				Cell:          cell.Column,
				Latitude:      cell.Lat,
				Longitude:     cell.Lon,
				Precipitation: d.Values[r][c],
			})
		}
	}
	return recs
}
