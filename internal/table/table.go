// Package table holds the per-cell time series tables consumed by SHETRAN:
// one column per grid cell and one row per timestep.
package table

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrNoTables is returned when there is nothing to merge or store.
	ErrNoTables = errors.New("no tables to merge")
	// ErrSchemaMismatch is returned when tables disagree on their cells.
	ErrSchemaMismatch = errors.New("tables do not share the same cell columns")
	// ErrAlignment is returned when rows miss or fall outside calendar hours.
	ErrAlignment = errors.New("table rows do not align with the calendar")
	// ErrOverlap is returned when two tables share a time step.
	ErrOverlap = errors.New("tables cover overlapping time ranges")
	// ErrFormat is returned for table, cell map or ASC files that cannot be parsed.
	ErrFormat = errors.New("malformed table file")
)

// Cell maps a table column to the grid cell it was taken from.
type Cell struct {
	Column   int
	LatIndex int
	LonIndex int
	Lat      float64
	Lon      float64
}

// Table is a cell time series table indexed by the raw time coordinate
// (hours since the epoch). Values[row][column].
type Table struct {
	Index  []int64
	Cells  []Cell
	Values [][]float64
}

// Rows is the number of timesteps.
func (t *Table) Rows() int { return len(t.Index) }

// Cols is the number of cells.
func (t *Table) Cols() int { return len(t.Cells) }

// Daily is the merged table: one row per calendar day.
type Daily struct {
	Days   []time.Time
	Cells  []Cell
	Values [][]float64
	// Repaired counts the sentinel values that were replaced.
	Repaired int
}

func sameCells(a, b []Cell) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Column != b[i].Column || a[i].LatIndex != b[i].LatIndex || a[i].LonIndex != b[i].LonIndex {
			return false
		}
	}
	return true
}

// Round1 rounds to one decimal place, ties to even.
func Round1(v float64) float64 {
	return math.RoundToEven(v*10) / 10
}
