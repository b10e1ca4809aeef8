package table

import (
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"
)

// Whole seconds keep calendar arithmetic clear of the ~292 year limit of
// time.Duration.
const (
	secsPerHour = 3600
	secsPerDay  = 24 * secsPerHour
)

// Calendar is the hourly reference sequence from Epoch to End inclusive.
// Raw time value N is N hours after Epoch.
type Calendar struct {
	Epoch time.Time
	End   time.Time
}

// Len is the number of hourly steps in the calendar.
func (c Calendar) Len() int64 {
	if c.End.Before(c.Epoch) {
		return 0
	}
	return (c.End.Unix()-c.Epoch.Unix())/secsPerHour + 1
}

// At returns the timestamp of raw time value h.
func (c Calendar) At(h int64) time.Time {
	return time.Unix(c.Epoch.Unix()+h*secsPerHour, int64(c.Epoch.Nanosecond())).UTC()
}

// Reindex maps a sorted raw index onto the calendar. The subset
// [first, last+1) of the reference sequence must have exactly one entry per
// row; duplicates mean two source periods overlap and anything else means
// the rows would be mislabelled.
func (c Calendar) Reindex(index []int64) ([]time.Time, error) {
	if len(index) == 0 {
		return nil, nil
	}
	first, last := index[0], index[len(index)-1]
	if first < 0 || last+1 > c.Len() {
		return nil, errors.Wrapf(ErrAlignment, "hours [%d, %d] fall outside the calendar %s to %s",
			first, last, c.Epoch.Format(time.RFC3339), c.End.Format(time.RFC3339))
	}
	for i := 1; i < len(index); i++ {
		if index[i] == index[i-1] {
			return nil, errors.Wrapf(ErrOverlap, "hour %d (%s) appears more than once",
				index[i], c.At(index[i]).Format(time.RFC3339))
		}
	}
	if want := last + 1 - first; int64(len(index)) != want {
		return nil, errors.Wrapf(ErrAlignment, "%d rows for the %d hours from %s to %s",
			len(index), want, c.At(first).Format(time.RFC3339), c.At(last).Format(time.RFC3339))
	}
	times := make([]time.Time, len(index))
	for i := range times {
		times[i] = c.At(first + int64(i))
	}
	return times, nil
}

// Repair replaces sentinel no-data values.
type Repair struct {
	// Threshold is the magnitude above which a value is a sentinel.
	Threshold float64
	// Replacement is written in place of a sentinel.
	Replacement float64
	// BeforeResample repairs hourly values before they are summed into
	// days. When false the rule runs on the daily sums, which reproduces
	// the output of earlier runs.
	BeforeResample bool
}

// DefaultRepair replaces values above 1000 in magnitude with 0.001 before
// resampling.
var DefaultRepair = Repair{Threshold: 1000, Replacement: 0.001, BeforeResample: true}

// Apply repairs rows in place and returns the number of values replaced.
func (r Repair) Apply(rows [][]float64) int {
	n := 0
	for _, row := range rows {
		for i, v := range row {
			if math.Abs(v) > r.Threshold {
				row[i] = r.Replacement
				n++
			}
		}
	}
	return n
}

// Concat stacks the rows of tables and sorts them by index. All tables must
// have the same columns. Rows are copied; the inputs are not modified.
func Concat(tables []*Table) (*Table, error) {
	if len(tables) == 0 {
		return nil, ErrNoTables
	}
	out := &Table{Cells: append([]Cell(nil), tables[0].Cells...)}
	for n, t := range tables {
		if !sameCells(t.Cells, out.Cells) {
			return nil, errors.Wrapf(ErrSchemaMismatch, "table %d has %d columns, table 0 has %d", n, t.Cols(), len(out.Cells))
		}
		if len(t.Values) != len(t.Index) {
			return nil, errors.Wrapf(ErrFormat, "table %d has %d rows for %d index values", n, len(t.Values), len(t.Index))
		}
		for r, idx := range t.Index {
			out.Index = append(out.Index, idx)
			out.Values = append(out.Values, append([]float64(nil), t.Values[r]...))
		}
	}
	sort.Stable(byIndex{out})
	return out, nil
}

type byIndex struct{ t *Table }

func (b byIndex) Len() int           { return len(b.t.Index) }
func (b byIndex) Less(i, j int) bool { return b.t.Index[i] < b.t.Index[j] }
func (b byIndex) Swap(i, j int) {
	b.t.Index[i], b.t.Index[j] = b.t.Index[j], b.t.Index[i]
	b.t.Values[i], b.t.Values[j] = b.t.Values[j], b.t.Values[i]
}

// Resample sums hourly rows into UTC calendar days. Days without rows
// between the first and the last day get zero sums; missing values (NaN)
// are skipped.
func Resample(times []time.Time, rows [][]float64, ncols int) ([]time.Time, [][]float64) {
	if len(times) == 0 {
		return nil, nil
	}
	first, last := day(times[0]), day(times[len(times)-1])
	ndays := int((last.Unix()-first.Unix())/secsPerDay) + 1
	days := make([]time.Time, ndays)
	sums := make([][]float64, ndays)
	for d := range days {
		days[d] = first.AddDate(0, 0, d)
		sums[d] = make([]float64, ncols)
	}
	for r, ts := range times {
		d := int((day(ts).Unix() - first.Unix()) / secsPerDay)
		for c, v := range rows[r] {
			if !math.IsNaN(v) {
				sums[d][c] += v
			}
		}
	}
	return days, sums
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Merge concatenates per-period tables into one daily table: rows are
// stacked and sorted, labelled with calendar time, summed into days and
// cleared of sentinel values.
func Merge(tables []*Table, cal Calendar, repair Repair) (*Daily, error) {
	all, err := Concat(tables)
	if err != nil {
		return nil, err
	}
	times, err := cal.Reindex(all.Index)
	if err != nil {
		return nil, err
	}
	d := &Daily{Cells: all.Cells}
	if repair.BeforeResample {
		d.Repaired = repair.Apply(all.Values)
	}
	d.Days, d.Values = Resample(times, all.Values, all.Cols())
	if !repair.BeforeResample {
		d.Repaired = repair.Apply(d.Values)
	}
	return d, nil
}
