package table

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DayFormat is the timestamp layout of the merged table.
const DayFormat = "2006-01-02"

var cellMapHeader = []string{"column", "lat_index", "lon_index", "lat", "lon"}

// WriteCSV writes t as a delimited table: a header of column labels after an
// empty index label, then one row per timestep starting with the raw index.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header(t.Cells)); err != nil {
		return err
	}
	rec := make([]string, t.Cols()+1)
	for r, idx := range t.Index {
		rec[0] = strconv.FormatInt(idx, 10)
		formatRow(rec[1:], t.Values[r])
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads a table written by WriteCSV. Only column labels are known
// from the file itself; grid positions are unset (-1) until a cell map is
// applied with SetCells.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	head, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(ErrFormat, "missing header")
	}
	cells, err := parseHeader(head)
	if err != nil {
		return nil, err
	}
	t := &Table{Cells: cells}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(ErrFormat, "line %d: %v", line, err)
		}
		idx, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			// Indexes written from float time axes look like "876576.0".
			f, ferr := strconv.ParseFloat(rec[0], 64)
			if ferr != nil || f != math.Trunc(f) {
				return nil, errors.Wrapf(ErrFormat, "line %d: index %q", line, rec[0])
			}
			idx = int64(f)
		}
		row, err := parseRow(rec[1:], line)
		if err != nil {
			return nil, err
		}
		t.Index = append(t.Index, idx)
		t.Values = append(t.Values, row)
	}
	return t, nil
}

// WriteDailyCSV writes the merged table with one dated row per day.
func WriteDailyCSV(w io.Writer, d *Daily) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header(d.Cells)); err != nil {
		return err
	}
	rec := make([]string, len(d.Cells)+1)
	for r, day := range d.Days {
		rec[0] = day.Format(DayFormat)
		formatRow(rec[1:], d.Values[r])
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadDailyCSV reads a table written by WriteDailyCSV.
func ReadDailyCSV(r io.Reader) (*Daily, error) {
	cr := csv.NewReader(r)
	head, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(ErrFormat, "missing header")
	}
	cells, err := parseHeader(head)
	if err != nil {
		return nil, err
	}
	d := &Daily{Cells: cells}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(ErrFormat, "line %d: %v", line, err)
		}
		day, err := time.Parse(DayFormat, rec[0])
		if err != nil {
			return nil, errors.Wrapf(ErrFormat, "line %d: day %q", line, rec[0])
		}
		row, err := parseRow(rec[1:], line)
		if err != nil {
			return nil, err
		}
		d.Days = append(d.Days, day)
		d.Values = append(d.Values, row)
	}
	return d, nil
}

// WriteCellMap writes the column to grid cell mapping.
func WriteCellMap(w io.Writer, cells []Cell) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(cellMapHeader); err != nil {
		return err
	}
	for _, c := range cells {
		err := cw.Write([]string{
			strconv.Itoa(c.Column),
			strconv.Itoa(c.LatIndex),
			strconv.Itoa(c.LonIndex),
			strconv.FormatFloat(c.Lat, 'f', -1, 64),
			strconv.FormatFloat(c.Lon, 'f', -1, 64),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCellMap reads a mapping written by WriteCellMap.
func ReadCellMap(r io.Reader) ([]Cell, error) {
	recs, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, errors.Wrap(ErrFormat, err.Error())
	}
	if len(recs) == 0 || strings.Join(recs[0], ",") != strings.Join(cellMapHeader, ",") {
		return nil, errors.Wrap(ErrFormat, "cell map header")
	}
	cells := make([]Cell, 0, len(recs)-1)
	for n, rec := range recs[1:] {
		var c Cell
		var errs [5]error
		c.Column, errs[0] = strconv.Atoi(rec[0])
		c.LatIndex, errs[1] = strconv.Atoi(rec[1])
		c.LonIndex, errs[2] = strconv.Atoi(rec[2])
		c.Lat, errs[3] = strconv.ParseFloat(rec[3], 64)
		c.Lon, errs[4] = strconv.ParseFloat(rec[4], 64)
		for _, err := range errs {
			if err != nil {
				return nil, errors.Wrapf(ErrFormat, "cell map line %d: %v", n+2, err)
			}
		}
		cells = append(cells, c)
	}
	return cells, nil
}

// SetCells attaches grid positions to cells read from a table header. The
// mapping must list exactly the same columns in the same order.
func SetCells(dst []Cell, mapping []Cell) error {
	if len(dst) != len(mapping) {
		return errors.Wrapf(ErrSchemaMismatch, "table has %d columns, cell map has %d", len(dst), len(mapping))
	}
	for i := range dst {
		if dst[i].Column != mapping[i].Column {
			return errors.Wrapf(ErrSchemaMismatch, "column %d is labelled %d in the cell map", dst[i].Column, mapping[i].Column)
		}
		dst[i] = mapping[i]
	}
	return nil
}

// CellMapPath is the sidecar file holding the cell map of a table file.
func CellMapPath(tablePath string) string {
	return strings.TrimSuffix(tablePath, ".csv") + ".cells.csv"
}

// SaveTable writes t to path and its cell map next to it.
func SaveTable(path string, t *Table) error {
	if err := writeFile(path, func(w io.Writer) error { return WriteCSV(w, t) }); err != nil {
		return err
	}
	return writeFile(CellMapPath(path), func(w io.Writer) error { return WriteCellMap(w, t.Cells) })
}

// LoadTable reads a table and, when present, its cell map.
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := ReadCSV(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	if err := applyCellMap(path, t.Cells); err != nil {
		return nil, err
	}
	return t, nil
}

// SaveDaily writes d to path and its cell map next to it.
func SaveDaily(path string, d *Daily) error {
	if err := writeFile(path, func(w io.Writer) error { return WriteDailyCSV(w, d) }); err != nil {
		return err
	}
	return writeFile(CellMapPath(path), func(w io.Writer) error { return WriteCellMap(w, d.Cells) })
}

// LoadDaily reads a merged table and, when present, its cell map.
func LoadDaily(path string) (*Daily, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	d, err := ReadDailyCSV(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	if err := applyCellMap(path, d.Cells); err != nil {
		return nil, err
	}
	return d, nil
}

func applyCellMap(tablePath string, cells []Cell) error {
	f, err := os.Open(CellMapPath(tablePath))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	mapping, err := ReadCellMap(f)
	if err != nil {
		return errors.Wrap(err, CellMapPath(tablePath))
	}
	return errors.Wrap(SetCells(cells, mapping), tablePath)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	return f.Close()
}

func header(cells []Cell) []string {
	h := make([]string, len(cells)+1)
	for i, c := range cells {
		h[i+1] = strconv.Itoa(c.Column)
	}
	return h
}

func parseHeader(head []string) ([]Cell, error) {
	if len(head) == 0 {
		return nil, errors.Wrap(ErrFormat, "empty header")
	}
	cells := make([]Cell, len(head)-1)
	for i, label := range head[1:] {
		col, err := strconv.Atoi(label)
		if err != nil {
			return nil, errors.Wrapf(ErrFormat, "column label %q", label)
		}
		cells[i] = Cell{Column: col, LatIndex: -1, LonIndex: -1}
	}
	return cells, nil
}

func formatRow(dst []string, row []float64) {
	for i, v := range row {
		if math.IsNaN(v) {
			dst[i] = ""
			continue
		}
		dst[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
}

func parseRow(rec []string, line int) ([]float64, error) {
	row := make([]float64, len(rec))
	for i, s := range rec {
		if s == "" {
			row[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errors.Wrapf(ErrFormat, "line %d column %d: %q", line, i, s)
		}
		row[i] = v
	}
	return row, nil
}
