package table

import (
	"bufio"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrASCShape is returned when an ASCII grid holds more rows or columns than
// declared by the caller.
var ErrASCShape = errors.New("ascii grid exceeds the declared shape")

// ascHeaderLines is the fixed length of the ESRI ASCII grid header.
const ascHeaderLines = 6

// ASCHeader is the metadata block of an ESRI ASCII grid.
type ASCHeader struct {
	NCols    int
	NRows    int
	XLL      float64
	YLL      float64
	CellSize float64
	NoData   float64
	// Center is true when the corner keys are xllcenter/yllcenter.
	Center bool
}

// ASCGrid is a parsed ASCII parameter grid.
type ASCGrid struct {
	Header ASCHeader
	Values [][]float64
}

// ReadASC reads a whitespace-delimited ASCII grid with a 6-line header into
// an nrows by ncols table. Cells the file does not fill stay zero, and so do
// blank lines, which still take up a row. Blank lines past the last row are
// ignored.
func ReadASC(r io.Reader, nrows, ncols int) (*ASCGrid, error) {
	g := &ASCGrid{Values: make([][]float64, nrows)}
	for i := range g.Values {
		g.Values[i] = make([]float64, ncols)
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for ; line < ascHeaderLines && sc.Scan(); line++ {
		if err := g.Header.set(sc.Text()); err != nil {
			return nil, errors.Wrapf(err, "header line %d", line+1)
		}
	}
	if line < ascHeaderLines {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, errors.Wrapf(ErrFormat, "ascii grid header has %d lines, want %d", line, ascHeaderLines)
	}
	row := 0
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			// A blank line is a row of zeros.
			row++
			continue
		}
		if row >= nrows {
			return nil, errors.Wrapf(ErrASCShape, "row %d of %d", row+1, nrows)
		}
		if len(fields) > ncols {
			return nil, errors.Wrapf(ErrASCShape, "row %d has %d columns, want %d", row+1, len(fields), ncols)
		}
		for c, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, errors.Wrapf(ErrFormat, "row %d column %d: %q", row+1, c+1, f)
			}
			g.Values[row][c] = v
		}
		row++
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return g, nil
}

func (h *ASCHeader) set(line string) error {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return errors.Wrapf(ErrFormat, "want \"key value\", got %q", line)
	}
	key, val := strings.ToLower(fields[0]), fields[1]
	var err error
	switch key {
	case "ncols":
		h.NCols, err = strconv.Atoi(val)
	case "nrows":
		h.NRows, err = strconv.Atoi(val)
	case "xllcorner", "xllcenter":
		h.XLL, err = strconv.ParseFloat(val, 64)
		h.Center = key == "xllcenter"
	case "yllcorner", "yllcenter":
		h.YLL, err = strconv.ParseFloat(val, 64)
	case "cellsize":
		h.CellSize, err = strconv.ParseFloat(val, 64)
	case "nodata_value":
		h.NoData, err = strconv.ParseFloat(val, 64)
	default:
		return errors.Wrapf(ErrFormat, "unknown header key %q", fields[0])
	}
	if err != nil {
		return errors.Wrapf(ErrFormat, "%s: %v", fields[0], err)
	}
	return nil
}

// WriteGridCSV writes a parameter grid with numbered rows and columns.
func WriteGridCSV(w io.Writer, values [][]float64) error {
	cw := csv.NewWriter(w)
	ncols := 0
	if len(values) > 0 {
		ncols = len(values[0])
	}
	head := make([]string, ncols+1)
	for c := 0; c < ncols; c++ {
		head[c+1] = strconv.Itoa(c)
	}
	if err := cw.Write(head); err != nil {
		return err
	}
	rec := make([]string, ncols+1)
	for r, row := range values {
		rec[0] = strconv.Itoa(r)
		formatRow(rec[1:], row)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
