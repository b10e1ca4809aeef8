package table

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCSV(t *testing.T) {
	tab := &Table{
		Index:  []int64{876576, 876577},
		Cells:  testCells(3),
		Values: [][]float64{{0, 36, 1.2}, {0.1, math.NaN(), 0}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, tab))
	assert.Equal(t, ",0,1,2\n876576,0,36,1.2\n876577,0.1,,0\n", buf.String())

	back, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, tab.Index, back.Index)
	require.Len(t, back.Cells, 3)
	assert.Equal(t, Cell{Column: 2, LatIndex: -1, LonIndex: -1}, back.Cells[2])
	assert.Equal(t, 36.0, back.Values[0][1])
	assert.True(t, math.IsNaN(back.Values[1][1]))
}

func TestReadCSVFloatIndex(t *testing.T) {
	tab, err := ReadCSV(strings.NewReader(",0\n876576.0,1.5\n"))
	require.NoError(t, err)
	assert.Equal(t, []int64{876576}, tab.Index)

	_, err = ReadCSV(strings.NewReader(",0\n876576.5,1.5\n"))
	assert.ErrorIs(t, err, ErrFormat)
	_, err = ReadCSV(strings.NewReader(",a\n1,1\n"))
	assert.ErrorIs(t, err, ErrFormat)
	_, err = ReadCSV(strings.NewReader(",0\n1,x\n"))
	assert.ErrorIs(t, err, ErrFormat)
}

func TestSaveLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Rainf_WFDE5_CRU+GPCC_200001_v2.1_Clip.csv")
	tab := &Table{
		Index: []int64{0, 1},
		Cells: []Cell{
			{Column: 0, LatIndex: 0, LonIndex: 0, Lat: 1.25, Lon: -62.75},
			{Column: 1, LatIndex: 0, LonIndex: 1, Lat: 1.25, Lon: -62.25},
		},
		Values: [][]float64{{1, 2}, {3, 4}},
	}
	require.NoError(t, SaveTable(path, tab))
	assert.FileExists(t, CellMapPath(path))
	assert.True(t, strings.HasSuffix(CellMapPath(path), "_Clip.cells.csv"))

	back, err := LoadTable(path)
	require.NoError(t, err)
	assert.Equal(t, tab, back)

	require.NoError(t, os.Remove(CellMapPath(path)))
	back, err = LoadTable(path)
	require.NoError(t, err)
	assert.Equal(t, -1, back.Cells[1].LatIndex)
}

func TestSaveLoadDaily(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concat.csv")
	d := &Daily{
		Days:   []time.Time{time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2000, 1, 2, 0, 0, 0, 0, time.UTC)},
		Cells:  []Cell{{Column: 0, LatIndex: 1, LonIndex: 2, Lat: 1.75, Lon: -61.75}},
		Values: [][]float64{{12.5}, {0.001}},
	}
	require.NoError(t, SaveDaily(path, d))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ",0\n2000-01-01,12.5\n2000-01-02,0.001\n", string(raw))

	back, err := LoadDaily(path)
	require.NoError(t, err)
	assert.Equal(t, d.Days, back.Days)
	assert.Equal(t, d.Cells, back.Cells)
	assert.Equal(t, d.Values, back.Values)
}

func TestSetCellsMismatch(t *testing.T) {
	err := SetCells(testCells(2), testCells(3))
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	mapping := testCells(2)
	mapping[1].Column = 7
	err = SetCells(testCells(2), mapping)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}
