package table

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtm0/wfde5/internal/wfde5"
)

func testGrid(nt, nlat, nlon int, value func(t, i, j int) float64) *wfde5.Grid {
	g := &wfde5.Grid{
		Names:    wfde5.DefaultNames,
		Epoch:    time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC),
		Time:     make([]int64, nt),
		Lat:      make([]float64, nlat),
		Lon:      make([]float64, nlon),
		Variable: "Rainf",
		Units:    wfde5.DefaultUnits,
		Data:     wfde5.NewCube(nt, nlat, nlon),
	}
	for i := range g.Lat {
		g.Lat[i] = 1.25 + 0.5*float64(i)
	}
	for j := range g.Lon {
		g.Lon[j] = -62.75 + 0.5*float64(j)
	}
	for t := range g.Time {
		g.Time[t] = int64(t)
		for i := range g.Lat {
			for j := range g.Lon {
				g.Data.Set(t, i, j, value(t, i, j))
			}
		}
	}
	return g
}

func TestFlattenShapeAndConversion(t *testing.T) {
	g := testGrid(48, 2, 3, func(t, i, j int) float64 { return 10 })

	tab, err := Flatten(g, "Rainf", 3.6)
	require.NoError(t, err)

	assert.Equal(t, 48, tab.Rows())
	assert.Equal(t, 6, tab.Cols())
	require.Len(t, tab.Values, 48)
	for _, row := range tab.Values {
		require.Len(t, row, 6)
		for _, v := range row {
			assert.Equal(t, 36.0, v)
		}
	}
	assert.Equal(t, g.Time, tab.Index)
}

func TestFlattenColumnOrder(t *testing.T) {
	g := testGrid(2, 3, 4, func(t, i, j int) float64 { return float64(100*t + 10*i + j) })

	tab, err := Flatten(g, "Rainf", 1)
	require.NoError(t, err)

	col := 0
	for i := range g.Lat {
		for j := range g.Lon {
			c := tab.Cells[col]
			assert.Equal(t, Cell{Column: col, LatIndex: i, LonIndex: j, Lat: g.Lat[i], Lon: g.Lon[j]}, c)
			for r := range tab.Index {
				assert.Equal(t, g.Data.At(r, i, j), tab.Values[r][col])
			}
			col++
		}
	}
}

func TestFlattenRoundTrip(t *testing.T) {
	const factor = 3600.0
	g := testGrid(24, 2, 2, func(t, i, j int) float64 {
		return math.Abs(math.Sin(float64(t+i*7+j*13))) * 2e-3
	})

	tab, err := Flatten(g, "Rainf", factor)
	require.NoError(t, err)

	for col, c := range tab.Cells {
		for r := range tab.Index {
			src := g.Data.At(r, c.LatIndex, c.LonIndex)
			assert.InDelta(t, src, tab.Values[r][col]/factor, 0.051/factor)
		}
	}
}

func TestFlattenMissingVariable(t *testing.T) {
	g := testGrid(1, 1, 1, func(t, i, j int) float64 { return 0 })
	_, err := Flatten(g, "Snowf", 1)
	assert.ErrorIs(t, err, wfde5.ErrVariableMissing)
}

func TestRound1(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{36.0, 36.0},
		{10 * 3.6, 36.0},
		{0.04, 0.0},
		{0.06, 0.1},
		{1.25, 1.2},
		{-2.37, -2.4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Round1(tt.in), "Round1(%v)", tt.in)
	}
}
