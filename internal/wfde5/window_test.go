package wfde5

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func halfDegree(start float64, n int) []float64 {
	c := make([]float64, n)
	for i := range c {
		c[i] = start + 0.5*float64(i)
	}
	return c
}

func TestNearest(t *testing.T) {
	tests := []struct {
		name   string
		coords []float64
		target float64
		want   int
	}{
		{"exact", []float64{0, 1, 2, 3}, 2, 2},
		{"between rounds down", []float64{0, 1, 2, 3}, 1.4, 1},
		{"between rounds up", []float64{0, 1, 2, 3}, 1.6, 2},
		{"tie takes first", []float64{0, 1, 2, 3}, 1.5, 1},
		{"below range", []float64{0, 1, 2, 3}, -10, 0},
		{"above range", []float64{0, 1, 2, 3}, 10, 3},
		{"descending", []float64{3, 2, 1, 0}, 0.9, 2},
		{"single", []float64{42}, -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Nearest(tt.coords, tt.target))
		})
	}
}

func TestNearestIsMinimal(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for n := 0; n < 200; n++ {
		coords := make([]float64, 1+rnd.Intn(50))
		for i := range coords {
			coords[i] = rnd.Float64()*360 - 180
		}
		target := rnd.Float64()*400 - 200
		got := Nearest(coords, target)
		best := math.Abs(coords[got] - target)
		for i, c := range coords {
			d := math.Abs(c - target)
			require.GreaterOrEqual(t, d, best, "coords[%d]=%v is closer to %v than coords[%d]", i, c, target, got)
			if d == best {
				require.GreaterOrEqual(t, i, got, "tie must resolve to the first occurrence")
			}
		}
	}
}

func TestResolve(t *testing.T) {
	// WFDE5 0.5 degree grid centred on quarter degrees, south to north.
	lon := halfDegree(-179.75, 720)
	lat := halfDegree(-89.75, 360)

	w, err := Resolve(lon, lat, Box{North: 8.21, South: 1.09, West: -62.94, East: -57.67})
	require.NoError(t, err)

	assert.Equal(t, Nearest(lon, -62.94), w.West)
	assert.Equal(t, Nearest(lon, -57.67)+1, w.East)
	assert.Equal(t, Nearest(lat, 1.09), w.South)
	assert.Equal(t, Nearest(lat, 8.21)+1, w.North)
	assert.LessOrEqual(t, lon[w.West], -62.75)
	assert.GreaterOrEqual(t, lon[w.East-1], -57.75)
	assert.LessOrEqual(t, lat[w.South], 1.25)
	assert.GreaterOrEqual(t, lat[w.North-1], 8.25)
}

func TestResolveDescendingLatitude(t *testing.T) {
	lon := halfDegree(0.25, 10)
	lat := []float64{4.75, 4.25, 3.75, 3.25, 2.75, 2.25, 1.75, 1.25, 0.75, 0.25}

	w, err := Resolve(lon, lat, Box{North: 3.3, South: 1.2, West: 1, East: 2})
	require.NoError(t, err)
	assert.Equal(t, Window{West: 1, East: 4, South: 3, North: 8}, w)
}

func TestResolveEdges(t *testing.T) {
	lon := halfDegree(0.25, 4)
	lat := halfDegree(0.25, 3)

	w, err := Resolve(lon, lat, Box{North: 100, South: -100, West: -100, East: 100})
	require.NoError(t, err)
	assert.Equal(t, Window{West: 0, East: 4, South: 0, North: 3}, w)

	_, err = Resolve(nil, lat, Box{})
	assert.ErrorIs(t, err, ErrEmptyAxis)
}

func TestWindowCheck(t *testing.T) {
	tests := []struct {
		name string
		w    Window
		ok   bool
	}{
		{"full", Window{0, 6, 0, 5}, true},
		{"empty", Window{2, 2, 3, 3}, true},
		{"east past end", Window{0, 7, 0, 5}, false},
		{"north past end", Window{0, 6, 0, 6}, false},
		{"negative", Window{-1, 2, 0, 1}, false},
		{"reversed", Window{3, 2, 0, 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.w.Check(6, 5)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrWindowOutOfRange)
			}
		})
	}
}
