package wfde5

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// Box is a geographic bounding box in degrees.
type Box struct {
	North float64 `mapstructure:"north" yaml:"north"`
	South float64 `mapstructure:"south" yaml:"south"`
	West  float64 `mapstructure:"west" yaml:"west"`
	East  float64 `mapstructure:"east" yaml:"east"`
}

// Window selects a sub-rectangle of a grid. West/South are inclusive and
// East/North exclusive, so lon[West:East] and lat[South:North] are the
// clipped axes.
type Window struct {
	West  int `yaml:"west"`
	East  int `yaml:"east"`
	South int `yaml:"south"`
	North int `yaml:"north"`
}

func (w Window) String() string {
	return fmt.Sprintf("lon[%d:%d] lat[%d:%d]", w.West, w.East, w.South, w.North)
}

// Lons is the number of longitudes in the window.
func (w Window) Lons() int { return w.East - w.West }

// Lats is the number of latitudes in the window.
func (w Window) Lats() int { return w.North - w.South }

// Check returns ErrWindowOutOfRange unless the window is ordered and lies
// within a grid of nlon by nlat cells.
func (w Window) Check(nlon, nlat int) error {
	if w.West < 0 || w.South < 0 || w.West > w.East || w.South > w.North || w.East > nlon || w.North > nlat {
		return errors.Wrapf(ErrWindowOutOfRange, "%s on a %dx%d lon/lat grid", w, nlon, nlat)
	}
	return nil
}

// Nearest returns the index of the coordinate closest to target. Ties go to
// the first occurrence. coords must not be empty.
func Nearest(coords []float64, target float64) int {
	best := 0
	bestDist := math.Abs(coords[0] - target)
	for i := 1; i < len(coords); i++ {
		if d := math.Abs(coords[i] - target); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// Resolve computes the index window covering box. The upper index of each
// axis gets one extra cell because the nearest coordinate may lie inside the
// box. Axes stored in descending order are handled by ordering the two
// indices before widening.
func Resolve(lon, lat []float64, box Box) (Window, error) {
	if len(lon) == 0 || len(lat) == 0 {
		return Window{}, errors.Wrapf(ErrEmptyAxis, "lon has %d values, lat has %d", len(lon), len(lat))
	}
	west, east := ordered(Nearest(lon, box.West), Nearest(lon, box.East))
	south, north := ordered(Nearest(lat, box.South), Nearest(lat, box.North))
	w := Window{West: west, East: east + 1, South: south, North: north + 1}
	if err := w.Check(len(lon), len(lat)); err != nil {
		return Window{}, err
	}
	return w, nil
}

func ordered(a, b int) (int, int) {
	if a > b {
		return b, a
	}
	return a, b
}
