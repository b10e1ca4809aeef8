package wfde5

import (
	"time"

	"github.com/pkg/errors"
)

// Names holds the variable names of the three coordinate axes.
type Names struct {
	Time string
	Lat  string
	Lon  string
}

// DefaultNames are the coordinate names used by WFDE5 files.
var DefaultNames = Names{Time: "time", Lat: "lat", Lon: "lon"}

// DefaultUnits is the physical unit of the WFDE5 precipitation flux.
const DefaultUnits = "kg m-2 s-1"

// Cube is a dense [time, lat, lon] array.
type Cube struct {
	NT   int
	NLat int
	NLon int
	Data []float64
}

// NewCube allocates a zeroed cube.
func NewCube(nt, nlat, nlon int) *Cube {
	return &Cube{NT: nt, NLat: nlat, NLon: nlon, Data: make([]float64, nt*nlat*nlon)}
}

func (c *Cube) offset(t, i, j int) int {
	return (t*c.NLat+i)*c.NLon + j
}

// At returns the value at timestep t, latitude index i and longitude index j.
func (c *Cube) At(t, i, j int) float64 {
	return c.Data[c.offset(t, i, j)]
}

// Set stores v at (t, i, j).
func (c *Cube) Set(t, i, j int, v float64) {
	c.Data[c.offset(t, i, j)] = v
}

// Series returns a copy of the full time series of cell (i, j).
func (c *Cube) Series(i, j int) []float64 {
	s := make([]float64, c.NT)
	for t := range s {
		s[t] = c.At(t, i, j)
	}
	return s
}

// Slab returns a copy of the [lat][lon] map at timestep t.
func (c *Cube) Slab(t int) [][]float64 {
	slab := make([][]float64, c.NLat)
	for i := range slab {
		start := c.offset(t, i, 0)
		slab[i] = append([]float64(nil), c.Data[start:start+c.NLon]...)
	}
	return slab
}

// Grid is an in-memory grid dataset with a single variable of interest. It is
// what the clipper builds before writing, and a convenient source in tests.
type Grid struct {
	Names    Names
	Epoch    time.Time
	Time     []int64
	Lat      []float64
	Lon      []float64
	Variable string
	Units    string
	// GoType is the storage type of the variable, "float32" or "float64".
	GoType string
	Data   *Cube
}

// Axes returns the time, latitude and longitude coordinates.
func (g *Grid) Axes() ([]int64, []float64, []float64) {
	return g.Time, g.Lat, g.Lon
}

// ReadCube returns the grid data for the named variable.
func (g *Grid) ReadCube(variable string) (*Cube, error) {
	if variable != g.Variable {
		return nil, errors.Wrapf(ErrVariableMissing, "%q", variable)
	}
	if err := g.check(); err != nil {
		return nil, err
	}
	return g.Data, nil
}

// ReadSlab returns the [lat][lon] map of the named variable at timestep t.
func (g *Grid) ReadSlab(variable string, t int) ([][]float64, error) {
	c, err := g.ReadCube(variable)
	if err != nil {
		return nil, err
	}
	if t < 0 || t >= c.NT {
		return nil, errors.Wrapf(ErrWindowOutOfRange, "timestep %d of %d", t, c.NT)
	}
	return c.Slab(t), nil
}

func (g *Grid) check() error {
	if g.Data == nil {
		return errors.Wrapf(ErrShape, "%q has no data", g.Variable)
	}
	if g.Data.NT != len(g.Time) || g.Data.NLat != len(g.Lat) || g.Data.NLon != len(g.Lon) {
		return errors.Wrapf(ErrShape, "%q is [%d %d %d], coordinates are [%d %d %d]",
			g.Variable, g.Data.NT, g.Data.NLat, g.Data.NLon, len(g.Time), len(g.Lat), len(g.Lon))
	}
	if len(g.Data.Data) != g.Data.NT*g.Data.NLat*g.Data.NLon {
		return errors.Wrapf(ErrShape, "%q holds %d values", g.Variable, len(g.Data.Data))
	}
	return nil
}
