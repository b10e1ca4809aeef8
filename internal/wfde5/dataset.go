package wfde5

import (
	"math"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/pkg/errors"
)

// Dataset is an open grid file. Coordinates are read eagerly; variables are
// read on demand, either whole or one timestep at a time.
type Dataset struct {
	nc    api.Group
	path  string
	names Names

	Time []int64
	Lat  []float64
	Lon  []float64
}

// VarInfo describes a 3-D variable of a dataset.
type VarInfo struct {
	Name   string
	Units  string
	GoType string
	Dims   []string
}

// Open opens a grid file in NetCDF format and reads its coordinates.
func Open(filePath string, names Names) (*Dataset, error) {
	nc, err := netcdf.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", filePath)
	}
	d := &Dataset{nc: nc, path: filePath, names: names}
	d.Lat, err = coordValues(nc, names.Lat)
	if err != nil {
		nc.Close()
		return nil, errors.Wrap(err, filePath)
	}
	d.Lon, err = coordValues(nc, names.Lon)
	if err != nil {
		nc.Close()
		return nil, errors.Wrap(err, filePath)
	}
	d.Time, err = timeValues(nc, names.Time)
	if err != nil {
		nc.Close()
		return nil, errors.Wrap(err, filePath)
	}
	return d, nil
}

// Close closes the dataset.
func (d *Dataset) Close() {
	d.nc.Close()
}

// Path returns the file the dataset was opened from.
func (d *Dataset) Path() string {
	return d.path
}

// Names returns the coordinate names the dataset was opened with.
func (d *Dataset) Names() Names {
	return d.names
}

// Axes returns the time, latitude and longitude coordinates.
func (d *Dataset) Axes() ([]int64, []float64, []float64) {
	return d.Time, d.Lat, d.Lon
}

// Summary returns the summary information about the dataset suitable for
// logging.
func (d *Dataset) Summary() []any {
	return []any{
		"file", d.path,
		"variables", d.nc.ListVariables(),
		"timeCnt", len(d.Time),
		"latCnt", len(d.Lat),
		"lonCnt", len(d.Lon),
	}
}

// Variable returns the description of a 3-D variable.
func (d *Dataset) Variable(name string) (VarInfo, error) {
	vg, err := d.varGetter(name)
	if err != nil {
		return VarInfo{}, err
	}
	dims := vg.Dimensions()
	if len(dims) != 3 {
		return VarInfo{}, errors.Wrapf(ErrShape, "%q has %d dimensions, want 3", name, len(dims))
	}
	units := DefaultUnits
	if u, ok := attrString(vg.Attributes(), "units"); ok {
		units = u
	}
	return VarInfo{Name: name, Units: units, GoType: vg.GoType(), Dims: dims}, nil
}

// ReadCube reads the whole variable into memory.
func (d *Dataset) ReadCube(name string) (*Cube, error) {
	vg, err := d.varGetter(name)
	if err != nil {
		return nil, err
	}
	v, err := vg.Values()
	if err != nil {
		return nil, errors.Wrapf(err, "read %q", name)
	}
	c := NewCube(len(d.Time), len(d.Lat), len(d.Lon))
	if err := fillCube(c, v); err != nil {
		return nil, errors.Wrapf(err, "%q", name)
	}
	return c, nil
}

// ReadSlab reads the [lat][lon] map of the variable at timestep t.
func (d *Dataset) ReadSlab(name string, t int) ([][]float64, error) {
	if t < 0 || t >= len(d.Time) {
		return nil, errors.Wrapf(ErrWindowOutOfRange, "timestep %d of %d", t, len(d.Time))
	}
	vg, err := d.varGetter(name)
	if err != nil {
		return nil, err
	}
	begin := int64(t)
	v, err := vg.GetSlice(begin, begin+1)
	if err != nil {
		return nil, errors.Wrapf(err, "read %q at timestep %d", name, t)
	}
	c := NewCube(1, len(d.Lat), len(d.Lon))
	if err := fillCube(c, v); err != nil {
		return nil, errors.Wrapf(err, "%q at timestep %d", name, t)
	}
	return c.Slab(0), nil
}

func (d *Dataset) varGetter(name string) (api.VarGetter, error) {
	vg, err := d.nc.GetVarGetter(name)
	if err != nil {
		return nil, errors.Wrapf(ErrVariableMissing, "%q in %s: %v", name, d.path, err)
	}
	return vg, nil
}

func coordValues(nc api.Group, name string) ([]float64, error) {
	vg, err := nc.GetVarGetter(name)
	if err != nil {
		return nil, errors.Wrapf(ErrVariableMissing, "coordinate %q: %v", name, err)
	}
	v, err := vg.Values()
	if err != nil {
		return nil, errors.Wrapf(err, "read coordinate %q", name)
	}
	switch vals := v.(type) {
	case []float64:
		return toFloat64(vals), nil
	case []float32:
		return toFloat64(vals), nil
	case []int32:
		return toFloat64(vals), nil
	case []int16:
		return toFloat64(vals), nil
	case []int64:
		return toFloat64(vals), nil
	}
	return nil, errors.Errorf("coordinate %q has unsupported type %T", name, v)
}

func timeValues(nc api.Group, name string) ([]int64, error) {
	hours, err := coordValues(nc, name)
	if err != nil {
		return nil, err
	}
	ts := make([]int64, len(hours))
	for i, h := range hours {
		if h != math.Trunc(h) {
			return nil, errors.Errorf("time value %v at %d is not a whole hour", h, i)
		}
		ts[i] = int64(h)
	}
	return ts, nil
}

func toFloat64[T int16 | int32 | int64 | float32 | float64](vals []T) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = float64(v)
	}
	return out
}

func fillCube(c *Cube, v any) error {
	switch vals := v.(type) {
	case [][][]float32:
		return fill(c, vals)
	case [][][]float64:
		return fill(c, vals)
	case [][][]int16:
		return fill(c, vals)
	case [][][]int32:
		return fill(c, vals)
	}
	return errors.Wrapf(ErrShape, "unsupported variable type %T", v)
}

func fill[T int16 | int32 | float32 | float64](c *Cube, vals [][][]T) error {
	if len(vals) != c.NT {
		return errors.Wrapf(ErrShape, "got %d timesteps, want %d", len(vals), c.NT)
	}
	for t, slab := range vals {
		if len(slab) != c.NLat {
			return errors.Wrapf(ErrShape, "got %d latitudes, want %d", len(slab), c.NLat)
		}
		for i, row := range slab {
			if len(row) != c.NLon {
				return errors.Wrapf(ErrShape, "got %d longitudes, want %d", len(row), c.NLon)
			}
			for j, x := range row {
				c.Set(t, i, j, float64(x))
			}
		}
	}
	return nil
}

func attrString(attrs api.AttributeMap, key string) (string, bool) {
	if attrs == nil {
		return "", false
	}
	v, ok := attrs.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
