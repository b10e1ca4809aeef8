package wfde5

import (
	"io/fs"
	"math"
	"os"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
	"github.com/pkg/errors"
)

// Units written on the coordinate axes.
const (
	LonUnits = "degrees_east"
	LatUnits = "degrees_north"
)

// TimeUnits returns the CF units string of an hourly axis starting at epoch.
func TimeUnits(epoch time.Time) string {
	return "hours since " + epoch.UTC().Format("2006-01-02 15:04:05")
}

// Write stores g as a NetCDF file at path, replacing any existing file. Every
// coordinate and the variable carry a units attribute.
func Write(path string, g *Grid) error {
	if err := g.check(); err != nil {
		return err
	}
	hours := make([]int32, len(g.Time))
	for i, h := range g.Time {
		if h < math.MinInt32 || h > math.MaxInt32 {
			return errors.Errorf("time value %d does not fit the file's int axis", h)
		}
		hours[i] = int32(h)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrapf(err, "replace %s", path)
	}

	cw, err := cdf.OpenWriter(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	vars := []struct {
		name  string
		units string
		dims  []string
		vals  any
	}{
		{g.Names.Time, TimeUnits(g.Epoch), []string{g.Names.Time}, hours},
		{g.Names.Lon, LonUnits, []string{g.Names.Lon}, append([]float64(nil), g.Lon...)},
		{g.Names.Lat, LatUnits, []string{g.Names.Lat}, append([]float64(nil), g.Lat...)},
		{g.Variable, g.Units, []string{g.Names.Time, g.Names.Lat, g.Names.Lon}, cubeValues(g.Data, g.GoType)},
	}
	for _, v := range vars {
		attrs, err := util.NewOrderedMap([]string{"units"}, map[string]any{"units": v.units})
		if err != nil {
			cw.Close()
			return errors.Wrapf(err, "attributes of %q", v.name)
		}
		err = cw.AddVar(v.name, api.Variable{Values: v.vals, Dimensions: v.dims, Attributes: attrs})
		if err != nil {
			cw.Close()
			return errors.Wrapf(err, "write %q to %s", v.name, path)
		}
	}
	if err := cw.Close(); err != nil {
		return errors.Wrapf(err, "close %s", path)
	}
	return nil
}

func cubeValues(c *Cube, goType string) any {
	if goType == "float64" {
		return nest[float64](c)
	}
	return nest[float32](c)
}

func nest[T float32 | float64](c *Cube) [][][]T {
	out := make([][][]T, c.NT)
	for t := range out {
		out[t] = make([][]T, c.NLat)
		for i := range out[t] {
			row := make([]T, c.NLon)
			for j := range row {
				row[j] = T(c.At(t, i, j))
			}
			out[t][i] = row
		}
	}
	return out
}
