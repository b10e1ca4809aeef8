package wfde5

import (
	"time"

	"github.com/pkg/errors"
)

// Clip extracts the window w of variable from src and writes it to dst as a
// new grid file. The time axis is kept whole. The source is read one
// timestep at a time so memory stays bounded by a single global map plus
// the clipped result.
func Clip(src *Dataset, variable string, w Window, dst string, epoch time.Time) error {
	info, err := src.Variable(variable)
	if err != nil {
		return err
	}
	if err := w.Check(len(src.Lon), len(src.Lat)); err != nil {
		return errors.Wrap(err, src.path)
	}
	g := &Grid{
		Names:    src.names,
		Epoch:    epoch,
		Time:     append([]int64(nil), src.Time...),
		Lon:      append([]float64(nil), src.Lon[w.West:w.East]...),
		Lat:      append([]float64(nil), src.Lat[w.South:w.North]...),
		Variable: variable,
		Units:    info.Units,
		GoType:   info.GoType,
		Data:     NewCube(len(src.Time), w.Lats(), w.Lons()),
	}
	for t := range src.Time {
		slab, err := src.ReadSlab(variable, t)
		if err != nil {
			return err
		}
		for i := w.South; i < w.North; i++ {
			for j := w.West; j < w.East; j++ {
				g.Data.Set(t, i-w.South, j-w.West, slab[i][j])
			}
		}
	}
	return Write(dst, g)
}
