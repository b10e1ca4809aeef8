package table

import (
	"github.com/rtm0/wfde5/internal/wfde5"
	"gonum.org/v1/gonum/floats"
)

// Source is a grid dataset that can be flattened.
type Source interface {
	Axes() (time []int64, lat, lon []float64)
	ReadCube(variable string) (*wfde5.Cube, error)
}

// Flatten turns every grid cell of variable into a table column. Cells are
// visited latitude first, then longitude, and each series is multiplied by
// factor and rounded to one decimal. Rows are indexed by the raw time
// coordinate.
func Flatten(src Source, variable string, factor float64) (*Table, error) {
	times, lat, lon := src.Axes()
	cube, err := src.ReadCube(variable)
	if err != nil {
		return nil, err
	}
	n := len(lat) * len(lon)
	t := &Table{
		Index:  append([]int64(nil), times...),
		Cells:  make([]Cell, 0, n),
		Values: make([][]float64, len(times)),
	}
	for r := range t.Values {
		t.Values[r] = make([]float64, n)
	}
	col := 0
	for i := range lat {
		for j := range lon {
			series := cube.Series(i, j)
			floats.Scale(factor, series)
			for r, v := range series {
				t.Values[r][col] = Round1(v)
			}
			t.Cells = append(t.Cells, Cell{Column: col, LatIndex: i, LonIndex: j, Lat: lat[i], Lon: lon[j]})
			col++
		}
	}
	return t, nil
}
