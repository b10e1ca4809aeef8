package wfde5

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch1900 = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// testGrid builds a grid whose values encode their own position.
func testGrid(nt, nlat, nlon int) *Grid {
	g := &Grid{
		Names:    DefaultNames,
		Epoch:    epoch1900,
		Time:     make([]int64, nt),
		Lat:      halfDegree(0.25, nlat),
		Lon:      halfDegree(-2.75, nlon),
		Variable: "Rainf",
		Units:    DefaultUnits,
		GoType:   "float32",
		Data:     NewCube(nt, nlat, nlon),
	}
	for t := range g.Time {
		g.Time[t] = 876576 + int64(t)
		for i := range g.Lat {
			for j := range g.Lon {
				g.Data.Set(t, i, j, float64(t*100+i*10+j))
			}
		}
	}
	return g
}

func TestWriteOpenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.nc")
	g := testGrid(4, 3, 5)
	require.NoError(t, Write(path, g))

	ds, err := Open(path, DefaultNames)
	require.NoError(t, err)
	defer ds.Close()

	assert.Equal(t, g.Time, ds.Time)
	assert.Equal(t, g.Lat, ds.Lat)
	assert.Equal(t, g.Lon, ds.Lon)

	info, err := ds.Variable("Rainf")
	require.NoError(t, err)
	assert.Equal(t, DefaultUnits, info.Units)
	assert.Equal(t, "float32", info.GoType)

	c, err := ds.ReadCube("Rainf")
	require.NoError(t, err)
	assert.Equal(t, g.Data.Data, c.Data)

	slab, err := ds.ReadSlab("Rainf", 2)
	require.NoError(t, err)
	assert.Equal(t, g.Data.Slab(2), slab)

	_, err = ds.ReadCube("Tair")
	assert.ErrorIs(t, err, ErrVariableMissing)
}

func TestClip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Rainf_WFDE5_CRU+GPCC_200001_v2.1.nc")
	dst := filepath.Join(dir, "Rainf_WFDE5_CRU+GPCC_200001_v2.1_Clip.nc")
	g := testGrid(3, 6, 8)
	require.NoError(t, Write(src, g))

	ds, err := Open(src, DefaultNames)
	require.NoError(t, err)
	defer ds.Close()

	w := Window{West: 2, East: 5, South: 1, North: 4}
	require.NoError(t, Clip(ds, "Rainf", w, dst, epoch1900))

	out, err := Open(dst, DefaultNames)
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, g.Time, out.Time, "time axis is not clipped")
	assert.Len(t, out.Lon, w.East-w.West)
	assert.Len(t, out.Lat, w.North-w.South)
	assert.Equal(t, g.Lon[w.West:w.East], out.Lon)
	assert.Equal(t, g.Lat[w.South:w.North], out.Lat)

	c, err := out.ReadCube("Rainf")
	require.NoError(t, err)
	for tt := range g.Time {
		for i := 0; i < w.Lats(); i++ {
			for j := 0; j < w.Lons(); j++ {
				assert.Equal(t, g.Data.At(tt, i+w.South, j+w.West), c.At(tt, i, j))
			}
		}
	}

	nc, err := netcdf.Open(dst)
	require.NoError(t, err)
	defer nc.Close()
	for name, want := range map[string]string{
		"time":  "hours since 1900-01-01 00:00:00",
		"lon":   LonUnits,
		"lat":   LatUnits,
		"Rainf": DefaultUnits,
	} {
		vg, err := nc.GetVarGetter(name)
		require.NoError(t, err)
		units, ok := vg.Attributes().Get("units")
		require.True(t, ok, "%s has no units", name)
		assert.Equal(t, want, units, name)
	}
}

func TestClipRejectsBadWindow(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.nc")
	require.NoError(t, Write(src, testGrid(2, 3, 3)))

	ds, err := Open(src, DefaultNames)
	require.NoError(t, err)
	defer ds.Close()

	err = Clip(ds, "Rainf", Window{West: 0, East: 4, South: 0, North: 2}, filepath.Join(dir, "out.nc"), epoch1900)
	assert.ErrorIs(t, err, ErrWindowOutOfRange)

	err = Clip(ds, "Qair", Window{West: 0, East: 1, South: 0, North: 1}, filepath.Join(dir, "out.nc"), epoch1900)
	assert.ErrorIs(t, err, ErrVariableMissing)
}

func TestGridReadCubeChecksShape(t *testing.T) {
	g := testGrid(2, 2, 2)
	g.Lat = g.Lat[:1]
	_, err := g.ReadCube("Rainf")
	assert.ErrorIs(t, err, ErrShape)
}
