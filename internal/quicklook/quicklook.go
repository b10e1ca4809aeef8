// Package quicklook renders diagnostic plots of a gridded variable.
package quicklook

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/rtm0/wfde5/internal/wfde5"
)

const (
	figWidth  = 10 * vg.Inch
	figHeight = 4 * vg.Inch
)

// Source is a gridded variable readable one timestep at a time.
type Source interface {
	Axes() ([]int64, []float64, []float64)
	ReadSlab(variable string, t int) ([][]float64, error)
}

// Options selects what to plot. A zero Window plots the whole grid.
type Options struct {
	Time   int
	Lat    int
	Lon    int
	Window wfde5.Window
	Factor float64
	Epoch  time.Time
	DPI    int
}

// Plot writes a PNG with two panels: the series at (Lat, Lon) on the left
// and the map of timestep Time on the right, with the point marked.
func Plot(w io.Writer, src Source, variable string, opts Options) error {
	times, lat, lon := src.Axes()
	if opts.Time < 0 || opts.Time >= len(times) {
		return errors.Wrapf(wfde5.ErrWindowOutOfRange, "timestep %d of %d", opts.Time, len(times))
	}
	if opts.Lat < 0 || opts.Lat >= len(lat) || opts.Lon < 0 || opts.Lon >= len(lon) {
		return errors.Wrapf(wfde5.ErrWindowOutOfRange, "cell (%d, %d) on a %dx%d lat/lon grid", opts.Lat, opts.Lon, len(lat), len(lon))
	}
	win := opts.Window
	if win == (wfde5.Window{}) {
		win = wfde5.Window{East: len(lon), North: len(lat)}
	}
	if err := win.Check(len(lon), len(lat)); err != nil {
		return err
	}
	if win.Lons() == 0 || win.Lats() == 0 {
		return errors.Wrapf(wfde5.ErrEmptyAxis, "window %s", win)
	}
	factor := opts.Factor
	if factor == 0 {
		factor = 1
	}

	series := make([]float64, len(times))
	var snapshot [][]float64
	for t := range times {
		slab, err := src.ReadSlab(variable, t)
		if err != nil {
			return errors.Wrapf(err, "read timestep %d", t)
		}
		series[t] = slab[opts.Lat][opts.Lon]
		if t == opts.Time {
			snapshot = slab
		}
	}
	floats.Scale(factor, series)

	left, err := seriesPlot(times, series, opts, lat[opts.Lat], lon[opts.Lon])
	if err != nil {
		return err
	}
	right, err := mapPlot(snapshot, lat, lon, win, factor, opts)
	if err != nil {
		return err
	}

	dpi := opts.DPI
	if dpi == 0 {
		dpi = 96
	}
	img := vgimg.NewWith(vgimg.UseWH(figWidth, figHeight), vgimg.UseDPI(dpi))
	dc := draw.New(img)
	tiles := draw.Tiles{Rows: 1, Cols: 2, PadX: vg.Millimeter, PadY: vg.Millimeter}
	plots := [][]*plot.Plot{{left, right}}
	canvases := plot.Align(plots, tiles, dc)
	left.Draw(canvases[0][0])
	right.Draw(canvases[0][1])

	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(w); err != nil {
		return errors.Wrap(err, "encode png")
	}
	return nil
}

func seriesPlot(times []int64, series []float64, opts Options, la, lo float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Time series"
	p.X.Label.Text = "time"
	p.Y.Label.Text = "value"
	xys := make(plotter.XYs, len(times))
	for i, h := range times {
		xys[i].X = float64(opts.Epoch.Unix() + h*3600)
		xys[i].Y = series[i]
	}
	if !opts.Epoch.IsZero() {
		p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return nil, errors.Wrap(err, "series line")
	}
	line.Color = color.RGBA{B: 200, A: 255}
	p.Add(line)
	p.Legend.Add(fmt.Sprintf("lat %.2f lon %.2f", la, lo), line)
	return p, nil
}

func mapPlot(slab [][]float64, lat, lon []float64, win wfde5.Window, factor float64, opts Options) (*plot.Plot, error) {
	g := newGrid(slab, lat, lon, win, factor)
	pal := palette.Heat(12, 1)
	h := plotter.NewHeatMap(g, pal)
	if h.Max <= h.Min {
		h.Max = h.Min + 1
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Timestep %d", opts.Time)
	p.X.Label.Text = "longitude"
	p.Y.Label.Text = "latitude"
	p.Add(h)

	inWindow := opts.Lon >= win.West && opts.Lon < win.East && opts.Lat >= win.South && opts.Lat < win.North
	if inWindow {
		marker, err := plotter.NewScatter(plotter.XYs{{X: lon[opts.Lon], Y: lat[opts.Lat]}})
		if err != nil {
			return nil, errors.Wrap(err, "marker")
		}
		marker.GlyphStyle = draw.GlyphStyle{
			Color:  color.RGBA{R: 255, A: 255},
			Radius: vg.Points(4),
			Shape:  draw.CircleGlyph{},
		}
		p.Add(marker)
	}
	return p, nil
}

// grid adapts a window of a slab to plotter.GridXYZ. Rows and columns are
// ordered by increasing coordinate whatever the axis direction on disk.
type grid struct {
	z        [][]float64
	factor   float64
	lat, lon []float64
	rows     []int
	cols     []int
}

func newGrid(slab [][]float64, lat, lon []float64, win wfde5.Window, factor float64) *grid {
	g := &grid{z: slab, factor: factor, lat: lat, lon: lon}
	for i := win.South; i < win.North; i++ {
		g.rows = append(g.rows, i)
	}
	for j := win.West; j < win.East; j++ {
		g.cols = append(g.cols, j)
	}
	sort.SliceStable(g.rows, func(a, b int) bool { return lat[g.rows[a]] < lat[g.rows[b]] })
	sort.SliceStable(g.cols, func(a, b int) bool { return lon[g.cols[a]] < lon[g.cols[b]] })
	return g
}

func (g *grid) Dims() (c, r int) { return len(g.cols), len(g.rows) }
func (g *grid) X(c int) float64  { return g.lon[g.cols[c]] }
func (g *grid) Y(r int) float64  { return g.lat[g.rows[r]] }

// Z maps missing values to zero so the palette range stays finite.
func (g *grid) Z(c, r int) float64 {
	v := g.z[g.rows[r]][g.cols[c]]
	if math.IsNaN(v) {
		return 0
	}
	return v * g.factor
}
