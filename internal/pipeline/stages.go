package pipeline

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/rtm0/wfde5/internal/table"
	"github.com/rtm0/wfde5/internal/wfde5"
)

// Discover lists the raw monthly files in period order.
func (p *Pipeline) Discover() ([]wfde5.FileName, error) {
	files, err := wfde5.Discover(p.cfg.RawDir, p.cfg.Version, p.cfg.Extension)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Wrapf(ErrNoInput, "%s/*%s%s", p.cfg.RawDir, p.cfg.Version, p.cfg.Extension)
	}
	p.logger.Info("discovered files", "count", len(files), "first", files[0].String(), "last", files[len(files)-1].String())
	return files, nil
}

// ResolveWindow computes the clip window from the coordinates of f. Every
// file of a run shares the same grid, so the first one is enough.
func (p *Pipeline) ResolveWindow(f wfde5.FileName) (wfde5.Window, error) {
	ds, err := wfde5.Open(f.Path(), p.cfg.CoordNames())
	if err != nil {
		return wfde5.Window{}, err
	}
	defer ds.Close()
	p.logger.Info("grid summary", ds.Summary()...)

	w, err := wfde5.Resolve(ds.Lon, ds.Lat, p.cfg.Bounds)
	if err != nil {
		return wfde5.Window{}, errors.Wrap(err, f.Path())
	}
	p.metrics.Cells.Set(float64(w.Lons() * w.Lats()))
	p.logger.Info("resolved window", "window", w.String(), "cells", w.Lons()*w.Lats())
	return w, nil
}

// ClipAll clips every file to w, writing the results to the clipped
// directory.
func (p *Pipeline) ClipAll(ctx context.Context, files []wfde5.FileName, w wfde5.Window) error {
	if err := ensureDir(p.cfg.ClippedDir); err != nil {
		return err
	}
	defer p.observe("clip", time.Now())
	return p.forEach(ctx, "clip", len(files), func(_ context.Context, i int) error {
		return p.clip(files[i], w)
	})
}

func (p *Pipeline) clip(f wfde5.FileName, w wfde5.Window) error {
	ds, err := wfde5.Open(f.Path(), p.cfg.CoordNames())
	if err != nil {
		return err
	}
	defer ds.Close()
	dst := f.ClippedPath(p.cfg.ClippedDir)
	if err := wfde5.Clip(ds, p.cfg.Variable, w, dst, p.cfg.EpochTime()); err != nil {
		return errors.Wrapf(err, "clip %s", f)
	}
	p.metrics.FilesTotal.WithLabelValues("clip").Inc()
	p.logger.Debug("clipped", "file", f.String(), "to", dst)
	return nil
}

// FlattenAll converts every clipped file into a per-period table and returns
// the table paths in period order.
func (p *Pipeline) FlattenAll(ctx context.Context, files []wfde5.FileName) ([]string, error) {
	defer p.observe("flatten", time.Now())
	paths := make([]string, len(files))
	err := p.forEach(ctx, "flatten", len(files), func(_ context.Context, i int) error {
		path, err := p.flatten(files[i])
		paths[i] = path
		return err
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

func (p *Pipeline) flatten(f wfde5.FileName) (string, error) {
	src := f.ClippedPath(p.cfg.ClippedDir)
	ds, err := wfde5.Open(src, p.cfg.CoordNames())
	if err != nil {
		return "", err
	}
	defer ds.Close()
	t, err := table.Flatten(ds, p.cfg.Variable, p.cfg.UnitConversion)
	if err != nil {
		return "", errors.Wrapf(err, "flatten %s", src)
	}
	dst := f.TablePath(p.cfg.ClippedDir)
	if err := table.SaveTable(dst, t); err != nil {
		return "", errors.Wrapf(err, "write %s", dst)
	}
	p.metrics.FilesTotal.WithLabelValues("flatten").Inc()
	p.logger.Debug("flattened", "file", src, "rows", t.Rows(), "cells", t.Cols())
	return dst, nil
}

// DiscoverTables lists the per-period tables in the clipped directory.
func (p *Pipeline) DiscoverTables() ([]string, error) {
	pattern := filepath.Join(p.cfg.ClippedDir, "*"+p.cfg.Version+"_Clip.csv")
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", pattern)
	}
	if len(paths) == 0 {
		return nil, errors.Wrap(ErrNoInput, pattern)
	}
	sort.Strings(paths)
	return paths, nil
}

// MergeAll loads the tables at paths, merges them into the daily table and
// writes it to the output path. It also returns the number of hourly rows
// merged.
func (p *Pipeline) MergeAll(ctx context.Context, paths []string) (*table.Daily, int, error) {
	defer p.observe("merge", time.Now())
	tables := make([]*table.Table, len(paths))
	err := p.forEach(ctx, "load tables", len(paths), func(_ context.Context, i int) error {
		t, err := table.LoadTable(paths[i])
		if err != nil {
			return errors.Wrapf(err, "load %s", paths[i])
		}
		tables[i] = t
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	var rows int
	for _, t := range tables {
		rows += t.Rows()
	}

	d, err := table.Merge(tables, p.cfg.Calendar(), p.cfg.Repair())
	if err != nil {
		return nil, 0, err
	}
	out := p.OutputPath()
	if err := ensureDir(filepath.Dir(out)); err != nil {
		return nil, 0, err
	}
	if err := table.SaveDaily(out, d); err != nil {
		return nil, 0, errors.Wrapf(err, "write %s", out)
	}

	p.metrics.RowsMerged.Add(float64(rows))
	p.metrics.DaysWritten.Set(float64(len(d.Days)))
	p.metrics.SentinelRepairs.Add(float64(d.Repaired))
	if d.Repaired > 0 {
		p.logger.Warn("replaced sentinel values", "count", d.Repaired, "threshold", p.cfg.Sentinel.Threshold)
	}
	p.logger.Info("merged tables", "tables", len(paths), "hourly_rows", rows, "days", len(d.Days), "output", out)
	return d, rows, nil
}
