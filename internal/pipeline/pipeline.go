// Package pipeline runs the WFDE5 to SHETRAN batch: discover the monthly
// files, clip them to the catchment window, flatten each clipped file into a
// per-cell table and merge the tables into one daily table.
package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/rtm0/wfde5/internal/config"
	"github.com/rtm0/wfde5/internal/metrics"
	"github.com/rtm0/wfde5/internal/table"
)

// ErrNoInput is returned when a stage finds nothing to process.
var ErrNoInput = errors.New("no input files")

// Pipeline runs the batch stages with one configuration.
type Pipeline struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Collector
}

// New creates a pipeline. m may be nil, in which case a private collector is
// used and never written.
func New(cfg *config.Config, logger *slog.Logger, m *metrics.Collector) *Pipeline {
	if m == nil {
		m = metrics.NewCollector("wfde5")
	}
	return &Pipeline{cfg: cfg, logger: logger, metrics: m}
}

// Options selects the optional sinks of a full run.
type Options struct {
	Push bool
	Load bool
}

// OutputPath is where the merged daily table is written.
func (p *Pipeline) OutputPath() string {
	if filepath.IsAbs(p.cfg.Output) {
		return p.cfg.Output
	}
	return filepath.Join(p.cfg.ConcatDir, p.cfg.Output)
}

// Run executes every stage in order and writes the run manifest next to the
// merged output.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Report, error) {
	r := &Report{
		RunID:    uuid.NewString(),
		Started:  time.Now().UTC(),
		Variable: p.cfg.Variable,
		Bounds:   p.cfg.Bounds,
	}
	logger := p.logger.With("run", r.RunID)
	logger.Info("starting run", "raw_dir", p.cfg.RawDir, "concurrency", p.cfg.Concurrency)

	files, err := p.Discover()
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		r.Files = append(r.Files, f.String())
	}

	start := time.Now()
	w, err := p.ResolveWindow(files[0])
	if err != nil {
		return nil, err
	}
	r.Window = w

	if err := p.ClipAll(ctx, files, w); err != nil {
		return nil, err
	}
	r.took("clip", start)

	start = time.Now()
	tables, err := p.FlattenAll(ctx, files)
	if err != nil {
		return nil, err
	}
	r.took("flatten", start)

	// Merge only this run's tables, not whatever else sits in the clipped dir.
	start = time.Now()
	r.Tables = tables
	d, rows, err := p.MergeAll(ctx, tables)
	if err != nil {
		return nil, err
	}
	r.took("merge", start)
	r.Output = p.OutputPath()
	r.Cells = len(d.Cells)
	r.HourlyRows = rows
	r.Days = len(d.Days)
	r.SentinelRepairs = d.Repaired
	if len(d.Days) > 0 {
		r.FirstDay = d.Days[0].Format(table.DayFormat)
		r.LastDay = d.Days[len(d.Days)-1].Format(table.DayFormat)
	}

	if opts.Push {
		start = time.Now()
		n, err := p.Push(ctx, d)
		if err != nil {
			return nil, err
		}
		r.exported("victoria", n)
		r.took("push", start)
	}
	if opts.Load {
		start = time.Now()
		id, err := uuid.Parse(r.RunID)
		if err != nil {
			return nil, err
		}
		n, err := p.Load(ctx, id, d)
		if err != nil {
			return nil, err
		}
		r.exported("postgres", n)
		r.took("load", start)
	}

	r.Finished = time.Now().UTC()
	if err := WriteReport(ReportPath(r.Output), r); err != nil {
		return nil, err
	}
	p.metrics.LastSuccess.SetToCurrentTime()
	if err := p.WriteMetrics(); err != nil {
		return nil, err
	}
	logger.Info("run finished", "output", r.Output, "days", r.Days, "cells", r.Cells, "repaired", r.SentinelRepairs)
	return r, nil
}

// WriteMetrics dumps the collector to the configured textfile, if any.
func (p *Pipeline) WriteMetrics() error {
	if p.cfg.MetricsFile == "" {
		return nil
	}
	if err := p.metrics.WriteTextfile(p.cfg.MetricsFile); err != nil {
		return errors.Wrapf(err, "write metrics %s", p.cfg.MetricsFile)
	}
	return nil
}

func (p *Pipeline) observe(stage string, start time.Time) {
	p.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}
	return nil
}
