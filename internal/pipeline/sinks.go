package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rtm0/wfde5/internal/store"
	"github.com/rtm0/wfde5/internal/table"
	"github.com/rtm0/wfde5/internal/vm"
)

// Push sends the daily table to VictoriaMetrics and returns the number of
// records sent.
func (p *Pipeline) Push(ctx context.Context, d *table.Daily) (int, error) {
	defer p.observe("push", time.Now())
	v := p.cfg.Victoria
	cli, err := vm.NewClient(p.logger, v.InsertURL, v.MaxConns, v.MetricPrefix)
	if err != nil {
		return 0, err
	}
	recs := vm.Records(d)

	var batches [][]vm.Record
	for begin := 0; begin < len(recs); begin += v.RecsPerInsert {
		batches = append(batches, recs[begin:min(begin+v.RecsPerInsert, len(recs))])
	}
	err = p.forEach(ctx, "push", len(batches), func(ctx context.Context, i int) error {
		return cli.Insert(ctx, batches[i])
	})
	if err != nil {
		return 0, err
	}
	p.metrics.RecordsExported.WithLabelValues("victoria").Add(float64(len(recs)))
	p.logger.Info("pushed records", "count", len(recs), "url", v.InsertURL)
	return len(recs), nil
}

// Load stores the daily table in PostgreSQL under runID, migrating the
// schema first when configured to.
func (p *Pipeline) Load(ctx context.Context, runID uuid.UUID, d *table.Daily) (int, error) {
	defer p.observe("load", time.Now())
	pg := p.cfg.Postgres
	if pg.Migrate {
		if err := store.Migrate(pg.DSN); err != nil {
			return 0, err
		}
	}
	s, err := store.Open(ctx, p.logger, pg.DSN)
	if err != nil {
		return 0, err
	}
	defer s.Close()
	n, err := s.SaveRun(ctx, runID, p.cfg.Variable, d, pg.BatchSize)
	if err != nil {
		return 0, err
	}
	p.metrics.RecordsExported.WithLabelValues("postgres").Add(float64(n))
	p.logger.Info("stored daily values", "run", runID, "rows", n)
	return n, nil
}
