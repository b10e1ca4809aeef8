package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector provides batch run metrics. It registers on its own registry so
// a run can be dumped to a node-exporter textfile when it finishes.
type Collector struct {
	registry *prometheus.Registry

	FilesTotal      *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	Cells           prometheus.Gauge
	RowsMerged      prometheus.Counter
	DaysWritten     prometheus.Gauge
	SentinelRepairs prometheus.Counter
	RecordsExported *prometheus.CounterVec
	LastSuccess     prometheus.Gauge
}

// NewCollector creates a new metrics collector
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Collector{
		registry: reg,
		FilesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_processed_total",
				Help:      "Number of monthly files processed by stage",
			},
			[]string{"stage"},
		),
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"stage"},
		),
		Cells: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "grid_cells",
				Help:      "Number of grid cells (table columns) in the clipped window",
			},
		),
		RowsMerged: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hourly_rows_merged_total",
				Help:      "Number of hourly rows merged into the daily table",
			},
		),
		DaysWritten: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "daily_rows_written",
				Help:      "Number of daily rows in the merged table",
			},
		),
		SentinelRepairs: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sentinel_repairs_total",
				Help:      "Number of no-data sentinel values replaced",
			},
		),
		RecordsExported: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_exported_total",
				Help:      "Number of daily cell values exported by sink",
			},
			[]string{"sink"},
		),
		LastSuccess: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last successful run",
			},
		),
	}
}

// Gatherer exposes the collector's registry.
func (c *Collector) Gatherer() prometheus.Gatherer {
	return c.registry
}

// WriteTextfile writes all metrics to path in the text exposition format.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
