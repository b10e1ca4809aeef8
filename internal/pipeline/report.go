package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/rtm0/wfde5/internal/wfde5"
)

// Report is the manifest of one run.
type Report struct {
	RunID    string    `yaml:"run_id"`
	Started  time.Time `yaml:"started"`
	Finished time.Time `yaml:"finished"`

	Variable string       `yaml:"variable"`
	Bounds   wfde5.Box    `yaml:"bounds"`
	Window   wfde5.Window `yaml:"window"`
	Files    []string     `yaml:"files"`
	Tables   []string     `yaml:"tables"`
	Output   string       `yaml:"output"`

	Cells           int    `yaml:"cells"`
	HourlyRows      int    `yaml:"hourly_rows"`
	Days            int    `yaml:"days"`
	FirstDay        string `yaml:"first_day,omitempty"`
	LastDay         string `yaml:"last_day,omitempty"`
	SentinelRepairs int    `yaml:"sentinel_repairs"`

	Durations map[string]string `yaml:"durations"`
	Exported  map[string]int    `yaml:"exported,omitempty"`
}

func (r *Report) took(stage string, start time.Time) {
	if r.Durations == nil {
		r.Durations = map[string]string{}
	}
	r.Durations[stage] = time.Since(start).Round(time.Millisecond).String()
}

func (r *Report) exported(sink string, n int) {
	if r.Exported == nil {
		r.Exported = map[string]int{}
	}
	r.Exported[sink] = n
}

// ReportPath is the manifest location for the merged table at output.
func ReportPath(output string) string {
	return strings.TrimSuffix(output, filepath.Ext(output)) + ".run.yaml"
}

// WriteReport writes r as YAML to path.
func WriteReport(path string, r *Report) error {
	raw, err := yaml.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "encode report")
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return errors.Wrapf(err, "write report %s", path)
	}
	return nil
}

// ReadReport reads a manifest written by WriteReport.
func ReadReport(path string) (*Report, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r := &Report{}
	if err := yaml.Unmarshal(raw, r); err != nil {
		return nil, errors.Wrapf(err, "decode report %s", path)
	}
	return r, nil
}
