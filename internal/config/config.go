// Package config holds the run configuration. Values come from, in order of
// precedence, command-line flags, WFDE5_* environment variables (a .env file
// is loaded first when present), a YAML config file and the defaults below.
package config

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/rtm0/wfde5/internal/store"
	"github.com/rtm0/wfde5/internal/table"
	"github.com/rtm0/wfde5/internal/wfde5"
)

// ErrInvalid is returned for configuration values that fail validation.
var ErrInvalid = errors.New("invalid configuration")

// EnvPrefix prefixes every environment override, e.g. WFDE5_RAW_DIR.
const EnvPrefix = "WFDE5"

// Names are the coordinate variable names in the raw files.
type Names struct {
	Time string `mapstructure:"time"`
	Lat  string `mapstructure:"lat"`
	Lon  string `mapstructure:"lon"`
}

// Sentinel configures the repair of fill values above Threshold.
type Sentinel struct {
	Threshold      float64 `mapstructure:"threshold"`
	Replacement    float64 `mapstructure:"replacement"`
	BeforeResample bool    `mapstructure:"before_resample"`
}

// Log selects the slog level and handler.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Victoria configures the VictoriaMetrics push sink.
type Victoria struct {
	InsertURL     string `mapstructure:"insert_url"`
	MetricPrefix  string `mapstructure:"metric_prefix"`
	RecsPerInsert int    `mapstructure:"recs_per_insert"`
	MaxConns      int    `mapstructure:"max_conns"`
}

// Postgres configures the PostgreSQL load sink.
type Postgres struct {
	DSN       string `mapstructure:"dsn"`
	BatchSize int    `mapstructure:"batch_size"`
	Migrate   bool   `mapstructure:"migrate"`
}

// Config is the full run configuration.
type Config struct {
	Variable  string `mapstructure:"variable"`
	Dataset   string `mapstructure:"dataset"`
	Version   string `mapstructure:"version"`
	Extension string `mapstructure:"extension"`
	Names     Names  `mapstructure:"names"`

	RawDir     string `mapstructure:"raw_dir"`
	ClippedDir string `mapstructure:"clipped_dir"`
	ConcatDir  string `mapstructure:"concat_dir"`
	Output     string `mapstructure:"output"`

	Bounds         wfde5.Box `mapstructure:"bounds"`
	UnitConversion float64   `mapstructure:"unit_conversion"`
	Epoch          string    `mapstructure:"epoch"`
	CalendarEnd    string    `mapstructure:"calendar_end"`
	Sentinel       Sentinel  `mapstructure:"sentinel"`

	Concurrency int    `mapstructure:"concurrency"`
	MetricsFile string `mapstructure:"metrics_file"`
	Log         Log    `mapstructure:"log"`

	Victoria Victoria `mapstructure:"victoria"`
	Postgres Postgres `mapstructure:"postgres"`

	epoch time.Time
	end   time.Time
}

// SecsPerHour / KgPerCubicM * MmPerMetre converts kg m-2 s-1 to mm h-1.
const (
	SecsPerHour = 3600
	KgPerCubicM = 1000
	MmPerMetre  = 1000
)

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	defaults := map[string]any{
		"variable":                 "Rainf",
		"dataset":                  "WFDE5_CRU+GPCC",
		"version":                  "v2.1",
		"extension":                ".nc",
		"names.time":               wfde5.DefaultNames.Time,
		"names.lat":                wfde5.DefaultNames.Lat,
		"names.lon":                wfde5.DefaultNames.Lon,
		"raw_dir":                  "dataset",
		"clipped_dir":              "clipped",
		"concat_dir":               "concat",
		"output":                   "Rainf_WFDE5_CRU+GPCC_2000-2010_v2.1_ClipConcat.csv",
		"bounds.north":             8.21,
		"bounds.south":             1.09,
		"bounds.west":              -62.94,
		"bounds.east":              -57.67,
		"unit_conversion":          float64(SecsPerHour) / KgPerCubicM * MmPerMetre,
		"epoch":                    "1900-01-01T00:00:00Z",
		"calendar_end":             "2011-01-01T00:00:00Z",
		"sentinel.threshold":       table.DefaultRepair.Threshold,
		"sentinel.replacement":     table.DefaultRepair.Replacement,
		"sentinel.before_resample": table.DefaultRepair.BeforeResample,
		"concurrency":              1,
		"metrics_file":             "",
		"log.level":                "info",
		"log.format":               "text",
		"victoria.insert_url":      "http://localhost:8428/write",
		"victoria.metric_prefix":   "wfde5",
		"victoria.recs_per_insert": 500,
		"victoria.max_conns":       4,
		"postgres.dsn":             "",
		"postgres.batch_size":      1000,
		"postgres.migrate":         true,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Load reads the configuration into a validated Config. path may be empty,
// in which case only defaults, environment and bound flags apply.
func Load(v *viper.Viper, path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field and parses the calendar bounds.
func (c *Config) Validate() error {
	var problems []string
	bad := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}
	required := []struct{ key, val string }{
		{"variable", c.Variable}, {"version", c.Version}, {"extension", c.Extension},
		{"names.time", c.Names.Time}, {"names.lat", c.Names.Lat}, {"names.lon", c.Names.Lon},
		{"raw_dir", c.RawDir}, {"clipped_dir", c.ClippedDir}, {"concat_dir", c.ConcatDir}, {"output", c.Output},
	}
	for _, r := range required {
		if strings.TrimSpace(r.val) == "" {
			bad("%s must not be empty", r.key)
		}
	}
	if c.Extension != "" && !strings.HasPrefix(c.Extension, ".") {
		bad("extension %q must start with a dot", c.Extension)
	}
	b := c.Bounds
	if b.South > b.North {
		bad("bounds.south %v is north of bounds.north %v", b.South, b.North)
	}
	if b.West > b.East {
		bad("bounds.west %v is east of bounds.east %v", b.West, b.East)
	}
	if b.South < -90 || b.North > 90 {
		bad("latitude bounds must lie in [-90, 90]")
	}
	if b.West < -180 || b.East > 360 {
		bad("longitude bounds must lie in [-180, 360]")
	}
	if c.UnitConversion <= 0 {
		bad("unit_conversion must be positive, got %v", c.UnitConversion)
	}
	var err error
	if c.epoch, err = time.Parse(time.RFC3339, c.Epoch); err != nil {
		bad("epoch: %v", err)
	}
	if c.end, err = time.Parse(time.RFC3339, c.CalendarEnd); err != nil {
		bad("calendar_end: %v", err)
	}
	if !c.epoch.IsZero() && !c.end.IsZero() && !c.end.After(c.epoch) {
		bad("calendar_end %s must be after epoch %s", c.CalendarEnd, c.Epoch)
	}
	if c.Sentinel.Threshold <= 0 {
		bad("sentinel.threshold must be positive")
	}
	if c.Concurrency < 1 {
		bad("concurrency must be at least 1, got %d", c.Concurrency)
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		bad("log.level: %v", err)
	}
	if f := c.Log.Format; f != "text" && f != "json" {
		bad("log.format must be text or json, got %q", f)
	}
	if c.Victoria.RecsPerInsert < 1 {
		bad("victoria.recs_per_insert must be at least 1")
	}
	if c.Victoria.MaxConns < 1 {
		bad("victoria.max_conns must be at least 1")
	}
	if n := c.Postgres.BatchSize; n < 1 || n > store.MaxBatchSize {
		bad("postgres.batch_size must lie in [1, %d], got %d", store.MaxBatchSize, n)
	}
	if len(problems) > 0 {
		return errors.Wrap(ErrInvalid, strings.Join(problems, "; "))
	}
	c.epoch, c.end = c.epoch.UTC(), c.end.UTC()
	return nil
}

// Calendar is the hourly reference calendar of the raw time axis.
func (c *Config) Calendar() table.Calendar {
	return table.Calendar{Epoch: c.epoch, End: c.end}
}

// EpochTime is the parsed epoch.
func (c *Config) EpochTime() time.Time {
	return c.epoch
}

// Repair is the sentinel repair rule.
func (c *Config) Repair() table.Repair {
	return table.Repair{
		Threshold:      c.Sentinel.Threshold,
		Replacement:    c.Sentinel.Replacement,
		BeforeResample: c.Sentinel.BeforeResample,
	}
}

// CoordNames are the coordinate variable names.
func (c *Config) CoordNames() wfde5.Names {
	return wfde5.Names{Time: c.Names.Time, Lat: c.Names.Lat, Lon: c.Names.Lon}
}

// NewLogger builds the process logger.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	var lvl slog.Level
	_ = lvl.UnmarshalText([]byte(c.Log.Level))
	opts := &slog.HandlerOptions{Level: lvl}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
