package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rtm0/wfde5/internal/config"
	"github.com/rtm0/wfde5/internal/metrics"
	"github.com/rtm0/wfde5/internal/pipeline"
	"github.com/rtm0/wfde5/internal/quicklook"
	"github.com/rtm0/wfde5/internal/table"
	"github.com/rtm0/wfde5/internal/wfde5"
)

type app struct {
	v       *viper.Viper
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Collector
}

func newApp() *app {
	return &app{v: viper.New()}
}

// options are the configuration keys that can also be set on the command
// line. Each is bound to viper under its configuration key.
var options = []struct {
	name, key, usage string
	defaultVal       any
}{
	{"raw-dir", "raw_dir", "directory holding the downloaded monthly WFDE5 files", "dataset"},
	{"clipped-dir", "clipped_dir", "directory for clipped files and per-period tables", "clipped"},
	{"concat-dir", "concat_dir", "directory for the merged daily table", "concat"},
	{"output", "output", "file name of the merged daily table", "Rainf_WFDE5_CRU+GPCC_2000-2010_v2.1_ClipConcat.csv"},
	{"variable", "variable", "variable to extract", "Rainf"},
	{"version", "version", "data version in the file names", "v2.1"},
	{"concurrency", "concurrency", "number of files processed at once", 1},
	{"metrics-file", "metrics_file", "write Prometheus metrics to this textfile when the run ends", ""},
	{"log-level", "log.level", "log level: debug, info, warn or error", "info"},
	{"log-format", "log.format", "log format: text or json", "text"},
}

func (a *app) root() *cobra.Command {
	var cfgFile string
	root := &cobra.Command{
		Use:           "wfde5",
		Short:         "Convert WFDE5 gridded precipitation into SHETRAN per-cell time series",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.v, cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = cfg.NewLogger(os.Stdout)
			a.metrics = metrics.NewCollector("wfde5")
			return nil
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "YAML configuration file")
	for _, o := range options {
		addFlag(flags, o.name, o.usage, o.defaultVal)
		if err := a.v.BindPFlag(o.key, flags.Lookup(o.name)); err != nil {
			panic(err)
		}
	}

	root.AddCommand(
		a.runCmd(),
		a.clipCmd(),
		a.flattenCmd(),
		a.mergeCmd(),
		a.plotCmd(),
		a.ascCmd(),
		a.pushCmd(),
		a.loadCmd(),
	)
	return root
}

// addFlag registers a flag whose default only documents the configuration
// default; an unset flag leaves the configuration value alone.
func addFlag(flags *pflag.FlagSet, name, usage string, defaultVal any) {
	switch d := defaultVal.(type) {
	case string:
		flags.String(name, d, usage)
	case int:
		flags.Int(name, d, usage)
	default:
		panic(errors.Errorf("flag %s: unsupported default %T", name, defaultVal))
	}
}

func (a *app) pipeline() *pipeline.Pipeline {
	return pipeline.New(a.cfg, a.logger, a.metrics)
}

func (a *app) runCmd() *cobra.Command {
	var opts pipeline.Options
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Clip, flatten and merge every monthly file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := a.pipeline().Run(cmd.Context(), opts)
			return err
		},
	}
	cmd.Flags().BoolVar(&opts.Push, "push", false, "push the merged table to VictoriaMetrics")
	cmd.Flags().BoolVar(&opts.Load, "load", false, "load the merged table into PostgreSQL")
	return cmd
}

func (a *app) clipCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clip",
		Short: "Clip every monthly file to the configured bounds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := a.pipeline()
			files, err := p.Discover()
			if err != nil {
				return err
			}
			w, err := p.ResolveWindow(files[0])
			if err != nil {
				return err
			}
			if err := p.ClipAll(cmd.Context(), files, w); err != nil {
				return err
			}
			return p.WriteMetrics()
		},
	}
}

func (a *app) flattenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flatten",
		Short: "Convert every clipped file into a per-cell table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := a.pipeline()
			files, err := p.Discover()
			if err != nil {
				return err
			}
			if _, err := p.FlattenAll(cmd.Context(), files); err != nil {
				return err
			}
			return p.WriteMetrics()
		},
	}
}

func (a *app) mergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge",
		Short: "Merge the per-period tables into the daily table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := a.pipeline()
			tables, err := p.DiscoverTables()
			if err != nil {
				return err
			}
			if _, _, err := p.MergeAll(cmd.Context(), tables); err != nil {
				return err
			}
			return p.WriteMetrics()
		},
	}
}

func (a *app) plotCmd() *cobra.Command {
	var (
		opts   quicklook.Options
		out    string
		domain bool
	)
	cmd := &cobra.Command{
		Use:   "plot <file>",
		Short: "Plot a time series and a map of one file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ds, err := wfde5.Open(args[0], a.cfg.CoordNames())
			if err != nil {
				return err
			}
			defer ds.Close()
			a.logger.Info("grid summary", ds.Summary()...)
			if domain {
				if opts.Window, err = wfde5.Resolve(ds.Lon, ds.Lat, a.cfg.Bounds); err != nil {
					return err
				}
			}
			opts.Factor = a.cfg.UnitConversion
			opts.Epoch = a.cfg.EpochTime()

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := quicklook.Plot(f, ds, a.cfg.Variable, opts); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			a.logger.Info("wrote plot", "file", out)
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.Time, "time", 0, "timestep index of the map")
	cmd.Flags().IntVar(&opts.Lat, "lat", 0, "latitude index of the time series")
	cmd.Flags().IntVar(&opts.Lon, "lon", 0, "longitude index of the time series")
	cmd.Flags().BoolVar(&domain, "domain", false, "restrict the map to the configured bounds")
	cmd.Flags().StringVar(&out, "out", "quicklook.png", "PNG file to write")
	return cmd
}

func (a *app) ascCmd() *cobra.Command {
	var rows, cols int
	cmd := &cobra.Command{
		Use:   "asc <in.asc> <out.csv>",
		Short: "Convert an ASCII parameter grid into a numbered CSV table",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			in, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer in.Close()
			g, err := table.ReadASC(in, rows, cols)
			if err != nil {
				return errors.Wrap(err, args[0])
			}
			out, err := os.Create(args[1])
			if err != nil {
				return err
			}
			if err := table.WriteGridCSV(out, g.Values); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
			a.logger.Info("converted ascii grid", "in", args[0], "out", args[1], "ncols", g.Header.NCols, "nrows", g.Header.NRows)
			return nil
		},
	}
	cmd.Flags().IntVar(&rows, "rows", 0, "number of rows of the table")
	cmd.Flags().IntVar(&cols, "cols", 0, "number of columns of the table")
	for _, name := range []string{"rows", "cols"} {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}
	return cmd
}

func (a *app) pushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Push the merged daily table to VictoriaMetrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := a.pipeline()
			d, err := table.LoadDaily(p.OutputPath())
			if err != nil {
				return err
			}
			if _, err := p.Push(cmd.Context(), d); err != nil {
				return err
			}
			return p.WriteMetrics()
		},
	}
}

func (a *app) loadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Load the merged daily table into PostgreSQL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := a.pipeline()
			out := p.OutputPath()
			d, err := table.LoadDaily(out)
			if err != nil {
				return err
			}
			runID, err := a.runID(out)
			if err != nil {
				return err
			}
			if _, err := p.Load(cmd.Context(), runID, d); err != nil {
				return err
			}
			return p.WriteMetrics()
		},
	}
}

// runID reuses the id of the run that produced out, or starts a new one when
// no manifest is found.
func (a *app) runID(out string) (uuid.UUID, error) {
	path := pipeline.ReportPath(out)
	r, err := pipeline.ReadReport(path)
	if errors.Is(err, os.ErrNotExist) {
		id := uuid.New()
		a.logger.Warn("no run manifest, using a new run id", "manifest", filepath.Base(path), "run", id)
		return id, nil
	}
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(r.RunID)
}
