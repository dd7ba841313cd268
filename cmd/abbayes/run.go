package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/abbayes/internal/adapters/report"
	"github.com/okian/abbayes/internal/adapters/source"
	service "github.com/okian/abbayes/internal/app"
	"github.com/okian/abbayes/internal/config"
	"github.com/okian/abbayes/pkg/logger"
)

type runFlags struct {
	data       string
	format     string
	input      string
	model      string
	engine     string
	table      string
	zeroTrials string
	chains     int
	parallel   int
	warmup     int
	samples    int
	seed       uint64
	quiet      bool
}

func newRunCmd(c *cli) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one analysis on an observation file and print the summary",
		Example: `  abbayes run --data observations.csv
  abbayes run --model revenue --data observations.db --table trials --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, &f)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.data, "data", "", "observation file (.csv, .json, .ndjson, .db, .sqlite)")
	fs.StringVar(&f.format, "format", string(report.FormatTable), "output format: table or json")
	fs.StringVar(&f.input, "input-format", "", "input format when the extension is not enough: csv, json, sqlite")
	fs.StringVar(&f.model, "model", "", "model: conversions or revenue")
	fs.StringVar(&f.engine, "engine", "", "sampling engine: metropolis, conjugate or cmdstan")
	fs.StringVar(&f.table, "table", "", "SQLite table")
	fs.StringVar(&f.zeroTrials, "zero-trials", "", "arms without trials: reject or exclude")
	fs.IntVar(&f.chains, "chains", 0, "number of chains")
	fs.IntVar(&f.parallel, "parallel-chains", 0, "chains run at once")
	fs.IntVar(&f.warmup, "warmup", 0, "warmup iterations per chain")
	fs.IntVar(&f.samples, "samples", 0, "retained iterations per chain")
	fs.Uint64Var(&f.seed, "seed", 0, "random seed")
	fs.BoolVar(&f.quiet, "no-progress", false, "log chain progress at debug level only")
	return cmd
}

// apply layers the command line over the loaded configuration.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	fs := cmd.Flags()
	override(fs, "data", func() { cfg.DataPath = f.data })
	override(fs, "model", func() { cfg.Model = f.model })
	override(fs, "engine", func() { cfg.Engine = f.engine })
	override(fs, "table", func() { cfg.SQLiteTable = f.table })
	override(fs, "zero-trials", func() { cfg.ZeroTrialPolicy = f.zeroTrials })
	override(fs, "chains", func() { cfg.Chains = f.chains })
	override(fs, "parallel-chains", func() { cfg.ParallelChains = f.parallel })
	override(fs, "warmup", func() { cfg.Warmup = f.warmup })
	override(fs, "samples", func() { cfg.Samples = f.samples })
	override(fs, "seed", func() { cfg.Seed = f.seed })
	override(fs, "no-progress", func() { cfg.ShowProgress = !f.quiet })
	if cfg.DataPath == "" {
		return fmt.Errorf("%w: --data or data_path is required", config.ErrInvalidConfig)
	}
	switch report.Format(f.format) {
	case report.FormatTable, report.FormatJSON:
	default:
		return fmt.Errorf("%w: unknown output format %q", config.ErrInvalidConfig, f.format)
	}
	return cfg.Validate()
}

func (c *cli) run(cmd *cobra.Command, f *runFlags) error {
	ctx := cmd.Context()
	cfg := *c.cfg
	if err := f.apply(cmd, &cfg); err != nil {
		return err
	}
	m, err := cfg.ResolveModel()
	if err != nil {
		return err
	}

	records, err := source.Load(ctx, cfg.DataPath,
		source.WithFormat(source.Format(f.input)),
		source.WithTable(cfg.SQLiteTable),
	)
	if err != nil {
		return err
	}
	c.log.Info(ctx, "observations loaded",
		logger.String("path", cfg.DataPath),
		logger.Int("records", len(records)),
	)

	svc, err := newService(&cfg, c.log, service.WithMaxConcurrent(0))
	if err != nil {
		return err
	}
	a, err := svc.Run(ctx, service.Request{Model: m, Records: records})
	if err != nil {
		return err
	}
	return report.Write(cmd.OutOrStdout(), a, report.Format(f.format))
}
