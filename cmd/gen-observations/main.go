// Command gen-observations writes a reproducible synthetic A/B data set and
// optionally submits it to a running abbayes server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/abbayes/internal/adapters/source"
	"github.com/okian/abbayes/internal/synthetic"
	"github.com/okian/abbayes/pkg/logger"
)

type flags struct {
	arms          []string
	units         int
	trialsPerUnit int
	seed          uint64
	out           string
	format        string
	table         string
	post          string
	model         string
	timeout       time.Duration
	logLevel      string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	cmd := newRootCmd()
	err := cmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		cmd.PrintErrln("error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "gen-observations",
		Short: "Generate synthetic binomial observations",
		Example: `  gen-observations --out observations.csv
  gen-observations --arm 0:control:0.05 --arm 1:variant:0.07 --out obs.db --table trials
  gen-observations --post http://localhost:9080 --model revenue`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return generate(cmd, &f)
		},
	}
	fs := cmd.Flags()
	fs.StringArrayVar(&f.arms, "arm", nil, "arm as treat:arm_id:rate; repeat per arm (default 0:0:0.05 and 1:1:0.06)")
	fs.IntVar(&f.units, "units", synthetic.DefaultUnits, "rows per arm")
	fs.IntVar(&f.trialsPerUnit, "trials-per-unit", synthetic.DefaultTrialsPerUnit, "trials in each row")
	fs.Uint64Var(&f.seed, "seed", synthetic.DefaultSeed, "random seed")
	fs.StringVar(&f.out, "out", "", "output path; CSV on stdout when empty and nothing is posted")
	fs.StringVar(&f.format, "format", "", "output format: csv, json, sqlite (default from extension)")
	fs.StringVar(&f.table, "table", source.DefaultTable, "table name for sqlite output")
	fs.StringVar(&f.post, "post", "", "base URL of an abbayes server to submit the data to")
	fs.StringVar(&f.model, "model", "conversions", "model requested when posting")
	fs.DurationVar(&f.timeout, "timeout", 5*time.Minute, "request timeout when posting")
	fs.StringVar(&f.logLevel, "log-level", "info", "log level")
	return cmd
}

func generate(cmd *cobra.Command, f *flags) error {
	ctx := cmd.Context()
	if err := logger.InitWithOptions(logger.Options{Writer: cmd.ErrOrStderr()}); err != nil {
		return err
	}
	if err := logger.SetLevelString(f.logLevel); err != nil {
		return err
	}
	log := logger.Named("gen-observations")

	cfg := synthetic.DefaultConfig()
	if len(f.arms) > 0 {
		cfg.Arms = cfg.Arms[:0]
		for _, s := range f.arms {
			a, err := synthetic.ParseArm(s)
			if err != nil {
				return err
			}
			cfg.Arms = append(cfg.Arms, a)
		}
	}
	cfg.Units = f.units
	cfg.TrialsPerUnit = f.trialsPerUnit
	cfg.Seed = f.seed

	records, err := synthetic.Generate(ctx, cfg, synthetic.WithLogger(log))
	if err != nil {
		return err
	}

	switch {
	case f.out != "":
		if err := source.Write(ctx, f.out, source.Format(f.format), records, source.WithTable(f.table)); err != nil {
			return err
		}
		log.Info(ctx, "observations written",
			logger.String("path", f.out),
			logger.Int("records", len(records)),
		)
	case f.post == "":
		encode := source.EncodeCSV
		if source.Format(f.format) == source.FormatJSON {
			encode = source.EncodeJSON
		}
		return encode(cmd.OutOrStdout(), records)
	}

	if f.post == "" {
		return nil
	}
	a, err := synthetic.NewClient(f.post, f.timeout).Submit(ctx, f.model, records, synthetic.WithLogger(log))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s/v1/analyses/%s\n", f.post, a.ID)
	return nil
}
