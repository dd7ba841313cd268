package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/okian/abbayes/internal/config"
	"github.com/okian/abbayes/internal/domain/model"
	"github.com/okian/abbayes/pkg/logger"
)

// Exit codes. Input problems are distinguished from sampler failures so
// scripts can tell "fix your data" from "retry or fix the toolchain".
const (
	exitError   = 1
	exitInput   = 2
	exitSampler = 3
)

// cli carries the state shared by every subcommand.
type cli struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg *config.Config
	log logger.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "abbayes",
		Short:         "Bayesian A/B analysis of binomial conversion experiments",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "YAML config file (default $"+config.EnvConfigFile+")")
	pf.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&c.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(newRunCmd(c), newCheckCmd(c), newServeCmd(c))
	return root
}

// setup loads configuration (defaults -> file -> env -> flags) and
// initialises logging on stderr, keeping stdout for reports.
func (c *cli) setup(cmd *cobra.Command) error {
	ctx := cmd.Context()
	var (
		cfg *config.Config
		err error
	)
	if c.configPath != "" {
		cfg, err = config.LoadFile(ctx, c.configPath)
	} else {
		cfg, err = config.Load(ctx)
	}
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	if c.logFormat != "" {
		cfg.LogFormat = c.logFormat
	}

	if err := logger.InitWithOptions(logger.Options{
		Writer: cmd.ErrOrStderr(),
		Format: logger.Format(cfg.LogFormat),
	}); err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	c.cfg = cfg
	c.log = logger.Named("abbayes")
	return nil
}

// override applies fn when the named flag was set on the command line.
func override(fs *pflag.FlagSet, name string, fn func()) {
	if fs.Changed(name) {
		fn()
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, model.ErrSampler):
		return exitSampler
	case errors.Is(err, model.ErrSchema),
		errors.Is(err, model.ErrDataIntegrity),
		errors.Is(err, model.ErrConfig),
		errors.Is(err, model.ErrPayload),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, config.ErrLoadConfig):
		return exitInput
	}
	return exitError
}
