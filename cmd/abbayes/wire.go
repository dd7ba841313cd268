package main

import (
	"fmt"

	"github.com/okian/abbayes/internal/adapters/sampler"
	"github.com/okian/abbayes/internal/adapters/sampler/cmdstan"
	"github.com/okian/abbayes/internal/adapters/sampler/conjugate"
	"github.com/okian/abbayes/internal/adapters/sampler/metropolis"
	service "github.com/okian/abbayes/internal/app"
	"github.com/okian/abbayes/internal/config"
	"github.com/okian/abbayes/internal/domain/aggregate"
	"github.com/okian/abbayes/internal/domain/diagnostics"
	"github.com/okian/abbayes/pkg/logger"
)

// newEngine builds the sampling engine named by the configuration.
func newEngine(cfg *config.Config, log logger.Logger) (sampler.Engine, error) {
	switch cfg.Engine {
	case metropolis.Name:
		return metropolis.New(), nil
	case conjugate.Name:
		return conjugate.New(), nil
	case cmdstan.Name:
		return cmdstan.New(
			cmdstan.WithModelDir(cfg.CmdStanModelDir),
			cmdstan.WithOutputDir(cfg.CmdStanOutputDir),
			cmdstan.WithMaxDepth(cfg.CmdStanMaxDepth),
			cmdstan.WithLogger(log.Named("cmdstan")),
		), nil
	}
	return nil, fmt.Errorf("%w: unknown engine %q", config.ErrInvalidConfig, cfg.Engine)
}

// newService wires a pipeline service from the configuration.
func newService(cfg *config.Config, log logger.Logger, extra ...service.Option) (*service.Service, error) {
	engine, err := newEngine(cfg, log)
	if err != nil {
		return nil, err
	}
	rules, err := cfg.Rules()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	opts := []service.Option{
		service.WithLogger(log),
		service.WithEngine(engine),
		service.WithSamplerOptions(
			sampler.WithChains(cfg.Chains),
			sampler.WithParallelChains(cfg.ParallelChains),
			sampler.WithWarmup(cfg.Warmup),
			sampler.WithSamples(cfg.Samples),
			sampler.WithSeed(cfg.Seed),
			sampler.WithProgress(cfg.ShowProgress),
		),
		service.WithDiagnosticsOptions(
			diagnostics.WithCredibleMass(cfg.CredibleMass),
			diagnostics.WithRHatThreshold(cfg.RHatThreshold),
			diagnostics.WithMinESS(cfg.MinESS),
		),
		service.WithPrior(cfg.Prior()),
		service.WithUtilityRules(rules),
		service.WithZeroTrialPolicy(aggregate.ZeroTrialPolicy(cfg.ZeroTrialPolicy)),
		service.WithStoreCapacity(cfg.StoreSize),
		service.WithMaxConcurrent(cfg.MaxConcurrent),
	}
	return service.New(append(opts, extra...)...), nil
}
