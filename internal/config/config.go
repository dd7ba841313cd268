// Package config defines the analysis pipeline configuration and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Keys are flat; nested groups use a prefix (cmdstan_model_dir).
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/okian/abbayes/internal/adapters/sampler"
	"github.com/okian/abbayes/internal/adapters/sampler/cmdstan"
	"github.com/okian/abbayes/internal/adapters/sampler/conjugate"
	"github.com/okian/abbayes/internal/adapters/sampler/metropolis"
	"github.com/okian/abbayes/internal/adapters/source"
	"github.com/okian/abbayes/internal/domain/aggregate"
	"github.com/okian/abbayes/internal/domain/diagnostics"
	"github.com/okian/abbayes/internal/domain/model"
	"github.com/okian/abbayes/internal/domain/utility"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json log lines.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address of `abbayes serve`.
	Addr string `koanf:"addr"`
	// StoreSize bounds how many analyses the server keeps.
	StoreSize int `koanf:"store_size"`
	// MaxConcurrent bounds analyses running at once; 0 is unbounded.
	MaxConcurrent int `koanf:"max_concurrent"`

	// DataPath is the observation file read by `abbayes run`.
	DataPath string `koanf:"data_path"`
	// SQLiteTable is the table read from SQLite sources.
	SQLiteTable string `koanf:"sqlite_table"`

	// Model is conversions or revenue.
	Model string `koanf:"model"`
	// Engine is metropolis, conjugate or cmdstan.
	Engine string `koanf:"engine"`

	Chains         int    `koanf:"chains"`
	ParallelChains int    `koanf:"parallel_chains"`
	Warmup         int    `koanf:"warmup"`
	Samples        int    `koanf:"samples"`
	Seed           uint64 `koanf:"seed"`
	ShowProgress   bool   `koanf:"show_progress"`

	// AlphaPrior and BetaPrior are indexed by treatment flag.
	AlphaPrior []float64 `koanf:"alpha_prior"`
	BetaPrior  []float64 `koanf:"beta_prior"`

	CredibleMass  float64 `koanf:"credible_mass"`
	RHatThreshold float64 `koanf:"rhat_threshold"`
	MinESS        float64 `koanf:"min_ess"`

	// ZeroTrialPolicy is reject or exclude.
	ZeroTrialPolicy string `koanf:"zero_trial_policy"`

	// ListPrice and Discount derive the payoff per conversion unless
	// Payoffs names them explicitly, keyed by treatment flag.
	ListPrice float64            `koanf:"list_price"`
	Discount  float64            `koanf:"discount"`
	Payoffs   map[string]float64 `koanf:"payoffs"`

	CmdStanModelDir  string `koanf:"cmdstan_model_dir"`
	CmdStanOutputDir string `koanf:"cmdstan_output_dir"`
	CmdStanMaxDepth  int    `koanf:"cmdstan_max_depth"`
}

// New creates a Config holding the defaults. Context is accepted first to
// satisfy the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "text",
		Addr:            ":9080",
		StoreSize:       256,
		MaxConcurrent:   2,
		SQLiteTable:     source.DefaultTable,
		Model:           "conversions",
		Engine:          metropolis.Name,
		Chains:          sampler.DefaultChains,
		ParallelChains:  sampler.DefaultParallelChains,
		Warmup:          sampler.DefaultWarmup,
		Samples:         sampler.DefaultSamples,
		Seed:            sampler.DefaultSeed,
		ShowProgress:    true,
		AlphaPrior:      []float64{1, 1},
		BetaPrior:       []float64{1, 1},
		CredibleMass:    diagnostics.DefaultCredibleMass,
		RHatThreshold:   diagnostics.DefaultRHatThreshold,
		MinESS:          diagnostics.DefaultMinESS,
		ZeroTrialPolicy: string(aggregate.ZeroTrialReject),
		ListPrice:       49.99,
		Discount:        0.70,
		CmdStanModelDir: cmdstan.DefaultModelDir,
		CmdStanMaxDepth: cmdstan.DefaultMaxDepth,
	}
}

// Validate checks every field that has a closed set of legal values.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if _, err := c.ResolveModel(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch c.Engine {
	case metropolis.Name, conjugate.Name, cmdstan.Name:
	default:
		return fmt.Errorf("%w: unknown engine %q", ErrInvalidConfig, c.Engine)
	}
	if c.Chains <= 0 || c.ParallelChains <= 0 || c.Samples <= 0 || c.Warmup < 0 {
		return fmt.Errorf("%w: chains, parallel_chains and samples must be positive and warmup non-negative", ErrInvalidConfig)
	}
	if err := c.Prior().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if !(c.CredibleMass > 0 && c.CredibleMass < 1) {
		return fmt.Errorf("%w: credible_mass must be in (0, 1), got %v", ErrInvalidConfig, c.CredibleMass)
	}
	if !(c.RHatThreshold > 1) || math.IsInf(c.RHatThreshold, 0) {
		return fmt.Errorf("%w: rhat_threshold must be above 1, got %v", ErrInvalidConfig, c.RHatThreshold)
	}
	if c.MinESS < 0 {
		return fmt.Errorf("%w: min_ess must not be negative", ErrInvalidConfig)
	}
	switch aggregate.ZeroTrialPolicy(c.ZeroTrialPolicy) {
	case aggregate.ZeroTrialReject, aggregate.ZeroTrialExclude:
	default:
		return fmt.Errorf("%w: zero_trial_policy must be reject or exclude, got %q", ErrInvalidConfig, c.ZeroTrialPolicy)
	}
	if _, err := c.Rules(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.StoreSize <= 0 {
		return fmt.Errorf("%w: store_size must be positive", ErrInvalidConfig)
	}
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("%w: max_concurrent must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ResolveModel maps the model name to its definition.
func (c *Config) ResolveModel() (model.Model, error) {
	return model.ModelByName(c.Model)
}

// Prior returns the configured Beta prior.
func (c *Config) Prior() model.PriorSpec {
	return model.PriorSpec{
		Alpha: append([]float64(nil), c.AlphaPrior...),
		Beta:  append([]float64(nil), c.BetaPrior...),
	}
}

// Rules returns the explicit payoffs when set, otherwise the list-price
// policy.
func (c *Config) Rules() (utility.Rules, error) {
	if len(c.Payoffs) == 0 {
		return utility.PricingRules(c.ListPrice, c.Discount)
	}
	rules := make(utility.Rules, len(c.Payoffs))
	for k, v := range c.Payoffs {
		flag, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || (flag != 0 && flag != 1) {
			return nil, fmt.Errorf("%w: payoff key %q is not a treatment flag", model.ErrConfig, k)
		}
		rules[flag] = v
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return rules, nil
}
