package service

import (
	"github.com/okian/abbayes/internal/adapters/repository"
	"github.com/okian/abbayes/internal/adapters/sampler"
	"github.com/okian/abbayes/internal/domain/aggregate"
	"github.com/okian/abbayes/internal/domain/diagnostics"
	"github.com/okian/abbayes/internal/domain/model"
	"github.com/okian/abbayes/internal/domain/utility"
	"github.com/okian/abbayes/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithEngine sets the sampling engine.
func WithEngine(e sampler.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithSamplerOptions passes run configuration to the sampler invoker.
func WithSamplerOptions(opts ...sampler.Option) Option {
	return func(s *Service) {
		s.samplerOpts = append(s.samplerOpts, opts...)
	}
}

// WithDiagnosticsOptions configures the summary reporter.
func WithDiagnosticsOptions(opts ...diagnostics.Option) Option {
	return func(s *Service) {
		s.diagnosticsOpts = append(s.diagnosticsOpts, opts...)
	}
}

// WithPrior sets the prior used when a request does not carry one.
func WithPrior(p model.PriorSpec) Option {
	return func(s *Service) {
		s.prior = p
	}
}

// WithUtilityRules sets the payoff rules used when a request does not carry
// its own.
func WithUtilityRules(r utility.Rules) Option {
	return func(s *Service) {
		if len(r) > 0 {
			s.rules = r
		}
	}
}

// WithZeroTrialPolicy sets how arms without trials are handled.
func WithZeroTrialPolicy(p aggregate.ZeroTrialPolicy) Option {
	return func(s *Service) {
		s.zeroTrials = p
	}
}

// WithStore sets the store analyses are saved to once the service starts.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithStoreCapacity bounds the default in-memory store.
func WithStoreCapacity(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.storeCapacity = n
		}
	}
}

// WithMaxConcurrent bounds how many analyses run at once; further runs fail
// fast with ErrBusy. Zero means unbounded.
func WithMaxConcurrent(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxConcurrent = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
