package sampler

import "github.com/okian/abbayes/pkg/logger"

// Option applies a configuration option to the Invoker.
type Option func(*Invoker)

// WithChains sets the number of chains.
func WithChains(n int) Option {
	return func(i *Invoker) {
		if n > 0 {
			i.chains = n
		}
	}
}

// WithParallelChains sets how many chains run at once.
func WithParallelChains(n int) Option {
	return func(i *Invoker) {
		if n > 0 {
			i.parallel = n
		}
	}
}

// WithWarmup sets the discarded warmup iterations per chain.
func WithWarmup(n int) Option {
	return func(i *Invoker) {
		if n >= 0 {
			i.warmup = n
		}
	}
}

// WithSamples sets the retained iterations per chain.
func WithSamples(n int) Option {
	return func(i *Invoker) {
		if n > 0 {
			i.samples = n
		}
	}
}

// WithSeed sets the run seed.
func WithSeed(seed uint64) Option {
	return func(i *Invoker) {
		i.seed = seed
	}
}

// WithProgress logs chain progress at info level instead of debug.
func WithProgress(show bool) Option {
	return func(i *Invoker) {
		i.showProgress = show
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(i *Invoker) {
		if l != nil {
			i.logger = l
		}
	}
}
