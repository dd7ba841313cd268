package diagnostics

import "github.com/okian/abbayes/pkg/logger"

// Defaults for the summary.
const (
	DefaultCredibleMass  = 0.94
	DefaultRHatThreshold = 1.01
	DefaultMinESS        = 400
)

// Option applies a configuration option to the Reporter.
type Option func(*Reporter)

// WithCredibleMass sets the probability mass of the central credible
// interval. Values outside (0, 1) are ignored.
func WithCredibleMass(mass float64) Option {
	return func(r *Reporter) {
		if mass > 0 && mass < 1 {
			r.mass = mass
		}
	}
}

// WithRHatThreshold sets the R-hat value above which a parameter is flagged.
func WithRHatThreshold(threshold float64) Option {
	return func(r *Reporter) {
		if threshold > 1 {
			r.rhatThreshold = threshold
		}
	}
}

// WithMinESS sets the bulk ESS below which a parameter is flagged. Zero
// disables the check.
func WithMinESS(ess float64) Option {
	return func(r *Reporter) {
		if ess >= 0 {
			r.minESS = ess
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Reporter) {
		if l != nil {
			r.logger = l
		}
	}
}
