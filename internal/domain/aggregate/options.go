package aggregate

import "github.com/okian/abbayes/pkg/logger"

// ZeroTrialPolicy decides what happens to an arm with no trials.
type ZeroTrialPolicy string

const (
	// ZeroTrialReject fails the run with ErrDataIntegrity.
	ZeroTrialReject ZeroTrialPolicy = "reject"
	// ZeroTrialExclude drops the arm before payload construction.
	ZeroTrialExclude ZeroTrialPolicy = "exclude"
)

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithZeroTrialPolicy sets the zero-trial policy. Unknown values are ignored.
func WithZeroTrialPolicy(p ZeroTrialPolicy) Option {
	return func(a *Aggregator) {
		switch p {
		case ZeroTrialReject, ZeroTrialExclude:
			a.zeroTrials = p
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}
