package synthetic

import "github.com/okian/abbayes/pkg/logger"

type options struct {
	logger logger.Logger
}

// Option configures Generate and Submit.
type Option func(*options)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
