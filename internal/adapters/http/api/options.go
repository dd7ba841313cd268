package api

import "github.com/okian/abbayes/pkg/logger"

const (
	defaultMaxBodyBytes = 32 << 20
	defaultMaxLimit     = 100
)

type options struct {
	maxBodyBytes int64
	maxLimit     int
	logger       logger.Logger
}

// Option applies a configuration option to the Server.
type Option func(*options)

// WithMaxBodyBytes caps the size of a posted analysis request.
func WithMaxBodyBytes(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBodyBytes = n
		}
	}
}

// WithMaxListLimit caps GET /v1/analyses?limit.
func WithMaxListLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxLimit = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
