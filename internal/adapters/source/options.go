package source

type options struct {
	format Format
	table  string
}

// Option configures Open.
type Option func(*options)

// WithFormat overrides extension-based detection.
func WithFormat(f Format) Option {
	return func(o *options) {
		o.format = f
	}
}

// WithTable sets the SQLite table to read.
func WithTable(table string) Option {
	return func(o *options) {
		if table != "" {
			o.table = table
		}
	}
}
