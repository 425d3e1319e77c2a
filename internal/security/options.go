package security

import "time"

type options struct {
	now        func() time.Time
	tokenBytes int
}

// Option configures the managers in this package.
type Option func(*options)

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(o *options) {
		if fn != nil {
			o.now = fn
		}
	}
}

// WithTokenBytes sets the entropy of invitation tokens.
func WithTokenBytes(n int) Option {
	return func(o *options) {
		if n >= 16 {
			o.tokenBytes = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, tokenBytes: 32}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
