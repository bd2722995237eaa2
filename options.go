package asnkit

import (
	"github.com/rs/zerolog"

	"github.com/rawbytedev/asnkit/pkg/codec"
)

type options struct {
	logger   zerolog.Logger
	maxDepth int
}

func defaultOptions() options {
	return options{
		logger:   zerolog.Nop(),
		maxDepth: codec.DefaultMaxDepth,
	}
}

// Option configures Compile.
type Option func(*options)

// WithLogger sets the logger used for compile and call diagnostics. The
// default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMaxDepth bounds how deep Encode and Decode may nest. Values below one
// keep the default of codec.DefaultMaxDepth.
func WithMaxDepth(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxDepth = n
		}
	}
}
