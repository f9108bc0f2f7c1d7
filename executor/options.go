package executor

import "log/slog"

// Option configures an Executor during creation.
//
// Example:
//
//	// Defaults: limits from the adapter, logger from shade.Logger()
//	exec := executor.New(adapter)
//
//	// Force smaller tiles and a dedicated logger
//	exec := executor.New(adapter,
//		executor.WithMaxTileEdge(512),
//		executor.WithLogger(logger))
type Option func(*options)

type options struct {
	maxTileEdge uint32
	logger      *slog.Logger
	spirv       bool
}

func defaultOptions() options {
	return options{maxTileEdge: MaxTileEdge}
}

// WithMaxTileEdge caps the tile edge used for oversized images.
// Values above MaxTileEdge or zero are ignored.
func WithMaxTileEdge(edge uint32) Option {
	return func(o *options) {
		if edge > 0 && edge <= MaxTileEdge {
			o.maxTileEdge = edge
		}
	}
}

// WithLogger sets the logger used by the executor. The default is
// shade.Logger() at the time of each call.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithSPIRV makes Init hand precompiled SPIR-V to the adapter in addition
// to the WGSL source. Backends that take WGSL directly ignore it.
func WithSPIRV() Option {
	return func(o *options) {
		o.spirv = true
	}
}
