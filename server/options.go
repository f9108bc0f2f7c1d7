package server

import (
	"log/slog"

	"github.com/spf13/afero"

	"github.com/gogpu/shade/backend"
	"github.com/gogpu/shade/executor"
	"github.com/gogpu/shade/gpucore"
	"github.com/gogpu/shade/internal/diskcache"
)

// Opener opens the adapter used by a server. It returns the adapter and
// the name of the backend it came from.
type Opener func() (gpucore.GPUAdapter, string, error)

// Option configures a Server.
type Option func(*options)

type options struct {
	open          Opener
	logger        *slog.Logger
	fs            afero.Fs
	disk          *diskcache.Cache
	attachmentCap int
	execOpts      []executor.Option
	depth16       bool
}

func defaultOptions() options {
	return options{
		open: backend.OpenDefault,
		fs:   afero.NewOsFs(),
	}
}

// WithOpener sets how initialize obtains its adapter.
func WithOpener(open Opener) Option {
	return func(o *options) {
		if open != nil {
			o.open = open
		}
	}
}

// WithBackend opens the named registered backend instead of the first
// available one.
func WithBackend(name string) Option {
	return func(o *options) {
		o.open = func() (gpucore.GPUAdapter, string, error) {
			a, err := backend.Open(name)
			return a, name, err
		}
	}
}

// WithLogger sets the server's logger. The package logger is used
// otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithFS sets the filesystem file image sources are read from.
func WithFS(fs afero.Fs) Option {
	return func(o *options) {
		if fs != nil {
			o.fs = fs
		}
	}
}

// WithDiskCache keeps decoded sources in c across server restarts.
func WithDiskCache(c *diskcache.Cache) Option {
	return func(o *options) { o.disk = c }
}

// WithAttachmentCapacity bounds the number of stored attachments. The
// least recently used attachment is dropped when the store is full. Zero
// means unbounded.
func WithAttachmentCapacity(n int) Option {
	return func(o *options) { o.attachmentCap = n }
}

// WithExecutorOptions passes options to the executor created by
// initialize.
func WithExecutorOptions(opts ...executor.Option) Option {
	return func(o *options) { o.execOpts = append(o.execOpts, opts...) }
}

// WithDepth16 encodes PNG and TIFF results with 16 bits per channel.
func WithDepth16() Option {
	return func(o *options) { o.depth16 = true }
}
