// Package confwatch delivers parsed snapshots of a single configuration file
// whenever the file changes on disk, no matter how the change happens:
// in-place writes, an editor's write-temp-then-rename, retargeted symlinks
// anywhere along the path, or whole parent directories being replaced.
//
// Every failure mode (missing file, permission errors, partial writes,
// parser rejections) is absorbed behind a retry loop, so the consumer only
// ever sees values that parsed successfully:
//
//	cfg := confwatch.WithParser(
//		confwatch.New("/etc/myapp/config.yaml", "app config"),
//		yaml.Parse[AppConfig],
//	)
//	for c := range cfg.Start(ctx) {
//		// c parsed and validated; store it in an atomic.Pointer or similar
//	}
//
// Cancelling the context stops the watcher, closes the channel, and releases
// all kernel watch state.
package confwatch

import (
	"time"
)

// ParseFunc transforms the raw bytes of the watched file into a value of the
// consumer's type. A returned error keeps the previous value live: the
// supervisor logs the failure and retries until the file parses again.
type ParseFunc[T any] func([]byte) (T, error)

// Options contains optional watcher parameters, mutated by Option values.
type Options struct {
	retryInterval time.Duration
	logger        StdLogger
}

// Option functions mutate the state of an Options, providing optional
// arguments to New.
type Option func(*Options)

// WithRetryInterval overrides how long the watcher waits before re-attempting
// a failed read, parse, or watch installation. The default is one second.
func WithRetryInterval(d time.Duration) Option {
	return func(o *Options) {
		o.retryInterval = d
	}
}

// WithLogger sets a logger on the new watcher. Without one the watcher is
// silent.
func WithLogger(logger StdLogger) Option {
	return func(o *Options) {
		o.logger = logger
	}
}

// Config is a fully-specified watcher, ready to Start. T is the type the
// parser emits on the delivery channel.
type Config[T any] struct {
	path          string
	logName       string
	parse         ParseFunc[T]
	retryInterval time.Duration
	logger        logWrapper

	// test seam; nil selects the platform backend
	backend backendFunc
}

// New constructs a watcher for path that emits the file's raw bytes.
// logName is cosmetic: it only appears in log lines so they read in the
// application's own terminology ("TLS keypair", "feature flags", ...).
// Relative paths are resolved against the working directory at Start.
func New(path, logName string, opts ...Option) *Config[[]byte] {
	o := Options{retryInterval: time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	return &Config[[]byte]{
		path:          path,
		logName:       logName,
		parse:         func(raw []byte) ([]byte, error) { return raw, nil },
		retryInterval: o.retryInterval,
		logger:        logWrapper{log: o.logger},
	}
}

// WithParser swaps in a typed parser, adjusting the emitted type accordingly.
// It is a free function rather than a method because a method cannot
// introduce a new type parameter.
func WithParser[T, T2 any](c *Config[T], parse ParseFunc[T2]) *Config[T2] {
	return &Config[T2]{
		path:          c.path,
		logName:       c.logName,
		parse:         parse,
		retryInterval: c.retryInterval,
		logger:        c.logger,
		backend:       c.backend,
	}
}
