package confwatch

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

// watchContext is the state shared between the supervisor and the backend
// event loop. It is read-only after construction; notify is the only
// cross-goroutine coupler.
type watchContext struct {
	// file is absolute and normalized.
	file          string
	logName       string
	retryInterval time.Duration
	// notify carries at most one pending wakeup, so posting never blocks
	// and bursts of events coalesce into a single re-read.
	notify chan struct{}
	logger logWrapper
}

// backendFunc installs filesystem watches for wc.file and posts to wc.notify
// until ctx is cancelled. Implementations own their watch state entirely and
// must release it on cancellation.
type backendFunc func(ctx context.Context, wc *watchContext)

func (wc *watchContext) notifyOne() {
	select {
	case wc.notify <- struct{}{}:
	default:
	}
}

func (wc *watchContext) drainNotify() {
	select {
	case <-wc.notify:
	default:
	}
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Start spawns the supervisor goroutine and returns the delivery channel.
// The channel is buffered (capacity 3) so a momentarily slow consumer does
// not stall the watcher; beyond that the supervisor blocks, which is the
// backpressure we want: dropping updates silently would lie to the consumer.
//
// Cancelling ctx terminates the supervisor, closes the returned channel, and
// releases every kernel watch the backend installed.
func (c *Config[T]) Start(ctx context.Context) <-chan T {
	cc := *c
	if !filepath.IsAbs(cc.path) {
		if cwd, wdErr := os.Getwd(); wdErr == nil {
			cc.path = filepath.Join(cwd, cc.path)
		}
	}
	updates := make(chan T, 3)
	go cc.run(ctx, updates)
	return updates
}

func (c *Config[T]) run(ctx context.Context, updates chan<- T) {
	defer close(updates)

	val, ok := c.readInitial(ctx)
	if !ok {
		return
	}
	select {
	case updates <- val:
	case <-ctx.Done():
		return
	}

	file := c.path
	if !filepath.IsAbs(file) {
		if cwd, wdErr := os.Getwd(); wdErr == nil {
			file = filepath.Join(cwd, file)
		}
	}
	wc := &watchContext{
		file:          normalize(file),
		logName:       c.logName,
		retryInterval: c.retryInterval,
		notify:        make(chan struct{}, 1),
		logger:        c.logger,
	}
	backend := c.backend
	if backend == nil {
		backend = startBackend
	}
	backend(ctx, wc)

	for {
		select {
		case <-ctx.Done():
			return
		case <-wc.notify:
			val, ok := c.reread(ctx, wc)
			if !ok {
				return
			}
			select {
			case updates <- val:
			case <-ctx.Done():
				return
			}
		}
	}
}

// readInitial reads and parses the target until it succeeds, so consumers
// always receive a first value once one becomes readable.
func (c *Config[T]) readInitial(ctx context.Context) (T, bool) {
	for {
		val, err := c.readTarget()
		if err == nil {
			return val, true
		}
		c.logger.Printf("failed to read initial %s: %s @ %q, retrying in %.1f second(s)",
			c.logName, err, c.path, c.retryInterval.Seconds())
		sleep(ctx, c.retryInterval)
		if ctx.Err() != nil {
			var zero T
			return zero, false
		}
	}
}

// reread re-reads the target after a change notification, retrying failures.
// A wakeup that arrives during a failing attempt is discarded after each
// sleep: the retry is about to re-read anyway, and keeping the permit would
// spin the loop against a sticky error.
func (c *Config[T]) reread(ctx context.Context, wc *watchContext) (T, bool) {
	for {
		val, err := c.readTarget()
		if err == nil {
			return val, true
		}
		c.logger.Printf("failed to read %s update: %s @ %q, retrying in %.1f second(s)",
			c.logName, err, c.path, c.retryInterval.Seconds())
		sleep(ctx, c.retryInterval)
		if ctx.Err() != nil {
			var zero T
			return zero, false
		}
		wc.drainNotify()
	}
}

func (c *Config[T]) readTarget() (T, error) {
	c.logger.Printf("reading updated %s %q", c.logName, c.path)
	raw, err := os.ReadFile(c.path)
	if err != nil {
		var zero T
		return zero, err
	}
	val, parseErr := c.parse(raw)
	if parseErr != nil {
		var zero T
		return zero, &ParseError{Err: parseErr, Path: c.path}
	}
	return val, nil
}
