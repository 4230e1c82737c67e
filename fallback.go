package confwatch

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// startFallbackBackend watches through fsnotify on platforms without a raw
// inotify interface. Its coverage is coarser than the inotify backend's: no
// per-hop symlink tracking, just a non-recursive watch on every ancestor of
// both the nominal path and its fully-canonicalized form, re-armed from
// scratch after every relevant event. The supervisor contract is unchanged.
func startFallbackBackend(ctx context.Context, wc *watchContext) {
	go func() {
		for {
			if err := fallbackWatch(ctx, wc); err != nil {
				wc.logger.Printf("failed to set up %s watcher: %s @ %q, retrying in %.1f second(s)",
					wc.logName, err, wc.file, wc.retryInterval.Seconds())
				sleep(ctx, wc.retryInterval)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
}

// relevantOps are the fsnotify op kinds that can change the contents or the
// identity of the target: writes, removals, renames, and creations (an
// atomic rename-over arrives as Create on the parent directory).
const relevantOps = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

// fallbackWatch installs one generation of watches and blocks until a
// relevant event fires (nil return: the caller re-arms immediately) or
// something fails (error return: the caller sleeps first).
func fallbackWatch(ctx context.Context, wc *watchContext) error {
	resolved, err := filepath.EvalSymlinks(wc.file)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	watched := make(map[string]struct{})
	for _, p := range append(ancestors(wc.file), ancestors(resolved)...) {
		if _, dup := watched[p]; dup {
			continue
		}
		if addErr := w.Add(p); addErr != nil {
			return addErr
		}
		watched[p] = struct{}{}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("fsnotify event stream closed")
			}
			if ev.Op&relevantOps == 0 {
				continue
			}
			if _, hit := watched[filepath.Clean(ev.Name)]; !hit {
				// sibling activity in a watched directory
				continue
			}
			wc.logger.Printf("%s: file updated: %q", wc.logName, ev.Name)
			wc.notifyOne()
			return nil
		case werr, ok := <-w.Errors:
			if !ok {
				return errors.New("fsnotify error stream closed")
			}
			// the only documented error is an event-queue overflow:
			// we missed events, so resync from scratch
			wc.logger.Printf("%s watch error: %s @ %q", wc.logName, werr, wc.file)
			wc.notifyOne()
			return nil
		}
	}
}
