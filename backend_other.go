//go:build !linux

package confwatch

import "context"

// startBackend selects the generic fsnotify backend on platforms without
// inotify.
func startBackend(ctx context.Context, wc *watchContext) {
	startFallbackBackend(ctx, wc)
}
