//go:build linux

package confwatch

import (
	"context"
	"errors"
	"os"

	"github.com/vimeo/confwatch/inotify"
)

const (
	// leafMask watches a file or symlink for in-place writes and for
	// replacement of the object itself. DontFollow keeps the watch on the
	// link, not its target; each hop on the chain gets its own watch.
	leafMask = inotify.CloseWrite | inotify.DeleteSelf | inotify.Modify |
		inotify.MoveSelf | inotify.DontFollow

	// dirMask watches an ancestor directory. Rename-over-target shows up
	// as MovedFrom/MovedTo/Delete on the parent even when the displaced
	// inode's own DeleteSelf/MoveSelf never fire (extra hard links keep
	// the inode alive).
	dirMask = inotify.Delete | inotify.DeleteSelf | inotify.Modify |
		inotify.MoveSelf | inotify.MovedFrom | inotify.MovedTo |
		inotify.DontFollow
)

// maxRounds bounds the breadth-wise expansion of symlinked ancestors so that
// a symlink cycle among directories fails the plan build instead of hanging
// it.
const maxRounds = 16

var errTooManyLinkRounds = errors.New("ancestor symlink expansion exceeded 16 rounds")

// startBackend runs the inotify backend: an endless build-plan/consume-events
// cycle. A structural change (symlink retarget, ancestor replaced) tears the
// whole plan down and rebuilds from scratch; with tens of watches at most,
// rebuilding is cheaper than reasoning about incremental mutation.
func startBackend(ctx context.Context, wc *watchContext) {
	go func() {
		for {
			if err := watchTarget(ctx, wc); err != nil {
				wc.logger.Printf("%s watch error: %s @ %q", wc.logName, err, wc.file)
				sleep(ctx, wc.retryInterval)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
}

// watchTarget builds one watch plan and consumes its events until the plan
// goes stale (nil return: rebuild immediately) or something fails (error
// return: the caller sleeps before rebuilding). Closing the inotify instance
// releases every kernel watch in the plan.
func watchTarget(ctx context.Context, wc *watchContext) error {
	plan, err := buildPlan(wc)
	if err != nil {
		return err
	}
	defer plan.in.Close()
	return plan.consume(ctx, wc)
}

// watchPlan is the full set of kernel watches observing the target path,
// plus the classification maps the event loop needs. A plan is owned by a
// single watchTarget call and never mutated after construction.
type watchPlan struct {
	in *inotify.Inotify

	// interesting maps a directory watch to the one child name whose
	// events matter; all sibling activity in that directory is noise.
	interesting map[inotify.Handle]string

	// hops is the set of watches sitting on symlinks: any event there
	// means the resolution chain may have changed shape.
	hops map[inotify.Handle]struct{}
}

// pendingDir queues a directory for the ancestor-watching pass, remembering
// which of its children sits on the target's resolution chain.
type pendingDir struct {
	dir   string
	child string
}

// buildPlan installs watches covering every edge of the path graph whose
// change could alter the identity or contents of wc.file: the file itself,
// every symlink hop on its resolution, and every ancestor directory of all
// of those. Any failure aborts the whole build.
func buildPlan(wc *watchContext) (*watchPlan, error) {
	in, err := inotify.New()
	if err != nil {
		return nil, err
	}
	plan := &watchPlan{
		in:          in,
		interesting: make(map[inotify.Handle]string),
		hops:        make(map[inotify.Handle]struct{}),
	}
	if buildErr := plan.build(wc); buildErr != nil {
		in.Close()
		return nil, buildErr
	}
	return plan, nil
}

func (p *watchPlan) build(wc *watchContext) error {
	var pending []pendingDir
	seen := make(map[string]struct{})

	// Walk the symlink chain from the nominal path down to the resolved
	// leaf, watching every hop on the way and queueing each hop's parent
	// directory.
	current := wc.file
	for {
		wc.logger.Printf("%s: watching main target or link %q", wc.logName, current)
		h, err := p.in.AddWatch(current, leafMask)
		if err != nil {
			return err
		}
		if parent, ok := parentDir(current); ok {
			pending = append(pending, pendingDir{dir: parent, child: baseName(current)})
		}
		fi, err := os.Lstat(current)
		if err != nil {
			return err
		}
		if fi.Mode()&os.ModeSymlink == 0 {
			break
		}
		p.hops[h] = struct{}{}
		target, err := os.Readlink(current)
		if err != nil {
			return err
		}
		current = resolveLink(current, target)
	}

	// Expand the queued ancestors in rounds: directories reached through a
	// symlink push their resolved form into the next round.
	for round := 0; len(pending) > 0; round++ {
		if round >= maxRounds {
			return errTooManyLinkRounds
		}
		var next []pendingDir
		for _, pd := range pending {
			more, err := p.watchAncestorChain(wc, pd, seen)
			if err != nil {
				return err
			}
			next = append(next, more...)
		}
		pending = next
	}
	return nil
}

// watchAncestorChain watches pd.dir and then walks upward to the filesystem
// root, applying the same dichotomy at every level: a real directory gets a
// dirMask watch with its on-chain child recorded, a symlinked directory gets
// a leafMask hop watch and its resolved target is deferred to the next
// round. The walk stops at the first already-seen ancestor.
func (p *watchPlan) watchAncestorChain(wc *watchContext, pd pendingDir, seen map[string]struct{}) ([]pendingDir, error) {
	if _, dup := seen[pd.dir]; dup {
		return nil, nil
	}
	var next []pendingDir
	watchOne := func(dir, child string) error {
		wc.logger.Printf("%s: watching ancestor %q", wc.logName, dir)
		fi, err := os.Lstat(dir)
		if err != nil {
			return err
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			target, rlErr := os.Readlink(dir)
			if rlErr != nil {
				return rlErr
			}
			next = append(next, pendingDir{dir: resolveLink(dir, target), child: child})
			h, addErr := p.in.AddWatch(dir, leafMask)
			if addErr != nil {
				return addErr
			}
			p.hops[h] = struct{}{}
		} else {
			h, addErr := p.in.AddWatch(dir, dirMask)
			if addErr != nil {
				return addErr
			}
			p.interesting[h] = child
		}
		seen[dir] = struct{}{}
		return nil
	}

	if err := watchOne(pd.dir, pd.child); err != nil {
		return nil, err
	}
	child := pd.dir
	for {
		parent, ok := parentDir(child)
		if !ok {
			break
		}
		if _, dup := seen[parent]; dup {
			break
		}
		if err := watchOne(parent, baseName(child)); err != nil {
			return nil, err
		}
		child = parent
	}
	return next, nil
}

// consume classifies events until a structural change invalidates the plan
// (nil return: rebuild) or the stream fails. Events on the leaf file only
// wake the supervisor; the plan stays valid.
func (p *watchPlan) consume(ctx context.Context, wc *watchContext) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-p.in.Errors:
			if !ok {
				return errors.New("inotify error stream closed")
			}
			return err
		case ev, ok := <-p.in.Events:
			if !ok {
				return errors.New("inotify event stream closed")
			}
			wc.logger.Printf("%s: received event %+v", wc.logName, ev)
			if ev.Mask.Has(inotify.QueueOverflow | inotify.Unmount) {
				// events were lost or the filesystem went away;
				// the plan is suspect
				wc.notifyOne()
				return nil
			}
			if child, ok := p.interesting[ev.Handle]; ok {
				// a directory event: relevant iff it names the
				// on-chain child
				if ev.Name != child {
					continue
				}
				if ev.Mask&^inotify.Modify == 0 {
					// the child's contents were written in place;
					// the plan stays valid
					wc.notifyOne()
					continue
				}
				// an ancestor link changed, so the plan is stale
				wc.notifyOne()
				return nil
			}
			if _, ok := p.hops[ev.Handle]; ok {
				// a symlink on the chain may have been retargeted
				wc.notifyOne()
				return nil
			}
			// the underlying file was modified in place
			wc.notifyOne()
		}
	}
}
