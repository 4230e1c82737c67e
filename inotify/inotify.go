//go:build linux

// Package inotify is a thin asynchronous wrapper around the Linux inotify
// facility: create an instance, add watches, and consume decoded events from
// a channel. It deliberately exposes the kernel's model (watch handles,
// masks, cookies) rather than papering over it; the policy of what to watch
// and how to interpret events lives in the caller.
package inotify

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Mask is a bitset of inotify event and control bits. Values are the kernel
// ABI values, so they can be passed to inotify_add_watch verbatim.
type Mask uint32

const (
	Access           Mask = unix.IN_ACCESS
	AttributeChanged Mask = unix.IN_ATTRIB
	CloseWrite       Mask = unix.IN_CLOSE_WRITE
	CloseNoWrite     Mask = unix.IN_CLOSE_NOWRITE
	Create           Mask = unix.IN_CREATE
	Delete           Mask = unix.IN_DELETE
	DeleteSelf       Mask = unix.IN_DELETE_SELF
	Modify           Mask = unix.IN_MODIFY
	MoveSelf         Mask = unix.IN_MOVE_SELF
	MovedFrom        Mask = unix.IN_MOVED_FROM
	MovedTo          Mask = unix.IN_MOVED_TO
	Open             Mask = unix.IN_OPEN

	// control bits, meaningful at watch-creation time only
	DontFollow Mask = unix.IN_DONT_FOLLOW
	ExclUnlink Mask = unix.IN_EXCL_UNLINK
	MaskAdd    Mask = unix.IN_MASK_ADD
	Oneshot    Mask = unix.IN_ONESHOT
	OnlyDir    Mask = unix.IN_ONLYDIR
	MaskCreate Mask = unix.IN_MASK_CREATE

	// bits only ever set on events returned by the kernel
	Ignored       Mask = unix.IN_IGNORED
	IsDir         Mask = unix.IN_ISDIR
	QueueOverflow Mask = unix.IN_Q_OVERFLOW
	Unmount       Mask = unix.IN_UNMOUNT
)

// Has reports whether any of the given bits are set in m.
func (m Mask) Has(bits Mask) bool {
	return m&bits != 0
}

// Handle identifies a single kernel watch within one Inotify instance.
// Handles are unique while the watch is registered; the kernel may reuse a
// value after the watch is removed.
type Handle int32

// Event is one decoded inotify record. Name is empty for events on the
// watched object itself, and holds the directory-relative child name for
// events inside a watched directory.
type Event struct {
	Handle Handle
	Mask   Mask
	Cookie uint32
	Name   string
}

// ErrCorruptBuffer is reported when a record's name length overruns the
// bytes actually read. The kernel guarantees record-aligned reads, so this
// indicates a programming error; the decoder bails on the rest of the read
// rather than spinning on a record it cannot advance past.
var ErrCorruptBuffer = errors.New("inotify: event name length overruns read buffer")

// maxEventSize is the size of a single maximal event record: the fixed
// header plus a NAME_MAX name and its terminating NUL. Read buffers must
// hold at least this much.
const maxEventSize = unix.SizeofInotifyEvent + unix.NAME_MAX + 1

// Inotify wraps one inotify instance. Decoded events arrive on Events and
// read failures on Errors; both channels are closed by Close.
type Inotify struct {
	// Keep the raw fd alongside the os.File: calling File.Fd() would take
	// the descriptor out of the runtime poller, after which a blocked Read
	// no longer returns on Close.
	fd   int
	file *os.File

	Events chan Event
	Errors chan error

	done     chan struct{}
	doneOnce sync.Once
	doneResp chan struct{}
}

// New creates a non-blocking, close-on-exec inotify instance and starts the
// goroutine that decodes its event stream. Non-blocking mode is what lets
// reads park on the runtime poller instead of an OS thread.
func New() (*Inotify, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if fd == -1 {
		return nil, fmt.Errorf("inotify_init1: %w", err)
	}
	in := &Inotify{
		fd:       fd,
		file:     os.NewFile(uintptr(fd), ""),
		Events:   make(chan Event),
		Errors:   make(chan error),
		done:     make(chan struct{}),
		doneResp: make(chan struct{}),
	}
	go in.readEvents()
	return in, nil
}

// AddWatch registers path with the kernel and returns its watch handle.
// Re-adding a path that is already watched replaces the mask (or extends it,
// with MaskAdd) and returns the existing handle.
func (in *Inotify) AddWatch(path string, mask Mask) (Handle, error) {
	wd, err := unix.InotifyAddWatch(in.fd, path, uint32(mask))
	if wd == -1 {
		return 0, fmt.Errorf("inotify_add_watch %s: %w", path, err)
	}
	return Handle(wd), nil
}

// RmWatch unregisters a watch. The kernel queues an Ignored event for the
// handle.
func (in *Inotify) RmWatch(h Handle) error {
	if _, err := unix.InotifyRmWatch(in.fd, uint32(h)); err != nil {
		return fmt.Errorf("inotify_rm_watch %d: %w", h, err)
	}
	return nil
}

// Close releases the descriptor, which atomically drops every kernel watch,
// then waits for the reader goroutine to exit and close both channels. Safe
// to call more than once.
func (in *Inotify) Close() error {
	var err error
	in.doneOnce.Do(func() {
		close(in.done)
		// unblocks the reader's poller-parked Read
		err = in.file.Close()
		<-in.doneResp
	})
	return err
}

func (in *Inotify) isClosed() bool {
	select {
	case <-in.done:
		return true
	default:
		return false
	}
}

// sendEvent returns false once the instance is closed.
func (in *Inotify) sendEvent(ev Event) bool {
	select {
	case in.Events <- ev:
		return true
	case <-in.done:
		return false
	}
}

// sendError returns false once the instance is closed.
func (in *Inotify) sendError(err error) bool {
	select {
	case in.Errors <- err:
		return true
	case <-in.done:
		return false
	}
}

// readEvents is the reader goroutine: it decodes kernel records in arrival
// order and forwards them on the Events channel.
func (in *Inotify) readEvents() {
	defer func() {
		close(in.doneResp)
		close(in.Errors)
		close(in.Events)
	}()

	// Room for many events per read; a single read never returns a partial
	// record as long as the buffer holds at least maxEventSize bytes.
	var buf [maxEventSize * 256]byte
	for {
		if in.isClosed() {
			return
		}
		n, err := in.file.Read(buf[:])
		switch {
		case errors.Is(err, os.ErrClosed):
			return
		case err != nil:
			if !in.sendError(err) {
				return
			}
			continue
		}
		if n < unix.SizeofInotifyEvent {
			if !in.sendError(fmt.Errorf("inotify: short read of %d bytes", n)) {
				return
			}
			continue
		}

		var offset uint32
		for offset <= uint32(n-unix.SizeofInotifyEvent) {
			raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
			nameLen := raw.Len
			if offset+unix.SizeofInotifyEvent+nameLen > uint32(n) {
				if !in.sendError(ErrCorruptBuffer) {
					return
				}
				break
			}
			var name string
			if nameLen > 0 {
				b := buf[offset+unix.SizeofInotifyEvent : offset+unix.SizeofInotifyEvent+nameLen]
				// the kernel NUL-pads names out to alignment
				name = strings.TrimRight(string(b), "\x00")
			}
			if !in.sendEvent(Event{
				Handle: Handle(raw.Wd),
				Mask:   Mask(raw.Mask),
				Cookie: raw.Cookie,
				Name:   name,
			}) {
				return
			}
			offset += unix.SizeofInotifyEvent + nameLen
		}
	}
}
