package kernelpool

import (
	"context"
	"os"

	"go.uber.org/multierr"

	"github.com/helioptic/kernelpool/errors"
)

// Toolkit performs the actual kernel loads and unloads. It is typically a
// binding to a native ephemeris toolkit, which keeps a process-global pool
// of loaded kernels. The pool treats kernel names as opaque identifiers;
// whatever meaning they have (file paths, meta-kernels that pull in
// further files) belongs to the toolkit.
type Toolkit interface {
	// Load makes the named kernel available for subsequent toolkit queries.
	Load(ctx context.Context, kernel string) error

	// Unload removes the named kernel from the toolkit's pool.
	Unload(ctx context.Context, kernel string) error
}

// Counter is optionally implemented by toolkits that can report how many
// kernels their pool currently holds. When the toolkit provides it, the
// pool records the running total in its load and unload log entries.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// EventType identifies a kernel lifecycle event.
type EventType uint8

const (
	EventLoaded EventType = iota
	EventLoadFailed
	EventUnloaded
	EventUnloadFailed
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventLoaded:
		return "loaded"
	case EventLoadFailed:
		return "load_failed"
	case EventUnloaded:
		return "unloaded"
	case EventUnloadFailed:
		return "unload_failed"
	default:
		return "unknown"
	}
}

// Event records one toolkit call made by a pool. Err is set for the
// failure event types.
type Event struct {
	Err    error
	Kernel string
	Type   EventType
}

// Observer receives notifications about pool lifecycle events. Calls are
// made synchronously from the goroutine driving the pool, so observers
// should return quickly.
type Observer interface {
	OnKernelEvent(Event)
}

// Verify checks that every kernel path names an existing regular file.
// All paths are checked before returning; failures for individual kernels
// are combined into one error.
func Verify(kernels ...string) error {
	var errs error
	for _, kernel := range kernels {
		info, err := os.Stat(kernel)
		switch {
		case err != nil:
			errs = multierr.Append(errs, errors.FileMissing(kernel, err))
		case info.IsDir():
			errs = multierr.Append(errs, errors.NotAFile(kernel))
		}
	}
	return errs
}
