package registry

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/helioptic/kernelpool/errors"
)

// Config describes a Registry. The zero value is a working default.
type Config struct {
	// Strict makes Unload fail for kernels the registry does not hold.
	// Off by default: unloading an absent kernel is a no-op, matching
	// toolkit behavior where unload of an unknown file is ignored.
	Strict bool

	// Logger receives registration records. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Registry is an in-process kernel pool. It tracks which kernels are
// loaded and in what order, without reading the files themselves, which
// makes it the reference Toolkit for tests, dry runs and tooling that
// only needs pool bookkeeping.
//
// Loading a kernel that is already present moves it to the end of the
// order, mirroring how the native toolkit gives the most recently
// furnished kernel the highest precedence.
type Registry struct {
	mu     sync.Mutex
	order  []string
	strict bool
	closed bool
	logger *zap.Logger
}

// New creates a registry with default settings.
func New() *Registry {
	return NewWithConfig(Config{})
}

// NewWithConfig creates a registry from an explicit configuration.
func NewWithConfig(cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		strict: cfg.Strict,
		logger: logger,
	}
}

// Load records the kernel as loaded, moving it to the end of the order if
// it was already present.
func (r *Registry) Load(_ context.Context, kernel string) error {
	if kernel == "" {
		return errors.InvalidInput(errors.PhaseLoad, "empty kernel path")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.Wrap(errors.PhaseLoad, errors.KindNotInitialized, nil, "registry is closed")
	}

	r.remove(kernel)
	r.order = append(r.order, kernel)
	r.logger.Debug("kernel registered",
		zap.String("kernel", kernel), zap.Int("pool_total", len(r.order)))
	return nil
}

// Unload removes the kernel from the registry. Absent kernels are ignored
// unless the registry is strict.
func (r *Registry) Unload(_ context.Context, kernel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.Wrap(errors.PhaseUnload, errors.KindNotInitialized, nil, "registry is closed")
	}

	if !r.remove(kernel) && r.strict {
		return errors.NotLoaded(kernel)
	}
	r.logger.Debug("kernel deregistered",
		zap.String("kernel", kernel), zap.Int("pool_total", len(r.order)))
	return nil
}

// Count reports how many kernels the registry holds.
func (r *Registry) Count(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, errors.Wrap(errors.PhaseHost, errors.KindNotInitialized, nil, "registry is closed")
	}
	return len(r.order), nil
}

// Loaded returns the held kernels in load order, most recent last.
func (r *Registry) Loaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// IsLoaded reports whether the kernel is currently held.
func (r *Registry) IsLoaded(kernel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.order {
		if k == kernel {
			return true
		}
	}
	return false
}

// Clear drops every held kernel at once, like the toolkit's pool-wide
// clear operation.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.logger.Debug("registry cleared")
}

// Close clears the registry and rejects further use.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.closed = true
	return nil
}

// remove deletes kernel from the order if present. Caller holds the lock.
func (r *Registry) remove(kernel string) bool {
	for i, k := range r.order {
		if k == kernel {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return true
		}
	}
	return false
}
