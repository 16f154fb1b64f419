package wasmhost

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/helioptic/kernelpool"
	"github.com/helioptic/kernelpool/errors"
)

// ExportNames maps the host's operations onto the toolkit module's
// exported functions. Zero-value fields take the conventional names of a
// C toolkit shim.
type ExportNames struct {
	// Load is the kernel load entrypoint, func(ptr, len i32) -> i32 status.
	Load string
	// Unload is the kernel unload entrypoint, same signature as Load.
	Unload string
	// Count reports the number of loaded kernels, func() -> i32. Optional.
	Count string
	// LastError copies the toolkit's pending error message into guest
	// memory, func(ptr, cap i32) -> i32 written. Optional.
	LastError string
	// Alloc is the guest allocator, func(size i32) -> i32 ptr.
	Alloc string
	// Free releases an allocation, func(ptr i32). Optional.
	Free string
}

func (n ExportNames) withDefaults() ExportNames {
	if n.Load == "" {
		n.Load = "furnsh"
	}
	if n.Unload == "" {
		n.Unload = "unload"
	}
	if n.Count == "" {
		n.Count = "ktotal"
	}
	if n.LastError == "" {
		n.LastError = "errmsg"
	}
	if n.Alloc == "" {
		n.Alloc = "malloc"
	}
	if n.Free == "" {
		n.Free = "free"
	}
	return n
}

// Config holds configuration for host creation.
type Config struct {
	// Module is the toolkit's WebAssembly binary, compiled for WASI.
	Module []byte

	// Exports overrides the toolkit module's export names.
	Exports ExportNames

	// MemoryLimitPages sets the maximum guest memory in pages (64KB each).
	// 0 means the runtime default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// Mounts maps host directories to guest paths, so the toolkit can
	// open kernel files through WASI. Kernel paths passed to Load must
	// resolve inside a mounted directory from the guest's point of view.
	Mounts map[string]string

	// Stdout and Stderr receive the guest's standard streams. Discarded
	// when nil.
	Stdout io.Writer
	Stderr io.Writer
}

// Host adapts a toolkit compiled to WebAssembly into the pool's Toolkit.
// Kernel names are marshaled into guest memory and passed to the module's
// load and unload exports; nonzero statuses come back as errors, decorated
// with the toolkit's own error message when the module exports one.
//
// A Host is safe for concurrent use; guest calls are serialized because
// the module instance shares one linear memory.
type Host struct {
	mu      sync.Mutex
	g       guest
	exports ExportNames
	stack   []uint64
}

// Compile-time check that Host satisfies the pool's toolkit interfaces
var _ kernelpool.Toolkit = (*Host)(nil)
var _ kernelpool.Counter = (*Host)(nil)

// New compiles and instantiates the toolkit module described by cfg.
// The returned host holds a live module instance until Close.
func New(ctx context.Context, cfg Config) (*Host, error) {
	if len(cfg.Module) == 0 {
		return nil, errors.InvalidInput(errors.PhaseConfig, "no toolkit module bytes")
	}

	g, err := newWazeroGuest(ctx, cfg)
	if err != nil {
		return nil, err
	}

	h, err := newHost(g, cfg.Exports)
	if err != nil {
		_ = g.close(ctx)
		return nil, err
	}

	Logger().Debug("toolkit module ready",
		zap.String("load_export", h.exports.Load),
		zap.String("unload_export", h.exports.Unload),
		zap.Bool("has_count", g.has(h.exports.Count)),
		zap.Bool("has_last_error", g.has(h.exports.LastError)))
	return h, nil
}

// newHost wires a guest to the host logic and checks required exports.
func newHost(g guest, exports ExportNames) (*Host, error) {
	exports = exports.withDefaults()
	for _, name := range []string{exports.Load, exports.Unload, exports.Alloc} {
		if !g.has(name) {
			return nil, errors.MissingExport(name)
		}
	}
	return &Host{
		g:       g,
		exports: exports,
		stack:   make([]uint64, 4),
	}, nil
}

// Load passes the kernel path to the toolkit's load export.
func (h *Host) Load(ctx context.Context, kernel string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.callKernel(ctx, h.exports.Load, kernel)
}

// Unload passes the kernel path to the toolkit's unload export.
func (h *Host) Unload(ctx context.Context, kernel string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.callKernel(ctx, h.exports.Unload, kernel)
}

// Count asks the toolkit how many kernels its pool holds. It fails when
// the module does not export a counter.
func (h *Host) Count(ctx context.Context) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.g.has(h.exports.Count) {
		return 0, errors.MissingExport(h.exports.Count)
	}

	h.stack[0] = 0
	if err := h.g.call(ctx, h.exports.Count, h.stack[:1]); err != nil {
		return 0, errors.GuestTrap(h.exports.Count, err)
	}
	return int(int32(uint32(h.stack[0]))), nil
}

// Close releases the module instance and its runtime.
func (h *Host) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.g.close(ctx)
}

// callKernel marshals the kernel path into guest memory and invokes the
// named export with (ptr, len).
func (h *Host) callKernel(ctx context.Context, fn, kernel string) error {
	data := []byte(kernel)
	ptr, err := h.allocBytes(ctx, uint32(len(data)))
	if err != nil {
		return err
	}
	defer h.freeBytes(ctx, ptr)

	if err := h.g.write(ptr, data); err != nil {
		return errors.Wrap(errors.PhaseHost, errors.KindInvalidData, err, "write kernel path")
	}

	h.stack[0] = uint64(ptr)
	h.stack[1] = uint64(uint32(len(data)))
	if err := h.g.call(ctx, fn, h.stack[:2]); err != nil {
		return errors.GuestTrap(fn, err)
	}

	if status := int32(uint32(h.stack[0])); status != 0 {
		detail := fmt.Sprintf("%s returned status %d", fn, status)
		if msg := h.lastError(ctx); msg != "" {
			detail += ": " + msg
		}
		return errors.Wrap(errors.PhaseHost, errors.KindToolkitFailure, nil, detail)
	}
	return nil
}

func (h *Host) allocBytes(ctx context.Context, size uint32) (uint32, error) {
	h.stack[0] = uint64(size)
	if err := h.g.call(ctx, h.exports.Alloc, h.stack[:1]); err != nil {
		return 0, errors.GuestTrap(h.exports.Alloc, err)
	}
	ptr := uint32(h.stack[0])
	if ptr == 0 {
		return 0, errors.Wrap(errors.PhaseHost, errors.KindToolkitFailure, nil,
			fmt.Sprintf("%s returned null for %d bytes", h.exports.Alloc, size))
	}
	return ptr, nil
}

func (h *Host) freeBytes(ctx context.Context, ptr uint32) {
	if ptr == 0 || !h.g.has(h.exports.Free) {
		return
	}
	h.stack[0] = uint64(ptr)
	if err := h.g.call(ctx, h.exports.Free, h.stack[:1]); err != nil {
		Logger().Warn("guest free failed",
			zap.Uint32("ptr", ptr),
			zap.Error(err))
	}
}

// lastError fetches the toolkit's pending error message, best effort.
func (h *Host) lastError(ctx context.Context) string {
	if !h.g.has(h.exports.LastError) {
		return ""
	}

	const bufCap = 1024
	ptr, err := h.allocBytes(ctx, bufCap)
	if err != nil {
		return ""
	}
	defer h.freeBytes(ctx, ptr)

	h.stack[0] = uint64(ptr)
	h.stack[1] = uint64(uint32(bufCap))
	if err := h.g.call(ctx, h.exports.LastError, h.stack[:2]); err != nil {
		return ""
	}

	n := int32(uint32(h.stack[0]))
	if n <= 0 || n > bufCap {
		return ""
	}
	data, err := h.g.read(ptr, uint32(n))
	if err != nil {
		return ""
	}
	return string(data)
}
