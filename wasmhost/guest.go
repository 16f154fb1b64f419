package wasmhost

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/helioptic/kernelpool/errors"
)

// guest is the host's view of a running toolkit module. The marshaling
// logic in Host runs against this seam, which keeps it testable without a
// compiled toolkit binary.
type guest interface {
	has(name string) bool
	call(ctx context.Context, name string, stack []uint64) error
	read(offset, length uint32) ([]byte, error)
	write(offset uint32, data []byte) error
	close(ctx context.Context) error
}

// wazeroGuest runs the toolkit module on the wazero runtime.
type wazeroGuest struct {
	runtime wazero.Runtime
	module  api.Module
	mu      sync.Mutex
	funcs   map[string]api.Function
}

var _ guest = (*wazeroGuest)(nil)

func newWazeroGuest(ctx context.Context, cfg Config) (*wazeroGuest, error) {
	runtimeCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		_ = runtime.Close(ctx)
		return nil, errors.Wrap(errors.PhaseHost, errors.KindNotInitialized, err, "instantiate WASI")
	}

	compiled, err := runtime.CompileModule(ctx, cfg.Module)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, errors.Wrap(errors.PhaseHost, errors.KindInvalidData, err, "compile toolkit module")
	}

	modCfg := wazero.NewModuleConfig().WithName("")
	if cfg.Stdout != nil {
		modCfg = modCfg.WithStdout(cfg.Stdout)
	}
	if cfg.Stderr != nil {
		modCfg = modCfg.WithStderr(cfg.Stderr)
	}
	if len(cfg.Mounts) > 0 {
		fsCfg := wazero.NewFSConfig()
		for hostDir, guestPath := range cfg.Mounts {
			fsCfg = fsCfg.WithDirMount(hostDir, guestPath)
		}
		modCfg = modCfg.WithFSConfig(fsCfg)
	}

	module, err := runtime.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, errors.Wrap(errors.PhaseHost, errors.KindInvalidData, err, "instantiate toolkit module")
	}

	return &wazeroGuest{
		runtime: runtime,
		module:  module,
		funcs:   make(map[string]api.Function),
	}, nil
}

func (g *wazeroGuest) has(name string) bool {
	if g.module == nil {
		return false
	}
	return g.module.ExportedFunctionDefinitions()[name] != nil
}

func (g *wazeroGuest) call(ctx context.Context, name string, stack []uint64) error {
	fn := g.exportedFunction(name)
	if fn == nil {
		return errors.MissingExport(name)
	}
	return fn.CallWithStack(ctx, stack)
}

func (g *wazeroGuest) exportedFunction(name string) api.Function {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.module == nil {
		return nil
	}
	fn, ok := g.funcs[name]
	if !ok {
		fn = g.module.ExportedFunction(name)
		g.funcs[name] = fn
	}
	return fn
}

func (g *wazeroGuest) read(offset, length uint32) ([]byte, error) {
	if g.module == nil {
		return nil, errors.NotInitialized("toolkit module")
	}
	mem := g.module.Memory()
	if mem == nil {
		return nil, errors.NotInitialized("guest memory")
	}
	data, ok := mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("read out of bounds: offset=%d, length=%d", offset, length)
	}
	// The returned slice aliases guest memory and is invalidated when the
	// guest grows it, so hand back a copy.
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (g *wazeroGuest) write(offset uint32, data []byte) error {
	if g.module == nil {
		return errors.NotInitialized("toolkit module")
	}
	mem := g.module.Memory()
	if mem == nil {
		return errors.NotInitialized("guest memory")
	}
	if !mem.Write(offset, data) {
		return fmt.Errorf("write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	return nil
}

func (g *wazeroGuest) close(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var firstErr error
	if g.module != nil {
		if err := g.module.Close(ctx); err != nil {
			firstErr = err
		}
		g.module = nil
	}
	if g.runtime != nil {
		if err := g.runtime.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		g.runtime = nil
	}
	g.funcs = nil
	return firstErr
}
