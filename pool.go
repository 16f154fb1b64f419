package kernelpool

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/helioptic/kernelpool/errors"
)

// Work is a unit of work executed while a pool's kernels are loaded.
type Work func(ctx context.Context) error

// Config describes a Pool. Toolkit and Kernels are required; the zero
// value of every other field is a sensible default.
type Config struct {
	// Toolkit performs the kernel loads and unloads.
	Toolkit Toolkit

	// Kernels are the kernel files to manage, loaded in the order given
	// and unloaded in reverse.
	Kernels []string

	// VerifyFiles checks at construction time that every kernel path
	// names an existing regular file. Off by default: bad paths are
	// otherwise diagnosed by the toolkit at load time.
	VerifyFiles bool

	// ChangeDir switches the working directory to each kernel's parent
	// directory around its load and unload, so meta-kernels that name
	// other files relative to their own location resolve. The previous
	// working directory is restored afterwards. The working directory is
	// process-global, so do not combine this with concurrent pools.
	ChangeDir bool

	// UnloadOnLoadFailure unloads already-loaded kernels, in reverse
	// order, when a later kernel fails to load. Off by default, matching
	// the toolkit's own partial-failure behavior of keeping earlier
	// kernels loaded.
	UnloadOnLoadFailure bool

	// Logger receives load and unload records. Defaults to a no-op
	// logger.
	Logger *zap.Logger

	// Observer, when set, receives an Event for every toolkit call the
	// pool makes.
	Observer Observer
}

// Pool brackets units of work with symmetric load and unload calls for a
// fixed kernel list. A Pool is immutable after construction; one pool can
// run any number of scopes, sequentially or concurrently, each a complete
// load/unload cycle.
type Pool struct {
	toolkit   Toolkit
	counter   Counter // non-nil when the toolkit reports pool totals
	kernels   []string
	logger    *zap.Logger
	observer  Observer
	changeDir bool
	rollback  bool
}

// New creates a pool managing the given kernels with default settings.
func New(tk Toolkit, kernels ...string) (*Pool, error) {
	return NewWithConfig(Config{Toolkit: tk, Kernels: kernels})
}

// NewWithConfig creates a pool from an explicit configuration.
func NewWithConfig(cfg Config) (*Pool, error) {
	if cfg.Toolkit == nil {
		return nil, errors.InvalidInput(errors.PhaseConfig, "toolkit is nil")
	}
	if len(cfg.Kernels) == 0 {
		return nil, errors.InvalidInput(errors.PhaseConfig, "no kernels given")
	}
	for _, kernel := range cfg.Kernels {
		if kernel == "" {
			return nil, errors.InvalidInput(errors.PhaseConfig, "empty kernel path")
		}
	}
	if cfg.VerifyFiles {
		if err := Verify(cfg.Kernels...); err != nil {
			return nil, err
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		toolkit:   cfg.Toolkit,
		kernels:   append([]string(nil), cfg.Kernels...),
		logger:    logger,
		observer:  cfg.Observer,
		changeDir: cfg.ChangeDir,
		rollback:  cfg.UnloadOnLoadFailure,
	}
	if c, ok := cfg.Toolkit.(Counter); ok {
		p.counter = c
	}
	return p, nil
}

// Kernels returns the managed kernel paths in load order.
func (p *Pool) Kernels() []string {
	out := make([]string, len(p.kernels))
	copy(out, p.kernels)
	return out
}

// Enter loads every kernel in construction order. On failure at kernel k,
// kernels after k are never touched and Enter returns the load failure. By
// default kernels loaded before k stay loaded and the error is a
// PartialLoadError naming them; with UnloadOnLoadFailure they are unloaded
// in reverse order first, and any unload failures are appended to the load
// failure.
//
// Use Enter and Exit directly to hold kernels across a region that does
// not fit a single function; prefer Run where it does.
func (p *Pool) Enter(ctx context.Context) error {
	for i, kernel := range p.kernels {
		err := p.load(ctx, kernel)
		if err == nil {
			continue
		}
		loadErr := errors.LoadFailed(kernel, err)
		if i == 0 {
			return loadErr
		}
		if p.rollback {
			return multierr.Append(loadErr, p.unloadRange(ctx, i-1))
		}
		return &errors.PartialLoadError{
			Err:    loadErr,
			Loaded: append([]string(nil), p.kernels[:i]...),
		}
	}
	return nil
}

// Exit unloads every kernel in reverse construction order. All kernels are
// attempted even when some fail; failures are combined into one error.
func (p *Pool) Exit(ctx context.Context) error {
	return p.unloadRange(ctx, len(p.kernels)-1)
}

// Run loads the pool's kernels, executes work, and unloads them again.
// The unload happens whether work succeeds, fails, or panics.
//
// If loading fails, work never runs and Run returns the load failure. If
// work fails, its error is returned; an unload failure on the way out is
// appended to it rather than replacing it, and both remain visible to
// errors.Is. If only unloading fails, that failure is returned.
func (p *Pool) Run(ctx context.Context, work Work) (err error) {
	if enterErr := p.Enter(ctx); enterErr != nil {
		return enterErr
	}

	completed := false
	defer func() {
		exitErr := p.Exit(ctx)
		if !completed {
			// Unwinding from a panic. There is no error return to chain
			// the unload failure onto, so it can only be logged before
			// the panic continues.
			if exitErr != nil {
				p.logger.Error("kernel unload failed during panic unwind",
					zap.Error(exitErr))
			}
			return
		}
		err = multierr.Append(err, exitErr)
	}()

	err = work(ctx)
	completed = true
	return err
}

// Wrap returns a function that executes work inside a fresh load/unload
// cycle on every invocation. The pool's kernel list is fixed, so the
// returned function can outlive any single scope and be called repeatedly
// or concurrently.
func (p *Pool) Wrap(work Work) Work {
	return func(ctx context.Context) error {
		return p.Run(ctx, work)
	}
}

// RunValue is Run for work that produces a value. It is a package function
// because Go methods cannot introduce type parameters. The value is only
// meaningful when the returned error is nil or contains solely unload
// failures.
func RunValue[T any](ctx context.Context, p *Pool, work func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Run(ctx, func(ctx context.Context) error {
		var workErr error
		out, workErr = work(ctx)
		return workErr
	})
	return out, err
}

// WrapValue returns a function that produces a value inside a fresh
// load/unload cycle per invocation.
func WrapValue[T any](p *Pool, work func(ctx context.Context) (T, error)) func(context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		return RunValue(ctx, p, work)
	}
}

func (p *Pool) load(ctx context.Context, kernel string) error {
	err := p.withKernelDir(kernel, func() error {
		return p.toolkit.Load(ctx, kernel)
	})
	if err != nil {
		p.logger.Warn("kernel load failed",
			zap.String("kernel", kernel), zap.Error(err))
		p.notify(Event{Type: EventLoadFailed, Kernel: kernel, Err: err})
		return err
	}
	p.logKernel(ctx, "loaded kernel", kernel)
	p.notify(Event{Type: EventLoaded, Kernel: kernel})
	return nil
}

func (p *Pool) unload(ctx context.Context, kernel string) error {
	err := p.withKernelDir(kernel, func() error {
		return p.toolkit.Unload(ctx, kernel)
	})
	if err != nil {
		p.logger.Warn("kernel unload failed",
			zap.String("kernel", kernel), zap.Error(err))
		p.notify(Event{Type: EventUnloadFailed, Kernel: kernel, Err: err})
		return err
	}
	p.logKernel(ctx, "unloaded kernel", kernel)
	p.notify(Event{Type: EventUnloaded, Kernel: kernel})
	return nil
}

// unloadRange unloads kernels[from] down to kernels[0], attempting every
// kernel and combining failures.
func (p *Pool) unloadRange(ctx context.Context, from int) error {
	var errs error
	for i := from; i >= 0; i-- {
		kernel := p.kernels[i]
		if err := p.unload(ctx, kernel); err != nil {
			errs = multierr.Append(errs, errors.UnloadFailed(kernel, err))
		}
	}
	return errs
}

func (p *Pool) withKernelDir(kernel string, fn func() error) error {
	if !p.changeDir {
		return fn()
	}
	prev, err := os.Getwd()
	if err != nil {
		return err
	}
	if err := os.Chdir(filepath.Dir(kernel)); err != nil {
		return err
	}
	defer func() { _ = os.Chdir(prev) }()
	return fn()
}

func (p *Pool) logKernel(ctx context.Context, msg, kernel string) {
	fields := []zap.Field{zap.String("kernel", kernel)}
	if p.counter != nil {
		if n, err := p.counter.Count(ctx); err == nil {
			fields = append(fields, zap.Int("pool_total", n))
		}
	}
	p.logger.Info(msg, fields...)
}

func (p *Pool) notify(e Event) {
	if p.observer != nil {
		p.observer.OnKernelEvent(e)
	}
}
