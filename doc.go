// Package kernelpool guarantees load/unload symmetry for ephemeris toolkit
// kernels around units of work.
//
// Toolkits in this domain keep a process-global pool of loaded kernel files
// (ephemerides, leapsecond tables, frame definitions, meta-kernels). Work
// that forgets to unload what it loaded poisons every later computation in
// the process. A Pool owns a fixed kernel list and brackets work with the
// toolkit's load and unload calls so the pool always returns to its prior
// state, whether the work succeeds, fails, or panics.
//
// # Architecture
//
//	kernelpool/          Pool, Toolkit and Observer interfaces, scoped run helpers
//	├── errors/          Structured error types with phase and kind
//	├── registry/        In-process toolkit backed by an ordered registry
//	├── wasmhost/        Toolkit adapter for engines compiled to WebAssembly
//	├── poolmetrics/     Prometheus collector observing pool events
//	├── manifest/        YAML kernel-set manifests with variable expansion
//	└── cmd/kernelctl/   Command line front end
//
// # Quick Start
//
//	tk := registry.New()
//	pool, err := kernelpool.New(tk, "data/naif0012.tls", "data/de440.bsp")
//	if err != nil {
//		return err
//	}
//
//	err = pool.Run(ctx, func(ctx context.Context) error {
//		// kernels are loaded here
//		return computeEphemeris(ctx)
//	})
//	// kernels are unloaded here, even if computeEphemeris failed
//
// The same pool can stamp out repeating work with Wrap: each invocation of
// the returned function is a fresh load/unload cycle.
//
//	nightly := pool.Wrap(generateReport)
//	for _, t := range windows {
//		if err := nightly(ctx); err != nil { ... }
//	}
//
// # Failure Semantics
//
// Kernels load in the order given and unload in reverse. If a load fails
// partway through, the work never runs; by default kernels loaded before
// the failure stay loaded (matching the toolkit's own partial-failure
// behavior) and the returned PartialLoadError names them, while
// UnloadOnLoadFailure switches to rolling them back. A work error never
// prevents unloading, and an unload error never replaces a work error:
// both travel in the returned error and remain visible to errors.Is.
//
// # Thread Safety
//
// A Pool is immutable after construction and safe for concurrent use as
// long as the underlying Toolkit is. Note that toolkits manage one global
// kernel pool per process, so overlapping Run calls against one toolkit
// still interleave loads and unloads in that single pool.
package kernelpool
