// Package wasmhost runs an ephemeris toolkit compiled to WebAssembly and
// exposes it as the pool's Toolkit.
//
// The expected guest is a WASI build of a C toolkit plus a small shim
// exporting, under configurable names:
//
//	furnsh(ptr, len i32) -> i32    load the kernel path at ptr
//	unload(ptr, len i32) -> i32    unload the kernel path at ptr
//	ktotal() -> i32                loaded kernel count (optional)
//	errmsg(ptr, cap i32) -> i32    pending error message (optional)
//	malloc(size i32) -> i32        guest allocator
//	free(ptr i32)                  release an allocation (optional)
//
// Load and unload return zero on success. On a nonzero status the host
// fetches the toolkit's pending error message, when the shim exports one,
// and folds it into the returned error.
//
// Kernel files live on the host filesystem; Config.Mounts preopens
// directories for WASI so the guest can read them. Kernel paths handed to
// Load must be valid from the guest's point of view.
//
// The runtime is wazero, so no cgo or system WebAssembly installation is
// involved.
package wasmhost
