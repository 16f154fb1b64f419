// Package registry provides an in-process kernel pool.
//
// A Registry implements the pool's Toolkit and Counter interfaces with
// pure bookkeeping: it records which kernels are loaded and in what
// order, without parsing the files. That makes it the backend for tests,
// dry runs, and tooling that needs pool accounting but not ephemeris
// data, and the reference for how a Toolkit is expected to behave.
//
// Unload of an absent kernel is a no-op by default; Config.Strict turns
// it into an error for callers that want pairing violations surfaced.
package registry
