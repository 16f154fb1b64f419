// Package poolmetrics publishes pool lifecycle events as Prometheus
// metrics.
//
// The exported series are
//
//	kernelpool_loads_total{kernel}
//	kernelpool_load_failures_total{kernel}
//	kernelpool_unloads_total{kernel}
//	kernelpool_unload_failures_total{kernel}
//	kernelpool_kernels_loaded
//
// A steady nonzero kernelpool_kernels_loaded between scopes is the signal
// this module exists to catch: work that did not give its kernels back.
package poolmetrics
