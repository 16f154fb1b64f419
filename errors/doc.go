// Package errors provides structured error types for kernel lifecycle
// operations.
//
// Every error carries a Phase (where in the lifecycle it happened) and a
// Kind (what went wrong), plus the kernel it concerns when one is known.
// Errors render as
//
//	[phase] kind kernel "name": detail (caused by: underlying error)
//
// and participate in the standard errors.Is / errors.As / errors.Unwrap
// protocols. Two errors match under errors.Is when their Phase and Kind
// agree, so callers can test for a category without string comparison:
//
//	if errors.Is(err, &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindToolkitFailure}) {
//		// a kernel failed to load
//	}
//
// Underlying toolkit errors are preserved as the Cause and remain visible
// to errors.Is through Unwrap.
//
// PartialLoadError additionally reports which kernels an aborted
// enter-scope left loaded, for callers that want to clean up themselves
// when rollback is disabled.
package errors
