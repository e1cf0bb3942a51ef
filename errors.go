package binscope

import "errors"

// Sentinel errors. Callers test for them with errors.Is; every error returned
// by this package wraps one of these or a collaborator's error with context.
var (
	// ErrLoad reports that the loader could not turn bytes into a program.
	ErrLoad = errors.New("load failed")

	// ErrOptimize reports a per-function optimizer or eliminator failure.
	// Translate swallows these; they surface only in FunctionOutcome.Err.
	ErrOptimize = errors.New("optimization failed")

	// ErrLockPoisoned reports that a lock holder panicked mid-mutation. The
	// guarded state may be half-written and is never handed out again.
	ErrLockPoisoned = errors.New("lock poisoned")

	// ErrNotFound reports an unknown document or function index.
	ErrNotFound = errors.New("not found")

	// ErrMalformedRequest reports a request with missing or mistyped params.
	ErrMalformedRequest = errors.New("malformed request")

	// ErrFixpointNotReached reports that dead-code elimination did not
	// converge within the iteration cap.
	ErrFixpointNotReached = errors.New("fixpoint not reached")
)
