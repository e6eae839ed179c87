package fuse

import "errors"

// Sentinel errors for the kinds of failure a caller needs to distinguish
// with errors.Is. Most failures are conveyed as plain fmt.Errorf-wrapped
// errors with descriptive messages (see the teacher's sim/bundle.go and
// sim/latency/config.go for the pattern this follows) — these sentinels
// exist only for the "DataNotFound", "PreconditionViolated" and
// "InvalidConfig" kinds that callers are expected to branch on.
var (
	// ErrDataNotFound indicates a query for statistics, calibration, or a
	// reference distribution that was never computed/observed. This is a
	// hard fatal error: it indicates a programming error earlier in the
	// pipeline, never a recoverable condition.
	ErrDataNotFound = errors.New("fuse: data not found")

	// ErrPreconditionViolated indicates a caller invoked an operation with
	// inputs that violate its stated precondition (fewer than two profiles
	// to combine, BC without statistics/overlap, HEM passed to the engine).
	ErrPreconditionViolated = errors.New("fuse: precondition violated")

	// ErrInvalidConfig indicates a Target descriptor or an engine config
	// failed load-time validation.
	ErrInvalidConfig = errors.New("fuse: invalid config")
)
