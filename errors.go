package fffr

import "errors"

// Error taxonomy per spec.md §7. Library boundaries never let a
// language-level exception escape; every internal exceptional
// condition is caught and converted to one of these, or to a
// nil/false/empty-vector return per the operation's documented
// contract.
var (
	// ErrOpenFailed covers container-cannot-open, no-video-stream,
	// codec-unsupported, hardware-device-unavailable, and
	// filter-graph-construction failures. The factory never returns a
	// partial Stream alongside this error.
	ErrOpenFailed = errors.New("fffr: open failed")

	// ErrDecodeStall is surfaced from peek/fill when codec delay is
	// exceeded without output; Stream state is preserved and a later
	// Seek may recover.
	ErrDecodeStall = errors.New("fffr: decode stall")

	// ErrSeekOutOfRange is the invalid-seek case: target < 0 or >=
	// duration.
	ErrSeekOutOfRange = errors.New("fffr: seek out of range")

	// ErrInvariantViolation covers caller-visible malformed requests,
	// e.g. a non-monotonic batch sequence.
	ErrInvariantViolation = errors.New("fffr: invariant violation")
)
