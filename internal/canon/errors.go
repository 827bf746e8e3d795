package canon

import (
	"errors"
	"fmt"
)

// Sentinel errors for the canonicalization error taxonomy. Request validation
// and cache-read failures surface to the caller; classifier failures are
// recovered locally into the full-batch fallback and never escape Canonize.
var (
	// ErrBadRequest wraps malformed-request failures. Rejected before any
	// pipeline work; no side effects.
	ErrBadRequest = errors.New("bad request")

	// ErrClassifierTimeout marks a batch call that exceeded its deadline.
	ErrClassifierTimeout = errors.New("classifier timeout")

	// ErrClassifierResponse marks an unparseable or contract-violating
	// classifier response.
	ErrClassifierResponse = errors.New("classifier response invalid")
)

func badRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrBadRequest}, args...)...)
}

func responsef(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrClassifierResponse}, args...)...)
}
