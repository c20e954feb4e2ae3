package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the lifecycle, membership and stock services.
// Validation errors are terminal; callers should not retry them.
var (
	ErrNotFound                = errors.New("not found")
	ErrForbidden               = errors.New("forbidden")
	ErrAlreadyMember           = errors.New("already a member")
	ErrNotAMember              = errors.New("not a member")
	ErrConflict                = errors.New("conflict")
	ErrCodeGenerationExhausted = errors.New("join code generation exhausted")

	// ErrStoreUnavailable marks a transient store failure. The store adapter
	// retries these with backoff before they ever reach a service.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// PartialFailureError reports a multi-step flow that completed some but not
// all of its writes. Step names the write that failed; every step in the
// create and cascade flows is idempotent, so re-issuing the same call is
// safe and finishes the remainder.
type PartialFailureError struct {
	Op   string // e.g. "create_farm"
	Step string // e.g. "update_owner_user"
	Err  error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s partially failed at step %q: %v", e.Op, e.Step, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }

// IsRetryable reports whether an error is worth re-issuing: transient store
// failures and partial completions, but never validation errors.
func IsRetryable(err error) bool {
	var pf *PartialFailureError
	return errors.Is(err, ErrStoreUnavailable) || errors.As(err, &pf)
}
