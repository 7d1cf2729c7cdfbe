package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidConfig = errors.New("invalid risk config")
	ErrLockHeld      = errors.New("lock already held")

	// ErrConflict is returned when a close attempt loses the race against a
	// concurrent close of the same position. It is benign: the position was
	// closed exactly once, just not by this caller.
	ErrConflict = errors.New("position already closed")

	// ErrDataIntegrity marks a position referencing a missing bot or
	// subscription. Such positions are excluded from the tick and from
	// aggregation.
	ErrDataIntegrity = errors.New("data integrity violation")
)

// TransientError wraps an exchange failure that is worth retrying, such as a
// timeout, rate limit, or 5xx response.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError wraps an exchange failure that will not succeed on retry,
// such as a rejected request or an unknown symbol. Positions hit by a
// permanent error are flagged for manual review rather than auto-retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Permanent wraps err as a PermanentError. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermanent reports whether err is (or wraps) a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// TickError records a single per-position failure inside a monitor tick. The
// tick as a whole carries on; errors are surfaced in the tick summary.
type TickError struct {
	PositionID string
	Symbol     string
	Err        error
}

func (e TickError) Error() string {
	return fmt.Sprintf("position %s (%s): %v", e.PositionID, e.Symbol, e.Err)
}

func (e TickError) Unwrap() error { return e.Err }
