package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrTimeout marks a network timeout or connection failure. Adapters wrap
	// it so callers can branch retryable failures from everything else.
	ErrTimeout = errors.New("request timed out")
	// ErrNoSnapshot is returned when a board is read before its first
	// successful refresh.
	ErrNoSnapshot = errors.New("board has no snapshot yet")
	// ErrNotSubmitted is returned when an order operation requires an
	// acceptance id that was never obtained.
	ErrNotSubmitted = errors.New("order was never submitted")
	// ErrNetExposureExceeded halts the trading loop. It is a configuration
	// ceiling breach, not a retryable condition.
	ErrNetExposureExceeded = errors.New("net exposure exceeds configured ceiling")
)

// ValidationError marks a malformed or unexpected adapter response. It fails
// the attempt that produced it; whether to retry is the caller's policy.
type ValidationError struct {
	Venue  string
	Op     string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: invalid response: %s", e.Venue, e.Op, e.Detail)
}

// CompensationError reports that a rollback exhausted its retries, leaving a
// possibly unmatched position. Operator intervention is assumed.
type CompensationError struct {
	Venue        string
	Side         Side
	AcceptanceID string
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("%s: rollback of %s leg %s failed after all retries", e.Venue, e.Side, e.AcceptanceID)
}

// IsTransient reports whether err is a retryable I/O failure: a network
// timeout, an expired deadline, or anything wrapping ErrTimeout.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
