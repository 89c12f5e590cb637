package engine

import (
	"errors"
	"fmt"
)

// ErrNoSeats is returned when an operation is called with an empty seat
// set after deduplication.  Handlers should translate this into an HTTP
// 400 response.
var ErrNoSeats = errors.New("no seat ids provided")

// ErrNoHolder is returned when an operation is called without a holder
// identity.
var ErrNoHolder = errors.New("holder id is required")

// ErrTxTimeout is returned when row-lock acquisition exceeded the bounded
// wait.  It is retryable: the caller saw no partial mutation and may
// simply re-issue the request.  Handlers should translate this into an
// HTTP 503 response with a Retry-After hint, never a 409.
var ErrTxTimeout = errors.New("seat rows are contended, retry")

// ConflictError reports that one or more requested seats are not eligible
// for the requested transition.  SeatIDs always names the offending seats
// so clients can re-render availability.  Handlers should translate this
// into an HTTP 409 response.
type ConflictError struct {
	SeatIDs []uint64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("seats not available: %v", e.SeatIDs)
}

// NotFoundError reports that requested seat ids do not exist.
type NotFoundError struct {
	SeatIDs []uint64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("seats not found: %v", e.SeatIDs)
}

// IsRetryable reports whether the caller may re-issue the failed operation
// unchanged.  Only bounded-wait timeouts qualify; conflicts are final for
// the observed seat state.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTxTimeout)
}
