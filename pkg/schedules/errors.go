package schedules

import (
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/bugbug-client/pkg/session"
)

var (
	// ErrTimeout matches every *TimeoutError.
	ErrTimeout = errors.New("bugbug timeout")

	// ErrInvalidResponse is returned when a finished response cannot be decoded.
	ErrInvalidResponse = errors.New("invalid bugbug response")
)

// TimeoutError is returned when bugbug was still computing the schedules
// after the whole polling budget was spent.
type TimeoutError struct {
	URL      string
	Attempts int
	Elapsed  time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for result from '%s'", e.URL)
}

// Is makes errors.Is(err, ErrTimeout) match.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// StatusError is returned for error statuses. Transient statuses reach it
// only after the session used up its retries.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
	ErrorClass session.ErrorClass
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("bugbug %s error (status %d) for '%s': %s",
		e.ErrorClass, e.StatusCode, e.URL, e.Status)
}
