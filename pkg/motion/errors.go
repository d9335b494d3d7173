package motion

import (
	"errors"
	"fmt"
)

// Sentinel errors for link failures.
var (
	// ErrLinkUnavailable is returned when no link is open or it has been closed.
	ErrLinkUnavailable = errors.New("motion: link unavailable")

	// ErrWriteFailed is returned when the opcode byte could not be written.
	ErrWriteFailed = errors.New("motion: write failed")

	// ErrAckTimeout is returned when the previous command was not acknowledged in time.
	ErrAckTimeout = errors.New("motion: ack timeout")

	// ErrListenerStopped is returned when a command waits on an Ack that can no longer arrive.
	ErrListenerStopped = errors.New("motion: listener stopped")
)

// LinkError wraps a link failure with the operation and opcode involved.
type LinkError struct {
	Op     string
	Opcode Opcode
	Err    error
}

// Error implements the error interface.
func (e *LinkError) Error() string {
	if e.Op == "open" {
		return fmt.Sprintf("motion %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("motion %s op=%d: %v", e.Op, e.Opcode, e.Err)
}

// Unwrap returns the underlying error.
func (e *LinkError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether sending again may succeed.
func (e *LinkError) IsRetryable() bool {
	return errors.Is(e.Err, ErrAckTimeout) || errors.Is(e.Err, ErrWriteFailed)
}

// IsRetryable reports whether err is a link failure worth retrying.
func IsRetryable(err error) bool {
	var le *LinkError
	if errors.As(err, &le) {
		return le.IsRetryable()
	}
	return false
}
