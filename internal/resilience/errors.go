package resilience

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when a single attempt exceeds Options.Timeout.
	ErrTimeout = errors.New("resilience: attempt timed out")

	// ErrPanic wraps a panic raised inside an operation. Never retried.
	ErrPanic = errors.New("resilience: operation panicked")
)

// StatusError is the error half of a remote response envelope. Remote
// backends return it for any non-2xx reply so the executor can classify
// the failure by status and code instead of by message text.
type StatusError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

func (e *StatusError) Error() string {
	switch {
	case e.Code != "" && e.Status != 0:
		return fmt.Sprintf("remote error %d (%s): %s", e.Status, e.Code, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("remote error %d: %s", e.Status, e.Message)
	case e.Code != "":
		return fmt.Sprintf("remote error (%s): %s", e.Code, e.Message)
	default:
		return "remote error: " + e.Message
	}
}
