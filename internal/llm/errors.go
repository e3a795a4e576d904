package llm

import (
	"context"
	"errors"
	"fmt"
)

// Error is an infrastructure failure of the text generation backend:
// transport, authentication, quota or timeout. Malformed model output is
// never reported as an Error.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Timeout reports whether the call exceeded its deadline.
func (e *Error) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// IsInfrastructure reports whether err carries an *Error.
func IsInfrastructure(err error) bool {
	var le *Error
	return errors.As(err, &le)
}

// ErrEmptyResponse is returned by providers when the model sends no choices.
var ErrEmptyResponse = errors.New("empty response")
