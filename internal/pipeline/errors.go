package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is wrapped by every lookup failure.
	ErrNotFound = errors.New("not found")

	ErrStepNotFound   = fmt.Errorf("step %w", ErrNotFound)
	ErrPlanNotFound   = fmt.Errorf("plan %w", ErrNotFound)
	ErrStepNotInPlan  = fmt.Errorf("step %w in plan", ErrNotFound)
	ErrStepRunning    = errors.New("step is already running")
	ErrInvalidRequest = errors.New("invalid request")
)

// StepFailedError reports a step whose research or execution failed. The
// step has been marked failed with {"error": Cause} as its result.
type StepFailedError struct {
	StepID string
	Err    error
}

func (e *StepFailedError) Error() string {
	return fmt.Sprintf("Step execution failed: %v", e.Err)
}

func (e *StepFailedError) Unwrap() error { return e.Err }
