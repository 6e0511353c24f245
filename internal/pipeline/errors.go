package pipeline

import (
	"fmt"
	"time"

	"github.com/jonathan/context-crystal/internal/types"
)

// TransitionError represents an illegal stage change
type TransitionError struct {
	From    types.Stage
	To      types.Stage
	Message string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s: %s", e.From, e.To, e.Message)
}

// TimeoutError represents a stage that exceeded its deadline
type TimeoutError struct {
	Stage   types.Stage
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s stage timed out after %s", e.Stage, e.Timeout)
}

// CancelledError represents a run stopped by CancelPipeline
type CancelledError struct {
	Stage types.Stage
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("pipeline cancelled during %s", e.Stage)
}

// NotReadyError is returned by GetResult while a run is still in progress
type NotReadyError struct {
	RunID string
	Stage types.Stage
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("run %s is not ready (stage %s)", e.RunID, e.Stage)
}

// RunFailedError is returned by GetResult for a run that ended in failed
type RunFailedError struct {
	RunID string
	Stage types.Stage
	Cause error
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("run %s failed during %s: %v", e.RunID, e.Stage, e.Cause)
}

func (e *RunFailedError) Unwrap() error {
	return e.Cause
}

// RunNotFoundError represents an unknown run id
type RunNotFoundError struct {
	RunID string
}

func (e *RunNotFoundError) Error() string {
	return fmt.Sprintf("run not found: %s", e.RunID)
}
