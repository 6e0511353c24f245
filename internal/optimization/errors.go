package optimization

import "fmt"

// OptimizationError reports that no prompt could be assembled
type OptimizationError struct {
	Message string
	Cause   error
}

func (e *OptimizationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("optimization error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("optimization error: %s", e.Message)
}

func (e *OptimizationError) Unwrap() error {
	return e.Cause
}
