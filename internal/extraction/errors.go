package extraction

import "fmt"

// ValidationError represents a malformed or empty input conversation
type ValidationError struct {
	Message string
	Field   string
	Cause   error
}

func (e *ValidationError) Error() string {
	msg := "validation error"
	if e.Field != "" {
		msg = fmt.Sprintf("validation error in %s", e.Field)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", msg, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", msg, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}
