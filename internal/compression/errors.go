package compression

import "fmt"

// CompressionError reports a compressor run that cannot produce usable output
type CompressionError struct {
	Message string
	Cause   error
}

func (e *CompressionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("compression error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("compression error: %s", e.Message)
}

func (e *CompressionError) Unwrap() error {
	return e.Cause
}

// APICallError represents a failed call to the text-generation capability
type APICallError struct {
	Message string
	Cause   error
}

func (e *APICallError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("API call failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("API call failed: %s", e.Message)
}

func (e *APICallError) Unwrap() error {
	return e.Cause
}

// ParseError represents an LLM response that could not be decoded
type ParseError struct {
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("parse error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("parse error: %s", e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}
