package verification

import "fmt"

// VerificationError reports that claims could not be checked
type VerificationError struct {
	Message string
	Claim   string
	Cause   error
}

func (e *VerificationError) Error() string {
	msg := e.Message
	if e.Claim != "" {
		msg = fmt.Sprintf("%s (claim %q)", msg, e.Claim)
	}
	if e.Cause != nil {
		return fmt.Sprintf("verification error: %s: %v", msg, e.Cause)
	}
	return fmt.Sprintf("verification error: %s", msg)
}

func (e *VerificationError) Unwrap() error {
	return e.Cause
}
