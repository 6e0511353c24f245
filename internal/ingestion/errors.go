package ingestion

import "errors"

var (
	// ErrInvalidURL is returned when URL is malformed
	ErrInvalidURL = errors.New("invalid URL")
	// ErrHTTPRequestFailed is returned when HTTP request fails
	ErrHTTPRequestFailed = errors.New("HTTP request failed")
	// ErrContentExtractionFailed is returned when no conversation could be read from a page
	ErrContentExtractionFailed = errors.New("content extraction failed")
	// ErrUnlabelledTranscript is returned when pasted text carries no role labels
	ErrUnlabelledTranscript = errors.New("transcript has no role labels")
	// ErrInvalidExport is returned when an export document cannot be decoded
	ErrInvalidExport = errors.New("invalid export")
)
