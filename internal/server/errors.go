// Package server provides the HTTP API of the context crystal service.
package server

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/context-crystal/internal/extraction"
	"github.com/jonathan/context-crystal/internal/fetch"
	"github.com/jonathan/context-crystal/internal/ingestion"
	"github.com/jonathan/context-crystal/internal/pipeline"
	"github.com/jonathan/context-crystal/internal/schemas"
	"github.com/jonathan/context-crystal/internal/transit"
	"github.com/jonathan/context-crystal/internal/types"
)

var (
	// ErrInvalidCredentials indicates an API key that does not match the configured hash
	ErrInvalidCredentials = errors.New("invalid client or API key")
	// ErrSealedDisabled is returned for sealed payloads when no transit key is configured
	ErrSealedDisabled = errors.New("sealed payloads are not enabled")
	// ErrHistoryDisabled is returned by endpoints that need a database when none is configured
	ErrHistoryDisabled = errors.New("persistence is not configured")
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return "validation error: " + e.Field + " - " + e.Message
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		notFound   *pipeline.RunNotFoundError
		notReady   *pipeline.NotReadyError
		runFailed  *pipeline.RunFailedError
		invalid    *extraction.ValidationError
		reqInvalid *ErrValidation
		schemaErr  *schemas.ValidationError
		fieldErrs  validator.ValidationErrors
		fetchErr   *fetch.Error
	)

	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &notReady):
		return http.StatusConflict
	case errors.As(err, &runFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrSealedDisabled), errors.Is(err, ErrHistoryDisabled):
		return http.StatusNotImplemented
	case errors.As(err, &invalid),
		errors.As(err, &reqInvalid),
		errors.As(err, &schemaErr),
		errors.As(err, &fieldErrs),
		errors.Is(err, types.ErrConversationOrSealed),
		errors.Is(err, types.ErrURLOrContent),
		errors.Is(err, transit.ErrMalformed),
		errors.Is(err, transit.ErrUnsealFailed),
		errors.Is(err, ingestion.ErrInvalidURL),
		errors.Is(err, ingestion.ErrInvalidExport),
		errors.Is(err, ingestion.ErrUnlabelledTranscript):
		return http.StatusBadRequest
	case errors.Is(err, ingestion.ErrContentExtractionFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ingestion.ErrHTTPRequestFailed), errors.As(err, &fetchErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
