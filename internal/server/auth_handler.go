package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/context-crystal/internal/config"
	"github.com/jonathan/context-crystal/internal/types"
)

// AuthHandler exchanges the configured API key for bearer tokens.
type AuthHandler struct {
	keys       *config.APIKeyConfig
	jwtService *JWTService
	validator  *validator.Validate
}

// NewAuthHandler creates a new AuthHandler with the given dependencies.
func NewAuthHandler(keys *config.APIKeyConfig, jwtService *JWTService) *AuthHandler {
	return &AuthHandler{
		keys:       keys,
		jwtService: jwtService,
		validator:  validator.New(),
	}
}

// IssueToken handles POST /api/token.
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	if h.jwtService == nil || !h.keys.Enabled() {
		writeError(w, http.StatusNotFound, "token exchange is not configured")
		return
	}

	var req types.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, extractValidationErrors(err))
		return
	}

	if !h.keys.VerifyKey(req.APIKey) {
		log.Printf("[SERVER] Rejected token request for client %q", req.Client)
		writeError(w, HTTPStatus(ErrInvalidCredentials), ErrInvalidCredentials.Error())
		return
	}

	token, expiresAt, err := h.jwtService.GenerateToken(req.Client)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, types.TokenResponse{Token: token, ExpiresAt: expiresAt})
}

// extractValidationErrors extracts validation error messages from validator errors.
func extractValidationErrors(err error) string {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrors) > 0 {
			// Return first validation error for simplicity
			ve := validationErrors[0]
			return fmt.Sprintf("validation error: %s - %s", ve.Field(), ve.Tag())
		}
	}
	return "validation error: " + err.Error()
}
