package types

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrConversationOrSealed is returned when a start request carries both or neither payloads.
var ErrConversationOrSealed = errors.New("exactly one of conversation or sealed is required")

// ErrURLOrContent is returned when an extract request carries both or neither inputs.
var ErrURLOrContent = errors.New("exactly one of url or content is required")

// CompressionOptions are per-run tuning knobs accepted from callers.
type CompressionOptions struct {
	TargetRatio          float64  `json:"target_ratio,omitempty" validate:"omitempty,gte=0.1,lte=0.95"`
	PreserveCodeBlocks   *bool    `json:"preserve_code_blocks,omitempty"`
	ContinuationPrompt   string   `json:"continuation_prompt,omitempty" validate:"omitempty,max=2000"`
	MaxMessages          *int     `json:"max_messages,omitempty" validate:"omitempty,gte=1"`
	MaterialityThreshold *float64 `json:"materiality_threshold,omitempty" validate:"omitempty,gte=0"`
}

// Validate validates the CompressionOptions using the validator.
func (o *CompressionOptions) Validate() error {
	return validator.New().Struct(o)
}

// StartRunRequest is the body of a pipeline start request. Exactly one of
// Conversation or Sealed must be set.
type StartRunRequest struct {
	Conversation *Conversation      `json:"conversation,omitempty"`
	Sealed       string             `json:"sealed,omitempty" validate:"omitempty,base64rawurl"`
	Options      CompressionOptions `json:"options"`
}

// ExtractRequest asks the server to import a conversation from an export payload or URL.
type ExtractRequest struct {
	Source  Source `json:"source" validate:"required,oneof=chatgpt claude perplexity moonshot deepseek gemini manual"`
	URL     string `json:"url,omitempty" validate:"omitempty,url"`
	Content string `json:"content,omitempty"`
	Format  string `json:"format,omitempty" validate:"omitempty,oneof=chatgpt json transcript html"`
	// Refresh bypasses the page cache for URL imports
	Refresh bool `json:"refresh,omitempty"`
}

// StartRunResponse is returned when a run has been accepted.
type StartRunResponse struct {
	RunID   string `json:"run_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Validate validates the StartRunRequest using the validator.
func (r *StartRunRequest) Validate() error {
	if (r.Conversation == nil) == (r.Sealed == "") {
		return ErrConversationOrSealed
	}
	validate := validator.New()
	return validate.Struct(r)
}

// Validate validates the ExtractRequest using the validator.
func (r *ExtractRequest) Validate() error {
	if (r.URL == "") == (r.Content == "") {
		return ErrURLOrContent
	}
	validate := validator.New()
	return validate.Struct(r)
}

// TokenRequest exchanges an API key for a bearer token.
type TokenRequest struct {
	Client string `json:"client" validate:"required,max=64"`
	APIKey string `json:"api_key" validate:"required"`
}

// TokenResponse carries an issued bearer token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
