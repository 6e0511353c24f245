// Package extraction normalizes raw conversations into the canonical form consumed by the pipeline.
package extraction

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/context-crystal/internal/types"
)

// Options configures extraction
type Options struct {
	// IncludeMetadata keeps title, model and total_tokens
	IncludeMetadata bool
	// MaxMessages keeps only the most recent N messages when set
	MaxMessages *int
}

// DefaultOptions keeps metadata and every message
func DefaultOptions() Options {
	return Options{IncludeMetadata: true}
}

// Extract returns a canonical copy of raw. The input is never mutated.
func Extract(raw *types.Conversation, opts Options) (*types.Conversation, error) {
	if raw == nil {
		return nil, &ValidationError{Message: "conversation is required"}
	}
	if len(raw.Messages) == 0 {
		return nil, &ValidationError{Field: "messages", Message: "conversation has no messages"}
	}
	if opts.MaxMessages != nil && *opts.MaxMessages < 1 {
		return nil, &ValidationError{Field: "max_messages", Message: "must be at least 1"}
	}
	if err := raw.Validate(); err != nil {
		return nil, &ValidationError{
			Field:   fieldOf(err),
			Message: "conversation failed validation",
			Cause:   err,
		}
	}

	canonical := raw.Clone()

	messages := canonical.Messages
	if opts.MaxMessages != nil && len(messages) > *opts.MaxMessages {
		// recency wins: keep the tail
		messages = messages[len(messages)-*opts.MaxMessages:]
	}

	out := make([]types.Message, len(messages))
	for i, m := range messages {
		m.Content = NormalizeContent(m.Content)
		out[i] = m
	}
	canonical.Messages = out

	if !opts.IncludeMetadata {
		canonical.Metadata = nil
	}

	return canonical, nil
}

// fieldOf names the first failing field of a validator error
func fieldOf(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Sprintf("%s (%s)", verrs[0].Namespace(), verrs[0].Tag())
	}
	return ""
}
