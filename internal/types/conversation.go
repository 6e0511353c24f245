// Package types provides type definitions for structured data used throughout the context-crystal system.
package types

import (
	"github.com/go-playground/validator/v10"
)

// Role identifies the author of a message
type Role string

// Message roles
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Source identifies the assistant a conversation was exported from
type Source string

// Conversation sources
const (
	SourceChatGPT    Source = "chatgpt"
	SourceClaude     Source = "claude"
	SourcePerplexity Source = "perplexity"
	SourceMoonshot   Source = "moonshot"
	SourceDeepSeek   Source = "deepseek"
	SourceGemini     Source = "gemini"
	SourceManual     Source = "manual"
)

// Sources lists every supported conversation source
var Sources = []Source{
	SourceChatGPT, SourceClaude, SourcePerplexity, SourceMoonshot,
	SourceDeepSeek, SourceGemini, SourceManual,
}

// IsValid reports whether s is a known source
func (s Source) IsValid() bool {
	for _, known := range Sources {
		if s == known {
			return true
		}
	}
	return false
}

// Message is a single conversational turn
type Message struct {
	Role      Role     `json:"role" yaml:"role" validate:"required,oneof=user assistant system"`
	Content   string   `json:"content" yaml:"content"`
	Timestamp *float64 `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Model     string   `json:"model,omitempty" yaml:"model,omitempty"`
}

// ConversationMetadata holds optional descriptive fields of a conversation
type ConversationMetadata struct {
	Title       string `json:"title,omitempty" yaml:"title,omitempty"`
	Model       string `json:"model,omitempty" yaml:"model,omitempty"`
	TotalTokens int    `json:"total_tokens,omitempty" yaml:"total_tokens,omitempty" validate:"gte=0"`
}

// Conversation is an ordered sequence of messages exported from an assistant.
// Message order is conversational turn order.
type Conversation struct {
	ID          string                `json:"id" yaml:"id" validate:"required"`
	Source      Source                `json:"source" yaml:"source" validate:"required,oneof=chatgpt claude perplexity moonshot deepseek gemini manual"`
	ExtractedAt float64               `json:"extracted_at" yaml:"extracted_at" validate:"gte=0"`
	Messages    []Message             `json:"messages" yaml:"messages" validate:"dive"`
	Metadata    *ConversationMetadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Validate validates the Conversation using the validator.
func (c *Conversation) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// Clone returns a deep copy of the conversation
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		out.Messages[i] = m
		if m.Timestamp != nil {
			ts := *m.Timestamp
			out.Messages[i].Timestamp = &ts
		}
	}
	if c.Metadata != nil {
		md := *c.Metadata
		out.Metadata = &md
	}
	return &out
}

// Title returns the conversation title, or an empty string
func (c *Conversation) Title() string {
	if c == nil || c.Metadata == nil {
		return ""
	}
	return c.Metadata.Title
}
