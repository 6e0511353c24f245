package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Run represents a pipeline run record
type Run struct {
	ID             uuid.UUID       `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Stage          string          `json:"stage"`
	Status         string          `json:"status"`
	Progress       float64         `json:"progress"`
	CurrentStep    string          `json:"current_step,omitempty"`
	ErrorMessage   string          `json:"error,omitempty"`
	Metrics        json.RawMessage `json:"metrics,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// RunStage records when a run entered a stage
type RunStage struct {
	RunID     uuid.UUID `json:"run_id"`
	Stage     string    `json:"stage"`
	Progress  float64   `json:"progress"`
	EnteredAt time.Time `json:"entered_at"`
}

// Artifact represents a stored stage artifact
type Artifact struct {
	ID        uuid.UUID       `json:"id"`
	RunID     uuid.UUID       `json:"run_id"`
	Name      string          `json:"name"`
	Stage     string          `json:"stage"`
	Content   json.RawMessage `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
}

// ConversationRecord is a stored canonical conversation
type ConversationRecord struct {
	ID           string          `json:"id"`
	Source       string          `json:"source"`
	Title        string          `json:"title,omitempty"`
	MessageCount int             `json:"message_count"`
	ExtractedAt  float64         `json:"extracted_at"`
	Content      json.RawMessage `json:"content"`
	CreatedAt    time.Time       `json:"created_at"`
}

// RunFilters holds optional filters for listing runs
type RunFilters struct {
	ConversationID string
	Status         string
	Limit          int
}
