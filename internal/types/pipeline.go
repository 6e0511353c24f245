package types

import "time"

// Stage is a step of the pipeline state machine
type Stage string

// Pipeline stages, in order of progression. StageFailed is absorbing.
const (
	StageInitializing Stage = "initializing"
	StageExtraction   Stage = "extraction"
	StageCompression  Stage = "compression"
	StageVerification Stage = "verification"
	StageOptimization Stage = "optimization"
	StageCompleted    Stage = "completed"
	StageFailed       Stage = "failed"
)

// ProcessingStatus is the coarse external projection of a Stage
type ProcessingStatus string

// Coarse processing statuses
const (
	ProcessingPending   ProcessingStatus = "pending"
	ProcessingActive    ProcessingStatus = "processing"
	ProcessingCompleted ProcessingStatus = "completed"
	ProcessingFailed    ProcessingStatus = "failed"
)

// PipelineMetrics summarises a completed run
type PipelineMetrics struct {
	OriginalTokens          int     `json:"original_tokens"`
	CompressedTokens        int     `json:"compressed_tokens"`
	CompressionRatio        float64 `json:"compression_ratio"`
	InformationDensityRatio float64 `json:"information_density_ratio"`
	GroundingScore          float64 `json:"grounding_score"`
	EstimatedCost           float64 `json:"estimated_cost"`
	EstimatedCostSavings    float64 `json:"estimated_cost_savings"`
	TimeElapsed             float64 `json:"time_elapsed"` // seconds

	// Degenerate is set when the compression ratio exceeds 1.0
	Degenerate       bool   `json:"degenerate,omitempty"`
	DegenerateReason string `json:"degenerate_reason,omitempty"`
}

// PipelineStatus tracks one run of the pipeline
type PipelineStatus struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversation_id"`
	Stage          Stage            `json:"stage"`
	Progress       float64          `json:"progress"`
	CurrentStep    string           `json:"current_step,omitempty"`
	Error          string           `json:"error,omitempty"`
	StartedAt      time.Time        `json:"started_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	Metrics        *PipelineMetrics `json:"metrics,omitempty"`
}

// Clone returns a deep copy of the status
func (s PipelineStatus) Clone() PipelineStatus {
	out := s
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	if s.Metrics != nil {
		m := *s.Metrics
		out.Metrics = &m
	}
	return out
}

// Terminal reports whether the status has reached completed or failed
func (s PipelineStatus) Terminal() bool {
	return s.Stage == StageCompleted || s.Stage == StageFailed
}
