package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/jonathan/context-crystal/internal/types"
)

// RecordKind distinguishes status snapshots from stage artifacts
type RecordKind string

// Record kinds
const (
	RecordStatus   RecordKind = "status"
	RecordArtifact RecordKind = "artifact"
)

// Artifact names
const (
	ArtifactConversation    = "conversation"
	ArtifactCompression     = "compression"
	ArtifactVerification    = "verification"
	ArtifactOptimizedPrompt = "optimized_prompt"
)

// Record is one entry emitted to a Store. Status is set for status records,
// Name and Payload for artifacts.
type Record struct {
	Kind    RecordKind
	Stage   types.Stage
	Name    string
	Status  *types.PipelineStatus
	Payload any
	At      time.Time
}

// Store persists status transitions and stage artifacts of runs
type Store interface {
	Put(ctx context.Context, runID string, rec Record) error
}

// MemoryStore keeps records in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]Record
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]Record)}
}

// Put implements Store
func (s *MemoryStore) Put(_ context.Context, runID string, rec Record) error {
	if rec.Status != nil {
		st := rec.Status.Clone()
		rec.Status = &st
	}
	s.mu.Lock()
	s.records[runID] = append(s.records[runID], rec)
	s.mu.Unlock()
	return nil
}

// Records returns a copy of the records of a run, in emission order
func (s *MemoryStore) Records(runID string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records[runID]))
	copy(out, s.records[runID])
	return out
}

// Artifact returns the latest artifact with the given name
func (s *MemoryStore) Artifact(runID, name string) (any, bool) {
	recs := s.Records(runID)
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].Kind == RecordArtifact && recs[i].Name == name {
			return recs[i].Payload, true
		}
	}
	return nil, false
}

// Delete drops every record of a run
func (s *MemoryStore) Delete(runID string) {
	s.mu.Lock()
	delete(s.records, runID)
	s.mu.Unlock()
}
