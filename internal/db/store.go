package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/context-crystal/internal/pipeline"
	"github.com/jonathan/context-crystal/internal/types"
)

// Store adapts DB to pipeline.Store
type Store struct {
	db *DB
}

// NewStore creates a Store backed by db
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// Put implements pipeline.Store. Status records update the run row and its
// stage history; artifacts are upserted by name. The canonical conversation
// is also written to the conversations table.
func (s *Store) Put(ctx context.Context, runID string, rec pipeline.Record) error {
	id, err := uuid.Parse(runID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", runID, err)
	}

	switch rec.Kind {
	case pipeline.RecordStatus:
		if rec.Status == nil {
			return fmt.Errorf("status record for run %s has no status", runID)
		}
		if err := s.db.UpsertRun(ctx, *rec.Status, pipeline.Project(rec.Status.Stage)); err != nil {
			return err
		}
		return s.db.RecordStage(ctx, id, rec.Status.Stage, rec.Status.Progress, rec.At)
	case pipeline.RecordArtifact:
		if conv, ok := rec.Payload.(*types.Conversation); ok && rec.Stage == types.StageExtraction {
			if err := s.db.SaveConversation(ctx, conv); err != nil {
				return err
			}
		}
		return s.db.SaveArtifact(ctx, id, artifactKey(rec), rec.Stage, rec.Payload)
	default:
		return fmt.Errorf("unknown record kind %q", rec.Kind)
	}
}

// artifactKey keeps the submitted conversation apart from the canonical one
func artifactKey(rec pipeline.Record) string {
	if rec.Name == pipeline.ArtifactConversation && rec.Stage == types.StageInitializing {
		return "submitted_conversation"
	}
	return rec.Name
}
