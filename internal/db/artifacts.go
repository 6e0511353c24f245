package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/context-crystal/internal/types"
)

// SaveArtifact stores a JSON artifact for a pipeline run
func (db *DB) SaveArtifact(ctx context.Context, runID uuid.UUID, name string, stage types.Stage, content any) error {
	jsonBytes, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO artifacts (run_id, name, stage, content)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (run_id, name) DO UPDATE SET stage = $3, content = $4, created_at = NOW()`,
		runID, name, string(stage), jsonBytes,
	)
	if err != nil {
		return fmt.Errorf("failed to save artifact %s: %w", name, err)
	}
	return nil
}

// GetArtifact retrieves an artifact by run ID and name. It returns nil when
// the artifact does not exist.
func (db *DB) GetArtifact(ctx context.Context, runID uuid.UUID, name string) (*Artifact, error) {
	var a Artifact
	var content []byte
	err := db.pool.QueryRow(ctx,
		`SELECT id, run_id, name, stage, content, created_at
		 FROM artifacts WHERE run_id = $1 AND name = $2`,
		runID, name,
	).Scan(&a.ID, &a.RunID, &a.Name, &a.Stage, &content, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get artifact %s: %w", name, err)
	}
	a.Content = json.RawMessage(content)
	return &a, nil
}

// GetOptimizedPrompt decodes the final prompt artifact of a run
func (db *DB) GetOptimizedPrompt(ctx context.Context, runID uuid.UUID, name string) (*types.OptimizedPrompt, error) {
	a, err := db.GetArtifact(ctx, runID, name)
	if err != nil || a == nil {
		return nil, err
	}
	var p types.OptimizedPrompt
	if err := json.Unmarshal(a.Content, &p); err != nil {
		return nil, fmt.Errorf("failed to decode artifact %s: %w", name, err)
	}
	return &p, nil
}

// SaveConversation stores or replaces a conversation
func (db *DB) SaveConversation(ctx context.Context, conv *types.Conversation) error {
	content, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO conversations (id, source, title, message_count, extracted_at, content)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE
		 SET source = EXCLUDED.source, title = EXCLUDED.title, message_count = EXCLUDED.message_count,
		     extracted_at = EXCLUDED.extracted_at, content = EXCLUDED.content, updated_at = NOW()`,
		conv.ID, string(conv.Source), conv.Title(), len(conv.Messages), conv.ExtractedAt, content,
	)
	if err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", conv.ID, err)
	}
	return nil
}

// GetConversation retrieves a stored conversation, or nil if absent
func (db *DB) GetConversation(ctx context.Context, id string) (*types.Conversation, error) {
	var content []byte
	err := db.pool.QueryRow(ctx, `SELECT content FROM conversations WHERE id = $1`, id).Scan(&content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get conversation %s: %w", id, err)
	}
	var conv types.Conversation
	if err := json.Unmarshal(content, &conv); err != nil {
		return nil, fmt.Errorf("failed to decode conversation %s: %w", id, err)
	}
	return &conv, nil
}

// ListConversations pages through stored conversations, most recently
// updated first. offset skips that many rows.
func (db *DB) ListConversations(ctx context.Context, limit, offset int) ([]ConversationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, source, COALESCE(title, ''), message_count, extracted_at, content, created_at
		 FROM conversations ORDER BY updated_at DESC, id LIMIT $1 OFFSET $2`,
		limit, max(offset, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var out []ConversationRecord
	for rows.Next() {
		var c ConversationRecord
		var content []byte
		if err := rows.Scan(&c.ID, &c.Source, &c.Title, &c.MessageCount, &c.ExtractedAt, &content, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		c.Content = json.RawMessage(content)
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteConversation removes a stored conversation. Runs started from it keep
// their own copy in the artifacts table. It reports whether a row existed.
func (db *DB) DeleteConversation(ctx context.Context, id string) (bool, error) {
	result, err := db.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	return result.RowsAffected() > 0, nil
}
