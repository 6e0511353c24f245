package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/context-crystal/internal/config"
	"github.com/jonathan/context-crystal/internal/db"
	"github.com/jonathan/context-crystal/internal/pipeline"
	"github.com/jonathan/context-crystal/internal/types"
	"github.com/jonathan/context-crystal/internal/verification"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func testConversation() *types.Conversation {
	return &types.Conversation{
		ID:     "conv-http",
		Source: types.SourceClaude,
		Messages: []types.Message{
			{Role: types.RoleUser, Content: "I am writing a CLI in Go. It must run on Linux and macOS."},
			{Role: types.RoleAssistant, Content: "Use cobra for the commands and build with goreleaser."},
			{Role: types.RoleUser, Content: "The binary must stay under 20 MB."},
			{Role: types.RoleAssistant, Content: "Strip symbols with -ldflags to keep the binary small."},
		},
	}
}

func newTestEngine(opts pipeline.Options) *pipeline.Engine {
	opts.Logger = quietLogger()
	return pipeline.NewEngine(pipeline.DefaultConfig(), opts)
}

// newTestServer builds a server around a deterministic engine. mutate may
// adjust the options before construction.
func newTestServer(t *testing.T, mutate func(*Options)) *Server {
	t.Helper()
	opts := Options{
		Engine: newTestEngine(pipeline.Options{}),
		Logger: quietLogger(),
		Config: config.ServerConfig{RateLimit: 100, Burst: 100},
	}
	if mutate != nil {
		mutate(&opts)
	}
	s, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(s.rateLimiter.Stop)
	return s
}

func doRequest(t *testing.T, s *Server, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func waitRun(t *testing.T, e *pipeline.Engine, id string) types.PipelineStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status, err := e.Wait(ctx, id)
	require.NoError(t, err)
	return status
}

// blockingEntailer holds every claim check until its context ends
type blockingEntailer struct {
	entered chan struct{}
	once    sync.Once
}

func newBlockingEntailer() *blockingEntailer {
	return &blockingEntailer{entered: make(chan struct{})}
}

func (b *blockingEntailer) Entail(ctx context.Context, _ string, _ []verification.Evidence) (verification.Match, error) {
	b.once.Do(func() { close(b.entered) })
	<-ctx.Done()
	return verification.Match{}, ctx.Err()
}

// fakeHistory is an in-memory History
type fakeHistory struct {
	mu            sync.Mutex
	runs          map[uuid.UUID]*db.Run
	stages        map[uuid.UUID][]db.RunStage
	prompts       map[uuid.UUID]*types.OptimizedPrompt
	conversations map[string]*types.Conversation
	prunedBefore  time.Time
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{
		runs:          make(map[uuid.UUID]*db.Run),
		stages:        make(map[uuid.UUID][]db.RunStage),
		prompts:       make(map[uuid.UUID]*types.OptimizedPrompt),
		conversations: make(map[string]*types.Conversation),
	}
}

func (h *fakeHistory) GetRun(_ context.Context, runID uuid.UUID) (*db.Run, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs[runID], nil
}

func (h *fakeHistory) ListRuns(_ context.Context, filters db.RunFilters) ([]db.Run, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []db.Run
	for _, r := range h.runs {
		if filters.Status != "" && r.Status != filters.Status {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (h *fakeHistory) ListRunStages(_ context.Context, runID uuid.UUID) ([]db.RunStage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stages[runID], nil
}

func (h *fakeHistory) GetOptimizedPrompt(_ context.Context, runID uuid.UUID, _ string) (*types.OptimizedPrompt, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.prompts[runID], nil
}

func (h *fakeHistory) SaveConversation(_ context.Context, conv *types.Conversation) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conversations[conv.ID] = conv
	return nil
}

func (h *fakeHistory) GetConversation(_ context.Context, id string) (*types.Conversation, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conversations[id], nil
}

// ListConversations orders by id so paging is stable
func (h *fakeHistory) ListConversations(_ context.Context, limit, offset int) ([]db.ConversationRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := []db.ConversationRecord{}
	for _, c := range h.conversations {
		out = append(out, db.ConversationRecord{ID: c.ID, Source: string(c.Source), MessageCount: len(c.Messages)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	out = out[min(offset, len(out)):]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (h *fakeHistory) DeleteConversation(_ context.Context, id string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.conversations[id]
	delete(h.conversations, id)
	return ok, nil
}

func (h *fakeHistory) PruneRuns(_ context.Context, before time.Time) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prunedBefore = before
	var n int64
	for id, r := range h.runs {
		if r.CompletedAt != nil && r.CompletedAt.Before(before) {
			delete(h.runs, id)
			n++
		}
	}
	return n, nil
}

func (h *fakeHistory) DeleteRun(_ context.Context, runID uuid.UUID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.runs[runID]; !ok {
		return fmt.Errorf("run not found: %s", runID)
	}
	delete(h.runs, runID)
	delete(h.stages, runID)
	delete(h.prompts, runID)
	return nil
}

var _ History = (*fakeHistory)(nil)
var _ History = (*db.DB)(nil)
