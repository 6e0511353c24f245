package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/context-crystal/internal/db"
	"github.com/jonathan/context-crystal/internal/ingestion"
	"github.com/jonathan/context-crystal/internal/pipeline"
	"github.com/jonathan/context-crystal/internal/types"
)

// heartbeatInterval keeps idle event streams open through proxies
const heartbeatInterval = 15 * time.Second

// runView is a run status with its coarse projection
type runView struct {
	types.PipelineStatus
	Status types.ProcessingStatus `json:"status"`
}

func viewOf(status types.PipelineStatus) runView {
	return runView{PipelineStatus: status, Status: pipeline.Project(status.Stage)}
}

// viewOfRecord converts a stored run
func viewOfRecord(run *db.Run) runView {
	status := types.PipelineStatus{
		ID:             run.ID.String(),
		ConversationID: run.ConversationID,
		Stage:          types.Stage(run.Stage),
		Progress:       run.Progress,
		CurrentStep:    run.CurrentStep,
		Error:          run.ErrorMessage,
		StartedAt:      run.StartedAt,
		CompletedAt:    run.CompletedAt,
	}
	if len(run.Metrics) > 0 {
		var m types.PipelineMetrics
		if err := json.Unmarshal(run.Metrics, &m); err == nil {
			status.Metrics = &m
		}
	}
	return runView{PipelineStatus: status, Status: types.ProcessingStatus(run.Status)}
}

// resultResponse carries the prompt of a completed run, in the clear or sealed
type resultResponse struct {
	RunID    string                 `json:"run_id"`
	Prompt   *types.OptimizedPrompt `json:"prompt,omitempty"`
	Rendered string                 `json:"rendered,omitempty"`
	Sealed   string                 `json:"sealed,omitempty"`
}

// extractResponse is the outcome of POST /api/extract
type extractResponse struct {
	Conversations []*types.Conversation `json:"conversations"`
	Metadata      *ingestion.Metadata   `json:"metadata"`
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	active := 0
	for _, st := range s.engine.ListRuns() {
		if !st.Terminal() {
			active++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"active_runs": active,
		"persistence": s.history != nil,
		"sealing":     s.sealer != nil,
	})
}

// handleExtract imports conversations from an export payload or a share URL
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req types.ExtractRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.fail(w, err)
		return
	}

	var res *ingestion.Result
	var err error
	if req.URL != "" {
		if req.Refresh {
			s.fetcher.InvalidateCache(req.URL)
		}
		res, err = ingestion.FromURL(r.Context(), req.URL, ingestion.URLOptions{
			Fetcher:    s.fetcher,
			UseBrowser: s.useBrowser,
			Verbose:    s.verbose,
			Source:     req.Source,
		})
	} else {
		var format ingestion.Format
		if format, err = ingestion.ParseFormat(req.Format); err != nil {
			s.fail(w, &ErrValidation{Field: "format", Message: err.Error()})
			return
		}
		res, err = ingestion.Import(r.Context(), "", []byte(req.Content), ingestion.Options{
			Source: req.Source,
			Client: s.llmClient,
			Format: format,
		})
	}
	if err != nil {
		s.fail(w, err)
		return
	}

	if s.history != nil {
		for _, conv := range res.Conversations {
			if err := s.history.SaveConversation(r.Context(), conv); err != nil {
				s.logger.Printf("Failed to save conversation %s: %v", conv.ID, err)
			}
		}
	}

	writeJSON(w, http.StatusOK, extractResponse{Conversations: res.Conversations, Metadata: res.Metadata})
}

// handleListConversations pages through stored conversations, newest first.
// ?offset (or its alias ?skip) skips that many conversations.
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.fail(w, ErrHistoryDisabled)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, err)
		return
	}
	skip := "offset"
	if q := r.URL.Query(); !q.Has("offset") && q.Has("skip") {
		skip = "skip"
	}
	offset, err := queryInt(r, skip)
	if err != nil {
		s.fail(w, err)
		return
	}
	records, err := s.history.ListConversations(r.Context(), limit, offset)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": records,
		"count":         len(records),
		"offset":        offset,
	})
}

// handleGetConversation returns one stored conversation
func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.fail(w, ErrHistoryDisabled)
		return
	}
	conv, err := s.history.GetConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// handleDeleteConversation removes a stored conversation
func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.fail(w, ErrHistoryDisabled)
		return
	}
	id := r.PathValue("id")
	deleted, err := s.history.DeleteConversation(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": id,
		"message":         "conversation deleted",
	})
}

// handleCompressConversation starts a run over a stored conversation. The
// body, when present, holds the run's CompressionOptions.
func (s *Server) handleCompressConversation(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.fail(w, ErrHistoryDisabled)
		return
	}

	var opts types.CompressionOptions
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		s.fail(w, &ErrValidation{Field: "body", Message: err.Error()})
		return
	}
	if err := opts.Validate(); err != nil {
		s.fail(w, err)
		return
	}

	conv, err := s.history.GetConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	s.startRun(w, r, conv, opts)
}

// handleStartRun starts a pipeline run and returns immediately
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req types.StartRunRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.fail(w, err)
		return
	}

	conv := req.Conversation
	if req.Sealed != "" {
		if s.sealer == nil {
			s.fail(w, ErrSealedDisabled)
			return
		}
		conv = &types.Conversation{}
		if err := s.sealer.OpenJSON(req.Sealed, conv); err != nil {
			s.fail(w, err)
			return
		}
		if err := conv.Validate(); err != nil {
			s.fail(w, err)
			return
		}
	}

	s.startRun(w, r, conv, req.Options)
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request, conv *types.Conversation, opts types.CompressionOptions) {
	runID, err := s.engine.StartPipelineWithOptions(r.Context(), conv, opts)
	if err != nil {
		s.fail(w, err)
		return
	}

	w.Header().Set("Location", "/api/runs/"+runID)
	writeJSON(w, http.StatusAccepted, types.StartRunResponse{
		RunID:   runID,
		Status:  string(types.ProcessingPending),
		Message: fmt.Sprintf("pipeline started for conversation %s", conv.ID),
	})
}

// handleListRuns lists runs tracked by the engine, or stored runs with ?source=db
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, err)
		return
	}
	status := types.ProcessingStatus(q.Get("status"))
	conversationID := q.Get("conversation_id")

	var runs []runView
	if q.Get("source") == "db" {
		if s.history == nil {
			s.fail(w, ErrHistoryDisabled)
			return
		}
		records, err := s.history.ListRuns(r.Context(), db.RunFilters{
			ConversationID: conversationID,
			Status:         string(status),
			Limit:          limit,
		})
		if err != nil {
			s.fail(w, err)
			return
		}
		runs = make([]runView, 0, len(records))
		for i := range records {
			runs = append(runs, viewOfRecord(&records[i]))
		}
	} else {
		runs = make([]runView, 0)
		for _, st := range s.engine.ListRuns() {
			v := viewOf(st)
			if status != "" && v.Status != status {
				continue
			}
			if conversationID != "" && st.ConversationID != conversationID {
				continue
			}
			runs = append(runs, v)
			if limit > 0 && len(runs) == limit {
				break
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// handleGetRun returns the status of a run, falling back to stored runs
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	status, err := s.engine.GetStatus(id)
	if err == nil {
		writeJSON(w, http.StatusOK, viewOf(status))
		return
	}

	run, herr := s.storedRun(r, id)
	if herr != nil {
		s.fail(w, herr)
		return
	}
	if run == nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOfRecord(run))
}

// handleGetResult returns the optimized prompt of a completed run.
// With ?sealed=true the prompt is sealed with the transit key.
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sealed := r.URL.Query().Get("sealed") == "true"
	if sealed && s.sealer == nil {
		s.fail(w, ErrSealedDisabled)
		return
	}

	prompt, err := s.engine.GetResult(id)
	var notFound *pipeline.RunNotFoundError
	if errors.As(err, &notFound) {
		prompt, err = s.storedResult(r, id, err)
	}
	if err != nil {
		s.fail(w, err)
		return
	}

	resp := resultResponse{RunID: id}
	if sealed {
		blob, err := s.sealer.SealJSON(prompt)
		if err != nil {
			s.fail(w, err)
			return
		}
		resp.Sealed = blob
	} else {
		resp.Prompt = prompt
		resp.Rendered = prompt.Render()
	}
	writeJSON(w, http.StatusOK, resp)
}

// storedResult looks up the prompt of a run the engine no longer tracks.
// notFound is returned when there is no stored run either.
func (s *Server) storedResult(r *http.Request, id string, notFound error) (*types.OptimizedPrompt, error) {
	run, err := s.storedRun(r, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, notFound
	}

	switch types.Stage(run.Stage) {
	case types.StageCompleted:
		prompt, err := s.history.GetOptimizedPrompt(r.Context(), run.ID, pipeline.ArtifactOptimizedPrompt)
		if err != nil {
			return nil, err
		}
		if prompt == nil {
			return nil, fmt.Errorf("run %s completed but its prompt was not stored", id)
		}
		return prompt, nil
	case types.StageFailed:
		return nil, &pipeline.RunFailedError{RunID: id, Stage: types.StageFailed, Cause: errors.New(run.ErrorMessage)}
	default:
		// interrupted by a restart before reaching a terminal stage
		return nil, &pipeline.NotReadyError{RunID: id, Stage: types.Stage(run.Stage)}
	}
}

// storedRun returns the stored run with the given id, or nil when there is
// no database or no such run.
func (s *Server) storedRun(r *http.Request, id string) (*db.Run, error) {
	if s.history == nil {
		return nil, nil
	}
	runID, err := uuid.Parse(id)
	if err != nil {
		return nil, nil
	}
	return s.history.GetRun(r.Context(), runID)
}

// handleRunStages lists the stage transitions stored for a run
func (s *Server) handleRunStages(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.fail(w, ErrHistoryDisabled)
		return
	}
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.fail(w, &pipeline.RunNotFoundError{RunID: r.PathValue("id")})
		return
	}
	stages, err := s.history.ListRunStages(r.Context(), runID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "stages": stages})
}

// handleEvents streams progress events of a run until it is terminal
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	events, release, err := s.engine.Subscribe(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	defer release()

	stream, err := openRunStream(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if err := stream.keepAlive(); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				if status, err := s.engine.GetStatus(id); err == nil {
					if status.Stage == types.StageFailed {
						_ = stream.fail(status.Error)
					}
					_ = stream.send("complete", viewOf(status))
				}
				return
			}
			if err := stream.send("progress", ev); err != nil {
				return
			}
		}
	}
}

// handleCancelRun requests cooperative cancellation of a run, or deletes a
// finished run from history when purge=true
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if r.URL.Query().Get("purge") == "true" {
		s.purgeRun(w, r, id)
		return
	}
	if err := s.engine.CancelPipeline(id); err != nil {
		s.fail(w, err)
		return
	}

	status, err := s.engine.GetStatus(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	message := "cancellation requested"
	if status.Terminal() {
		message = "run already finished"
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id":  id,
		"stage":   status.Stage,
		"message": message,
	})
}

// purgeRun deletes a terminal run and its artifacts from history
func (s *Server) purgeRun(w http.ResponseWriter, r *http.Request, id string) {
	if s.history == nil {
		s.fail(w, ErrHistoryDisabled)
		return
	}
	if status, err := s.engine.GetStatus(id); err == nil && !status.Terminal() {
		s.fail(w, &pipeline.NotReadyError{RunID: id, Stage: status.Stage})
		return
	}
	runID, err := uuid.Parse(id)
	if err != nil {
		s.fail(w, &pipeline.RunNotFoundError{RunID: id})
		return
	}
	stored, err := s.history.GetRun(r.Context(), runID)
	if err != nil {
		s.fail(w, err)
		return
	}
	if stored == nil {
		s.fail(w, &pipeline.RunNotFoundError{RunID: id})
		return
	}
	if err := s.history.DeleteRun(r.Context(), runID); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":  id,
		"message": "run deleted",
	})
}

// queryInt parses an optional non-negative integer query parameter
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &ErrValidation{Field: name, Message: "must be a non-negative integer"}
	}
	return n, nil
}
