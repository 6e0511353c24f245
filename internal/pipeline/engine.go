// Package pipeline orchestrates compression runs: it drives each run through
// the stage machine on its own goroutine and exposes snapshot reads.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/context-crystal/internal/compression"
	"github.com/jonathan/context-crystal/internal/extraction"
	"github.com/jonathan/context-crystal/internal/optimization"
	"github.com/jonathan/context-crystal/internal/tokens"
	"github.com/jonathan/context-crystal/internal/types"
	"github.com/jonathan/context-crystal/internal/verification"
)

// ProgressEvent represents a stage change of a run
type ProgressEvent struct {
	RunID    string                 `json:"run_id"`
	Stage    types.Stage            `json:"stage"`
	Status   types.ProcessingStatus `json:"status"`
	Progress float64                `json:"progress"`
	Step     string                 `json:"step"`
	Error    string                 `json:"error,omitempty"`
	Metrics  *types.PipelineMetrics `json:"metrics,omitempty"`
}

// ProgressCallback is called on every stage transition
type ProgressCallback func(event ProgressEvent)

// Config holds the engine-wide tunables
type Config struct {
	Extraction     extraction.Options
	Compression    compression.Config
	ApplyThreshold float64
	// StageTimeout bounds each work stage; 0 disables the deadline
	StageTimeout time.Duration
	// Model selects the pricing row used for estimated_cost
	Model   string
	Pricing *tokens.Pricing
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	return Config{
		Extraction:     extraction.DefaultOptions(),
		Compression:    compression.DefaultConfig(),
		ApplyThreshold: optimization.DefaultApplyThreshold,
		StageTimeout:   2 * time.Minute,
		Model:          "gemini-2.5-flash",
		Pricing:        tokens.DefaultPricing(),
	}
}

// Options holds the capabilities an Engine runs with. Nil fields select the
// deterministic defaults.
type Options struct {
	FactExtractor compression.FactExtractor
	Entailer      verification.Entailer
	Accountant    tokens.Accountant
	Store         Store
	Logger        *log.Logger
	OnProgress    ProgressCallback
}

// run is the engine-private state of one pipeline run
type run struct {
	status  types.PipelineStatus
	input   *types.Conversation
	options types.CompressionOptions
	cancel  context.CancelFunc
	done    chan struct{}
	result  *types.OptimizedPrompt
	err     error
	// failedAt is the stage the run was in when it failed
	failedAt types.Stage
	subs     []chan ProgressEvent
}

// Engine runs pipelines and tracks their status
type Engine struct {
	config     Config
	extractor  compression.FactExtractor
	verifier   *verification.Verifier
	optimizer  *optimization.Optimizer
	accountant tokens.Accountant
	store      Store
	logger     *log.Logger
	onProgress ProgressCallback
	now        func() time.Time

	mu   sync.RWMutex
	runs map[string]*run
}

// NewEngine creates an Engine
func NewEngine(config Config, opts Options) *Engine {
	if opts.Accountant == nil {
		opts.Accountant = tokens.NewHeuristic()
	}
	if opts.FactExtractor == nil {
		opts.FactExtractor = compression.NewMarkdownExtractor()
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags)
	}
	if config.Pricing == nil {
		config.Pricing = tokens.DefaultPricing()
	}
	return &Engine{
		config:     config,
		extractor:  opts.FactExtractor,
		verifier:   verification.New(opts.Entailer, config.Compression.Parallelism),
		optimizer:  optimization.New(opts.Accountant, config.ApplyThreshold),
		accountant: opts.Accountant,
		store:      opts.Store,
		logger:     opts.Logger,
		onProgress: opts.OnProgress,
		now:        time.Now,
		runs:       make(map[string]*run),
	}
}

// StartPipeline registers a run and starts it in the background
func (e *Engine) StartPipeline(ctx context.Context, conv *types.Conversation) (string, error) {
	return e.StartPipelineWithOptions(ctx, conv, types.CompressionOptions{})
}

// StartPipelineWithOptions is StartPipeline with per-run overrides
func (e *Engine) StartPipelineWithOptions(ctx context.Context, conv *types.Conversation, opts types.CompressionOptions) (string, error) {
	if conv == nil {
		return "", &extraction.ValidationError{Message: "conversation is required"}
	}

	id := uuid.NewString()
	r := &run{
		status: types.PipelineStatus{
			ID:             id,
			ConversationID: conv.ID,
			Stage:          types.StageInitializing,
			Progress:       StageRegistry[types.StageInitializing].Progress,
			CurrentStep:    Label(types.StageInitializing),
			StartedAt:      e.now(),
		},
		input:   conv.Clone(),
		options: opts,
		done:    make(chan struct{}),
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	submitted := r.status.Clone()

	e.mu.Lock()
	e.runs[id] = r
	e.mu.Unlock()

	e.logger.Printf("Starting run %s for conversation %s (%d messages)", id, conv.ID, len(conv.Messages))
	go e.execute(runCtx, id, r, submitted)
	return id, nil
}

// GetStatus returns a snapshot of a run's status
func (e *Engine) GetStatus(runID string) (types.PipelineStatus, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.runs[runID]
	if !ok {
		return types.PipelineStatus{}, &RunNotFoundError{RunID: runID}
	}
	return r.status.Clone(), nil
}

// ListRuns returns snapshots of every tracked run, newest first
func (e *Engine) ListRuns() []types.PipelineStatus {
	e.mu.RLock()
	out := make([]types.PipelineStatus, 0, len(e.runs))
	for _, r := range e.runs {
		out = append(out, r.status.Clone())
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// CancelPipeline requests cooperative cancellation. Terminal runs are left unchanged.
func (e *Engine) CancelPipeline(runID string) error {
	e.mu.RLock()
	r, ok := e.runs[runID]
	var terminal bool
	if ok {
		terminal = r.status.Terminal()
	}
	e.mu.RUnlock()
	if !ok {
		return &RunNotFoundError{RunID: runID}
	}
	if !terminal {
		e.logger.Printf("Cancelling run %s", runID)
		r.cancel()
	}
	return nil
}

// GetResult returns the optimized prompt of a completed run
func (e *Engine) GetResult(runID string) (*types.OptimizedPrompt, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.runs[runID]
	if !ok {
		return nil, &RunNotFoundError{RunID: runID}
	}
	switch r.status.Stage {
	case types.StageCompleted:
		out := *r.result
		return &out, nil
	case types.StageFailed:
		return nil, &RunFailedError{RunID: runID, Stage: r.failedAt, Cause: r.err}
	default:
		return nil, &NotReadyError{RunID: runID, Stage: r.status.Stage}
	}
}

// Wait blocks until the run reaches a terminal stage or ctx ends
func (e *Engine) Wait(ctx context.Context, runID string) (types.PipelineStatus, error) {
	e.mu.RLock()
	r, ok := e.runs[runID]
	e.mu.RUnlock()
	if !ok {
		return types.PipelineStatus{}, &RunNotFoundError{RunID: runID}
	}
	select {
	case <-r.done:
		return e.GetStatus(runID)
	case <-ctx.Done():
		return types.PipelineStatus{}, ctx.Err()
	}
}

// Subscribe returns a channel of progress events for a run and a function
// that releases it. The channel is closed once the run is terminal.
func (e *Engine) Subscribe(runID string) (<-chan ProgressEvent, func(), error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.runs[runID]
	if !ok {
		return nil, nil, &RunNotFoundError{RunID: runID}
	}

	ch := make(chan ProgressEvent, len(StageRegistry))
	ch <- eventFor(r.status)
	if r.status.Terminal() {
		close(ch)
		return ch, func() {}, nil
	}
	r.subs = append(r.subs, ch)

	var once sync.Once
	release := func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			for i, s := range r.subs {
				if s == ch {
					r.subs = append(r.subs[:i], r.subs[i+1:]...)
					close(ch)
					return
				}
			}
		})
	}
	return ch, release, nil
}

// Prune forgets terminal runs that completed before the cutoff. Stores
// that keep records in memory drop them as well.
func (e *Engine) Prune(olderThan time.Duration) int {
	cutoff := e.now().Add(-olderThan)
	e.mu.Lock()
	defer e.mu.Unlock()
	deleter, _ := e.store.(interface{ Delete(runID string) })
	n := 0
	for id, r := range e.runs {
		if r.status.Terminal() && r.status.CompletedAt != nil && r.status.CompletedAt.Before(cutoff) {
			delete(e.runs, id)
			if deleter != nil {
				deleter.Delete(id)
			}
			n++
		}
	}
	return n
}

// stageResults carries artifacts between stages of one run
type stageResults struct {
	canonical    *types.Conversation
	compression  *types.CompressionResult
	verification *types.VerificationResult
	prompt       *types.OptimizedPrompt
}

// execute drives a run through every work stage. The submitted status and
// conversation are stored first, even for a run cancelled before it began.
func (e *Engine) execute(ctx context.Context, id string, r *run, submitted types.PipelineStatus) {
	defer close(r.done)
	defer r.cancel()

	e.persistStatus(context.WithoutCancel(ctx), id, submitted)
	e.persistArtifact(context.WithoutCancel(ctx), id, types.StageInitializing, ArtifactConversation, r.input)

	var res stageResults
	for _, stage := range WorkStages {
		if ctx.Err() != nil {
			e.fail(ctx, id, r, &CancelledError{Stage: e.stageOf(r)})
			return
		}
		if err := e.advance(ctx, id, r, stage); err != nil {
			e.fail(ctx, id, r, err)
			return
		}
		if err := e.runStage(ctx, stage, r, &res); err != nil {
			e.fail(ctx, id, r, err)
			return
		}
		e.persistArtifact(ctx, id, stage, artifactName(stage), artifactOf(stage, &res))
	}
	e.complete(ctx, id, r, &res)
}

// runStage runs one component under the stage deadline
func (e *Engine) runStage(ctx context.Context, stage types.Stage, r *run, res *stageResults) error {
	stageCtx := ctx
	if e.config.StageTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, e.config.StageTimeout)
		defer cancel()
	}

	var next stageResults
	errc := make(chan error, 1)
	go func() {
		next = *res
		errc <- e.stageFunc(stage, r, &next)(stageCtx)
	}()

	var err error
	select {
	case err = <-errc:
	case <-stageCtx.Done():
		err = stageCtx.Err()
	}

	switch {
	case ctx.Err() != nil:
		return &CancelledError{Stage: stage}
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		return &TimeoutError{Stage: stage, Timeout: e.config.StageTimeout}
	case err != nil:
		return err
	}
	*res = next
	return nil
}

// stageFunc returns the component call of a work stage
func (e *Engine) stageFunc(stage types.Stage, r *run, res *stageResults) func(context.Context) error {
	switch stage {
	case types.StageExtraction:
		return func(context.Context) error {
			opts := e.config.Extraction
			if r.options.MaxMessages != nil {
				opts.MaxMessages = r.options.MaxMessages
			}
			canonical, err := extraction.Extract(r.input, opts)
			res.canonical = canonical
			return err
		}
	case types.StageCompression:
		return func(ctx context.Context) error {
			comp, err := compression.New(e.extractor, e.accountant, e.compressionConfig(r.options)).Compress(ctx, res.canonical)
			res.compression = comp
			return err
		}
	case types.StageVerification:
		return func(ctx context.Context) error {
			ver, err := e.verifier.Verify(ctx, res.compression.CompressedContent, res.canonical)
			res.verification = ver
			return err
		}
	case types.StageOptimization:
		return func(context.Context) error {
			md := optimization.MetadataFor(res.canonical, r.options.ContinuationPrompt)
			prompt, err := e.optimizer.Assemble(res.compression, res.verification, md)
			res.prompt = prompt
			return err
		}
	}
	return func(context.Context) error { return fmt.Errorf("no component for stage %s", stage) }
}

// compressionConfig applies per-run overrides to the engine's compressor config
func (e *Engine) compressionConfig(opts types.CompressionOptions) compression.Config {
	cfg := e.config.Compression
	if opts.TargetRatio > 0 {
		cfg.TargetRatio = opts.TargetRatio
	}
	if opts.PreserveCodeBlocks != nil {
		cfg.PreserveCode = *opts.PreserveCodeBlocks
	}
	if opts.MaterialityThreshold != nil {
		cfg.MaterialityThreshold = *opts.MaterialityThreshold
	}
	return cfg
}

// advance moves a run to the next stage
func (e *Engine) advance(ctx context.Context, id string, r *run, to types.Stage) error {
	e.mu.Lock()
	if err := Transition(r.status.Stage, to); err != nil {
		e.mu.Unlock()
		return err
	}
	r.status.Stage = to
	r.status.Progress = StageRegistry[to].Progress
	r.status.CurrentStep = Label(to)
	snapshot := r.status.Clone()
	e.mu.Unlock()

	e.logger.Printf("Run %s: %s", id, snapshot.CurrentStep)
	e.publish(r, snapshot)
	e.persistStatus(ctx, id, snapshot)
	return nil
}

// fail moves a run to failed, recording the error verbatim
func (e *Engine) fail(ctx context.Context, id string, r *run, cause error) {
	e.mu.Lock()
	if Transition(r.status.Stage, types.StageFailed) != nil {
		e.mu.Unlock()
		return
	}
	completed := e.now()
	r.err = cause
	r.failedAt = r.status.Stage
	r.status.Error = cause.Error()
	r.status.Stage = types.StageFailed
	r.status.CurrentStep = Label(types.StageFailed)
	r.status.CompletedAt = &completed
	snapshot := r.status.Clone()
	e.mu.Unlock()

	e.logger.Printf("Run %s failed: %v", id, cause)
	e.publish(r, snapshot)
	e.persistStatus(context.WithoutCancel(ctx), id, snapshot)
}

// complete computes metrics and moves a run to completed
func (e *Engine) complete(ctx context.Context, id string, r *run, res *stageResults) {
	e.mu.Lock()
	if err := Transition(r.status.Stage, types.StageCompleted); err != nil {
		e.mu.Unlock()
		e.fail(ctx, id, r, err)
		return
	}
	completed := e.now()
	r.result = res.prompt
	r.status.Stage = types.StageCompleted
	r.status.Progress = StageRegistry[types.StageCompleted].Progress
	r.status.CurrentStep = Label(types.StageCompleted)
	r.status.CompletedAt = &completed
	r.status.Metrics = e.metrics(res, completed.Sub(r.status.StartedAt))
	snapshot := r.status.Clone()
	e.mu.Unlock()

	m := snapshot.Metrics
	e.logger.Printf("Run %s completed: %d -> %d tokens (ratio %.2f, grounding %.2f)",
		id, m.OriginalTokens, m.CompressedTokens, m.CompressionRatio, m.GroundingScore)
	if m.Degenerate {
		e.logger.Printf("Run %s is degenerate: %s", id, m.DegenerateReason)
	}
	e.publish(r, snapshot)
	e.persistStatus(ctx, id, snapshot)
}

// metrics derives PipelineMetrics from the stage results
func (e *Engine) metrics(res *stageResults, elapsed time.Duration) *types.PipelineMetrics {
	original := 0
	for _, msg := range res.canonical.Messages {
		original += e.accountant.Estimate(msg.Content)
	}
	compressed := res.prompt.TotalTokens
	rate := e.config.Pricing.RateFor(e.config.Model)

	m := &types.PipelineMetrics{
		OriginalTokens:          original,
		CompressedTokens:        compressed,
		CompressionRatio:        e.accountant.Ratio(compressed, original),
		InformationDensityRatio: tokens.Ratio(res.compression.FactsExtracted, compressed),
		GroundingScore:          res.verification.GroundingScore,
		EstimatedCost:           e.accountant.Cost(compressed, rate),
		TimeElapsed:             elapsed.Seconds(),
	}
	if savings := e.accountant.Cost(original, rate) - m.EstimatedCost; savings > 0 {
		m.EstimatedCostSavings = savings
	}
	if m.CompressionRatio > 1 {
		m.Degenerate = true
		m.DegenerateReason = fmt.Sprintf("optimized prompt (%d tokens) is larger than the conversation (%d tokens)", compressed, original)
	}
	return m
}

// publish notifies the callback and subscribers. Subscribers that fall
// behind miss intermediate events; terminal events close their channels.
func (e *Engine) publish(r *run, status types.PipelineStatus) {
	ev := eventFor(status)
	if e.onProgress != nil {
		e.onProgress(ev)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
		}
		if status.Terminal() {
			close(ch)
		}
	}
	if status.Terminal() {
		r.subs = nil
	}
}

func eventFor(status types.PipelineStatus) ProgressEvent {
	return ProgressEvent{
		RunID:    status.ID,
		Stage:    status.Stage,
		Status:   Project(status.Stage),
		Progress: status.Progress,
		Step:     status.CurrentStep,
		Error:    status.Error,
		Metrics:  status.Metrics,
	}
}

func (e *Engine) persistStatus(ctx context.Context, id string, status types.PipelineStatus) {
	rec := Record{Kind: RecordStatus, Stage: status.Stage, Status: &status, At: e.now()}
	if err := e.store.Put(ctx, id, rec); err != nil {
		e.logger.Printf("Run %s: failed to persist status: %v", id, err)
	}
}

func (e *Engine) persistArtifact(ctx context.Context, id string, stage types.Stage, name string, payload any) {
	rec := Record{Kind: RecordArtifact, Stage: stage, Name: name, Payload: payload, At: e.now()}
	if err := e.store.Put(ctx, id, rec); err != nil {
		e.logger.Printf("Run %s: failed to persist %s: %v", id, name, err)
	}
}

func (e *Engine) stageOf(r *run) types.Stage {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return r.status.Stage
}

func artifactName(stage types.Stage) string {
	switch stage {
	case types.StageExtraction:
		return ArtifactConversation
	case types.StageCompression:
		return ArtifactCompression
	case types.StageVerification:
		return ArtifactVerification
	default:
		return ArtifactOptimizedPrompt
	}
}

func artifactOf(stage types.Stage, res *stageResults) any {
	switch stage {
	case types.StageExtraction:
		return res.canonical
	case types.StageCompression:
		return res.compression
	case types.StageVerification:
		return res.verification
	default:
		return res.prompt
	}
}
