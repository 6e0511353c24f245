package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/jonathan/context-crystal/internal/config"
	"github.com/jonathan/context-crystal/internal/db"
	"github.com/jonathan/context-crystal/internal/fetch"
	"github.com/jonathan/context-crystal/internal/llm"
	"github.com/jonathan/context-crystal/internal/pipeline"
	"github.com/jonathan/context-crystal/internal/server/middleware"
	"github.com/jonathan/context-crystal/internal/server/ratelimit"
	"github.com/jonathan/context-crystal/internal/transit"
	"github.com/jonathan/context-crystal/internal/types"
)

// maxBodyBytes caps request bodies; exports of long conversations are large
const maxBodyBytes = 32 << 20

// History serves runs and conversations that outlive the engine's memory.
// *db.DB implements it.
type History interface {
	GetRun(ctx context.Context, runID uuid.UUID) (*db.Run, error)
	ListRuns(ctx context.Context, filters db.RunFilters) ([]db.Run, error)
	ListRunStages(ctx context.Context, runID uuid.UUID) ([]db.RunStage, error)
	GetOptimizedPrompt(ctx context.Context, runID uuid.UUID, name string) (*types.OptimizedPrompt, error)
	SaveConversation(ctx context.Context, conv *types.Conversation) error
	GetConversation(ctx context.Context, id string) (*types.Conversation, error)
	ListConversations(ctx context.Context, limit, offset int) ([]db.ConversationRecord, error)
	DeleteConversation(ctx context.Context, id string) (bool, error)
	PruneRuns(ctx context.Context, before time.Time) (int64, error)
	DeleteRun(ctx context.Context, runID uuid.UUID) error
}

// Options holds the dependencies of a Server. Engine is required.
type Options struct {
	Engine  *pipeline.Engine
	History History // nil without a database
	Fetcher *fetch.CachedFetcher
	Sealer  *transit.Sealer // nil disables sealed payloads
	LLM     llm.Client      // segments unlabelled transcripts when set
	JWT     *JWTService     // nil disables token exchange
	APIKeys *config.APIKeyConfig
	Config  config.ServerConfig

	UseBrowser bool
	Verbose    bool
	Logger     *log.Logger
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	handler     http.Handler
	engine      *pipeline.Engine
	history     History
	fetcher     *fetch.CachedFetcher
	sealer      *transit.Sealer
	llmClient   llm.Client
	rateLimiter *ratelimit.Limiter
	authHandler *AuthHandler
	scheduler   *cron.Cron
	config      config.ServerConfig
	useBrowser  bool
	verbose     bool
	logger      *log.Logger
	now         func() time.Time
}

// New creates a new server instance
func New(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("pipeline engine is required")
	}
	if opts.Config.RequireAuth && opts.JWT == nil {
		return nil, fmt.Errorf("authentication is required but JWT is not configured")
	}
	if opts.Fetcher == nil {
		opts.Fetcher = fetch.NewCachedFetcher(nil)
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[SERVER] ", log.LstdFlags)
	}

	s := &Server{
		engine:     opts.Engine,
		history:    opts.History,
		fetcher:    opts.Fetcher,
		sealer:     opts.Sealer,
		llmClient:  opts.LLM,
		config:     opts.Config,
		useBrowser: opts.UseBrowser,
		verbose:    opts.Verbose,
		logger:     opts.Logger,
		now:        time.Now,
	}

	limits := ratelimit.NewConfig(opts.Config.RateLimit, opts.Config.Burst)
	limits.ApplyEnv(os.Getenv)
	s.rateLimiter = ratelimit.NewLimiter(limits)

	s.authHandler = NewAuthHandler(opts.APIKeys, opts.JWT)

	s.scheduler = cron.New()
	if opts.Config.PruneSchedule != "" {
		if _, err := s.scheduler.AddFunc(opts.Config.PruneSchedule, s.prune); err != nil {
			return nil, fmt.Errorf("invalid prune schedule %q: %w", opts.Config.PruneSchedule, err)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/token", s.authHandler.IssueToken)

	mux.HandleFunc("POST /api/extract", s.handleExtract)
	mux.HandleFunc("GET /api/conversations", s.handleListConversations)
	mux.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", s.handleDeleteConversation)
	mux.HandleFunc("POST /api/conversations/{id}/compress", s.handleCompressConversation)

	mux.HandleFunc("POST /api/runs", s.handleStartRun)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/runs/{id}/result", s.handleGetResult)
	mux.HandleFunc("GET /api/runs/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /api/runs/{id}/stages", s.handleRunStages)
	mux.HandleFunc("DELETE /api/runs/{id}", s.handleCancelRun)

	var h http.Handler = mux
	if opts.Config.RequireAuth {
		h = middleware.AuthMiddleware(opts.JWT.AsTokenValidator(), "/health", "/api/token")(h)
	}
	s.handler = s.withLogging(s.withCORS(s.withRateLimit(h)))

	addr := opts.Config.Addr
	if addr == "" {
		addr = ":8080"
	}
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.handler,
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: event streams stay open for the length of a run
		IdleTimeout: 60 * time.Second,
	}

	return s, nil
}

// Handler returns the root handler including middleware
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is cancelled or the process receives SIGINT/SIGTERM,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s.scheduler.Start()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		s.shutdownBackground()
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	s.shutdownBackground()
	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Println("Server stopped")
	return nil
}

// shutdownBackground stops the prune scheduler and the limiter's cleanup goroutine
func (s *Server) shutdownBackground() {
	<-s.scheduler.Stop().Done()
	s.rateLimiter.Stop()
}

// prune forgets terminal runs older than the retention window and evicts
// stale cached pages.
func (s *Server) prune() {
	retain := time.Duration(s.config.RetainRuns)
	if retain <= 0 {
		return
	}

	runs := s.engine.Prune(retain)
	pages := s.fetcher.Evict()

	var stored int64
	if s.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		var err error
		stored, err = s.history.PruneRuns(ctx, s.now().Add(-retain))
		if err != nil {
			s.logger.Printf("Failed to prune stored runs: %v", err)
		}
	}

	if runs > 0 || pages > 0 || stored > 0 {
		s.logger.Printf("Pruned %d runs from memory, %d from the database, %d cached pages", runs, stored, pages)
	}
}

// withCORS adds CORS headers for the configured origins
func (s *Server) withCORS(next http.Handler) http.Handler {
	allowAll := len(s.config.AllowedOrigins) == 0
	allowed := make(map[string]bool, len(s.config.AllowedOrigins))
	for _, o := range s.config.AllowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(extractClientID(r), r.URL.Path, r.Method)
		setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if s.verbose {
			s.logger.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		}
		next.ServeHTTP(w, r)
		s.logger.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// extractClientID extracts the client identifier from the request.
// This uses the IP address from RemoteAddr; forwarded headers are not trusted.
func extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
	}
	if !info.ResetTime.IsZero() {
		response["reset_at"] = info.ResetTime.Format(time.RFC3339)
	}

	if info.RetryAfter > 0 {
		secs := int(info.RetryAfter.Round(time.Second).Seconds())
		if secs < 1 {
			secs = 1
		}
		response["retry_after"] = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	s.logger.Printf("[rate-limit] Rate limit exceeded: Limit=%d Remaining=%d", info.Limit, info.Remaining)
	writeJSON(w, http.StatusTooManyRequests, response)
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[SERVER] Error encoding JSON response: %v", err)
	}
}

// writeError writes an error JSON response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// fail writes err with the status HTTPStatus maps it to
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Printf("Request failed: %v", err)
	}
	writeError(w, status, err.Error())
}

// decodeJSON reads a size-capped JSON request body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &ErrValidation{Field: "body", Message: err.Error()}
	}
	return nil
}
