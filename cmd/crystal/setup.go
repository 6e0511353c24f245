package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/jonathan/context-crystal/internal/compression"
	"github.com/jonathan/context-crystal/internal/config"
	"github.com/jonathan/context-crystal/internal/llm"
	"github.com/jonathan/context-crystal/internal/pipeline"
	"github.com/jonathan/context-crystal/internal/transit"
	"github.com/jonathan/context-crystal/internal/verification"
)

// loadConfig reads the config file, fills defaults and applies the environment.
// Flag overrides are applied by the individual commands afterwards.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	var cfg config.Config
	if flags.configPath != "" {
		loaded, err := config.LoadConfig(flags.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if err := loaded.Validate(); err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	if flags.verbose {
		cfg.Verbose = true
	}

	merged := cfg.MergeWithDefaults(config.Default())
	merged.ApplyEnv(os.Getenv)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

// newLLMClient returns a client only when LLM-backed stages are enabled
func newLLMClient(ctx context.Context, cfg *config.Config) (llm.Client, error) {
	if !cfg.UseLLM {
		return nil, nil
	}
	provider, err := llm.ParseProvider(strings.ToLower(cfg.Provider))
	if err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("use_llm requires an API key (GEMINI_API_KEY or ANTHROPIC_API_KEY)")
	}
	llmCfg := llm.ConfigFor(provider)
	if modelFor(provider, cfg.Model) {
		llmCfg = llmCfg.WithModel(llm.TierStandard, cfg.Model)
	}
	client, err := llm.NewClient(ctx, llmCfg, cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return client, nil
}

// modelFor reports whether model names a model served by provider. The
// configured model defaults to a Gemini pricing row, so it only overrides
// the client when the families agree.
func modelFor(provider llm.Provider, model string) bool {
	if model == "" {
		return false
	}
	isClaude := strings.HasPrefix(strings.ToLower(model), "claude")
	return isClaude == (provider == llm.ProviderAnthropic)
}

// newEngine wires the pipeline capabilities selected by cfg
func newEngine(cfg *config.Config, client llm.Client, store pipeline.Store, logger *log.Logger, onProgress pipeline.ProgressCallback) *pipeline.Engine {
	opts := pipeline.Options{
		Store:      store,
		Logger:     logger,
		OnProgress: onProgress,
	}
	if client != nil {
		opts.FactExtractor = compression.NewLLMFactExtractor(client, llm.TierStandard)
		opts.Entailer = verification.NewLLMEntailer(client, llm.TierStandard)
	} else {
		opts.Entailer = &verification.LexicalEntailer{SupportThreshold: cfg.Pipeline.SupportThreshold}
	}
	return pipeline.NewEngine(cfg.EngineConfig(), opts)
}

// newSealer returns nil when no transit key is configured
func newSealer(cfg *config.Config) (*transit.Sealer, error) {
	if cfg.TransitKey == "" {
		return nil, nil
	}
	return transit.NewSealer(cfg.TransitKey)
}

// requireSealer is newSealer for commands that cannot run without one
func requireSealer(cfg *config.Config) (*transit.Sealer, error) {
	sealer, err := newSealer(cfg)
	if err != nil {
		return nil, err
	}
	if sealer == nil {
		return nil, fmt.Errorf("CRYSTAL_TRANSIT_KEY environment variable or transit_key config is required")
	}
	return sealer, nil
}

// pipelineLogger writes to stderr in verbose mode and is silent otherwise
func pipelineLogger(verbose bool) *log.Logger {
	if !verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, "[PIPELINE] ", log.LstdFlags)
}

// readInput reads a file, or stdin when path is "-"
func readInput(cmd interface{ InOrStdin() io.Reader }, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %w", err)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}
