// Package config provides configuration loading and validation for the CLI and server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/jonathan/context-crystal/internal/compression"
	"github.com/jonathan/context-crystal/internal/extraction"
	"github.com/jonathan/context-crystal/internal/llm"
	"github.com/jonathan/context-crystal/internal/optimization"
	"github.com/jonathan/context-crystal/internal/pipeline"
	"github.com/jonathan/context-crystal/internal/tokens"
	"github.com/jonathan/context-crystal/internal/verification"
)

// Duration is a time.Duration written as a Go duration string ("90s", "2m")
type Duration time.Duration

// UnmarshalJSON accepts a duration string or a number of seconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return d.parse(s)
	}
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("invalid duration %s", string(data))
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// MarshalJSON writes the duration string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalYAML accepts a duration string
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.parse(value.Value)
}

func (d *Duration) parse(s string) error {
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// PipelineConfig holds the tunables of a pipeline run
type PipelineConfig struct {
	MaxMessages          int      `json:"max_messages,omitempty" yaml:"max_messages,omitempty"`
	IncludeMetadata      *bool    `json:"include_metadata,omitempty" yaml:"include_metadata,omitempty"`
	MaterialityThreshold float64  `json:"materiality_threshold,omitempty" yaml:"materiality_threshold,omitempty"`
	DedupeThreshold      float64  `json:"dedupe_threshold,omitempty" yaml:"dedupe_threshold,omitempty"`
	MaxFacts             int      `json:"max_facts,omitempty" yaml:"max_facts,omitempty"`
	SupportThreshold     float64  `json:"support_threshold,omitempty" yaml:"support_threshold,omitempty"`
	ApplyThreshold       *float64 `json:"apply_threshold,omitempty" yaml:"apply_threshold,omitempty"`
	StageTimeout         Duration `json:"stage_timeout,omitempty" yaml:"stage_timeout,omitempty"`
	Parallelism          int      `json:"parallelism,omitempty" yaml:"parallelism,omitempty"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr           string   `json:"addr,omitempty" yaml:"addr,omitempty"`
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
	// RateLimit is requests per second per client; Burst is the bucket size
	RateLimit float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
	Burst     int     `json:"burst,omitempty" yaml:"burst,omitempty"`
	// RetainRuns is how long terminal runs are kept before pruning
	RetainRuns Duration `json:"retain_runs,omitempty" yaml:"retain_runs,omitempty"`
	// PruneSchedule is a standard cron expression
	PruneSchedule string `json:"prune_schedule,omitempty" yaml:"prune_schedule,omitempty"`
	RequireAuth   bool   `json:"require_auth,omitempty" yaml:"require_auth,omitempty"`
}

// Config represents the configuration that can be loaded from a JSON or YAML file.
// All fields are optional; missing values use defaults, environment
// variables or CLI flags.
type Config struct {
	// LLM
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"` // gemini or anthropic
	Model    string `json:"model,omitempty" yaml:"model,omitempty"`       // pricing row and model override
	APIKey   string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	UseLLM   bool   `json:"use_llm,omitempty" yaml:"use_llm,omitempty"` // LLM fact extraction and entailment

	// InputRate overrides the USD price per million input tokens of Model
	InputRate float64 `json:"input_rate,omitempty" yaml:"input_rate,omitempty"`

	// Infrastructure
	DatabaseURL string `json:"database_url,omitempty" yaml:"database_url,omitempty"`
	TransitKey  string `json:"transit_key,omitempty" yaml:"transit_key,omitempty"`

	// Behavior
	UseBrowser bool `json:"use_browser,omitempty" yaml:"use_browser,omitempty"` // Use headless browser for share pages
	Verbose    bool `json:"verbose,omitempty" yaml:"verbose,omitempty"`         // Print detailed debug information

	Pipeline PipelineConfig `json:"pipeline,omitempty" yaml:"pipeline,omitempty"`
	Server   ServerConfig   `json:"server,omitempty" yaml:"server,omitempty"`
}

// Default returns the built-in configuration
func Default() Config {
	include := true
	apply := optimization.DefaultApplyThreshold
	return Config{
		Provider: string(llm.ProviderGemini),
		Model:    pipeline.DefaultConfig().Model,
		Pipeline: PipelineConfig{
			IncludeMetadata:      &include,
			MaterialityThreshold: compression.DefaultMaterialityThreshold,
			DedupeThreshold:      compression.DefaultDedupeThreshold,
			SupportThreshold:     verification.DefaultSupportThreshold,
			ApplyThreshold:       &apply,
			StageTimeout:         Duration(pipeline.DefaultConfig().StageTimeout),
			Parallelism:          compression.DefaultParallelism,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
			RateLimit:      5,
			Burst:          20,
			RetainRuns:     Duration(24 * time.Hour),
			PruneSchedule:  "@every 1h",
		},
	}
}

// LoadConfig loads configuration from a JSON or YAML file, chosen by extension.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

// ApplyEnv fills empty credentials and connection settings from the
// environment. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if c.APIKey == "" {
		switch llm.Provider(strings.ToLower(c.Provider)) {
		case llm.ProviderAnthropic:
			c.APIKey = getenv("ANTHROPIC_API_KEY")
		default:
			c.APIKey = getenv("GEMINI_API_KEY")
		}
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = getenv("DATABASE_URL")
	}
	if c.TransitKey == "" {
		c.TransitKey = getenv("CRYSTAL_TRANSIT_KEY")
	}
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields since those are handled
// by CLI flag validation after merging.
func (c *Config) Validate() error {
	if _, err := llm.ParseProvider(c.Provider); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	if c.InputRate < 0 {
		return fmt.Errorf("config error: 'input_rate' must be non-negative")
	}

	p := c.Pipeline
	if p.MaxMessages < 0 {
		return fmt.Errorf("config error: 'max_messages' must be non-negative")
	}
	if p.MaxFacts < 0 {
		return fmt.Errorf("config error: 'max_facts' must be non-negative")
	}
	if p.Parallelism < 0 {
		return fmt.Errorf("config error: 'parallelism' must be non-negative")
	}
	if p.StageTimeout < 0 {
		return fmt.Errorf("config error: 'stage_timeout' must be non-negative")
	}
	for name, v := range map[string]float64{
		"materiality_threshold": p.MaterialityThreshold,
		"dedupe_threshold":      p.DedupeThreshold,
		"support_threshold":     p.SupportThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("config error: '%s' must be between 0 and 1, got %v", name, v)
		}
	}
	if a := p.ApplyThreshold; a != nil && (*a < 0 || *a > 1) {
		return fmt.Errorf("config error: 'apply_threshold' must be between 0 and 1, got %v", *a)
	}

	s := c.Server
	if s.RateLimit < 0 || s.Burst < 0 {
		return fmt.Errorf("config error: rate limit values must be non-negative")
	}
	if s.PruneSchedule != "" {
		if _, err := cron.ParseStandard(s.PruneSchedule); err != nil {
			return fmt.Errorf("config error: invalid 'prune_schedule': %w", err)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with zero-valued fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.Provider == "" {
		result.Provider = defaults.Provider
	}
	if result.Model == "" {
		result.Model = defaults.Model
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.InputRate == 0 {
		result.InputRate = defaults.InputRate
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.TransitKey == "" {
		result.TransitKey = defaults.TransitKey
	}

	// Pipeline: use default if zero
	p, d := &result.Pipeline, defaults.Pipeline
	if p.MaxMessages == 0 {
		p.MaxMessages = d.MaxMessages
	}
	if p.IncludeMetadata == nil {
		p.IncludeMetadata = d.IncludeMetadata
	}
	if p.MaterialityThreshold == 0 {
		p.MaterialityThreshold = d.MaterialityThreshold
	}
	if p.DedupeThreshold == 0 {
		p.DedupeThreshold = d.DedupeThreshold
	}
	if p.MaxFacts == 0 {
		p.MaxFacts = d.MaxFacts
	}
	if p.SupportThreshold == 0 {
		p.SupportThreshold = d.SupportThreshold
	}
	if p.ApplyThreshold == nil {
		p.ApplyThreshold = d.ApplyThreshold
	}
	if p.StageTimeout == 0 {
		p.StageTimeout = d.StageTimeout
	}
	if p.Parallelism == 0 {
		p.Parallelism = d.Parallelism
	}

	s, ds := &result.Server, defaults.Server
	if s.Addr == "" {
		s.Addr = ds.Addr
	}
	if len(s.AllowedOrigins) == 0 {
		s.AllowedOrigins = ds.AllowedOrigins
	}
	if s.RateLimit == 0 {
		s.RateLimit = ds.RateLimit
	}
	if s.Burst == 0 {
		s.Burst = ds.Burst
	}
	if s.RetainRuns == 0 {
		s.RetainRuns = ds.RetainRuns
	}
	if s.PruneSchedule == "" {
		s.PruneSchedule = ds.PruneSchedule
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// EngineConfig maps the pipeline tunables onto an engine configuration
func (c *Config) EngineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	p := c.Pipeline

	if p.IncludeMetadata != nil {
		cfg.Extraction.IncludeMetadata = *p.IncludeMetadata
	}
	if p.MaxMessages > 0 {
		n := p.MaxMessages
		cfg.Extraction.MaxMessages = &n
	}
	if p.MaterialityThreshold > 0 {
		cfg.Compression.MaterialityThreshold = p.MaterialityThreshold
	}
	if p.DedupeThreshold > 0 {
		cfg.Compression.DedupeThreshold = p.DedupeThreshold
	}
	if p.Parallelism > 0 {
		cfg.Compression.Parallelism = p.Parallelism
	}
	cfg.Compression.MaxFacts = p.MaxFacts
	if p.ApplyThreshold != nil {
		cfg.ApplyThreshold = *p.ApplyThreshold
	}
	if p.StageTimeout > 0 {
		cfg.StageTimeout = time.Duration(p.StageTimeout)
	}
	if c.Model != "" {
		cfg.Model = c.Model
	}
	if c.InputRate > 0 {
		cfg.Pricing = tokens.DefaultPricing().WithRate(cfg.Model, c.InputRate)
	}
	return cfg
}

// ExtractionOptions returns the extraction options of the pipeline tunables
func (c *Config) ExtractionOptions() extraction.Options {
	return c.EngineConfig().Extraction
}
