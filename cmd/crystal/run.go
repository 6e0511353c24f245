package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jonathan/context-crystal/internal/config"
	"github.com/jonathan/context-crystal/internal/ingestion"
	"github.com/jonathan/context-crystal/internal/llm"
	"github.com/jonathan/context-crystal/internal/observability"
	"github.com/jonathan/context-crystal/internal/pipeline"
	"github.com/jonathan/context-crystal/internal/schemas"
	"github.com/jonathan/context-crystal/internal/types"
	"github.com/spf13/cobra"
)

// runOptions holds the flags of the run command
type runOptions struct {
	format       string
	source       string
	index        int
	sealed       bool
	asJSON       bool
	output       string
	timeout      time.Duration
	targetRatio  float64
	continuation string
	maxMessages  int
	preserveCode bool
	useLLM       bool
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Compress a conversation end-to-end",
		Long: `Imports a conversation (ChatGPT export, conversation JSON, pasted transcript or
saved share page), runs extraction -> compression -> verification -> optimization
and prints the continuation prompt. Use "-" to read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("llm") {
				cfg.UseLLM = opts.useLLM
			}
			copts := types.CompressionOptions{
				TargetRatio:        opts.targetRatio,
				ContinuationPrompt: opts.continuation,
			}
			if cmd.Flags().Changed("preserve-code") {
				copts.PreserveCodeBlocks = &opts.preserveCode
			}
			if opts.maxMessages > 0 {
				copts.MaxMessages = &opts.maxMessages
			}
			if err := copts.Validate(); err != nil {
				return err
			}

			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			return runCompress(cmd.Context(), cmd.OutOrStdout(), cfg, args[0], data, opts, copts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.format, "format", "", "Input format: chatgpt, json, transcript or html (default: detect)")
	f.StringVar(&opts.source, "source", "", "Source label for transcripts and share pages (e.g. claude, gemini)")
	f.IntVar(&opts.index, "index", 0, "Conversation to compress when the input holds several")
	f.BoolVar(&opts.sealed, "sealed", false, "Input is a sealed blob produced by 'crystal seal'")
	f.BoolVar(&opts.asJSON, "json", false, "Print the optimized prompt as JSON")
	f.StringVarP(&opts.output, "out", "o", "", "Write the result to a file instead of stdout")
	f.DurationVar(&opts.timeout, "timeout", 10*time.Minute, "Maximum time to wait for the run")
	f.Float64Var(&opts.targetRatio, "target-ratio", 0, "Target compressed/original token ratio (0.1-0.95)")
	f.StringVar(&opts.continuation, "continuation", "", "What the next session should continue with")
	f.IntVar(&opts.maxMessages, "max-messages", 0, "Keep only the most recent N messages")
	f.BoolVar(&opts.preserveCode, "preserve-code", true, "Keep fenced code blocks verbatim")
	f.BoolVar(&opts.useLLM, "llm", false, "Use the configured LLM for fact extraction and entailment")
	return cmd
}

func runCompress(ctx context.Context, out io.Writer, cfg *config.Config, name string, data []byte, opts runOptions, copts types.CompressionOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	if opts.sealed {
		sealer, err := requireSealer(cfg)
		if err != nil {
			return err
		}
		if data, err = sealer.Open(strings.TrimSpace(string(data))); err != nil {
			return fmt.Errorf("failed to open sealed input: %w", err)
		}
	}

	client, err := newLLMClient(ctx, cfg)
	if err != nil {
		return err
	}
	if client != nil {
		defer func() { _ = client.Close() }()
	}

	conv, err := importConversation(ctx, cfg, client, name, data, opts)
	if err != nil {
		return err
	}

	printer := observability.NewPrinter(out)
	var onProgress pipeline.ProgressCallback
	if cfg.Verbose {
		onProgress = func(ev pipeline.ProgressEvent) {
			printer.PrintProgress(types.PipelineStatus{
				Stage:       ev.Stage,
				Progress:    ev.Progress,
				CurrentStep: ev.Step,
				Error:       ev.Error,
			})
		}
	}

	store := pipeline.NewMemoryStore()
	engine := newEngine(cfg, client, store, pipelineLogger(cfg.Verbose), onProgress)

	runID, err := engine.StartPipelineWithOptions(ctx, conv, copts)
	if err != nil {
		return err
	}
	status, err := engine.Wait(ctx, runID)
	if err != nil {
		_ = engine.CancelPipeline(runID)
		return fmt.Errorf("run %s did not finish: %w", runID, err)
	}

	prompt, err := engine.GetResult(runID)
	if err != nil {
		if cfg.Verbose {
			printer.PrintStatus(&status)
		}
		return err
	}

	if cfg.Verbose {
		printer.PrintStatus(&status)
		printer.PrintMetrics(status.Metrics)
		if v, ok := store.Artifact(runID, pipeline.ArtifactVerification); ok {
			if ver, ok := v.(*types.VerificationResult); ok {
				printer.PrintCorrections(ver)
			}
		}
		printer.PrintPrompt(prompt)
	}

	var rendered []byte
	if opts.asJSON {
		if err := schemas.ValidateValue(schemas.OptimizedPrompt, prompt); err != nil {
			return fmt.Errorf("optimized prompt failed schema validation: %w", err)
		}
		if rendered, err = json.MarshalIndent(prompt, "", "  "); err != nil {
			return fmt.Errorf("failed to marshal prompt: %w", err)
		}
		rendered = append(rendered, '\n')
	} else {
		rendered = []byte(prompt.Render())
	}

	if opts.output != "" {
		if err := os.WriteFile(opts.output, rendered, 0o644); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		_, _ = fmt.Fprintf(out, "Wrote %s (%d tokens)\n", opts.output, prompt.TotalTokens)
		return nil
	}
	_, err = out.Write(rendered)
	return err
}

// importConversation decodes data and picks the conversation at opts.index
func importConversation(ctx context.Context, cfg *config.Config, client llm.Client, name string, data []byte, opts runOptions) (*types.Conversation, error) {
	format, err := ingestion.ParseFormat(opts.format)
	if err != nil {
		return nil, err
	}
	source := types.Source(strings.ToLower(opts.source))
	if source != "" && !source.IsValid() {
		return nil, fmt.Errorf("unknown source %q", opts.source)
	}

	res, err := ingestion.Import(ctx, name, data, ingestion.Options{Source: source, Format: format, Client: client})
	if err != nil {
		return nil, err
	}
	if opts.index < 0 || opts.index >= len(res.Conversations) {
		return nil, fmt.Errorf("conversation index %d out of range (input holds %d)", opts.index, len(res.Conversations))
	}
	if cfg.Verbose {
		_, _ = fmt.Fprintf(os.Stderr, "Imported %d conversation(s), %d message(s) as %s\n",
			res.Metadata.Conversations, res.Metadata.Messages, res.Metadata.Format)
	}
	return res.Conversations[opts.index], nil
}
