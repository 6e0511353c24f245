package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jonathan/context-crystal/internal/extraction"
	"github.com/jonathan/context-crystal/internal/fetch"
	"github.com/jonathan/context-crystal/internal/ingestion"
	"github.com/jonathan/context-crystal/internal/types"
	"github.com/spf13/cobra"
)

func newExtractCmd(flags *rootFlags) *cobra.Command {
	var (
		format     string
		source     string
		canonical  bool
		useBrowser bool
		output     string
	)

	cmd := &cobra.Command{
		Use:   "extract <file|url>",
		Short: "Import a conversation and print it as JSON",
		Long: `Reads an assistant export, transcript, saved share page or share URL and
prints the conversation JSON accepted by 'crystal run' and POST /api/runs.
With --canonical the extraction stage (normalization, truncation) is applied.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("use-browser") {
				cfg.UseBrowser = useBrowser
			}

			src := types.Source(strings.ToLower(source))
			if src != "" && !src.IsValid() {
				return fmt.Errorf("unknown source %q", source)
			}

			ctx := cmd.Context()
			client, err := newLLMClient(ctx, cfg)
			if err != nil {
				return err
			}
			if client != nil {
				defer func() { _ = client.Close() }()
			}

			var res *ingestion.Result
			if strings.HasPrefix(args[0], "http://") || strings.HasPrefix(args[0], "https://") {
				res, err = ingestion.FromURL(ctx, args[0], ingestion.URLOptions{
					Fetcher:    fetch.NewCachedFetcher(nil),
					UseBrowser: cfg.UseBrowser,
					Verbose:    cfg.Verbose,
					Source:     src,
				})
			} else {
				var parsed ingestion.Format
				if parsed, err = ingestion.ParseFormat(format); err != nil {
					return err
				}
				var data []byte
				if data, err = readInput(cmd, args[0]); err != nil {
					return err
				}
				res, err = ingestion.Import(ctx, args[0], data, ingestion.Options{Source: src, Format: parsed, Client: client})
			}
			if err != nil {
				return err
			}

			if cfg.Verbose && res.Metadata != nil {
				if meta, err := res.Metadata.ToJSON(); err == nil {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", meta)
				}
			}

			convs := res.Conversations
			if canonical {
				for i, c := range convs {
					if convs[i], err = extraction.Extract(c, cfg.ExtractionOptions()); err != nil {
						return err
					}
				}
			}

			var payload any = convs
			if len(convs) == 1 {
				payload = convs[0]
			}
			data, err := json.MarshalIndent(payload, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal conversation: %w", err)
			}
			data = append(data, '\n')

			if output != "" {
				if err := os.WriteFile(output, data, 0o644); err != nil {
					return fmt.Errorf("failed to write output: %w", err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d conversation(s) to %s\n", len(convs), output)
				return nil
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&format, "format", "", "Input format: chatgpt, json, transcript or html (default: detect)")
	f.StringVar(&source, "source", "", "Source label for transcripts and share pages")
	f.BoolVar(&canonical, "canonical", false, "Apply the extraction stage to the imported conversations")
	f.BoolVar(&useBrowser, "use-browser", false, "Use headless browser for SPA share pages (requires Chrome)")
	f.StringVarP(&output, "out", "o", "", "Write the JSON to a file instead of stdout")
	return cmd
}
