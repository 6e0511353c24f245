// Package ingestion imports conversations from assistant exports, pasted
// transcripts and share pages. It produces raw conversations; canonical
// cleanup is left to the extraction package.
package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonathan/context-crystal/internal/llm"
	"github.com/jonathan/context-crystal/internal/types"
)

// Format is the shape of an import document
type Format string

// Import formats
const (
	FormatChatGPTExport Format = "chatgpt_export"
	FormatJSON          Format = "json"
	FormatTranscript    Format = "transcript"
	FormatHTML          Format = "html"
)

// now is replaced in tests
var now = time.Now

// Options configures an import
type Options struct {
	// Source labels transcripts and HTML pages whose platform is unknown
	Source types.Source
	// URL is recorded in metadata and used to detect the share-page platform
	URL string
	// Client segments unlabelled transcripts when set
	Client llm.Client
	// Format skips detection when set
	Format Format
}

// Result is the outcome of an import
type Result struct {
	Conversations []*types.Conversation
	Metadata      *Metadata
}

// DetectFormat guesses the format of data from its file name and content
func DetectFormat(name string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		return FormatHTML
	case ".txt", ".md":
		return FormatTranscript
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return FormatTranscript
	}
	switch trimmed[0] {
	case '{', '[':
		if bytes.Contains(trimmed, []byte(`"mapping"`)) {
			return FormatChatGPTExport
		}
		return FormatJSON
	case '<':
		lower := bytes.ToLower(trimmed[:min(len(trimmed), 512)])
		if bytes.Contains(lower, []byte("<html")) || bytes.Contains(lower, []byte("<!doctype html")) {
			return FormatHTML
		}
	}
	return FormatTranscript
}

// ParseFormat maps a format name to a Format. "chatgpt" is accepted for
// FormatChatGPTExport and the empty string means detect.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return "", nil
	case "chatgpt", FormatChatGPTExport:
		return FormatChatGPTExport, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatTranscript:
		return FormatTranscript, nil
	case FormatHTML:
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unknown import format %q", s)
	}
}

// Import decodes data in opts.Format, or in whatever format it appears to be
func Import(ctx context.Context, name string, data []byte, opts Options) (*Result, error) {
	format := opts.Format
	if format == "" {
		format = DetectFormat(name, data)
	}

	var convs []*types.Conversation
	var err error
	switch format {
	case FormatChatGPTExport:
		convs, err = ParseChatGPTExport(data)
	case FormatJSON:
		var conv *types.Conversation
		conv, err = ParseJSON(data)
		convs = []*types.Conversation{conv}
	case FormatHTML:
		var conv *types.Conversation
		conv, err = ParseSharePage(string(data), opts.URL, opts.Source)
		convs = []*types.Conversation{conv}
	default:
		var conv *types.Conversation
		conv, err = parseTranscript(ctx, string(data), opts)
		convs = []*types.Conversation{conv}
	}
	if err != nil {
		return nil, err
	}

	md := NewMetadata(data, opts.URL, format).tally(convs)
	return &Result{Conversations: convs, Metadata: md}, nil
}

// FromFile reads and imports a file
func FromFile(ctx context.Context, path string, opts Options) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %w", err)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Import(ctx, path, data, opts)
}

// parseTranscript falls back to LLM segmentation for unlabelled text
func parseTranscript(ctx context.Context, text string, opts Options) (*types.Conversation, error) {
	conv, err := ParseTranscript(text, opts.Source)
	if err == nil || opts.Client == nil {
		return conv, err
	}

	messages, llmErr := SegmentWithLLM(ctx, opts.Client, text)
	if llmErr != nil {
		return nil, fmt.Errorf("%w: %w", err, llmErr)
	}
	return newConversation(text, opts.Source, messages), nil
}
