package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/context-crystal/internal/llm"
	"github.com/jonathan/context-crystal/internal/types"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		data     string
		expected Format
	}{
		{"html extension", "page.HTML", "User: hi", FormatHTML},
		{"txt extension", "notes.txt", `{"mapping": {}}`, FormatTranscript},
		{"chatgpt export", "conversations.json", `[{"mapping": {}}]`, FormatChatGPTExport},
		{"canonical json", "", `  {"id": "c1"}`, FormatJSON},
		{"html content", "", "<!DOCTYPE html><html></html>", FormatHTML},
		{"angle bracket text", "", "<not html> User: hi", FormatTranscript},
		{"plain text", "", "User: hi", FormatTranscript},
		{"empty", "", "   ", FormatTranscript},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectFormat(tt.file, []byte(tt.data)))
		})
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"":               "",
		"chatgpt":        FormatChatGPTExport,
		"chatgpt_export": FormatChatGPTExport,
		" JSON ":         FormatJSON,
		"transcript":     FormatTranscript,
		"html":           FormatHTML,
	} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("pdf")
	assert.Error(t, err)
}

func TestImport_ForcedFormat(t *testing.T) {
	// looks like a transcript, but forced to JSON
	_, err := Import(context.Background(), "notes.txt", []byte("User: hi"), Options{Format: FormatJSON})
	assert.True(t, errors.Is(err, ErrInvalidExport))

	res, err := Import(context.Background(), "", []byte("User: hi\nAssistant: hello"), Options{Format: FormatTranscript})
	require.NoError(t, err)
	assert.Equal(t, FormatTranscript, res.Metadata.Format)
	assert.Len(t, res.Conversations[0].Messages, 2)
}

func TestImport_ChatGPTExport(t *testing.T) {
	res, err := Import(context.Background(), "conversations.json", []byte(chatgptExportJSON), Options{})
	require.NoError(t, err)
	assert.Equal(t, FormatChatGPTExport, res.Metadata.Format)
	assert.Equal(t, 1, res.Metadata.Conversations)
	assert.Equal(t, 4, res.Metadata.Messages)
	assert.Len(t, res.Metadata.Hash, 64)
}

func TestImport_CanonicalJSON(t *testing.T) {
	data := `{"id": "c1", "source": "claude", "extracted_at": 1, "messages": [{"role": "user", "content": "hi"}]}`
	res, err := Import(context.Background(), "", []byte(data), Options{})
	require.NoError(t, err)
	require.Len(t, res.Conversations, 1)
	assert.Equal(t, types.SourceClaude, res.Conversations[0].Source)

	_, err = Import(context.Background(), "", []byte(`{"id": "c1", "source": "myspace", "messages": []}`), Options{})
	assert.True(t, errors.Is(err, ErrInvalidExport))
}

func TestImport_HTML(t *testing.T) {
	res, err := Import(context.Background(), "share.html", []byte(chatgptSharePage), Options{URL: "https://chatgpt.com/share/abc-123"})
	require.NoError(t, err)
	assert.Equal(t, FormatHTML, res.Metadata.Format)
	assert.Equal(t, "chatgpt_abc-123", res.Conversations[0].ID)
}

func TestImport_TranscriptWithLLMFallback(t *testing.T) {
	var tier llm.ModelTier
	mock := &MockLLMClient{
		GenerateJSONFunc: func(_ context.Context, prompt string, tr llm.ModelTier) (string, error) {
			tier = tr
			assert.Contains(t, prompt, "how do I deploy")
			return "```json\n{\"turns\": [{\"role\": \"user\", \"content\": \"how do I deploy\"}, {\"role\": \"Assistant\", \"content\": \" use helm \"}, {\"role\": \"user\", \"content\": \"\"}]}\n```", nil
		},
	}

	res, err := Import(context.Background(), "", []byte("how do I deploy\nuse helm"), Options{Client: mock, Source: types.SourceGemini})
	require.NoError(t, err)
	assert.Equal(t, llm.TierLite, tier)

	conv := res.Conversations[0]
	assert.Equal(t, types.SourceGemini, conv.Source)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, types.Message{Role: types.RoleAssistant, Content: "use helm"}, conv.Messages[1])
}

func TestImport_UnlabelledWithoutClient(t *testing.T) {
	_, err := Import(context.Background(), "", []byte("no speakers here"), Options{})
	assert.True(t, errors.Is(err, ErrUnlabelledTranscript))
}

func TestImport_LLMFallbackFailure(t *testing.T) {
	mock := &MockLLMClient{
		GenerateJSONFunc: func(context.Context, string, llm.ModelTier) (string, error) {
			return "not json", nil
		},
	}
	_, err := Import(context.Background(), "", []byte("no speakers here"), Options{Client: mock})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnlabelledTranscript))
	assert.True(t, strings.Contains(err.Error(), "failed to unmarshal JSON"))
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.txt")
	require.NoError(t, os.WriteFile(path, []byte("User: hi\nAssistant: hello"), 0644))

	res, err := FromFile(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, FormatTranscript, res.Metadata.Format)
	assert.Len(t, res.Conversations[0].Messages, 2)

	_, err = FromFile(context.Background(), filepath.Join(t.TempDir(), "missing.txt"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file not found")
}

func TestMetadata_ToJSON(t *testing.T) {
	freezeClock(t)
	md := NewMetadata([]byte("abc"), "https://chatgpt.com/share/1", FormatHTML)
	assert.Equal(t, "2026-03-01T12:00:00Z", md.Timestamp)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", md.Hash)

	data, err := md.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"format": "html"`)
	assert.Contains(t, string(data), `"url": "https://chatgpt.com/share/1"`)
}
