package ingestion

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/context-crystal/internal/fetch"
	"github.com/jonathan/context-crystal/internal/types"
)

const chatgptSharePage = `<html><head><title>Share</title><meta property="og:title" content="Deploy chat"></head><body>
<div data-message-author-role="user"><div><p>How   do we
 deploy?</p></div></div>
<div data-message-author-role="assistant"><p>Use helm:</p><pre><code>helm install  app ./chart</code></pre><ul><li>fast</li><li>safe</li></ul><button>Copy</button></div>
</body></html>`

func TestParseSharePage_ChatGPT(t *testing.T) {
	conv, err := ParseSharePage(chatgptSharePage, "https://chatgpt.com/share/abc-123", "")
	require.NoError(t, err)

	assert.Equal(t, "chatgpt_abc-123", conv.ID)
	assert.Equal(t, types.SourceChatGPT, conv.Source)
	assert.Equal(t, "Deploy chat", conv.Title())

	require.Len(t, conv.Messages, 2)
	assert.Equal(t, types.Message{Role: types.RoleUser, Content: "How do we deploy?"}, conv.Messages[0])
	assert.Equal(t, types.RoleAssistant, conv.Messages[1].Role)
	assert.Equal(t, "Use helm:\n\n```\nhelm install  app ./chart\n```\n\n- fast\n- safe", conv.Messages[1].Content)
}

func TestParseSharePage_ClaudeLayout(t *testing.T) {
	page := `<html><head><title>Claude</title></head><body>
<div data-testid="user-message">Which driver?</div>
<div class="font-claude-message"><p>Use pgx.</p></div>
</body></html>`

	conv, err := ParseSharePage(page, "https://claude.ai/share/xyz", "")
	require.NoError(t, err)
	assert.Equal(t, types.SourceClaude, conv.Source)
	assert.Equal(t, "Claude", conv.Title())
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "Which driver?", conv.Messages[0].Content)
	assert.Equal(t, "Use pgx.", conv.Messages[1].Content)
}

func TestParseSharePage_DataRoleFallback(t *testing.T) {
	page := `<html><body><div data-role="user">Hi there</div><div data-role="assistant">Hello</div><div data-role="narrator">skip</div></body></html>`

	conv, err := ParseSharePage(page, "", types.SourceDeepSeek)
	require.NoError(t, err)
	assert.Equal(t, types.SourceDeepSeek, conv.Source)
	assert.Nil(t, conv.Metadata)
	require.Len(t, conv.Messages, 2)
}

func TestParseSharePage_TranscriptFallback(t *testing.T) {
	page := "<html><body><main><p>User: What is pgx?</p>\n<p>Assistant: A Postgres driver.</p></main></body></html>"

	conv, err := ParseSharePage(page, "", "")
	require.NoError(t, err)
	assert.Equal(t, types.SourceManual, conv.Source)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "What is pgx?", conv.Messages[0].Content)
	assert.Equal(t, "A Postgres driver.", conv.Messages[1].Content)
}

func TestParseSharePage_NoTurns(t *testing.T) {
	_, err := ParseSharePage("<html><body><main><p>Nothing here</p></main></body></html>", "", "")
	assert.True(t, errors.Is(err, ErrContentExtractionFailed))
}

func TestShareID(t *testing.T) {
	assert.Equal(t, "claude_xyz", shareID(types.SourceClaude, "https://claude.ai/share/xyz", ""))
	assert.Regexp(t, `^manual_[0-9a-f]{12}$`, shareID(types.SourceManual, "", "<html></html>"))
	assert.Regexp(t, `^manual_[0-9a-f]{12}$`, shareID(types.SourceManual, "https://example.com/", "<html></html>"))
}

func TestWaitSelector(t *testing.T) {
	assert.Equal(t, "[data-message-author-role]", WaitSelector(fetch.PlatformChatGPT))
	assert.Equal(t, "[data-testid='user-message']", WaitSelector(fetch.PlatformClaude))
	assert.Equal(t, "[data-message-author-role]", WaitSelector(fetch.PlatformUnknown))
}

func TestNormalizeBlocks(t *testing.T) {
	in := "\n\n  a   b  \n\n\n\nc\n```\n  x  = 1\n```\nd"
	assert.Equal(t, "a b\n\nc\n```\n  x  = 1\n```\n\nd", normalizeBlocks(in))
}
