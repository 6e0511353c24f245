package ingestion

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/context-crystal/internal/types"
)

const chatgptExportJSON = `{
	"id": "conv-1",
	"title": "Deploy plan",
	"create_time": 1700000000.5,
	"mapping": {
		"root": {"message": null, "parent": null, "children": ["sys"]},
		"sys": {"message": {"author": {"role": "system"}, "content": {"parts": ["You are helpful."]}}, "parent": "root", "children": ["u1"]},
		"u1": {"message": {"author": {"role": "user"}, "create_time": 1700000001, "content": {"content_type": "text", "parts": ["How do we deploy?"]}}, "parent": "sys", "children": ["a1"]},
		"a1": {"message": {"author": {"role": "assistant"}, "create_time": 1700000003, "content": {"parts": ["Use ", {"text": "helm"}]}, "metadata": {"model_slug": "gpt-4o"}}, "parent": "u1", "children": ["t1"]},
		"t1": {"message": {"author": {"role": "tool"}, "create_time": 1700000004, "content": {"parts": ["tool output"]}}, "parent": "a1", "children": ["a2"]},
		"a2": {"message": {"author": {"role": "assistant"}, "content": {"parts": ["Done."]}}, "parent": "t1", "children": ["u2", "e1"]},
		"u2": {"message": {"author": {"role": "user"}, "create_time": 1700000002, "content": {"parts": ["Is helm installed?"]}}, "parent": "a2", "children": []},
		"e1": {"message": {"author": {"role": "user"}, "create_time": 1700000005, "content": {"parts": ["   "]}}, "parent": "a2", "children": []}
	}
}`

func TestParseChatGPTExport_SingleConversation(t *testing.T) {
	convs, err := ParseChatGPTExport([]byte(chatgptExportJSON))
	require.NoError(t, err)
	require.Len(t, convs, 1)

	conv := convs[0]
	assert.Equal(t, "conv-1", conv.ID)
	assert.Equal(t, types.SourceChatGPT, conv.Source)
	assert.Equal(t, 1700000000.5, conv.ExtractedAt)
	assert.Equal(t, "Deploy plan", conv.Title())

	require.Len(t, conv.Messages, 4)
	assert.Equal(t, "How do we deploy?", conv.Messages[0].Content)
	assert.Equal(t, "Is helm installed?", conv.Messages[1].Content)
	assert.Equal(t, "Use helm", conv.Messages[2].Content)
	assert.Equal(t, "gpt-4o", conv.Messages[2].Model)
	assert.Equal(t, types.RoleAssistant, conv.Messages[2].Role)
	assert.Equal(t, "Done.", conv.Messages[3].Content)
	assert.Nil(t, conv.Messages[3].Timestamp)
	assert.Equal(t, "gpt-unknown", conv.Messages[3].Model)

	assert.Equal(t, "gpt-unknown", conv.Metadata.Model)
	assert.Empty(t, conv.Messages[0].Model)
}

func TestParseChatGPTExport_List(t *testing.T) {
	freezeClock(t)
	data := `[
		{"conversation_id": "c-2", "mapping": {"n": {"message": {"author": {"role": "user"}, "content": {"parts": ["hello"]}}, "children": []}}},
		{"id": "skipped", "title": "no mapping"}
	]`
	convs, err := ParseChatGPTExport([]byte(data))
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "c-2", convs[0].ID)
	assert.Equal(t, "Untitled Chat", convs[0].Title())
	assert.Equal(t, float64(fixedNow.Unix()), convs[0].ExtractedAt)
}

func TestParseChatGPTExport_Deterministic(t *testing.T) {
	first, err := ParseChatGPTExport([]byte(chatgptExportJSON))
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := ParseChatGPTExport([]byte(chatgptExportJSON))
		require.NoError(t, err)
		assert.Equal(t, first[0].Messages, again[0].Messages)
	}
}

func TestParseChatGPTExport_Invalid(t *testing.T) {
	_, err := ParseChatGPTExport([]byte(`{not json`))
	assert.True(t, errors.Is(err, ErrInvalidExport))

	_, err = ParseChatGPTExport([]byte(`[{"id": "x"}]`))
	assert.True(t, errors.Is(err, ErrInvalidExport))
}
