package compression

import (
	"context"
	"testing"

	"github.com/jonathan/context-crystal/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"single", "We use Go.", []string{"We use Go."}},
		{"two", "We use Go. The API listens on 8080.", []string{"We use Go.", "The API listens on 8080."}},
		{"question", "Is it fast? Yes it is!", []string{"Is it fast?", "Yes it is!"}},
		{"abbreviation lowercase", "Use a cache, e.g. redis for sessions.", []string{"Use a cache, e.g. redis for sessions."}},
		{"quoted end", `He said "stop." Then left.`, []string{`He said "stop."`, "Then left."}},
		{"version number", "Upgrade to v1.2.3 today.", []string{"Upgrade to v1.2.3 today."}},
		{"empty", "   ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitSentences(tt.input))
		})
	}
}

func TestMarkdownExtractor_Segments(t *testing.T) {
	x := NewMarkdownExtractor()
	content := "# Setup\n\nInstall **Go** first. Then run the tests.\n\n- Use pgx for Postgres\n- Keep logs terse\n\n```go\nfmt.Println(\"hi\")\n```\n"

	segs := x.Segments(content)
	require.Len(t, segs, 6)
	assert.Equal(t, Segment{Text: "Setup"}, segs[0])
	assert.Equal(t, Segment{Text: "Install Go first."}, segs[1])
	assert.Equal(t, Segment{Text: "Then run the tests."}, segs[2])
	assert.Equal(t, Segment{Text: "Use pgx for Postgres"}, segs[3])
	assert.Equal(t, Segment{Text: "Keep logs terse"}, segs[4])
	assert.Equal(t, Segment{Text: "fmt.Println(\"hi\")", Code: true}, segs[5])
}

func TestMarkdownExtractor_Empty(t *testing.T) {
	x := NewMarkdownExtractor()
	assert.Empty(t, x.Segments(""))
	assert.Empty(t, x.Segments(" \n\t\n "))
}

func TestMarkdownExtractor_ExtractFacts(t *testing.T) {
	x := NewMarkdownExtractor()
	facts, err := x.ExtractFacts(context.Background(), 3, types.Message{
		Role:    types.RoleAssistant,
		Content: "The port is 8080. Use TLS.",
	})
	require.NoError(t, err)
	require.Len(t, facts, 2)
	for _, f := range facts {
		assert.Equal(t, 3, f.MessageIndex)
		assert.Equal(t, types.RoleAssistant, f.Role)
		assert.False(t, f.Code)
	}
	assert.Equal(t, "The port is 8080.", facts[0].Text)
}

func TestMarkdownExtractor_RenderRoundTrip(t *testing.T) {
	x := NewMarkdownExtractor()
	facts := []types.Fact{
		{Text: "We deploy on Fridays.", MessageIndex: 0},
		{Text: "The cluster runs Kubernetes 1.29.", MessageIndex: 1},
		{Text: "kubectl apply -f deploy.yaml", MessageIndex: 1, Code: true},
	}

	segs := x.Segments(Render(facts))
	require.Len(t, segs, 3)
	for i, f := range facts {
		assert.Equal(t, f.Text, segs[i].Text)
		assert.Equal(t, f.Code, segs[i].Code)
	}
}
