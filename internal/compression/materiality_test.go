package compression

import (
	"testing"

	"github.com/jonathan/context-crystal/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"use", "pgx", "v5", "for", "db_pool"}, Tokens("Use PGX v5, for db_pool!"))
	assert.Equal(t, []string{"config.yaml", "is", "read"}, Tokens("config.yaml is read."))
	assert.Empty(t, Tokens("!!! ..."))
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key("The API uses port 8080."), Key("the api USES port 8080"))
	assert.NotEqual(t, Key("port 8080"), Key("port 8081"))
}

func TestJaccard(t *testing.T) {
	assert.InDelta(t, 1.0, Jaccard("a b c", "c b a"), 1e-9)
	assert.InDelta(t, 0.5, Jaccard("a b c", "b c d"), 1e-9)
	assert.InDelta(t, 0.0, Jaccard("a b", "c d"), 1e-9)
	assert.InDelta(t, 1.0, Jaccard("", ""), 1e-9)
}

func TestMateriality(t *testing.T) {
	tests := []struct {
		name string
		fact types.Fact
		min  float64
		max  float64
	}{
		{"filler", types.Fact{Text: "Thanks!", Role: types.RoleUser}, 0, 0},
		{"filler phrase", types.Fact{Text: "Sounds good.", Role: types.RoleUser}, 0, 0},
		{"stopwords only", types.Fact{Text: "It is what it is.", Role: types.RoleUser}, 0, 0},
		{"numeric fact", types.Fact{Text: "We use PostgreSQL 16 for storage.", Role: types.RoleUser}, 0.8, 0.9},
		{"code", types.Fact{Text: "x := 1", Code: true, Role: types.RoleUser}, 1.0, 1.0},
		{"assistant weight", types.Fact{Text: "Deploy behind nginx", Role: types.RoleAssistant}, 0.44, 0.46},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := Materiality(tt.fact)
			assert.GreaterOrEqual(t, score, tt.min)
			assert.LessOrEqual(t, score, tt.max)
		})
	}
}

func TestMateriality_CappedAtOneAndHalf(t *testing.T) {
	f := types.Fact{
		Text: "Configure service_a.port 8080 with retries timeouts backoff jitter logging metrics tracing",
		Role: types.RoleSystem,
	}
	assert.LessOrEqual(t, Materiality(f), 1.5)
}

func TestInformative(t *testing.T) {
	assert.Equal(t, []string{"stores", "invoices"}, Informative([]string{"it", "stores", "the", "invoices"}))
	assert.Empty(t, Informative([]string{"it", "is"}))
}

func TestNegated(t *testing.T) {
	assert.True(t, Negated(Tokens("The server does not listen on 8080")))
	assert.True(t, Negated(Tokens("It doesn't cache sessions")))
	assert.True(t, Negated(Tokens("It doesn’t cache sessions")))
	assert.True(t, Negated(Tokens("Run it without root")))
	assert.False(t, Negated(Tokens("The server listens on 8080")))
}

func TestDiffers(t *testing.T) {
	assert.False(t, Differs("Store invoices in tables.", "Store the invoices in the tables"))
	assert.True(t, Differs("Deploy on Monday at 9am.", "Deploy on Friday at 9am."))
	assert.True(t, Differs("Use port 8080.", "Use port 8081."))
	assert.True(t, Differs("Retry uploads.", "Do not retry uploads."))
}
