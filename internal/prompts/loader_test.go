package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_ValidPrompt(t *testing.T) {
	ClearCache()

	prompt, err := Get("verification.json", "entail-claim")
	require.NoError(t, err)
	assert.NotEmpty(t, prompt)
	assert.Contains(t, prompt, "{{.Claim}}")
}

func TestGet_InvalidFile(t *testing.T) {
	ClearCache()

	_, err := Get("nonexistent.json", "some-key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read prompt file")
}

func TestGet_InvalidKey(t *testing.T) {
	ClearCache()

	_, err := Get("verification.json", "nonexistent-key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestMustGet_Panics(t *testing.T) {
	ClearCache()

	assert.Panics(t, func() {
		MustGet("nonexistent.json", "some-key")
	})
}

func TestMustGet_ValidPrompt(t *testing.T) {
	ClearCache()

	assert.NotPanics(t, func() {
		prompt := MustGet("verification.json", "entail-claim")
		assert.NotEmpty(t, prompt)
	})
}

func TestFormat(t *testing.T) {
	template := "Hello {{.Name}}, welcome to {{.Company}}!"
	data := map[string]string{
		"Name":    "Alice",
		"Company": "Acme Corp",
	}

	result := Format(template, data)
	assert.Equal(t, "Hello Alice, welcome to Acme Corp!", result)
}

func TestFormat_NoPlaceholders(t *testing.T) {
	template := "No placeholders here"
	data := map[string]string{"Key": "Value"}

	result := Format(template, data)
	assert.Equal(t, template, result)
}

func TestFormat_EmptyData(t *testing.T) {
	template := "Hello {{.Name}}"
	data := map[string]string{}

	result := Format(template, data)
	assert.Equal(t, template, result) // Placeholder remains
}

func TestList(t *testing.T) {
	ClearCache()

	keys, err := List("optimization.json")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"critical-constraints",
		"critical-constraints-continuation",
		"state-snapshot",
		"system-instruction",
	}, keys)
}

func TestCaching(t *testing.T) {
	ClearCache()

	// First call loads from file
	prompt1, err := Get("verification.json", "entail-claim")
	require.NoError(t, err)

	// Second call should use cache
	prompt2, err := Get("verification.json", "entail-claim")
	require.NoError(t, err)

	assert.Equal(t, prompt1, prompt2)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, Placeholders("{{.B}} {{.A}} {{.B}}"))
	assert.Empty(t, Placeholders("nothing here"))
}

func TestRender(t *testing.T) {
	ClearCache()

	out, err := Render("verification.json", "entail-claim", map[string]string{
		"Claim":    "the port is 8080",
		"Evidence": "0: we use port 8080",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "the port is 8080")
	assert.NotContains(t, out, "{{.")

	_, err = Render("verification.json", "entail-claim", map[string]string{"Claim": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Evidence")
}

func TestEmbeddedTemplatesPlaceholders(t *testing.T) {
	ClearCache()

	tests := []struct {
		file string
		key  string
		want []string
	}{
		{"compression.json", "message-context", []string{"Content", "Index", "Role"}},
		{"optimization.json", "system-instruction", []string{"Messages", "Source", "Title"}},
		{"optimization.json", "critical-constraints", []string{"Deferred", "Grounding"}},
		{"optimization.json", "state-snapshot", []string{"Facts", "LastUserTurn", "Messages"}},
	}
	for _, tt := range tests {
		t.Run(tt.file+"/"+tt.key, func(t *testing.T) {
			tmpl, err := Get(tt.file, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, Placeholders(tmpl))
		})
	}
}

func TestFormat_SinglePass(t *testing.T) {
	out := Format("{{.A}} and {{.B}}", map[string]string{"A": "{{.B}}", "B": "b"})
	assert.Equal(t, "{{.B}} and b", out)
}
