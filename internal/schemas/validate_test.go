package schemas

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/context-crystal/internal/types"
)

const simpleSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["name"],
	"properties": {
		"name": {"type": "string"},
		"count": {"type": "integer", "minimum": 0}
	}
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestValidateJSON_ValidJSON(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "schema.json", simpleSchema)
	jsonPath := writeFile(t, dir, "doc.json", `{"name": "crystal", "count": 2}`)

	assert.NoError(t, ValidateJSON(schemaPath, jsonPath))
}

func TestValidateJSON_InvalidJSON_MissingField(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "schema.json", simpleSchema)
	jsonPath := writeFile(t, dir, "doc.json", `{"count": 2}`)

	err := ValidateJSON(schemaPath, jsonPath)
	require.Error(t, err)

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr), "error should be ValidationError type")
	assert.Greater(t, len(validationErr.Errors), 0)
}

func TestValidateJSON_NonExistentSchema(t *testing.T) {
	dir := t.TempDir()
	jsonPath := writeFile(t, dir, "doc.json", `{"name": "x"}`)

	err := ValidateJSON(filepath.Join(dir, "missing.json"), jsonPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestValidateJSON_NonExistentJSON(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "schema.json", simpleSchema)

	err := ValidateJSON(schemaPath, filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Errors: []FieldError{
		{Field: "name", Message: "name is required"},
		{Field: "(root)", Message: "bad"},
	}}
	msg := err.Error()
	assert.Contains(t, msg, "1. name: name is required")
	assert.Contains(t, msg, "2. (root): bad")
}

func TestValidate_Conversation(t *testing.T) {
	valid := `{"id": "c1", "source": "chatgpt", "messages": [{"role": "user", "content": "hi"}]}`
	assert.NoError(t, Validate(Conversation, []byte(valid)))

	badRole := `{"id": "c1", "source": "chatgpt", "messages": [{"role": "robot", "content": "hi"}]}`
	err := Validate(Conversation, []byte(badRole))
	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))

	missingSource := `{"id": "c1", "messages": []}`
	assert.Error(t, Validate(Conversation, []byte(missingSource)))
}

func TestValidate_UnknownSchema(t *testing.T) {
	err := Validate("nope.schema.json", []byte(`{}`))
	var loadErr *SchemaLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, "nope.schema.json", loadErr.Path)
}

func TestValidate_MalformedDocument(t *testing.T) {
	assert.Error(t, Validate(Conversation, []byte(`{ invalid json }`)))
}

func TestValidateValue_PipelineTypes(t *testing.T) {
	prompt := &types.OptimizedPrompt{
		SystemInstruction: "You are continuing a conversation.",
		CompressedHistory: "- We use PostgreSQL 16.",
		TotalTokens:       14,
	}
	assert.NoError(t, ValidateValue(OptimizedPrompt, prompt))

	prompt.CompressedHistory = ""
	assert.Error(t, ValidateValue(OptimizedPrompt, prompt))

	status := types.PipelineStatus{ID: "r1", ConversationID: "c1", Stage: types.StageCompression, Progress: 0.4}
	assert.NoError(t, ValidateValue(PipelineStatus, status))

	status.Progress = 1.5
	assert.Error(t, ValidateValue(PipelineStatus, status))
}
