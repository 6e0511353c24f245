package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/context-crystal/internal/llm"
)

func TestModelFor(t *testing.T) {
	assert.True(t, modelFor(llm.ProviderGemini, "gemini-2.5-pro"))
	assert.True(t, modelFor(llm.ProviderAnthropic, "claude-opus-4-1"))
	assert.False(t, modelFor(llm.ProviderAnthropic, "gemini-2.5-flash"))
	assert.False(t, modelFor(llm.ProviderGemini, "Claude-Sonnet-4-5"))
	assert.False(t, modelFor(llm.ProviderGemini, ""))
}
