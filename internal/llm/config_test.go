package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, ProviderGemini, config.Provider)
	assert.Equal(t, "gemini-2.5-flash-lite", config.GetModel(TierLite))
	assert.Equal(t, "gemini-2.5-flash", config.GetModel(TierStandard))
	assert.Equal(t, "gemini-2.5-pro", config.GetModel(TierAdvanced))
}

func TestGetModel_Fallback(t *testing.T) {
	config := &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite: "fallback-model",
		},
	}

	// Unknown tier should fallback to TierStandard, then TierLite
	assert.Equal(t, "fallback-model", config.GetModel("unknown"))
}

func TestGetModel_EmptyConfig(t *testing.T) {
	config := &Config{
		Provider: ProviderGemini,
		Models:   map[ModelTier]string{},
	}

	// Empty config should return empty string
	assert.Equal(t, "", config.GetModel(TierAdvanced))
}

func TestWithModel(t *testing.T) {
	config := DefaultConfig()
	newConfig := config.WithModel(TierAdvanced, "custom-model")

	// Original should be unchanged
	assert.Equal(t, "gemini-2.5-pro", config.GetModel(TierAdvanced))

	// New config should have custom model
	assert.Equal(t, "custom-model", newConfig.GetModel(TierAdvanced))

	// Other tiers should be copied
	assert.Equal(t, "gemini-2.5-flash-lite", newConfig.GetModel(TierLite))
}

func TestModelTierConstants(t *testing.T) {
	assert.Equal(t, ModelTier("lite"), TierLite)
	assert.Equal(t, ModelTier("standard"), TierStandard)
	assert.Equal(t, ModelTier("advanced"), TierAdvanced)
}

func TestProviderConstants(t *testing.T) {
	assert.Equal(t, Provider("gemini"), ProviderGemini)
	assert.Equal(t, Provider("anthropic"), ProviderAnthropic)
}

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider("")
	assert.NoError(t, err)
	assert.Equal(t, ProviderGemini, p)

	p, err = ParseProvider("anthropic")
	assert.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, p)

	_, err = ParseProvider("openai")
	assert.Error(t, err)
}

func TestConfigFor(t *testing.T) {
	assert.Equal(t, ProviderGemini, ConfigFor(ProviderGemini).Provider)

	anthropicCfg := ConfigFor(ProviderAnthropic)
	assert.Equal(t, ProviderAnthropic, anthropicCfg.Provider)
	assert.Equal(t, "claude-sonnet-4-5", anthropicCfg.GetModel(TierStandard))
}

func TestTemperature(t *testing.T) {
	assert.InDelta(t, DefaultTemperature, (&Config{}).temperature(), 1e-9)
	assert.InDelta(t, 0.4, (&Config{Temperature: 0.4}).temperature(), 1e-9)

	c := (&Config{Temperature: 0.3, Models: map[ModelTier]string{}}).WithModel(TierLite, "m")
	assert.InDelta(t, 0.3, c.Temperature, 1e-9)
}

func TestNewClient_Errors(t *testing.T) {
	_, err := NewClient(context.Background(), &Config{Provider: "openai"}, "key")
	assert.Error(t, err)

	_, err = NewClient(context.Background(), DefaultAnthropicConfig(), "")
	assert.Error(t, err)

	c, err := NewClient(context.Background(), DefaultAnthropicConfig(), "test-key")
	assert.NoError(t, err)
	assert.Equal(t, "claude-opus-4-1", c.GetModel(TierAdvanced))
	assert.NoError(t, c.Close())
}
