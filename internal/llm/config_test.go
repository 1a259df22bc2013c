package llm

import (
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
	config := &Config{Models: map[ModelTier]string{TierLite: "fallback-model"}}
	assert.Equal(t, "fallback-model", config.GetModel(TierAdvanced))

	empty := &Config{Models: map[ModelTier]string{}}
	assert.Equal(t, "", empty.GetModel(TierAdvanced))
}

func TestWithModel(t *testing.T) {
	config := DefaultConfig()
	next := config.WithModel(TierAdvanced, "custom-model")

	assert.Equal(t, "gemini-2.5-pro", config.GetModel(TierAdvanced))
	assert.Equal(t, "custom-model", next.GetModel(TierAdvanced))
	assert.Equal(t, "gemini-2.5-flash-lite", next.GetModel(TierLite))
	assert.Equal(t, config.Temperature, next.Temperature)

	unchanged := config.WithModel(TierLite, "")
	assert.Equal(t, "gemini-2.5-flash-lite", unchanged.GetModel(TierLite))
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewGeminiClient(t.Context(), DefaultConfig(), "")
	assert.Error(t, err)
}

func TestBuildExtractionPrompt(t *testing.T) {
	prompt := BuildExtractionPrompt(JobAnalysisSchema(), "We are hiring a Go engineer.", "Company: Acme", "")

	assert.Contains(t, prompt, `"requirements": ["string"] (required)`)
	assert.Contains(t, prompt, "Company: Acme")
	assert.Contains(t, prompt, "We are hiring a Go engineer.")
	assert.Contains(t, prompt, "Return ONLY valid JSON")
}
