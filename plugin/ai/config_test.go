package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hrygo/yapper/internal/profile"
)

// TestNewConfigFromProfile_SiliconFlow tests SiliconFlow configuration.
func TestNewConfigFromProfile_SiliconFlow(t *testing.T) {
	prof := &profile.Profile{
		AIEnabled:             true,
		AIEmbeddingProvider:   "siliconflow",
		AIEmbeddingModel:      "BAAI/bge-m3",
		AIEmbeddingDimensions: 1024,
		AISiliconFlowAPIKey:   "test-key",
		AISiliconFlowBaseURL:  "https://api.siliconflow.cn/v1",
		AILLMProvider:         "deepseek",
		AILLMModel:            "deepseek-chat",
		AINormalizeModel:      "deepseek-chat",
		AIDeepSeekAPIKey:      "deepseek-key",
		AIDeepSeekBaseURL:     "https://api.deepseek.com",
	}

	cfg := NewConfigFromProfile(prof)

	if !cfg.Enabled {
		t.Errorf("Expected Enabled=true, got false")
	}
	if cfg.Embedding.Provider != "siliconflow" {
		t.Errorf("Expected Embedding.Provider=siliconflow, got %s", cfg.Embedding.Provider)
	}
	if cfg.Embedding.APIKey != "test-key" {
		t.Errorf("Expected Embedding.APIKey=test-key, got %s", cfg.Embedding.APIKey)
	}
	if cfg.Embedding.BaseURL != "https://api.siliconflow.cn/v1" {
		t.Errorf("Expected Embedding.BaseURL=https://api.siliconflow.cn/v1, got %s", cfg.Embedding.BaseURL)
	}
	if cfg.Embedding.Dimensions != 1024 {
		t.Errorf("Expected Embedding.Dimensions=1024, got %d", cfg.Embedding.Dimensions)
	}

	if cfg.LLM.Provider != "deepseek" {
		t.Errorf("Expected LLM.Provider=deepseek, got %s", cfg.LLM.Provider)
	}
	if cfg.LLM.APIKey != "deepseek-key" {
		t.Errorf("Expected LLM.APIKey=deepseek-key, got %s", cfg.LLM.APIKey)
	}
	if cfg.LLM.MaxTokens != 2048 {
		t.Errorf("Expected LLM.MaxTokens=2048, got %d", cfg.LLM.MaxTokens)
	}
	if cfg.LLM.Temperature != 0.7 {
		t.Errorf("Expected LLM.Temperature=0.7, got %f", cfg.LLM.Temperature)
	}

	if cfg.Normalizer.Provider != "deepseek" || cfg.Normalizer.APIKey != "deepseek-key" {
		t.Errorf("Expected Normalizer to share LLM credentials, got %+v", cfg.Normalizer)
	}
	if cfg.Normalizer.MaxTokens != 4000 {
		t.Errorf("Expected Normalizer.MaxTokens=4000, got %d", cfg.Normalizer.MaxTokens)
	}
}

// TestNewConfigFromProfile_OpenAI tests OpenAI configuration.
func TestNewConfigFromProfile_OpenAI(t *testing.T) {
	prof := &profile.Profile{
		AIEnabled:             true,
		AIEmbeddingProvider:   "openai",
		AIEmbeddingModel:      "text-embedding-3-large",
		AIEmbeddingDimensions: 1536,
		AIOpenAIAPIKey:        "openai-key",
		AILLMProvider:         "openai",
		AILLMModel:            "gpt-4o",
		AINormalizeModel:      "gpt-4o-mini",
	}

	cfg := NewConfigFromProfile(prof)

	assert.Equal(t, "openai-key", cfg.Embedding.APIKey)
	assert.Empty(t, cfg.Embedding.BaseURL)
	assert.Equal(t, "openai-key", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "gpt-4o-mini", cfg.Normalizer.Model)
	assert.NoError(t, cfg.Validate())
}

// TestNewConfigFromProfile_Ollama tests Ollama configuration.
func TestNewConfigFromProfile_Ollama(t *testing.T) {
	prof := &profile.Profile{
		AIEnabled:             true,
		AIEmbeddingProvider:   "ollama",
		AIEmbeddingModel:      "nomic-embed-text",
		AIEmbeddingDimensions: 768,
		AIOllamaBaseURL:       "http://localhost:11434/v1",
		AILLMProvider:         "ollama",
		AILLMModel:            "llama3",
	}

	cfg := NewConfigFromProfile(prof)

	assert.Equal(t, "http://localhost:11434/v1", cfg.Embedding.BaseURL)
	assert.Empty(t, cfg.Embedding.APIKey)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.NoError(t, cfg.Validate())
}

// TestNewConfigFromProfile_Disabled tests disabled AI configuration.
func TestNewConfigFromProfile_Disabled(t *testing.T) {
	cfg := NewConfigFromProfile(&profile.Profile{AIEnabled: false})

	assert.False(t, cfg.Enabled)
	assert.Empty(t, cfg.Embedding.Provider)
	assert.NoError(t, cfg.Validate())
}

// TestValidate tests configuration validation.
func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Enabled:   true,
			Embedding: EmbeddingConfig{Provider: "openai", APIKey: "k", Dimensions: 8},
			LLM:       LLMConfig{Provider: "openai", APIKey: "k"},
		}
	}

	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing embedding provider", mutate: func(c *Config) { c.Embedding.Provider = "" }, expectError: true},
		{name: "missing embedding key", mutate: func(c *Config) { c.Embedding.APIKey = "" }, expectError: true},
		{name: "ollama embedding without key", mutate: func(c *Config) { c.Embedding = EmbeddingConfig{Provider: "ollama", Dimensions: 8} }},
		{name: "zero dimensions", mutate: func(c *Config) { c.Embedding.Dimensions = 0 }, expectError: true},
		{name: "missing LLM provider", mutate: func(c *Config) { c.LLM.Provider = "" }, expectError: true},
		{name: "missing LLM key", mutate: func(c *Config) { c.LLM.APIKey = "" }, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.expectError {
				t.Errorf("Validate() error = %v, expectError %v", err, tt.expectError)
			}
		})
	}
}
