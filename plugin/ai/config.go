package ai

import (
	"errors"

	"github.com/hrygo/yapper/internal/profile"
)

// Config represents AI configuration.
type Config struct {
	Enabled bool

	Embedding  EmbeddingConfig
	LLM        LLMConfig
	Normalizer LLMConfig
}

// EmbeddingConfig represents vector embedding configuration.
type EmbeddingConfig struct {
	Provider   string // openai, siliconflow, ollama
	Model      string // text-embedding-3-large
	Dimensions int    // 1536
	APIKey     string
	BaseURL    string
}

// LLMConfig represents LLM configuration.
type LLMConfig struct {
	Provider    string // openai, deepseek, ollama
	Model       string // gpt-4o
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 2048
	Temperature float32 // default: 0.7
}

// NewConfigFromProfile creates AI config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := &Config{
		Enabled: p.AIEnabled,
	}

	if !cfg.Enabled {
		return cfg
	}

	cfg.Embedding = EmbeddingConfig{
		Provider:   p.AIEmbeddingProvider,
		Model:      p.AIEmbeddingModel,
		Dimensions: p.AIEmbeddingDimensions,
	}
	cfg.Embedding.APIKey, cfg.Embedding.BaseURL = credentialsFor(p, p.AIEmbeddingProvider)

	cfg.LLM = LLMConfig{
		Provider:    p.AILLMProvider,
		Model:       p.AILLMModel,
		MaxTokens:   2048,
		Temperature: 0.7,
	}
	cfg.LLM.APIKey, cfg.LLM.BaseURL = credentialsFor(p, p.AILLMProvider)

	// Normalization restates a whole entry, so it gets a larger budget.
	cfg.Normalizer = cfg.LLM
	cfg.Normalizer.Model = p.AINormalizeModel
	cfg.Normalizer.MaxTokens = 4000
	cfg.Normalizer.Temperature = 1

	return cfg
}

func credentialsFor(p *profile.Profile, provider string) (apiKey, baseURL string) {
	switch provider {
	case "openai":
		return p.AIOpenAIAPIKey, p.AIOpenAIBaseURL
	case "siliconflow":
		return p.AISiliconFlowAPIKey, p.AISiliconFlowBaseURL
	case "deepseek":
		return p.AIDeepSeekAPIKey, p.AIDeepSeekBaseURL
	case "ollama":
		return "", p.AIOllamaBaseURL
	}
	return "", ""
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Embedding.Provider == "" {
		return errors.New("embedding provider is required")
	}

	if c.Embedding.Provider != "ollama" && c.Embedding.APIKey == "" {
		return errors.New("embedding API key is required")
	}

	if c.Embedding.Dimensions <= 0 {
		return errors.New("embedding dimensions must be positive")
	}

	if c.LLM.Provider == "" {
		return errors.New("LLM provider is required")
	}

	if c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		return errors.New("LLM API key is required")
	}

	return nil
}
