package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/hrygo/yapper/plugin/ai/timeout"
)

// EmbeddingService is the vector embedding service interface.
type EmbeddingService interface {
	// Embed generates vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates vectors for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimension.
	Dimensions() int

	// Model returns the embedding model identifier.
	Model() string
}

type embeddingService struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewEmbeddingService creates a new EmbeddingService.
func NewEmbeddingService(cfg *EmbeddingConfig) (EmbeddingService, error) {
	clientConfig, err := newClientConfig(cfg.Provider, cfg.APIKey, cfg.BaseURL, "embedding")
	if err != nil {
		return nil, err
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("invalid embedding dimensions: %d", cfg.Dimensions)
	}

	return &embeddingService{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}, nil
}

// newClientConfig builds a go-openai config; every supported provider speaks the OpenAI wire format.
func newClientConfig(provider, apiKey, baseURL, kind string) (openai.ClientConfig, error) {
	switch provider {
	case "openai", "siliconflow", "deepseek", "ollama":
	default:
		return openai.ClientConfig{}, fmt.Errorf("unsupported %s provider: %s", kind, provider)
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	return clientConfig, nil
}

func (s *embeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (s *embeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, &EmptyInputError{Field: "embedding batch"}
	}
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, ErrEmptyInput
		}
	}

	req := openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(s.model),
		Dimensions: s.dimensions,
	}

	ctx, cancel := context.WithTimeout(ctx, timeout.EmbeddingTimeout)
	defer cancel()

	resp, err := s.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, newEmbeddingError(err)
	}

	if len(resp.Data) != len(texts) {
		return nil, &EmbeddingError{
			Reason: ReasonMalformed,
			Cause:  fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)),
		}
	}

	// The service may return items out of order; Index is authoritative.
	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(texts) || vectors[data.Index] != nil {
			return nil, &EmbeddingError{Reason: ReasonMalformed, Cause: fmt.Errorf("unexpected embedding index %d", data.Index)}
		}
		if len(data.Embedding) != s.dimensions {
			return nil, &EmbeddingError{
				Reason: ReasonMalformed,
				Cause:  fmt.Errorf("embedding has %d dimensions, want %d", len(data.Embedding), s.dimensions),
			}
		}
		vectors[data.Index] = data.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, &EmbeddingError{Reason: ReasonMalformed, Cause: fmt.Errorf("missing embedding at index %d", i)}
		}
	}

	return vectors, nil
}

func (s *embeddingService) Dimensions() int {
	return s.dimensions
}

func (s *embeddingService) Model() string {
	return s.model
}
