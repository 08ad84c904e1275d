package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/yapper/internal/profile"
	"github.com/hrygo/yapper/plugin/ai"
	storetest "github.com/hrygo/yapper/store/test"
)

func testProfile() *profile.Profile {
	return &profile.Profile{
		Mode:           "dev",
		Addr:           "127.0.0.1",
		Port:           0,
		Driver:         "sqlite",
		Version:        "test",
		RateLimitRPS:   10,
		RateLimitBurst: 20,
	}
}

func TestNewAIServices_Disabled(t *testing.T) {
	services, err := NewAIServices(&profile.Profile{AIEnabled: false})
	assert.ErrorIs(t, err, ErrAIDisabled)
	assert.Nil(t, services)
}

func TestNewAIServices(t *testing.T) {
	p := &profile.Profile{
		AIEnabled:             true,
		AIEmbeddingProvider:   "openai",
		AILLMProvider:         "openai",
		AIOpenAIAPIKey:        "sk-test",
		AIEmbeddingModel:      "text-embedding-3-large",
		AIEmbeddingDimensions: 1536,
		AILLMModel:            "gpt-4o",
		AINormalizeModel:      "gpt-4o-mini",
	}
	services, err := NewAIServices(p)
	require.NoError(t, err)
	require.NotNil(t, services)
	assert.Equal(t, 1536, services.Embedding.Dimensions())
	assert.NotNil(t, services.LLM)
	assert.NotNil(t, services.Normalizer)

	p.AIEmbeddingProvider = "unknown"
	_, err = NewAIServices(p)
	assert.Error(t, err)
}

func TestNewServer_RequiresSecretInProd(t *testing.T) {
	p := testProfile()
	p.Mode = "prod"

	_, err := NewServer(p, storetest.NewTestingStore(context.Background(), t), nil)
	assert.Error(t, err)
}

func TestNewServer_DevGeneratesSecret(t *testing.T) {
	s, err := NewServer(testProfile(), storetest.NewTestingStore(context.Background(), t), nil)
	require.NoError(t, err)
	assert.Len(t, s.Secret, 64)
	assert.Nil(t, s.runner)
}

func TestServer_Healthz(t *testing.T) {
	ctx := context.Background()
	services := &AIServices{
		Embedding:  ai.NewMockEmbeddingService(storetest.TestDimensions),
		LLM:        &ai.MockLLMService{Reply: "ok"},
		Normalizer: ai.NewNormalizer(&ai.MockLLMService{Reply: "normalized"}),
	}
	p := testProfile()
	p.Secret = "secret"

	s, err := NewServer(p, storetest.NewTestingStore(ctx, t), services)
	require.NoError(t, err)
	assert.NotNil(t, s.runner)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, true, body["ai_enabled"])

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/entries", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_StartShutdown(t *testing.T) {
	ctx := context.Background()
	p := testProfile()
	p.Secret = "secret"

	s, err := NewServer(p, storetest.NewTestingStore(ctx, t), nil)
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx))

	resp, err := http.Get("http://" + s.echoServer.Listener.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	s.Shutdown(ctx)
}
