package ai

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
)

// MockEmbeddingService is an in-memory EmbeddingService for tests.
// Vectors are looked up by exact text; unknown texts get a deterministic
// vector derived from a hash of the text.
type MockEmbeddingService struct {
	Dim     int
	Vectors map[string][]float32
	Err     error

	mu    sync.Mutex
	calls []string
}

// NewMockEmbeddingService creates a mock producing vectors of the given size.
func NewMockEmbeddingService(dim int) *MockEmbeddingService {
	return &MockEmbeddingService{Dim: dim, Vectors: map[string][]float32{}}
}

func (m *MockEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (m *MockEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, &EmptyInputError{Field: "embedding batch"}
	}
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, ErrEmptyInput
		}
	}

	m.mu.Lock()
	m.calls = append(m.calls, texts...)
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, newEmbeddingError(err)
	}
	if m.Err != nil {
		return nil, m.Err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := m.Vectors[text]; ok {
			out[i] = v
			continue
		}
		out[i] = hashVector(text, m.Dim)
	}
	return out, nil
}

func (m *MockEmbeddingService) Dimensions() int { return m.Dim }

func (m *MockEmbeddingService) Model() string { return "mock-embedding" }

// Calls returns every text passed to the mock so far.
func (m *MockEmbeddingService) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func hashVector(text string, dim int) []float32 {
	v := make([]float32, dim)
	h := fnv.New64a()
	for i := range v {
		h.Write([]byte(text))
		v[i] = float32(h.Sum64()%1000)/1000 + 0.001
	}
	return v
}

// MockLLMService is an LLMService returning a canned reply.
type MockLLMService struct {
	Reply string
	Err   error
	// ReplyFunc, when set, takes precedence over Reply.
	ReplyFunc func(messages []Message) string

	mu   sync.Mutex
	last []Message
	n    int
}

func (m *MockLLMService) Chat(ctx context.Context, messages []Message) (string, error) {
	m.mu.Lock()
	m.last = messages
	m.n++
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", newCompletionError(err)
	}
	if m.Err != nil {
		return "", m.Err
	}
	if m.ReplyFunc != nil {
		return m.ReplyFunc(messages), nil
	}
	return m.Reply, nil
}

// LastMessages returns the messages of the most recent call.
func (m *MockLLMService) LastMessages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// CallCount returns how many times Chat was invoked.
func (m *MockLLMService) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.n
}

var (
	_ EmbeddingService = (*MockEmbeddingService)(nil)
	_ LLMService       = (*MockLLMService)(nil)
)
