// Package server assembles the HTTP API, the AI services and the background
// backfill runner around one store.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/hrygo/yapper/internal/profile"
	"github.com/hrygo/yapper/plugin/ai"
	"github.com/hrygo/yapper/server/internal/observability"
	"github.com/hrygo/yapper/server/middleware"
	"github.com/hrygo/yapper/server/retrieval"
	apiv1 "github.com/hrygo/yapper/server/router/api/v1"
	embeddingrunner "github.com/hrygo/yapper/server/runner/embedding"
	"github.com/hrygo/yapper/server/service/entry"
	"github.com/hrygo/yapper/store"
)

const (
	queryCacheSize = 1000
	queryCacheTTL  = 10 * time.Minute
	bodyLimit      = "1M"
)

type Server struct {
	Secret  string
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	runner     *embeddingrunner.Runner
	cancel     context.CancelFunc
}

// AIServices are the model clients built from the profile.
type AIServices struct {
	Embedding  ai.EmbeddingService
	LLM        ai.LLMService
	Normalizer ai.Normalizer
}

// ErrAIDisabled is returned by NewAIServices when the profile turns AI off.
var ErrAIDisabled = errors.New("AI is disabled")

// NewAIServices builds the model clients.
func NewAIServices(p *profile.Profile) (*AIServices, error) {
	if !p.IsAIEnabled() {
		return nil, ErrAIDisabled
	}
	cfg := ai.NewConfigFromProfile(p)
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid AI configuration")
	}

	embedding, err := ai.NewEmbeddingService(&cfg.Embedding)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create embedding service")
	}
	llm, err := ai.NewLLMService(&cfg.LLM)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create LLM service")
	}
	normalizeLLM, err := ai.NewLLMService(&cfg.Normalizer)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create normalizer service")
	}

	return &AIServices{
		Embedding:  embedding,
		LLM:        llm,
		Normalizer: ai.NewNormalizer(normalizeLLM),
	}, nil
}

// NewServer wires the API. A nil services disables search, chat and backfill.
func NewServer(p *profile.Profile, st *store.Store, services *AIServices) (*Server, error) {
	secret := p.Secret
	if secret == "" {
		if !p.IsDev() {
			return nil, errors.New("a token secret is required")
		}
		var err error
		if secret, err = randomSecret(); err != nil {
			return nil, err
		}
		slog.Warn("no token secret configured, using a random one for this run")
	}

	s := &Server{
		Secret:  secret,
		Profile: p,
		Store:   st,
	}

	echoServer := echo.New()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(echomiddleware.Recover())
	echoServer.Use(echomiddleware.BodyLimit(bodyLimit))
	s.echoServer = echoServer

	apiV1Service := &apiv1.APIV1Service{
		Secret:      secret,
		Profile:     p,
		Metrics:     observability.NewMetrics(),
		RateLimiter: middleware.NewRateLimiter(p.RateLimitRPS, p.RateLimitBurst),
	}

	if services != nil {
		queryEmbedding := ai.NewCachedEmbeddingService(services.Embedding, queryCacheSize, queryCacheTTL)
		retriever := retrieval.NewRetriever(st, queryEmbedding)
		s.runner = embeddingrunner.NewRunner(st, services.Embedding, services.Normalizer, p.BackfillInterval)

		apiV1Service.EntryService = entry.NewService(st, services.Embedding, services.Normalizer, p.EmbedOnWrite)
		apiV1Service.Searcher = retriever
		apiV1Service.Answerer = retrieval.NewResponder(retriever, services.LLM, retrieval.DefaultMaxContextChars)
		apiV1Service.Backfiller = s.runner
	} else {
		slog.Warn("AI is disabled, search and chat are unavailable")
		apiV1Service.EntryService = entry.NewService(st, nil, nil, false)
	}

	apiV1Service.RegisterRoutes(echoServer)
	return s, nil
}

// Start begins serving and launches the backfill loop. It returns once the
// listener is bound.
func (s *Server) Start(ctx context.Context) error {
	address := net.JoinHostPort(s.Profile.Addr, strconv.Itoa(s.Profile.Port))
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", address)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	if s.runner != nil {
		go s.runner.Run(runCtx)
	}

	s.echoServer.Listener = listener
	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", "error", err)
		}
	}()

	slog.Info("server started", "address", listener.Addr().String(), "mode", s.Profile.Mode, "driver", s.Profile.Driver)
	return nil
}

// Shutdown stops the runner and the HTTP server, then closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	slog.Info("server shutting down")
	if s.cancel != nil {
		s.cancel()
	}
	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", slog.String("error", err.Error()))
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", slog.String("error", err.Error()))
	}
	slog.Info("server stopped properly")
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
