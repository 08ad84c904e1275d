package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where yapper stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string
	// Secret signs bearer tokens (HS256).
	Secret string

	// AI Configuration
	AIEnabled             bool   // YAPPER_AI_ENABLED (default: true)
	AIEmbeddingProvider   string // YAPPER_AI_EMBEDDING_PROVIDER (default: openai)
	AILLMProvider         string // YAPPER_AI_LLM_PROVIDER (default: openai)
	AIOpenAIAPIKey        string // YAPPER_AI_OPENAI_API_KEY (legacy: OPENAI_API_KEY)
	AIOpenAIBaseURL       string // YAPPER_AI_OPENAI_BASE_URL (default: https://api.openai.com/v1)
	AISiliconFlowAPIKey   string // YAPPER_AI_SILICONFLOW_API_KEY
	AISiliconFlowBaseURL  string // YAPPER_AI_SILICONFLOW_BASE_URL (default: https://api.siliconflow.cn/v1)
	AIDeepSeekAPIKey      string // YAPPER_AI_DEEPSEEK_API_KEY
	AIDeepSeekBaseURL     string // YAPPER_AI_DEEPSEEK_BASE_URL (default: https://api.deepseek.com)
	AIOllamaBaseURL       string // YAPPER_AI_OLLAMA_BASE_URL (default: http://localhost:11434/v1)
	AIEmbeddingModel      string // YAPPER_AI_EMBEDDING_MODEL (default: text-embedding-3-large)
	AIEmbeddingDimensions int    // YAPPER_AI_EMBEDDING_DIMENSIONS (default: 1536)
	AILLMModel            string // YAPPER_AI_LLM_MODEL (default: gpt-4o)
	AINormalizeModel      string // YAPPER_AI_NORMALIZE_MODEL (default: gpt-4o-mini)

	// Indexing and request limits
	EmbedOnWrite     bool          // YAPPER_EMBED_ON_WRITE (default: true)
	BackfillInterval time.Duration // YAPPER_BACKFILL_INTERVAL (default: 0, disabled)
	RateLimitRPS     float64       // YAPPER_RATE_LIMIT_RPS (default: 10)
	RateLimitBurst   int           // YAPPER_RATE_LIMIT_BURST (default: 20)
}

const (
	DefaultEmbeddingDimensions = 1536
	DefaultRateLimitRPS        = 10
	DefaultRateLimitBurst      = 20
)

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if AI is enabled and at least one API key or base URL is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.AIEnabled && (p.AIOpenAIAPIKey != "" || p.AISiliconFlowAPIKey != "" || p.AIDeepSeekAPIKey != "" || p.AIEmbeddingProvider == "ollama")
}

// FromEnv loads configuration from environment variables.
// YAPPER_* keys win; a few unprefixed legacy keys are honoured as fallbacks.
// Values already set on the profile (e.g. from flags) are kept for DSN and Secret.
func (p *Profile) FromEnv() {
	getEnvWithDefault := func(key, legacyKey, defaultValue string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		if legacyKey != "" {
			if val := os.Getenv(legacyKey); val != "" {
				return val
			}
		}
		return defaultValue
	}

	getBoolEnv := func(key string, defaultValue bool) bool {
		val := os.Getenv(key)
		if val == "" {
			return defaultValue
		}
		b, err := strconv.ParseBool(val)
		if err != nil {
			slog.Warn("invalid boolean in environment, using default", "key", key, "default", defaultValue)
			return defaultValue
		}
		return b
	}

	getIntEnv := func(key string, defaultValue int) int {
		val := os.Getenv(key)
		if val == "" {
			return defaultValue
		}
		n, err := strconv.Atoi(val)
		if err != nil || n <= 0 {
			slog.Warn("invalid integer in environment, using default", "key", key, "default", defaultValue)
			return defaultValue
		}
		return n
	}

	p.AIEnabled = getBoolEnv("YAPPER_AI_ENABLED", true)
	p.AIEmbeddingProvider = getEnvWithDefault("YAPPER_AI_EMBEDDING_PROVIDER", "", "openai")
	p.AILLMProvider = getEnvWithDefault("YAPPER_AI_LLM_PROVIDER", "", "openai")
	p.AIOpenAIAPIKey = getEnvWithDefault("YAPPER_AI_OPENAI_API_KEY", "OPENAI_API_KEY", "")
	p.AIOpenAIBaseURL = getEnvWithDefault("YAPPER_AI_OPENAI_BASE_URL", "", "https://api.openai.com/v1")
	p.AISiliconFlowAPIKey = getEnvWithDefault("YAPPER_AI_SILICONFLOW_API_KEY", "", "")
	p.AISiliconFlowBaseURL = getEnvWithDefault("YAPPER_AI_SILICONFLOW_BASE_URL", "", "https://api.siliconflow.cn/v1")
	p.AIDeepSeekAPIKey = getEnvWithDefault("YAPPER_AI_DEEPSEEK_API_KEY", "", "")
	p.AIDeepSeekBaseURL = getEnvWithDefault("YAPPER_AI_DEEPSEEK_BASE_URL", "", "https://api.deepseek.com")
	p.AIOllamaBaseURL = getEnvWithDefault("YAPPER_AI_OLLAMA_BASE_URL", "", "http://localhost:11434/v1")
	p.AIEmbeddingModel = getEnvWithDefault("YAPPER_AI_EMBEDDING_MODEL", "", "text-embedding-3-large")
	p.AIEmbeddingDimensions = getIntEnv("YAPPER_AI_EMBEDDING_DIMENSIONS", DefaultEmbeddingDimensions)
	p.AILLMModel = getEnvWithDefault("YAPPER_AI_LLM_MODEL", "", "gpt-4o")
	p.AINormalizeModel = getEnvWithDefault("YAPPER_AI_NORMALIZE_MODEL", "", "gpt-4o-mini")

	p.EmbedOnWrite = getBoolEnv("YAPPER_EMBED_ON_WRITE", true)
	p.BackfillInterval = 0
	if val := os.Getenv("YAPPER_BACKFILL_INTERVAL"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil || d < 0 {
			slog.Warn("invalid duration in environment, backfill loop disabled", "key", "YAPPER_BACKFILL_INTERVAL")
		} else {
			p.BackfillInterval = d
		}
	}

	p.RateLimitRPS = DefaultRateLimitRPS
	if val := os.Getenv("YAPPER_RATE_LIMIT_RPS"); val != "" {
		rps, err := strconv.ParseFloat(val, 64)
		if err != nil || rps <= 0 {
			slog.Warn("invalid number in environment, using default", "key", "YAPPER_RATE_LIMIT_RPS", "default", DefaultRateLimitRPS)
		} else {
			p.RateLimitRPS = rps
		}
	}
	p.RateLimitBurst = getIntEnv("YAPPER_RATE_LIMIT_BURST", DefaultRateLimitBurst)

	if p.DSN == "" {
		p.DSN = getEnvWithDefault("YAPPER_DSN", "DATABASE_URL", "")
	}
	if p.Secret == "" {
		p.Secret = getEnvWithDefault("YAPPER_SECRET", "SECRET_KEY", "")
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported database driver %q", p.Driver)
	}

	if p.Mode == "prod" && p.Secret == "" {
		return errors.New("a token secret is required in prod mode")
	}

	if p.AIEmbeddingDimensions <= 0 {
		p.AIEmbeddingDimensions = DefaultEmbeddingDimensions
	}

	if p.Driver == "postgres" {
		if p.DSN == "" {
			return errors.New("dsn is required for the postgres driver")
		}
		return nil
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "yapper")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/yapper"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check dsn", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.DSN == "" {
		dbFile := fmt.Sprintf("yapper_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	return nil
}
