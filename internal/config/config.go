// Package config loads ragcore's process configuration from environment
// variables, following the component grouping manifold's own
// internal/config/config.go uses for its YAML tree, adapted to the env-var
// surface this system is configured through.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DatabaseConfig configures the Metadata Store (C2).
type DatabaseConfig struct {
	URL string
}

// BusConfig configures the Event Bus (C8).
type BusConfig struct {
	Backend string // "redis" (default) or "kafka"
	URL     string
}

// S3Config configures the Object Store Gateway (C1).
type S3Config struct {
	Endpoint     string
	Bucket       string
	AccessKey    string
	SecretKey    string
	Region       string
	UsePathStyle bool
	MaxObjectMB  int
}

// EmbeddingConfig configures the Embedding Provider (C5).
type EmbeddingConfig struct {
	Provider  string // "local" or "remote"
	Dimension int
	BatchSize int
	RemoteURL string
	RemoteKey string
}

// LLMConfig configures the Answer Orchestrator's LLM provider (C11).
type LLMConfig struct {
	Provider    string // "openai" | "anthropic"
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
	APIKey      string
	BaseURL     string
}

// RerankConfig configures the optional reranker used by the Retriever (C10).
type RerankConfig struct {
	Enabled bool
	URL     string
	Token   string
}

// RetrievalConfig bounds the Retriever (C10).
type RetrievalConfig struct {
	TopKDefault  int
	TopKMax      int
	MaxCtxTokens int
	MaxCtxCap    int
	MaxCtxChunks int
}

// VectorIndexConfig configures the Vector Index (C6).
type VectorIndexConfig struct {
	Backend    string // "pgvector" (default) or "qdrant"
	QdrantURL  string
	Collection string
	Metric     string
	Lists      int
	Probes     int
}

// JobsConfig configures the Job Runner (C7).
type JobsConfig struct {
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	ParseWorkers int
	ChunkWorkers int
	EmbedWorkers int
}

// QuotaConfig configures per-tenant rate/quota enforcement (C12).
type QuotaConfig struct {
	RateLimitPerMin int
	DailyTokenQuota int
}

// RealtimeConfig configures the WebSocket gateway (C9).
type RealtimeConfig struct {
	BufferLimit  int
	PingInterval time.Duration
	PingTimeout  time.Duration
}

// AuthConfig configures HTTP facade authentication (C12).
type AuthConfig struct {
	Secret      string
	RequireAuth bool
}

// Config is the root configuration tree, one field per component.
type Config struct {
	Host string
	Port int

	Database  DatabaseConfig
	Bus       BusConfig
	S3        S3Config
	Embedding EmbeddingConfig
	LLM       LLMConfig
	Rerank    RerankConfig
	Retrieval RetrievalConfig
	Vector    VectorIndexConfig
	Jobs      JobsConfig
	Quota     QuotaConfig
	Realtime  RealtimeConfig
	Auth      AuthConfig

	AnswerCacheTTL time.Duration
	LogLevel       string
}

// Load reads configuration from the process environment. A .env file in the
// current working directory is applied first (best-effort, mirrors godotenv's use in
// dev workflows) without overriding variables already set in the real
// environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Host:     getEnv("HOST", "0.0.0.0"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			URL: os.Getenv("DB_URL"),
		},
		Bus: BusConfig{
			Backend: strings.ToLower(getEnv("BUS_BACKEND", "redis")),
			URL:     firstNonEmpty(os.Getenv("BUS_URL"), os.Getenv("REDIS_URL")),
		},
		S3: S3Config{
			Endpoint:     os.Getenv("S3_ENDPOINT"),
			Bucket:       os.Getenv("S3_BUCKET"),
			AccessKey:    os.Getenv("S3_KEY"),
			SecretKey:    os.Getenv("S3_SECRET"),
			Region:       getEnv("S3_REGION", "us-east-1"),
			UsePathStyle: getEnvBool("S3_USE_PATH_STYLE", true),
			MaxObjectMB:  getEnvInt("S3_MAX_OBJECT_MB", 512),
		},
		Embedding: EmbeddingConfig{
			Provider:  strings.ToLower(getEnv("EMBED_PROVIDER", "local")),
			Dimension: getEnvInt("EMBED_DIM", 384),
			BatchSize: getEnvInt("EMBED_BATCH_SIZE", 32),
			RemoteURL: os.Getenv("REMOTE_EMBED_URL"),
			RemoteKey: os.Getenv("REMOTE_EMBED_TOKEN"),
		},
		LLM: LLMConfig{
			Provider:    strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
			Model:       getEnv("LLM_MODEL", "gpt-4o-mini"),
			Timeout:     getEnvDuration("LLM_TIMEOUT", 60*time.Second),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 1024),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.2),
			APIKey:      firstNonEmpty(os.Getenv("LLM_API_KEY"), os.Getenv("OPENAI_API_KEY"), os.Getenv("ANTHROPIC_API_KEY")),
			BaseURL:     os.Getenv("LLM_BASE_URL"),
		},
		Rerank: RerankConfig{
			Enabled: getEnvBool("RERANK_ENABLED", false),
			URL:     os.Getenv("RERANK_URL"),
			Token:   os.Getenv("RERANK_TOKEN"),
		},
		Retrieval: RetrievalConfig{
			TopKDefault:  getEnvInt("TOP_K_DEFAULT", 5),
			TopKMax:      getEnvInt("TOP_K_MAX", 50),
			MaxCtxTokens: getEnvInt("MAX_CTX_TOKENS", 2000),
			MaxCtxCap:    getEnvInt("MAX_CTX_CAP", 8000),
			MaxCtxChunks: getEnvInt("MAX_CTX_CHUNKS", 6),
		},
		Vector: VectorIndexConfig{
			Backend:    strings.ToLower(getEnv("VECTOR_BACKEND", "pgvector")),
			QdrantURL:  os.Getenv("QDRANT_URL"),
			Collection: getEnv("VECTOR_COLLECTION", "chunks"),
			Metric:     getEnv("VECTOR_METRIC", "cosine"),
			Lists:      getEnvInt("IVFFLAT_LISTS", 100),
			Probes:     getEnvInt("IVFFLAT_PROBES", 10),
		},
		Jobs: JobsConfig{
			MaxAttempts:  getEnvInt("MAX_ATTEMPTS", 5),
			BackoffBase:  getEnvDuration("BACKOFF_BASE_MS", 500*time.Millisecond),
			BackoffCap:   getEnvDuration("BACKOFF_MAX_MS", 30*time.Second),
			ParseWorkers: getEnvInt("PARSE_WORKERS", 2),
			ChunkWorkers: getEnvInt("CHUNK_WORKERS", 2),
			EmbedWorkers: getEnvInt("EMBED_WORKERS", 2),
		},
		Quota: QuotaConfig{
			RateLimitPerMin: getEnvInt("RATE_LIMIT_PER_MIN", 60),
			DailyTokenQuota: getEnvInt("DAILY_TOKEN_QUOTA", 200000),
		},
		Realtime: RealtimeConfig{
			BufferLimit:  getEnvInt("WS_BUFFER_LIMIT", 64),
			PingInterval: getEnvDuration("PING_INTERVAL", 30*time.Second),
			PingTimeout:  getEnvDuration("PING_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			Secret:      os.Getenv("AUTH_SECRET"),
			RequireAuth: getEnvBool("REQUIRE_AUTH", true),
		},
		AnswerCacheTTL: getEnvDuration("ANSWER_CACHE_TTL", 5*time.Minute),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate enforces the ConfigError class: the process refuses to start
// rather than run with an inconsistent configuration.
func (c Config) validate() error {
	if c.Auth.RequireAuth && strings.TrimSpace(c.Auth.Secret) == "" {
		return fmt.Errorf("config: AUTH_SECRET is required when REQUIRE_AUTH=true")
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("config: EMBED_DIM must be positive")
	}
	if c.Embedding.Provider == "remote" && c.Embedding.RemoteURL == "" {
		return fmt.Errorf("config: REMOTE_EMBED_URL is required when EMBED_PROVIDER=remote")
	}
	switch c.Vector.Backend {
	case "pgvector", "qdrant":
	default:
		return fmt.Errorf("config: unsupported VECTOR_BACKEND %q", c.Vector.Backend)
	}
	if c.Vector.Backend == "qdrant" && c.Vector.QdrantURL == "" {
		return fmt.Errorf("config: QDRANT_URL is required when VECTOR_BACKEND=qdrant")
	}
	switch c.Bus.Backend {
	case "redis", "kafka":
	default:
		return fmt.Errorf("config: unsupported BUS_BACKEND %q", c.Bus.Backend)
	}
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("config: unsupported LLM_PROVIDER %q", c.LLM.Provider)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	// Bare integers are treated as milliseconds (BACKOFF_BASE_MS etc.);
	// anything parseable by time.ParseDuration wins otherwise.
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
