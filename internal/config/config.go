// Package config loads and validates the coordination engine's runtime
// configuration: backend endpoints, credentials, and the embedding and
// storage defaults the spec fixes.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// TransactionalConfig configures the primary SQLite-backed store.
type TransactionalConfig struct {
	Path               string
	MaxOpenConns       int
	BusyTimeout        time.Duration
	MigrationTimeout   time.Duration
	EnableQueryLogging bool
}

// VectorConfig configures the Qdrant vector backend.
type VectorConfig struct {
	Host           string
	Port           int
	APIKey         string
	UseTLS         bool
	CollectionName string
	Dimension      int
	DistanceMetric string
	TimeoutSeconds int
	RetryAttempts  int
}

// GraphConfig configures the Neo4j graph backend.
type GraphConfig struct {
	URI            string
	Username       string
	Password       string
	TimeoutSeconds int
}

// CacheConfig configures the Redis cache/pub-sub backend.
type CacheConfig struct {
	Addr         string
	Password     string
	DB           int
	TTL          time.Duration
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	Model          string
	Dimension      int
	RequestTimeout time.Duration
	RateLimitRPM   int
	CacheSize      int
}

// ChunkingConfig configures text chunking during ingestion.
type ChunkingConfig struct {
	MaxSentencesPerChunk int
	MaxCharsPerChunk     int
}

// GuardConfig configures the recursion and safety guard (C9).
type GuardConfig struct {
	MaxDepth            int
	WarningThreshold    int
	LoopDetectionWindow int
	MaxOverheadMs       float64
	RecoveryTimeout     time.Duration
	CircuitTripWindow   time.Duration
	MaxOpsPerSession    int
}

// ConsistencyConfig configures the default consistency behavior (C3).
type ConsistencyConfig struct {
	DefaultLevel      string
	DefaultResolution string
	SyncTimeout       time.Duration
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level   string
	UseJSON bool
}

// ServerConfig configures process-level concerns.
type ServerConfig struct {
	Name        string
	Environment string
	DataDir     string
}

// Config is the fully resolved configuration for the engine.
type Config struct {
	Server        ServerConfig
	Transactional TransactionalConfig
	Vector        VectorConfig
	Graph         GraphConfig
	Cache         CacheConfig
	Embedding     EmbeddingConfig
	Chunking      ChunkingConfig
	Guard         GuardConfig
	Consistency   ConsistencyConfig
	Logging       LoggingConfig
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:        "ltmc-engine",
			Environment: "development",
			DataDir:     "./data",
		},
		Transactional: TransactionalConfig{
			Path:             "ltmc.db",
			MaxOpenConns:     1,
			BusyTimeout:      5 * time.Second,
			MigrationTimeout: 30 * time.Second,
		},
		Vector: VectorConfig{
			Host:           "localhost",
			Port:           6334,
			CollectionName: "faiss_index",
			Dimension:      384,
			DistanceMetric: "cosine",
			TimeoutSeconds: 10,
			RetryAttempts:  3,
		},
		Graph: GraphConfig{
			URI:            "bolt://localhost:7687",
			Username:       "neo4j",
			TimeoutSeconds: 10,
		},
		Cache: CacheConfig{
			Addr:         "localhost:6379",
			DB:           0,
			TTL:          15 * time.Minute,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Model:          "all-MiniLM-L6-v2",
			Dimension:      384,
			RequestTimeout: 30 * time.Second,
			RateLimitRPM:   600,
			CacheSize:      1000,
		},
		Chunking: ChunkingConfig{
			MaxSentencesPerChunk: 5,
			MaxCharsPerChunk:     1000,
		},
		Guard: GuardConfig{
			MaxDepth:            10,
			WarningThreshold:    7,
			LoopDetectionWindow: 5,
			MaxOverheadMs:       5.0,
			RecoveryTimeout:     30 * time.Second,
			CircuitTripWindow:   60 * time.Second,
			MaxOpsPerSession:    1000,
		},
		Consistency: ConsistencyConfig{
			DefaultLevel:      "quorum",
			DefaultResolution: "last_write_wins",
			SyncTimeout:       5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:   "info",
			UseJSON: true,
		},
	}
}

// Load builds a Config from a .env file (if present) overlaid with
// environment variables, then validates it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	cfg.Server.Name = getStringEnv("LTMC_SERVER_NAME", cfg.Server.Name)
	cfg.Server.Environment = getStringEnv("LTMC_ENV", cfg.Server.Environment)
	cfg.Server.DataDir = getStringEnv("LTMC_DATA_DIR", cfg.Server.DataDir)

	cfg.Transactional.Path = getStringEnv("LTMC_DB_PATH", cfg.Transactional.Path)
	cfg.Transactional.MaxOpenConns = getIntEnv("LTMC_DB_MAX_OPEN_CONNS", cfg.Transactional.MaxOpenConns)
	cfg.Transactional.BusyTimeout = getDurationEnv("LTMC_DB_BUSY_TIMEOUT", cfg.Transactional.BusyTimeout)
	cfg.Transactional.EnableQueryLogging = getBoolEnv("LTMC_DB_LOG_QUERIES", cfg.Transactional.EnableQueryLogging)

	cfg.Vector.Host = getStringEnv("LTMC_VECTOR_HOST", cfg.Vector.Host)
	cfg.Vector.Port = getIntEnv("LTMC_VECTOR_PORT", cfg.Vector.Port)
	cfg.Vector.APIKey = getStringEnv("LTMC_VECTOR_API_KEY", cfg.Vector.APIKey)
	cfg.Vector.UseTLS = getBoolEnv("LTMC_VECTOR_TLS", cfg.Vector.UseTLS)
	cfg.Vector.CollectionName = getStringEnv("LTMC_VECTOR_COLLECTION", cfg.Vector.CollectionName)
	cfg.Vector.Dimension = getIntEnv("LTMC_EMBEDDING_DIM", cfg.Vector.Dimension)
	cfg.Vector.TimeoutSeconds = getIntEnv("LTMC_VECTOR_TIMEOUT_SECONDS", cfg.Vector.TimeoutSeconds)
	cfg.Vector.RetryAttempts = getIntEnv("LTMC_VECTOR_RETRY_ATTEMPTS", cfg.Vector.RetryAttempts)

	cfg.Graph.URI = getStringEnv("LTMC_GRAPH_URI", cfg.Graph.URI)
	cfg.Graph.Username = getStringEnv("LTMC_GRAPH_USER", cfg.Graph.Username)
	cfg.Graph.Password = getStringEnv("LTMC_GRAPH_PASSWORD", cfg.Graph.Password)
	cfg.Graph.TimeoutSeconds = getIntEnv("LTMC_GRAPH_TIMEOUT_SECONDS", cfg.Graph.TimeoutSeconds)

	cfg.Cache.Addr = getStringEnv("LTMC_CACHE_ADDR", cfg.Cache.Addr)
	cfg.Cache.Password = getStringEnv("LTMC_CACHE_PASSWORD", cfg.Cache.Password)
	cfg.Cache.DB = getIntEnv("LTMC_CACHE_DB", cfg.Cache.DB)
	cfg.Cache.TTL = getDurationEnv("LTMC_CACHE_TTL", cfg.Cache.TTL)

	cfg.Embedding.Model = getStringEnv("LTMC_EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.Dimension = getIntEnv("LTMC_EMBEDDING_DIM", cfg.Embedding.Dimension)
	cfg.Embedding.RequestTimeout = getDurationEnv("LTMC_EMBEDDING_TIMEOUT", cfg.Embedding.RequestTimeout)
	cfg.Embedding.RateLimitRPM = getIntEnv("LTMC_EMBEDDING_RATE_LIMIT_RPM", cfg.Embedding.RateLimitRPM)

	cfg.Chunking.MaxSentencesPerChunk = getIntEnv("LTMC_CHUNK_MAX_SENTENCES", cfg.Chunking.MaxSentencesPerChunk)
	cfg.Chunking.MaxCharsPerChunk = getIntEnv("LTMC_CHUNK_MAX_CHARS", cfg.Chunking.MaxCharsPerChunk)

	cfg.Guard.MaxDepth = getIntEnv("LTMC_GUARD_MAX_DEPTH", cfg.Guard.MaxDepth)
	cfg.Guard.WarningThreshold = getIntEnv("LTMC_GUARD_WARNING_THRESHOLD", cfg.Guard.WarningThreshold)
	cfg.Guard.MaxOpsPerSession = getIntEnv("LTMC_GUARD_MAX_OPS_PER_SESSION", cfg.Guard.MaxOpsPerSession)

	cfg.Consistency.DefaultLevel = getStringEnv("LTMC_CONSISTENCY_LEVEL", cfg.Consistency.DefaultLevel)
	cfg.Consistency.DefaultResolution = getStringEnv("LTMC_CONFLICT_RESOLUTION", cfg.Consistency.DefaultResolution)

	cfg.Logging.Level = getStringEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.UseJSON = getBoolEnv("LOG_JSON", cfg.Logging.UseJSON)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks invariants the rest of the engine relies on.
func (c *Config) Validate() error {
	if c.Transactional.Path == "" {
		return fmt.Errorf("transactional store path must not be empty")
	}
	if c.Vector.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.Vector.Dimension)
	}
	if c.Vector.Dimension != c.Embedding.Dimension {
		return fmt.Errorf("vector dimension (%d) and embedding dimension (%d) must match", c.Vector.Dimension, c.Embedding.Dimension)
	}
	if c.Vector.CollectionName == "" {
		return fmt.Errorf("vector collection name must not be empty")
	}
	switch strings.ToLower(c.Consistency.DefaultLevel) {
	case "primary", "quorum", "strong", "eventual":
	default:
		return fmt.Errorf("unknown default consistency level %q", c.Consistency.DefaultLevel)
	}
	if c.Guard.MaxDepth <= 0 {
		return fmt.Errorf("guard max depth must be positive")
	}
	if c.Guard.WarningThreshold >= c.Guard.MaxDepth {
		return fmt.Errorf("guard warning threshold (%d) must be less than max depth (%d)", c.Guard.WarningThreshold, c.Guard.MaxDepth)
	}
	return nil
}

func getStringEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
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

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v == "true" || v == "1"
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
