// Package config loads and validates the memory service's runtime
// configuration from environment variables (optionally backed by a .env
// file), applying defaults first and letting explicit env vars override.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	Server    ServerConfig
	Files     FilesConfig
	Database  DatabaseConfig
	Embedding EmbeddingConfig
	Chunking  ChunkingConfig
	Search    SearchConfig
	Logging   LoggingConfig
}

// ServerConfig names the running service for MCP clients.
type ServerConfig struct {
	Name    string
	Version string
}

// FilesConfig locates the markdown tree on disk.
type FilesConfig struct {
	RootPath string
}

// DatabaseConfig describes the Postgres+pgvector index store connection.
// UseDatabase false switches the whole service into file-only mode:
// search and sync back off to StorageUnavailable/no-op.
type DatabaseConfig struct {
	UseDatabase  bool
	DSN          string
	MinConns     int32
	MaxConns     int32
}

// EmbeddingProvider enumerates the supported embedding adapters.
type EmbeddingProvider string

const (
	ProviderOpenAI      EmbeddingProvider = "openai"
	ProviderCohere      EmbeddingProvider = "cohere"
	ProviderOllama      EmbeddingProvider = "ollama"
	ProviderHuggingFace EmbeddingProvider = "huggingface"
	ProviderLiteLLM     EmbeddingProvider = "litellm"
)

// EmbeddingConfig configures the pluggable embedding adapter.
type EmbeddingConfig struct {
	Provider  EmbeddingProvider
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int // expected dimension; 0 means "trust the provider"
	BatchSize int
}

// ChunkingConfig configures the markdown chunker.
type ChunkingConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

// SearchConfig configures default search behavior and RRF fusion.
type SearchConfig struct {
	DefaultLimit int
	RRFK         int
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level string
	JSON  bool
}

// Load reads a .env file if present, then layers environment variables over
// sane defaults, and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaultConfig()
	loadServer(cfg)
	loadFiles(cfg)
	loadDatabase(cfg)
	loadEmbedding(cfg)
	loadChunking(cfg)
	loadSearch(cfg)
	loadLogging(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Name: "mdmemory", Version: "dev"},
		Files:  FilesConfig{RootPath: "./memory"},
		Database: DatabaseConfig{
			UseDatabase: true,
			MinConns:    5,
			MaxConns:    20,
		},
		Embedding: EmbeddingConfig{
			Provider:  ProviderOpenAI,
			Model:     "text-embedding-3-small",
			BatchSize: 100,
		},
		Chunking: ChunkingConfig{
			ChunkSize:    800,
			ChunkOverlap: 200,
		},
		Search: SearchConfig{
			DefaultLimit: 20,
			RRFK:         60,
		},
		Logging: LoggingConfig{
			Level: "INFO",
			JSON:  true,
		},
	}
}

func loadServer(c *Config) {
	c.Server.Name = getStringEnv("SERVICE_NAME", c.Server.Name)
	c.Server.Version = getStringEnv("SERVICE_VERSION", c.Server.Version)
}

func loadFiles(c *Config) {
	c.Files.RootPath = getStringEnv("MEMORY_FILES_PATH", c.Files.RootPath)
}

func loadDatabase(c *Config) {
	c.Database.UseDatabase = getBoolEnv("USE_DATABASE", c.Database.UseDatabase)
	c.Database.DSN = getStringEnv("DATABASE_URL", c.Database.DSN)
	c.Database.MinConns = int32(getIntEnv("DATABASE_MIN_CONNS", int(c.Database.MinConns)))
	c.Database.MaxConns = int32(getIntEnv("DATABASE_MAX_CONNS", int(c.Database.MaxConns)))
}

func loadEmbedding(c *Config) {
	if p := os.Getenv("EMBEDDING_PROVIDER"); p != "" {
		c.Embedding.Provider = EmbeddingProvider(strings.ToLower(p))
	}
	c.Embedding.APIKey = getStringEnv("EMBEDDING_API_KEY", c.Embedding.APIKey)
	c.Embedding.BaseURL = getStringEnv("EMBEDDING_BASE_URL", c.Embedding.BaseURL)
	c.Embedding.Model = getStringEnv("EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.Dimension = getIntEnv("EMBEDDING_DIMENSION", c.Embedding.Dimension)
	c.Embedding.BatchSize = getIntEnv("EMBEDDING_BATCH_SIZE", c.Embedding.BatchSize)
}

func loadChunking(c *Config) {
	c.Chunking.ChunkSize = getIntEnv("CHUNK_SIZE", c.Chunking.ChunkSize)
	c.Chunking.ChunkOverlap = getIntEnv("CHUNK_OVERLAP", c.Chunking.ChunkOverlap)
}

func loadSearch(c *Config) {
	c.Search.DefaultLimit = getIntEnv("SEARCH_LIMIT", c.Search.DefaultLimit)
	c.Search.RRFK = getIntEnv("RRF_K", c.Search.RRFK)
}

func loadLogging(c *Config) {
	c.Logging.Level = getStringEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.JSON = getBoolEnv("LOG_JSON", c.Logging.JSON)
}

// Validate rejects configurations no component could run under before
// any of them start.
func (c *Config) Validate() error {
	if c.Files.RootPath == "" {
		return fmt.Errorf("MEMORY_FILES_PATH must not be empty")
	}
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 {
		return fmt.Errorf("CHUNK_OVERLAP must not be negative, got %d", c.Chunking.ChunkOverlap)
	}
	if c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize && c.Chunking.ChunkSize > 1 {
		return fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", c.Chunking.ChunkOverlap, c.Chunking.ChunkSize)
	}
	if c.Database.UseDatabase && c.Database.DSN == "" {
		return fmt.Errorf("DATABASE_URL is required when USE_DATABASE=true")
	}
	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderCohere, ProviderOllama, ProviderHuggingFace, ProviderLiteLLM:
	default:
		return fmt.Errorf("unknown EMBEDDING_PROVIDER %q", c.Embedding.Provider)
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
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
