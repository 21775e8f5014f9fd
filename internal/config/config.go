package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Backends.
const (
	VectorRedis    = "redis"
	VectorPgvector = "pgvector"
	VectorMemory   = "memory"

	RecordsSQLite   = "sqlite"
	RecordsPostgres = "postgres"

	LeaseRedis = "redis"
	LeaseLocal = "local"

	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds the MachineGPT configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Database    DatabaseConfig    `yaml:"database"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	SQLite      SQLiteConfig      `yaml:"sqlite"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Records     RecordsConfig     `yaml:"records"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Generation  GenerationConfig  `yaml:"generation"`
	Captioning  CaptioningConfig  `yaml:"captioning"`
	Ingestion   IngestionConfig   `yaml:"ingestion"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Auth        AuthConfig        `yaml:"auth"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds tenant token settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
	LeewaySec int    `yaml:"leeway_sec"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds Redis/Valkey connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// PostgresConfig holds the Postgres pool settings.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
}

// SQLiteConfig holds the SQLite records file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// VectorStoreConfig selects and tunes the vector backend.
type VectorStoreConfig struct {
	Backend            string `yaml:"backend"` // redis (default), pgvector, memory
	Dimensions         int    `yaml:"dimensions"`
	HNSWM              int    `yaml:"hnsw_m"`
	HNSWEFConstruction int    `yaml:"hnsw_ef_construction"`
	HNSWEFRuntime      int    `yaml:"hnsw_ef_runtime"`
}

// RecordsConfig selects the document records backend.
type RecordsConfig struct {
	Backend string `yaml:"backend"` // sqlite (default), postgres
}

// EmbeddingConfig holds the embedding provider and its decorators.
type EmbeddingConfig struct {
	Provider            string          `yaml:"provider"`
	APIKey              string          `yaml:"api_key"`
	BaseURL             string          `yaml:"base_url"`
	Model               string          `yaml:"model"`
	Dimensions          int             `yaml:"dimensions"`
	DocumentInstruction string          `yaml:"document_instruction"`
	QueryInstruction    string          `yaml:"query_instruction"`
	BatchSize           int             `yaml:"batch_size"`
	RateLimit           RateLimitConfig `yaml:"rate_limit"`
	Cache               CacheConfig     `yaml:"cache"`
}

// RateLimitConfig throttles provider calls. RPS 0 disables the limiter.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// CacheConfig controls the Redis embedding cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	TTLSec  int  `yaml:"ttl_sec"`
}

// GenerationConfig holds the answer provider settings.
type GenerationConfig struct {
	Provider    string   `yaml:"provider"` // openai (default), anthropic
	APIKey      string   `yaml:"api_key"`
	BaseURL     string   `yaml:"base_url"`
	Model       string   `yaml:"model"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"`
	// ContextTokenBudget caps prompt tokens; 0 disables trimming.
	ContextTokenBudget int    `yaml:"context_token_budget"`
	TokenizerModel     string `yaml:"tokenizer_model"`
}

// CaptioningConfig holds the vision provider used to caption manual images.
type CaptioningConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// IngestionConfig holds chunking, upsert and upload settings.
type IngestionConfig struct {
	ChunkSize       int    `yaml:"chunk_size"`
	ChunkOverlap    int    `yaml:"chunk_overlap"`
	UpsertBatchSize int    `yaml:"upsert_batch_size"`
	MaxAttempts     int    `yaml:"max_attempts"`
	BaseBackoffMS   int    `yaml:"base_backoff_ms"`
	Concurrency     int    `yaml:"concurrency"`
	LeaseBackend    string `yaml:"lease_backend"` // local (default), redis
	LeaseTTLSec     int    `yaml:"lease_ttl_sec"`
	MaxUploadBytes  int64  `yaml:"max_upload_bytes"`
	ImagesDir       string `yaml:"images_dir"`
	ImagesBaseURL   string `yaml:"images_base_url"`
}

// RetrievalConfig holds ranking and answer composition limits.
type RetrievalConfig struct {
	TopK         int      `yaml:"top_k"`
	Threshold    *float64 `yaml:"threshold"`
	ContextLimit int      `yaml:"context_limit"`
	MaxImages    int      `yaml:"max_images"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads, expands, defaults and validates one YAML file.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 300
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Postgres.MaxConns <= 0 {
		c.Postgres.MaxConns = 10
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = "machinegpt.db"
	}

	if c.VectorStore.Backend == "" {
		c.VectorStore.Backend = VectorRedis
	}
	if c.VectorStore.HNSWM <= 0 {
		c.VectorStore.HNSWM = 16
	}
	if c.VectorStore.HNSWEFConstruction <= 0 {
		c.VectorStore.HNSWEFConstruction = 200
	}
	if c.Records.Backend == "" {
		c.Records.Backend = RecordsSQLite
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = ProviderOpenAI
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.VectorStore.Dimensions <= 0 {
		c.VectorStore.Dimensions = c.Embedding.Dimensions
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 100
	}
	if c.Embedding.RateLimit.RPS > 0 && c.Embedding.RateLimit.Burst <= 0 {
		c.Embedding.RateLimit.Burst = 1
	}
	if c.Embedding.Cache.TTLSec <= 0 {
		c.Embedding.Cache.TTLSec = 7 * 24 * 3600
	}

	if c.Generation.Provider == "" {
		c.Generation.Provider = ProviderOpenAI
	}
	if c.Generation.Model == "" {
		c.Generation.Model = "gpt-4o-mini"
	}
	if c.Generation.MaxTokens <= 0 {
		c.Generation.MaxTokens = 1000
	}
	if c.Generation.Temperature == nil {
		t := 0.3
		c.Generation.Temperature = &t
	}
	if c.Generation.TokenizerModel == "" {
		c.Generation.TokenizerModel = c.Generation.Model
	}
	if c.Captioning.Model == "" {
		c.Captioning.Model = "gpt-4o-mini"
	}
	if c.Captioning.APIKey == "" {
		c.Captioning.APIKey = c.Embedding.APIKey
	}

	if c.Ingestion.ChunkSize <= 0 {
		c.Ingestion.ChunkSize = 800
	}
	if c.Ingestion.ChunkOverlap == 0 {
		c.Ingestion.ChunkOverlap = 150
	}
	if c.Ingestion.UpsertBatchSize <= 0 {
		c.Ingestion.UpsertBatchSize = 100
	}
	if c.Ingestion.MaxAttempts <= 0 {
		c.Ingestion.MaxAttempts = 3
	}
	if c.Ingestion.BaseBackoffMS <= 0 {
		c.Ingestion.BaseBackoffMS = 200
	}
	if c.Ingestion.Concurrency <= 0 {
		c.Ingestion.Concurrency = 1
	}
	if c.Ingestion.LeaseBackend == "" {
		c.Ingestion.LeaseBackend = LeaseLocal
	}
	if c.Ingestion.LeaseTTLSec <= 0 {
		c.Ingestion.LeaseTTLSec = 600
	}
	if c.Ingestion.MaxUploadBytes <= 0 {
		c.Ingestion.MaxUploadBytes = 50 << 20
	}
	if c.Ingestion.ImagesBaseURL == "" {
		c.Ingestion.ImagesBaseURL = "/img"
	}

	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 5
	}
	if c.Retrieval.Threshold == nil {
		t := 0.5
		c.Retrieval.Threshold = &t
	}
	if c.Retrieval.ContextLimit <= 0 {
		c.Retrieval.ContextLimit = 3
	}
	if c.Retrieval.MaxImages <= 0 {
		c.Retrieval.MaxImages = 3
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.VectorStore.Backend {
	case VectorRedis, VectorPgvector, VectorMemory:
	default:
		return fmt.Errorf("vector_store.backend must be redis, pgvector or memory, got %q", c.VectorStore.Backend)
	}
	switch c.Records.Backend {
	case RecordsSQLite, RecordsPostgres:
	default:
		return fmt.Errorf("records.backend must be sqlite or postgres, got %q", c.Records.Backend)
	}
	switch c.Ingestion.LeaseBackend {
	case LeaseLocal, LeaseRedis:
	default:
		return fmt.Errorf("ingestion.lease_backend must be local or redis, got %q", c.Ingestion.LeaseBackend)
	}
	switch c.Generation.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("generation.provider must be openai or anthropic, got %q", c.Generation.Provider)
	}

	if c.NeedsRedis() && len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required for the redis vector store, lease or embedding cache")
	}
	if c.NeedsPostgres() && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required for the postgres records or pgvector backends")
	}
	if c.VectorStore.Dimensions != c.Embedding.Dimensions {
		return fmt.Errorf("vector_store.dimensions (%d) must match embedding.dimensions (%d)",
			c.VectorStore.Dimensions, c.Embedding.Dimensions)
	}

	if c.Ingestion.ChunkOverlap < 0 || c.Ingestion.ChunkOverlap >= c.Ingestion.ChunkSize {
		return fmt.Errorf("ingestion.chunk_overlap (%d) must be in [0, chunk_size=%d)",
			c.Ingestion.ChunkOverlap, c.Ingestion.ChunkSize)
	}
	if t := *c.Retrieval.Threshold; t < 0 || t >= 1 {
		return fmt.Errorf("retrieval.threshold must be in [0, 1), got %v", t)
	}
	if t := *c.Generation.Temperature; t < 0 || t > 2 {
		return fmt.Errorf("generation.temperature must be in [0, 2], got %v", t)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	return nil
}

// NeedsRedis reports whether any configured component talks to Redis/Valkey.
func (c *Config) NeedsRedis() bool {
	return c.VectorStore.Backend == VectorRedis ||
		c.Ingestion.LeaseBackend == LeaseRedis ||
		c.Embedding.Cache.Enabled
}

// NeedsPostgres reports whether any configured component talks to Postgres.
func (c *Config) NeedsPostgres() bool {
	return c.Records.Backend == RecordsPostgres || c.VectorStore.Backend == VectorPgvector
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
