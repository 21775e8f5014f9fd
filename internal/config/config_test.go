package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
		Auth:     AuthConfig{JWTSecret: "secret"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.VectorStore.Backend != VectorRedis || cfg.Records.Backend != RecordsSQLite {
		t.Errorf("unexpected backends %q/%q", cfg.VectorStore.Backend, cfg.Records.Backend)
	}
	if cfg.Ingestion.ChunkSize != 800 || cfg.Ingestion.ChunkOverlap != 150 {
		t.Errorf("expected chunking 800/150, got %d/%d", cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap)
	}
	if cfg.Ingestion.UpsertBatchSize != 100 || cfg.Ingestion.MaxAttempts != 3 || cfg.Ingestion.BaseBackoffMS != 200 {
		t.Errorf("unexpected upsert defaults %+v", cfg.Ingestion)
	}
	if cfg.Retrieval.TopK != 5 || *cfg.Retrieval.Threshold != 0.5 || cfg.Retrieval.ContextLimit != 3 || cfg.Retrieval.MaxImages != 3 {
		t.Errorf("unexpected retrieval defaults %+v", cfg.Retrieval)
	}
	if cfg.Generation.MaxTokens != 1000 || *cfg.Generation.Temperature != 0.3 {
		t.Errorf("unexpected generation defaults %+v", cfg.Generation)
	}
	if cfg.Generation.TokenizerModel != cfg.Generation.Model {
		t.Errorf("tokenizer model must follow the generation model, got %q", cfg.Generation.TokenizerModel)
	}
	if cfg.VectorStore.Dimensions != 1536 || cfg.Embedding.Dimensions != 1536 {
		t.Errorf("unexpected dimensions %d/%d", cfg.VectorStore.Dimensions, cfg.Embedding.Dimensions)
	}
	if cfg.HTTP.ShutdownSec != 10 || cfg.Database.ReadinessTimeout != 10 {
		t.Errorf("unexpected timeouts %+v %+v", cfg.HTTP, cfg.Database)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	zero := 0.0
	cfg := Config{
		HTTP:       HTTPConfig{ReadTimeoutSec: 5, WriteTimeoutSec: 60},
		Generation: GenerationConfig{Temperature: &zero, Model: "claude-x", TokenizerModel: "cl100k_base"},
		Retrieval:  RetrievalConfig{Threshold: &zero, TopK: 10},
		Ingestion:  IngestionConfig{ChunkSize: 400, ChunkOverlap: 50},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 5 || cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("timeouts overridden: %+v", cfg.HTTP)
	}
	if *cfg.Generation.Temperature != 0 || *cfg.Retrieval.Threshold != 0 {
		t.Error("explicit zero temperature and threshold must survive defaults")
	}
	if cfg.Generation.TokenizerModel != "cl100k_base" || cfg.Retrieval.TopK != 10 {
		t.Errorf("overridden: %+v %+v", cfg.Generation, cfg.Retrieval)
	}
	if cfg.Ingestion.ChunkSize != 400 || cfg.Ingestion.ChunkOverlap != 50 {
		t.Errorf("chunking overridden: %+v", cfg.Ingestion)
	}
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		mutate  func(*Config)
		wantErr string
	}{
		"valid": {mutate: func(*Config) {}},
		"bad port": {
			mutate:  func(c *Config) { c.HTTP.Port = 0 },
			wantErr: "http.port",
		},
		"unknown vector backend": {
			mutate:  func(c *Config) { c.VectorStore.Backend = "faiss" },
			wantErr: "vector_store.backend",
		},
		"unknown records backend": {
			mutate:  func(c *Config) { c.Records.Backend = "mysql" },
			wantErr: "records.backend",
		},
		"unknown lease backend": {
			mutate:  func(c *Config) { c.Ingestion.LeaseBackend = "etcd" },
			wantErr: "lease_backend",
		},
		"unknown generation provider": {
			mutate:  func(c *Config) { c.Generation.Provider = "cohere" },
			wantErr: "generation.provider",
		},
		"redis without addrs": {
			mutate:  func(c *Config) { c.Database.Addrs = nil },
			wantErr: "database.addrs",
		},
		"memory store needs no redis": {
			mutate: func(c *Config) {
				c.Database.Addrs = nil
				c.VectorStore.Backend = VectorMemory
			},
		},
		"cache needs redis": {
			mutate: func(c *Config) {
				c.Database.Addrs = nil
				c.VectorStore.Backend = VectorMemory
				c.Embedding.Cache.Enabled = true
			},
			wantErr: "database.addrs",
		},
		"pgvector without dsn": {
			mutate:  func(c *Config) { c.VectorStore.Backend = VectorPgvector },
			wantErr: "postgres.dsn",
		},
		"dimension mismatch": {
			mutate:  func(c *Config) { c.VectorStore.Dimensions = 768 },
			wantErr: "must match",
		},
		"overlap not below size": {
			mutate:  func(c *Config) { c.Ingestion.ChunkOverlap = c.Ingestion.ChunkSize },
			wantErr: "chunk_overlap",
		},
		"negative overlap": {
			mutate:  func(c *Config) { c.Ingestion.ChunkOverlap = -1 },
			wantErr: "chunk_overlap",
		},
		"threshold out of range": {
			mutate: func(c *Config) {
				one := 1.0
				c.Retrieval.Threshold = &one
			},
			wantErr: "retrieval.threshold",
		},
		"missing jwt secret": {
			mutate:  func(c *Config) { c.Auth.JWTSecret = "" },
			wantErr: "auth.jwt_secret",
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadFile_ExpandsEnv(t *testing.T) {
	t.Setenv("MGPT_TEST_SECRET", "from-env")
	path := filepath.Join(t.TempDir(), "test.yaml")
	yaml := `
http:
  port: ${MGPT_TEST_PORT:-9090}
vector_store:
  backend: memory
auth:
  jwt_secret: ${MGPT_TEST_SECRET}
retrieval:
  threshold: 0.6
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.HTTP.Port != 9090 || cfg.Auth.JWTSecret != "from-env" {
		t.Errorf("env not expanded: port=%d secret=%q", cfg.HTTP.Port, cfg.Auth.JWTSecret)
	}
	if *cfg.Retrieval.Threshold != 0.6 || cfg.Retrieval.TopK != 5 {
		t.Errorf("unexpected retrieval %+v", cfg.Retrieval)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("http:\n  port: 8080\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("ENV", "")
	if GetEnv() != "local" {
		t.Error("expected local default")
	}
	t.Setenv("ENV", "prod")
	if GetEnv() != "prod" {
		t.Error("expected prod")
	}
}
