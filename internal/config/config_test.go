package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/amishk599/jobrag/internal/model"
	"github.com/amishk599/jobrag/internal/projection"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	path := writeConfig(t, `
server:
  addr: ":9090"
  allowed_origins: ["http://localhost:3000"]
  write_timeout: 45s
collection: listings
projection:
  fields: [title, employer, "job roles"]
  mode: sentence
embedder:
  provider: openai
  api_key: ${TEST_OPENAI_KEY}
  batch_size: 64
  max_retries: 2
vector_store:
  provider: qdrant
  url: http://localhost:6333
generator:
  provider: openai
  api_key: ${TEST_OPENAI_KEY}
  model: gpt-4o-mini
  temperature: 0
cache:
  enabled: true
  redis_url: redis://localhost:6379/0
  ttl: 1m
retrieval:
  default_results: 5
  max_results: 20
watch:
  enabled: true
  dir: ./inbox
  interval: 30s
  prune: true
rate_limit:
  min_delay: 100ms
  overrides:
    generator: 1s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" || cfg.Server.WriteTimeout != 45*time.Second {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Collection != "listings" {
		t.Errorf("Collection = %q", cfg.Collection)
	}
	want := []model.Field{model.FieldTitle, model.FieldEmployer, model.FieldJobRoles}
	if len(cfg.Projection.Fields) != 3 || cfg.Projection.Fields[2] != want[2] || cfg.Projection.Mode != projection.ModeSentence {
		t.Errorf("Projection = %+v", cfg.Projection)
	}
	if cfg.Embedder.APIKey != "sk-test" || cfg.Embedder.BaseURL != defaultOpenAIBaseURL || cfg.Embedder.Model != "text-embedding-3-small" {
		t.Errorf("Embedder = %+v", cfg.Embedder)
	}
	if cfg.Generator.Temperature != 0 || cfg.Generator.MaxTokens != 512 {
		t.Errorf("Generator = %+v", cfg.Generator)
	}
	if !cfg.Generator.Enabled() {
		t.Error("generator should be enabled")
	}
	if cfg.Cache.TTL != time.Minute {
		t.Errorf("Cache.TTL = %v", cfg.Cache.TTL)
	}
	if cfg.Retrieval.DefaultResults != 5 || cfg.Retrieval.MaxResults != 20 {
		t.Errorf("Retrieval = %+v", cfg.Retrieval)
	}
	if !cfg.Watch.Enabled || cfg.Watch.Interval != 30*time.Second || !cfg.Watch.Prune {
		t.Errorf("Watch = %+v", cfg.Watch)
	}
	if cfg.RateLimit.MinDelay != 100*time.Millisecond || cfg.RateLimit.Overrides["generator"] != time.Second {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Server.MaxUploadBytes != defaultMaxUploadBytes {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Collection != defaultCollection {
		t.Errorf("Collection = %q", cfg.Collection)
	}
	if len(cfg.Projection.Fields) != 2 || cfg.Projection.Mode != projection.ModePlain {
		t.Errorf("Projection = %+v", cfg.Projection)
	}
	if cfg.Embedder.Provider != "hash" || cfg.VectorStore.Provider != "sqlite" || cfg.VectorStore.Path != defaultSQLitePath {
		t.Errorf("providers = %q, %q", cfg.Embedder.Provider, cfg.VectorStore.Provider)
	}
	if cfg.Generator.Enabled() {
		t.Error("generator should be disabled by default")
	}
	if cfg.Generator.Temperature != 0.7 {
		t.Errorf("Temperature = %v", cfg.Generator.Temperature)
	}
	if cfg.Retrieval.DefaultResults != 15 || cfg.Retrieval.MaxResults != 50 {
		t.Errorf("Retrieval = %+v", cfg.Retrieval)
	}
	if cfg.Notification.Type != "log" {
		t.Errorf("Notification.Type = %q", cfg.Notification.Type)
	}
	if cfg.RateLimit.Enabled() {
		t.Error("rate limiting should be off by default")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Fatal("Load: expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [broken")
	if _, err := Load(path); err == nil {
		t.Fatal("Load: expected error for invalid YAML")
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad duration", "watch:\n  interval: soon\n", "watch.interval"},
		{"unknown embedder", "embedder:\n  provider: word2vec\n", "embedder.provider"},
		{"service embedder without url", "embedder:\n  provider: service\n", "embedder.base_url"},
		{"openai embedder without key", "embedder:\n  provider: openai\n", "embedder.api_key"},
		{"postgres without url", "vector_store:\n  provider: postgres\n", "vector_store.database_url"},
		{"qdrant without url", "vector_store:\n  provider: qdrant\n", "vector_store.url"},
		{"unknown store", "vector_store:\n  provider: faiss\n", "vector_store.provider"},
		{"openai generator without model", "generator:\n  provider: openai\n  api_key: k\n", "generator.model"},
		{"cache without url", "cache:\n  enabled: true\n", "cache.redis_url"},
		{"max below default", "retrieval:\n  default_results: 10\n  max_results: 5\n", "retrieval.max_results"},
		{"watch without dir", "watch:\n  enabled: true\n", "watch.dir"},
		{"slack without webhook", "notification:\n  type: slack\n", "notification.webhook_url"},
		{"slack wrong host", "notification:\n  type: slack\n  webhook_url: https://example.com/x\n", "hooks.slack.com"},
		{"unknown projection field", "projection:\n  fields: [salary]\n", "projection.fields"},
		{"unknown projection mode", "projection:\n  mode: prose\n", "projection.mode"},
		{"unknown rate limit key", "rate_limit:\n  overrides:\n    store: 1s\n", "rate_limit.overrides"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := LoadDotEnv(filepath.Join(dir, ".env")); err != nil {
		t.Fatalf("missing .env should be ignored, got %v", err)
	}

	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("JOBRAG_TEST_DOTENV=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JOBRAG_TEST_DOTENV", "")
	os.Unsetenv("JOBRAG_TEST_DOTENV")
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("JOBRAG_TEST_DOTENV"); got != "from-file" {
		t.Errorf("JOBRAG_TEST_DOTENV = %q", got)
	}
}
