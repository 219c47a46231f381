package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/amishk599/jobrag/internal/model"
	"github.com/amishk599/jobrag/internal/projection"
)

// Config is the root configuration for jobrag.
type Config struct {
	Server       ServerConfig
	Collection   string
	Projection   ProjectionConfig
	Embedder     EmbedderConfig
	VectorStore  VectorStoreConfig
	Generator    GeneratorConfig
	Cache        CacheConfig
	Retrieval    RetrievalConfig
	Watch        WatchConfig
	Notification NotificationConfig
	RateLimit    RateLimitConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string
	MaxUploadBytes  int64
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// ProjectionConfig selects which fields become the embedded document text.
type ProjectionConfig struct {
	Fields []model.Field
	Mode   projection.Mode
}

// EmbedderConfig selects and tunes the embedding collaborator.
type EmbedderConfig struct {
	Provider       string // "hash", "service", "openai" or "ollama"
	BaseURL        string
	Path           string // service only, defaults to /embed
	APIKey         string // expanded from env var by Load
	Model          string
	BatchSize      int
	Dimension      int // hash only
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// VectorStoreConfig selects the vector store backend.
type VectorStoreConfig struct {
	Provider    string // "sqlite", "postgres", "qdrant" or "none"
	Path        string // sqlite database file
	DatabaseURL string // postgres
	URL         string // qdrant
	APIKey      string // qdrant
	Timeout     time.Duration
}

// GeneratorConfig controls the optional text generation layer.
type GeneratorConfig struct {
	Provider       string // "", "openai", "service" or "nop"
	BaseURL        string
	APIKey         string
	Model          string
	MaxTokens      int
	Temperature    float64
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// Enabled reports whether a generator is configured.
func (g GeneratorConfig) Enabled() bool { return g.Provider != "" }

// CacheConfig controls the optional query response cache.
type CacheConfig struct {
	Enabled  bool
	RedisURL string
	TTL      time.Duration
}

// RetrievalConfig bounds how many results a query may ask for.
type RetrievalConfig struct {
	DefaultResults int
	MaxResults     int
}

// WatchConfig controls drop-folder ingestion.
type WatchConfig struct {
	Enabled  bool
	Dir      string
	Interval time.Duration
	Prune    bool // delete expired documents after every scan
}

// NotificationConfig controls which notifier is used and its settings.
type NotificationConfig struct {
	Type       string `yaml:"type"`        // "log", "slack" or "none"
	WebhookURL string `yaml:"webhook_url"` // required if type is "slack"
}

// RateLimitConfig spaces out calls to remote collaborators.
type RateLimitConfig struct {
	MinDelay  time.Duration            // minimum gap between calls to the same collaborator
	Overrides map[string]time.Duration // keyed by "embedder" or "generator"
}

// Enabled reports whether any delay is configured.
func (r RateLimitConfig) Enabled() bool {
	if r.MinDelay > 0 {
		return true
	}
	for _, d := range r.Overrides {
		if d > 0 {
			return true
		}
	}
	return false
}

const (
	defaultOpenAIBaseURL  = "https://api.openai.com/v1"
	defaultOllamaBaseURL  = "http://localhost:11434/v1"
	defaultCollection     = "job_listings"
	defaultSQLitePath     = "jobrag.db"
	defaultResults        = 15
	defaultMaxResults     = 50
	defaultMaxUploadBytes = 32 << 20
)

// rawConfig is used for YAML unmarshaling (snake_case fields and duration as string).
type rawConfig struct {
	Server       rawServerConfig      `yaml:"server"`
	Collection   string               `yaml:"collection"`
	Projection   rawProjectionConfig  `yaml:"projection"`
	Embedder     rawEmbedderConfig    `yaml:"embedder"`
	VectorStore  rawVectorStoreConfig `yaml:"vector_store"`
	Generator    rawGeneratorConfig   `yaml:"generator"`
	Cache        rawCacheConfig       `yaml:"cache"`
	Retrieval    rawRetrievalConfig   `yaml:"retrieval"`
	Watch        rawWatchConfig       `yaml:"watch"`
	Notification NotificationConfig   `yaml:"notification"`
	RateLimit    rawRateLimitConfig   `yaml:"rate_limit"`
}

type rawServerConfig struct {
	Addr            string   `yaml:"addr"`
	MaxUploadBytes  int64    `yaml:"max_upload_bytes"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	ReadTimeout     string   `yaml:"read_timeout"`
	WriteTimeout    string   `yaml:"write_timeout"`
	ShutdownTimeout string   `yaml:"shutdown_timeout"`
}

type rawProjectionConfig struct {
	Fields []string `yaml:"fields"`
	Mode   string   `yaml:"mode"`
}

type rawEmbedderConfig struct {
	Provider       string `yaml:"provider"`
	BaseURL        string `yaml:"base_url"`
	Path           string `yaml:"path"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	BatchSize      int    `yaml:"batch_size"`
	Dimension      int    `yaml:"dimension"`
	Timeout        string `yaml:"timeout"`
	MaxRetries     int    `yaml:"max_retries"`
	RetryBaseDelay string `yaml:"retry_base_delay"`
}

type rawVectorStoreConfig struct {
	Provider    string `yaml:"provider"`
	Path        string `yaml:"path"`
	DatabaseURL string `yaml:"database_url"`
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Timeout     string `yaml:"timeout"`
}

type rawGeneratorConfig struct {
	Provider       string   `yaml:"provider"`
	BaseURL        string   `yaml:"base_url"`
	APIKey         string   `yaml:"api_key"`
	Model          string   `yaml:"model"`
	MaxTokens      int      `yaml:"max_tokens"`
	Temperature    *float64 `yaml:"temperature"`
	Timeout        string   `yaml:"timeout"`
	MaxRetries     int      `yaml:"max_retries"`
	RetryBaseDelay string   `yaml:"retry_base_delay"`
}

type rawCacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	RedisURL string `yaml:"redis_url"`
	TTL      string `yaml:"ttl"`
}

type rawRetrievalConfig struct {
	DefaultResults int `yaml:"default_results"`
	MaxResults     int `yaml:"max_results"`
}

type rawWatchConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Dir      string `yaml:"dir"`
	Interval string `yaml:"interval"`
	Prune    bool   `yaml:"prune"`
}

type rawRateLimitConfig struct {
	MinDelay  string            `yaml:"min_delay"`
	Overrides map[string]string `yaml:"overrides"`
}

// LoadDotEnv loads a .env file into the process environment when one exists.
// Variables already set are left alone.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse expands environment variables in data, then decodes, defaults and
// validates it.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	var err error
	if err = yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	d := durations{}
	cfg := &Config{
		Server: ServerConfig{
			Addr:            orDefault(raw.Server.Addr, ":8080"),
			MaxUploadBytes:  raw.Server.MaxUploadBytes,
			AllowedOrigins:  raw.Server.AllowedOrigins,
			ReadTimeout:     d.parse("server.read_timeout", raw.Server.ReadTimeout, 30*time.Second),
			WriteTimeout:    d.parse("server.write_timeout", raw.Server.WriteTimeout, 2*time.Minute),
			ShutdownTimeout: d.parse("server.shutdown_timeout", raw.Server.ShutdownTimeout, 10*time.Second),
		},
		Collection: orDefault(raw.Collection, defaultCollection),
		Embedder: EmbedderConfig{
			Provider:       strings.ToLower(orDefault(raw.Embedder.Provider, "hash")),
			BaseURL:        raw.Embedder.BaseURL,
			Path:           raw.Embedder.Path,
			APIKey:         raw.Embedder.APIKey,
			Model:          raw.Embedder.Model,
			BatchSize:      raw.Embedder.BatchSize,
			Dimension:      raw.Embedder.Dimension,
			Timeout:        d.parse("embedder.timeout", raw.Embedder.Timeout, 30*time.Second),
			MaxRetries:     raw.Embedder.MaxRetries,
			RetryBaseDelay: d.parse("embedder.retry_base_delay", raw.Embedder.RetryBaseDelay, 2*time.Second),
		},
		VectorStore: VectorStoreConfig{
			Provider:    strings.ToLower(orDefault(raw.VectorStore.Provider, "sqlite")),
			Path:        orDefault(raw.VectorStore.Path, defaultSQLitePath),
			DatabaseURL: raw.VectorStore.DatabaseURL,
			URL:         raw.VectorStore.URL,
			APIKey:      raw.VectorStore.APIKey,
			Timeout:     d.parse("vector_store.timeout", raw.VectorStore.Timeout, 30*time.Second),
		},
		Generator: GeneratorConfig{
			Provider:       strings.ToLower(raw.Generator.Provider),
			BaseURL:        raw.Generator.BaseURL,
			APIKey:         raw.Generator.APIKey,
			Model:          raw.Generator.Model,
			MaxTokens:      raw.Generator.MaxTokens,
			Temperature:    0.7,
			Timeout:        d.parse("generator.timeout", raw.Generator.Timeout, 60*time.Second),
			MaxRetries:     raw.Generator.MaxRetries,
			RetryBaseDelay: d.parse("generator.retry_base_delay", raw.Generator.RetryBaseDelay, 2*time.Second),
		},
		Cache: CacheConfig{
			Enabled:  raw.Cache.Enabled,
			RedisURL: raw.Cache.RedisURL,
			TTL:      d.parse("cache.ttl", raw.Cache.TTL, 10*time.Minute),
		},
		Retrieval: RetrievalConfig{
			DefaultResults: raw.Retrieval.DefaultResults,
			MaxResults:     raw.Retrieval.MaxResults,
		},
		Watch: WatchConfig{
			Enabled:  raw.Watch.Enabled,
			Dir:      raw.Watch.Dir,
			Interval: d.parse("watch.interval", raw.Watch.Interval, time.Minute),
			Prune:    raw.Watch.Prune,
		},
		Notification: raw.Notification,
		RateLimit: RateLimitConfig{
			MinDelay:  d.parse("rate_limit.min_delay", raw.RateLimit.MinDelay, 0),
			Overrides: make(map[string]time.Duration),
		},
	}
	for key, v := range raw.RateLimit.Overrides {
		cfg.RateLimit.Overrides[key] = d.parse(fmt.Sprintf("rate_limit.overrides[%q]", key), v, 0)
	}
	if d.err != nil {
		return nil, d.err
	}

	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.Retrieval.DefaultResults == 0 {
		cfg.Retrieval.DefaultResults = defaultResults
	}
	if cfg.Retrieval.MaxResults == 0 {
		cfg.Retrieval.MaxResults = max(defaultMaxResults, cfg.Retrieval.DefaultResults)
	}
	if cfg.Generator.MaxTokens == 0 {
		cfg.Generator.MaxTokens = 512
	}
	if raw.Generator.Temperature != nil {
		cfg.Generator.Temperature = *raw.Generator.Temperature
	}
	if cfg.Notification.Type == "" {
		cfg.Notification.Type = "log"
	}
	applyProviderDefaults(cfg)

	fields := projection.DefaultFields
	if len(raw.Projection.Fields) > 0 {
		fields, err = projection.ParseFields(raw.Projection.Fields)
		if err != nil {
			return nil, fmt.Errorf("projection.fields: %w", err)
		}
	}
	mode, err := projection.ParseMode(raw.Projection.Mode)
	if err != nil {
		return nil, fmt.Errorf("projection.mode: %w", err)
	}
	cfg.Projection = ProjectionConfig{Fields: fields, Mode: mode}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyProviderDefaults(cfg *Config) {
	e := &cfg.Embedder
	switch e.Provider {
	case "openai":
		e.BaseURL = orDefault(e.BaseURL, defaultOpenAIBaseURL)
		e.Model = orDefault(e.Model, "text-embedding-3-small")
	case "ollama":
		e.BaseURL = orDefault(e.BaseURL, defaultOllamaBaseURL)
		e.Model = orDefault(e.Model, "nomic-embed-text")
	}

	if cfg.Generator.Provider == "openai" {
		cfg.Generator.BaseURL = orDefault(cfg.Generator.BaseURL, defaultOpenAIBaseURL)
	}
}

// durations parses optional duration strings, keeping the first error.
type durations struct {
	err error
}

func (d *durations) parse(key, s string, def time.Duration) time.Duration {
	if s == "" || d.err != nil {
		return def
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		d.err = fmt.Errorf("parse %s %q: %w", key, s, err)
		return def
	}
	return v
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func validate(cfg *Config) error {
	if cfg.Collection == "" {
		return fmt.Errorf("collection must not be empty")
	}
	if cfg.Server.MaxUploadBytes < 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive, got %d", cfg.Server.MaxUploadBytes)
	}

	switch cfg.Embedder.Provider {
	case "hash":
		if cfg.Embedder.Dimension < 0 {
			return fmt.Errorf("embedder.dimension must be positive, got %d", cfg.Embedder.Dimension)
		}
	case "service":
		if cfg.Embedder.BaseURL == "" {
			return fmt.Errorf("embedder.base_url is required when provider is \"service\"")
		}
	case "openai":
		if cfg.Embedder.APIKey == "" {
			return fmt.Errorf("embedder.api_key is required when provider is \"openai\"")
		}
	case "ollama":
	default:
		return fmt.Errorf("embedder.provider must be one of hash, service, openai, ollama, got %q", cfg.Embedder.Provider)
	}
	if cfg.Embedder.MaxRetries < 0 {
		return fmt.Errorf("embedder.max_retries must not be negative")
	}

	switch cfg.VectorStore.Provider {
	case "sqlite":
		if cfg.VectorStore.Path == "" {
			return fmt.Errorf("vector_store.path is required when provider is \"sqlite\"")
		}
	case "postgres":
		if cfg.VectorStore.DatabaseURL == "" {
			return fmt.Errorf("vector_store.database_url is required when provider is \"postgres\"")
		}
	case "qdrant":
		if cfg.VectorStore.URL == "" {
			return fmt.Errorf("vector_store.url is required when provider is \"qdrant\"")
		}
	case "none":
	default:
		return fmt.Errorf("vector_store.provider must be one of sqlite, postgres, qdrant, none, got %q", cfg.VectorStore.Provider)
	}

	switch cfg.Generator.Provider {
	case "", "nop":
	case "openai":
		if cfg.Generator.APIKey == "" {
			return fmt.Errorf("generator.api_key is required when provider is \"openai\"")
		}
		if cfg.Generator.Model == "" {
			return fmt.Errorf("generator.model is required when provider is \"openai\"")
		}
	case "service":
		if cfg.Generator.BaseURL == "" {
			return fmt.Errorf("generator.base_url is required when provider is \"service\"")
		}
	default:
		return fmt.Errorf("generator.provider must be one of openai, service, nop, got %q", cfg.Generator.Provider)
	}
	if cfg.Generator.MaxTokens < 0 {
		return fmt.Errorf("generator.max_tokens must be positive, got %d", cfg.Generator.MaxTokens)
	}

	if cfg.Cache.Enabled && cfg.Cache.RedisURL == "" {
		return fmt.Errorf("cache.redis_url is required when cache.enabled is true")
	}

	if cfg.Retrieval.DefaultResults < 1 {
		return fmt.Errorf("retrieval.default_results must be at least 1, got %d", cfg.Retrieval.DefaultResults)
	}
	if cfg.Retrieval.MaxResults < cfg.Retrieval.DefaultResults {
		return fmt.Errorf("retrieval.max_results (%d) must not be below default_results (%d)",
			cfg.Retrieval.MaxResults, cfg.Retrieval.DefaultResults)
	}

	if cfg.Watch.Enabled {
		if cfg.Watch.Dir == "" {
			return fmt.Errorf("watch.dir is required when watch.enabled is true")
		}
		if cfg.Watch.Interval < time.Second {
			return fmt.Errorf("watch.interval must be at least 1s, got %v", cfg.Watch.Interval)
		}
	}

	switch cfg.Notification.Type {
	case "log", "none":
	case "slack":
		if cfg.Notification.WebhookURL == "" {
			return fmt.Errorf("notification.webhook_url is required when type is \"slack\"")
		}
		if !strings.HasPrefix(cfg.Notification.WebhookURL, "https://hooks.slack.com/") {
			return fmt.Errorf("notification.webhook_url must start with https://hooks.slack.com/")
		}
	default:
		return fmt.Errorf("notification.type must be one of log, slack, none, got %q", cfg.Notification.Type)
	}

	for key := range cfg.RateLimit.Overrides {
		if key != "embedder" && key != "generator" {
			return fmt.Errorf("rate_limit.overrides: unknown collaborator %q", key)
		}
	}
	return nil
}
