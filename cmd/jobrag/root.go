package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobrag/internal/ai"
	"github.com/amishk599/jobrag/internal/cache"
	"github.com/amishk599/jobrag/internal/config"
	"github.com/amishk599/jobrag/internal/embed"
	"github.com/amishk599/jobrag/internal/ingest"
	"github.com/amishk599/jobrag/internal/model"
	"github.com/amishk599/jobrag/internal/notifier"
	"github.com/amishk599/jobrag/internal/projection"
	"github.com/amishk599/jobrag/internal/ratelimit"
	"github.com/amishk599/jobrag/internal/retrieval"
	"github.com/amishk599/jobrag/internal/retry"
	"github.com/amishk599/jobrag/internal/store"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "jobrag",
	Short: "Index job listings for semantic search",
	Long:  "jobrag ingests job listing spreadsheets, embeds the active ones into a vector store, and answers natural-language searches over them.",
	// Default to `serve` so that `jobrag` with no args runs the API.
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: JOBRAG_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig loads .env, then resolves the config path and parses it.
// Priority: explicit path arg > JOBRAG_CONFIG env var > "./config.yaml".
// A missing ./config.yaml falls back to built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	explicit := path != ""
	if !explicit {
		if env := os.Getenv("JOBRAG_CONFIG"); env != "" {
			path, explicit = env, true
		} else {
			path = "config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return config.Parse([]byte("{}"))
	}
	return cfg, err
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

func setupNotifier(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) model.Notifier {
	switch cfg.Notification.Type {
	case "slack":
		logger.Info("using slack notifier")
		return notifier.NewSlackNotifier(cfg.Notification.WebhookURL, httpClient, logger)
	case "none":
		return nil
	default:
		return notifier.NewLogNotifier(logger)
	}
}

func setupLimiter(cfg *config.Config, logger *slog.Logger) *ratelimit.Limiter {
	if !cfg.RateLimit.Enabled() {
		return nil
	}
	logger.Info("rate limiter configured", "min_delay", cfg.RateLimit.MinDelay.String())
	return ratelimit.NewLimiter(cfg.RateLimit.MinDelay, cfg.RateLimit.Overrides)
}

func setupEmbedder(cfg *config.Config, limiter *ratelimit.Limiter, logger *slog.Logger) model.Embedder {
	e := cfg.Embedder
	httpClient := &http.Client{}

	var emb model.Embedder
	switch e.Provider {
	case "service":
		emb = embed.NewServiceClient(e.BaseURL, e.Path, httpClient, e.Timeout)
	case "openai", "ollama":
		emb = embed.NewOpenAIClient(e.BaseURL, e.APIKey, e.Model, e.BatchSize, httpClient, e.Timeout)
	default:
		emb = embed.NewHashEmbedder(e.Dimension)
	}
	logger.Debug("embedder configured", "provider", e.Provider, "base_url", e.BaseURL, "model", e.Model)

	if limiter != nil && e.Provider != "hash" {
		emb = ratelimit.NewEmbedder(emb, limiter, "embedder")
	}
	if e.MaxRetries > 0 {
		emb = retry.NewEmbedder(emb, e.MaxRetries, e.RetryBaseDelay, logger)
	}
	return emb
}

// setupGenerator returns nil when generation is not configured.
func setupGenerator(cfg *config.Config, limiter *ratelimit.Limiter, logger *slog.Logger) model.Generator {
	g := cfg.Generator

	var gen model.Generator
	switch g.Provider {
	case "openai":
		gen = ai.NewOpenAIProvider(g.BaseURL, g.APIKey, g.Model, &http.Client{Timeout: g.Timeout})
	case "service":
		gen = ai.NewServiceGenerator(g.BaseURL, &http.Client{}, g.Timeout)
	case "nop":
		gen = ai.NewNopGenerator()
	default:
		return nil
	}
	logger.Info("generator enabled", "provider", g.Provider, "model", g.Model)

	if limiter != nil && g.Provider != "nop" {
		gen = ratelimit.NewGenerator(gen, limiter, "generator")
	}
	if g.MaxRetries > 0 {
		gen = retry.NewGenerator(gen, g.MaxRetries, g.RetryBaseDelay, logger)
	}
	return gen
}

// storeHandle is an opened vector store plus what it can optionally do.
type storeHandle struct {
	store  model.VectorStore
	pruner store.Pruner
	close  func() error
}

func openStore(ctx context.Context, cfg *config.Config, dryRun bool, logger *slog.Logger) (storeHandle, error) {
	v := cfg.VectorStore
	if dryRun || v.Provider == "none" {
		return storeHandle{store: store.NewNopStore(), close: func() error { return nil }}, nil
	}

	switch v.Provider {
	case "postgres":
		s, err := store.NewPostgresStore(ctx, v.DatabaseURL)
		if err != nil {
			return storeHandle{}, err
		}
		logger.Info("vector store connected", "provider", "postgres")
		return storeHandle{store: s, pruner: s, close: s.Close}, nil
	case "qdrant":
		s := store.NewQdrantStore(v.URL, v.APIKey, &http.Client{}, v.Timeout, logger)
		logger.Info("vector store configured", "provider", "qdrant", "url", v.URL)
		return storeHandle{store: s, pruner: s, close: func() error { return nil }}, nil
	default:
		s, err := store.NewSQLiteStore(v.Path)
		if err != nil {
			return storeHandle{}, err
		}
		logger.Info("vector store opened", "provider", "sqlite", "path", v.Path)
		return storeHandle{store: s, pruner: s, close: s.Close}, nil
	}
}

// app bundles the collaborators every command builds from config.
type app struct {
	cfg       *config.Config
	embedder  model.Embedder
	generator model.Generator
	store     storeHandle
	cache     model.Cache
	pipeline  *ingest.Pipeline
	retrieval *retrieval.Service
	closers   []func() error
}

type appOptions struct {
	dryRun   bool
	notifier bool
}

func buildApp(ctx context.Context, cfg *config.Config, opts appOptions, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg}

	limiter := setupLimiter(cfg, logger)
	a.embedder = setupEmbedder(cfg, limiter, logger)
	a.generator = setupGenerator(cfg, limiter, logger)

	st, err := openStore(ctx, cfg, opts.dryRun, logger)
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, st.close)

	if cfg.Cache.Enabled && !opts.dryRun {
		rc, err := cache.NewRedisCache(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			a.Close()
			return nil, err
		}
		logger.Info("query cache enabled", "ttl", cfg.Cache.TTL.String())
		a.cache = rc
		a.closers = append(a.closers, rc.Close)
	}

	pipelineOpts := []ingest.Option{}
	if a.cache != nil {
		pipelineOpts = append(pipelineOpts, ingest.WithCache(a.cache))
	}
	if opts.notifier {
		if n := setupNotifier(cfg, &http.Client{Timeout: 30 * time.Second}, logger); n != nil {
			pipelineOpts = append(pipelineOpts, ingest.WithNotifier(n))
		}
	}
	projector := projection.NewProjector(cfg.Projection.Fields, cfg.Projection.Mode)
	a.pipeline = ingest.NewPipeline(cfg.Collection, projector, a.embedder, st.store, logger, pipelineOpts...)

	var explainer retrieval.Explainer
	if a.generator != nil {
		explainer = ai.NewExplainer(a.generator, nil, model.GenerateParams{
			MaxTokens:   cfg.Generator.MaxTokens,
			Temperature: cfg.Generator.Temperature,
		}, logger)
	}
	a.retrieval = retrieval.NewService(cfg.Collection, a.embedder, st.store, explainer, a.cache,
		cfg.Retrieval.DefaultResults, cfg.Retrieval.MaxResults, logger)
	return a, nil
}

// Close releases every opened collaborator in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}
