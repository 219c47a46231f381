package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobrag/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long:  "Start the ingestion and search API, plus the drop-folder watcher when watch.enabled is set; blocks until SIGINT/SIGTERM.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, appOptions{notifier: true}, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	logger.Info("config loaded",
		"collection", cfg.Collection,
		"embedder", cfg.Embedder.Provider,
		"vector_store", cfg.VectorStore.Provider,
		"generator", cfg.Generator.Provider,
		"watch", cfg.Watch.Enabled,
	)

	watchDone := make(chan error, 1)
	if cfg.Watch.Enabled {
		go func() { watchDone <- newScheduler(a, logger).Run(ctx) }()
	} else {
		close(watchDone)
	}

	srv := server.New(server.Config{
		Addr:            cfg.Server.Addr,
		MaxUploadBytes:  cfg.Server.MaxUploadBytes,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, a.pipeline, a.retrieval, a.embedder, a.generator, logger)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		stop()
		<-watchDone
		a.Close()
		os.Exit(1)
	}
	if err := <-watchDone; err != nil {
		logger.Error("scheduler error", "error", err)
	}

	logger.Info("goodbye")
	return nil
}
