package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobrag/internal/scheduler"
)

var watchOnce bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Ingest files dropped into the watch directory",
	Long:  "Scan watch.dir on watch.interval, ingesting each listing file and moving it to processed/ or failed/; blocks until SIGINT/SIGTERM.",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "scan the directory once and exit")
	rootCmd.AddCommand(watchCmd)
}

func newScheduler(a *app, logger *slog.Logger) *scheduler.Scheduler {
	var opts []scheduler.Option
	if a.cfg.Watch.Prune && a.store.pruner != nil {
		opts = append(opts, scheduler.WithPruner(a.store.pruner))
	}
	return scheduler.New(a.cfg.Watch.Dir, a.cfg.Watch.Interval, a.pipeline, logger, opts...)
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Watch.Dir == "" {
		logger.Error("watch.dir is not set in config")
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

	sched := newScheduler(a, logger)
	if watchOnce {
		res, err := sched.Scan(ctx)
		if err != nil {
			logger.Error("scan failed", "error", err)
			a.Close()
			os.Exit(1)
		}
		logger.Info("scan complete",
			"ingested", len(res.Ingested),
			"failed", len(res.Failed),
			"deferred", len(res.Deferred),
			"unarchived", len(res.Unarchived),
			"pruned", res.Pruned,
		)
		return nil
	}

	if err := sched.Run(ctx); err != nil {
		logger.Error("scheduler error", "error", err)
		a.Close()
		os.Exit(1)
	}
	logger.Info("goodbye")
	return nil
}
