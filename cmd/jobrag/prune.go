package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobrag/internal/filter"
)

var pruneAsOf string

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired listings from the vector store",
	RunE:  runPrune,
}

func init() {
	pruneCmd.Flags().StringVar(&pruneAsOf, "as-of", "", "delete listings that expired before this date (default: today)")
	rootCmd.AddCommand(pruneCmd)
}

func runPrune(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	asOf := time.Now()
	if pruneAsOf != "" {
		d, ok := filter.ParseDate(pruneAsOf)
		if !ok {
			logger.Error("invalid --as-of date", "value", pruneAsOf)
			os.Exit(1)
		}
		asOf = d
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg, false, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.close()

	if st.pruner == nil {
		logger.Error("vector store does not support pruning", "provider", cfg.VectorStore.Provider)
		os.Exit(1)
	}
	n, err := st.pruner.PruneExpired(ctx, cfg.Collection, asOf)
	if err != nil {
		logger.Error("prune failed", "error", err)
		os.Exit(1)
	}
	logger.Info("pruned expired listings", "collection", cfg.Collection, "removed", n, "as_of", asOf.Format("2006-01-02"))
	return nil
}
