package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobrag/internal/model"
	"github.com/amishk599/jobrag/internal/retrieval"
	"github.com/amishk599/jobrag/internal/tui"
)

var (
	searchN    int
	searchAI   bool
	searchTUI  bool
	searchJSON bool
)

var searchCmd = &cobra.Command{
	Use:   "search [QUERY...]",
	Short: "Search the index from the terminal",
	Long:  "Run a semantic search against the configured collection. With --tui, browse results interactively.",
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchN, "n-results", "n", 0, "number of results (default: retrieval.default_results)")
	searchCmd.Flags().BoolVar(&searchAI, "ai", false, "ask the generator to rank and explain the results")
	searchCmd.Flags().BoolVar(&searchTUI, "tui", false, "open the interactive search browser")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print the raw response as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	// The TUI owns the terminal, so log output is discarded in that mode.
	logger := setupLogger(debug)
	if searchTUI {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	a, err := buildApp(ctx, cfg, appOptions{}, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	query := strings.Join(args, " ")
	if searchTUI {
		return tui.Run(a.retrieval, searchN, a.generator != nil, query)
	}
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("a query is required unless --tui is set")
	}

	resp, err := a.retrieval.Query(ctx, retrieval.Request{Query: query, NResults: searchN, UseAI: searchAI})
	if err != nil && !retrieval.IsNoResults(err) {
		logger.Error("search failed", "error", err)
		a.Close()
		os.Exit(1)
	}

	out := cmd.OutOrStdout()
	if searchJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	printResults(out, resp)
	return nil
}

func printResults(w io.Writer, resp retrieval.Response) {
	if len(resp.Results) == 0 {
		fmt.Fprintf(w, "No active listings match %q.\n", resp.Query)
		return
	}
	for i, r := range resp.Results {
		fmt.Fprintf(w, "%2d. %s  (%.3f)\n", i+1, r.Metadata[string(model.FieldTitle)], r.Score)
		var meta []string
		for _, f := range []model.Field{model.FieldEmployer, model.FieldJobLocation, model.FieldLocationType, model.FieldJobSalary, model.FieldExpires} {
			if v := r.Metadata[string(f)]; v != "" {
				meta = append(meta, v)
			}
		}
		if len(meta) > 0 {
			fmt.Fprintf(w, "    %s\n", strings.Join(meta, " · "))
		}
		if u := r.Metadata[string(model.FieldURL)]; u != "" {
			fmt.Fprintf(w, "    %s\n", u)
		}
	}
	if resp.AIResponse != "" {
		fmt.Fprintf(w, "\n%s\n", resp.AIResponse)
	}
}
