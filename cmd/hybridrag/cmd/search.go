package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hybridrag/internal/output"
	"github.com/Aman-CERP/hybridrag/internal/search"
)

// searchOptions holds CLI flags for search and context.
type searchOptions struct {
	topK    int
	source  string
	format  string // "text", "json"
	explain bool
}

func (o searchOptions) validate() error {
	if o.format != output.FormatText && o.format != output.FormatJSON {
		return fmt.Errorf("invalid format: %s (use: text, json)", o.format)
	}
	if o.topK < 0 {
		return fmt.Errorf("--top-k must not be negative, got %d", o.topK)
	}
	return nil
}

func (o searchOptions) retrieveOptions() search.RetrieveOptions {
	return search.RetrieveOptions{TopK: o.topK, Source: o.source, Explain: o.explain}
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the HAProxy documentation",
		Long: `Search the documentation with the hybrid pipeline.

Combines semantic (embedding) and BM25 (keyword) search with Reciprocal
Rank Fusion, reranks the candidates when a reranker is configured and
boosts them with chunk metadata.

Examples:
  hybridrag search "how to configure health checks"
  hybridrag search "rate limit with stick tables" --top-k 5
  hybridrag search "ssl crt" --source configuration --format json
  hybridrag search "balance roundrobin" --explain`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	addSearchFlags(cmd, &opts)
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "Show expanded terms and the intermediate rankings")

	return cmd
}

func addSearchFlags(cmd *cobra.Command, opts *searchOptions) {
	cmd.Flags().IntVarP(&opts.topK, "top-k", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().StringVarP(&opts.source, "source", "s", "", "Restrict results to one documentation source")
	cmd.Flags().StringVarP(&opts.format, "format", "f", output.FormatText, "Output format: text, json")
}

// openEngine loads config, logging and the engine for a one-shot command.
func openEngine(ctx context.Context) (*search.Engine, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	cleanupLogging, err := setupLogging(cfg, false)
	if err != nil {
		return nil, nil, err
	}

	engine, err := search.Open(ctx, cfg)
	if err != nil {
		cleanupLogging()
		return nil, nil, err
	}
	return engine, func() {
		_ = engine.Close()
		cleanupLogging()
	}, nil
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}

	engine, cleanup, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	start := time.Now()
	slog.Info("search_started", slog.String("query", query), slog.Int("top_k", opts.topK))

	result, err := engine.Retrieve(ctx, query, opts.retrieveOptions())
	if err != nil {
		slog.Error("search_failed", slog.String("error", err.Error()))
		return err
	}

	slog.Info("search_complete",
		slog.Int("results", len(result.Results)),
		slog.Bool("low_confidence", result.LowConfidence),
		slog.Duration("duration", time.Since(start)))

	out := output.New(cmd.OutOrStdout())
	if opts.format == output.FormatJSON {
		return out.JSON(result)
	}
	out.Results(result)
	return nil
}
