package cmd

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hybridrag/internal/output"
	"github.com/Aman-CERP/hybridrag/internal/validation"
)

type benchOptions struct {
	queries     string
	level       string
	category    string
	topK        int
	concurrency int
	minCoverage float64
	minPassRate float64
	baseline    string
	threshold   float64
	jsonOutput  bool
}

type benchOutput struct {
	*validation.Report
	Comparison *validation.Comparison `json:"comparison,omitempty"`
}

func newBenchCmd() *cobra.Command {
	var opts benchOptions

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure retrieval quality on a query set",
		Long: `Run benchmark queries through the retrieval pipeline and report
pass rate, hit rate, MRR, keyword coverage and latency.

Without --queries the built-in HAProxy query set is used. Levels are
cumulative: quick, standard (includes quick), full (everything).

Examples:
  hybridrag bench
  hybridrag bench --level full --json
  hybridrag bench --queries my-queries.yaml --category acl
  hybridrag bench --json > baseline.json
  hybridrag bench --baseline baseline.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBench(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.queries, "queries", "q", "", "YAML query set (default: built-in)")
	cmd.Flags().StringVarP(&opts.level, "level", "l", "quick", "Query level: quick, standard or full")
	cmd.Flags().StringVar(&opts.category, "category", "", "Only run queries of this category")
	cmd.Flags().IntVarP(&opts.topK, "top-k", "n", 5, "Results inspected per query")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 4, "Queries in flight")
	cmd.Flags().Float64Var(&opts.minCoverage, "min-coverage", 0.6, "Keyword coverage a query needs to pass")
	cmd.Flags().Float64Var(&opts.minPassRate, "min-pass-rate", 0, "Fail when the pass rate is lower (0 disables)")
	cmd.Flags().StringVar(&opts.baseline, "baseline", "", "JSON report of an earlier run to compare against")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", validation.DefaultRegressionThreshold, "Tolerated metric drop before a regression is reported")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runBench(cmd *cobra.Command, opts benchOptions) error {
	level, err := validation.ParseLevel(opts.level)
	if err != nil {
		return err
	}
	set, err := validation.LoadQueries(opts.queries)
	if err != nil {
		return err
	}
	var baseline *validation.Report
	if opts.baseline != "" {
		if baseline, err = validation.LoadReport(opts.baseline); err != nil {
			return err
		}
	}
	selected := set.Select(level, opts.category)
	if len(selected) == 0 {
		return fmt.Errorf("no queries selected (level %s, category %q)", level, opts.category)
	}

	engine, cleanup, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	slog.Info("bench_started",
		slog.String("level", string(level)),
		slog.Int("queries", len(selected)))

	runner := validation.NewRunner(engine,
		validation.WithTopK(opts.topK),
		validation.WithConcurrency(opts.concurrency),
		validation.WithMinCoverage(opts.minCoverage))
	report, err := runner.Run(cmd.Context(), selected)
	if err != nil {
		return err
	}

	slog.Info("bench_complete",
		slog.Int("passed", report.Passed),
		slog.Int("total", report.Total),
		slog.Float64("mrr", report.MRR))

	var comparison *validation.Comparison
	if baseline != nil {
		comparison = validation.Compare(report, baseline, opts.threshold)
	}

	out := output.New(cmd.OutOrStdout())
	if opts.jsonOutput {
		if err := out.JSON(benchOutput{Report: report, Comparison: comparison}); err != nil {
			return err
		}
	} else {
		printBenchReport(out, report)
		if comparison != nil {
			printComparison(out, comparison)
		}
	}

	if comparison != nil && comparison.Regressed() {
		return fmt.Errorf("%d regression(s) against %s", comparison.Regressions, opts.baseline)
	}
	if opts.minPassRate > 0 && report.PassRate() < opts.minPassRate {
		return fmt.Errorf("pass rate %.1f%% is below %.1f%%", report.PassRate()*100, opts.minPassRate*100)
	}
	return nil
}

func printBenchReport(out *output.Writer, report *validation.Report) {
	for _, tr := range report.Results {
		switch {
		case tr.Error != "":
			out.Errorf("%-28s %s", tr.ID, tr.Error)
		case tr.Passed && tr.Negative:
			out.Successf("%-28s rejected or low confidence", tr.ID)
		case tr.Passed:
			out.Successf("%-28s coverage %3.0f%%  rank %d  %s", tr.ID, tr.KeywordCoverage*100, tr.MatchedAt+1, tr.Duration.Round(time.Millisecond))
		case tr.Negative:
			out.Warningf("%-28s answered with confidence", tr.ID)
		default:
			out.Warningf("%-28s coverage %3.0f%%  missing: %v", tr.ID, tr.KeywordCoverage*100, tr.MissingKeywords)
		}
	}
	out.Newline()

	out.Statusf("📊", "Passed %d/%d (%.1f%%)", report.Passed, report.Total, report.PassRate()*100)
	out.Statusf("🎯", "Hit rate %.1f%%  MRR %.3f  coverage %.1f%%",
		report.HitRate*100, report.MRR, report.MeanCoverage*100)
	out.Statusf("⏱️", "Latency p50 %s  p95 %s", report.LatencyP50.Round(time.Millisecond), report.LatencyP95.Round(time.Millisecond))

	categories := make([]string, 0, len(report.ByCategory))
	for c := range report.ByCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	for _, c := range categories {
		cs := report.ByCategory[c]
		out.Statusf("", "  %-16s %d/%d", c, cs.Passed, cs.Total)
	}
}

func printComparison(out *output.Writer, c *validation.Comparison) {
	out.Newline()
	out.Status("📈", "Against baseline:")
	for _, m := range c.Metrics {
		line := fmt.Sprintf("  %-22s %.3f -> %.3f (%+.3f)", m.Name, m.Baseline, m.Current, m.Delta)
		switch m.Status {
		case validation.StatusRegression:
			out.Warning(line)
		case validation.StatusImproved:
			out.Success(line)
		default:
			out.Status("", line)
		}
	}
	for _, q := range c.Queries {
		out.Statusf("", "  %-10s %s", q.Status, q.ID)
	}
}
