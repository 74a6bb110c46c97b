package cmd

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hybridrag/internal/output"
	"github.com/Aman-CERP/hybridrag/internal/profiling"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Load the indices and report what is available",
		Long: `Load the chunk store, lexical index, dense index, embedder and reranker
exactly as 'serve' does and print the resulting statistics.

Useful to verify a configuration before pointing an MCP client at it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, cleanup, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			st := engine.Stats()
			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(st)
			}

			out.Successf("Loaded %d chunks", st.Chunks)
			out.Statusf("🔎", "Lexical documents: %d", st.LexicalDocs)
			out.Statusf("🧭", "Dense backend: %s", st.DenseBackend)
			out.Statusf("🧠", "Embedding model: %s", st.EmbeddingModel)
			if st.RerankerEnabled {
				out.Status("🏅", "Reranker: enabled")
			} else {
				out.Warning("Reranker: disabled (fusion scores are used)")
			}
			out.Statusf("💾", "Heap in use: %s", profiling.FormatBytes(profiling.HeapInUse()))
			out.Newline()

			names := make([]string, 0, len(st.Sources))
			for name := range st.Sources {
				names = append(names, name)
			}
			sort.Strings(names)
			out.Status("📚", "Sources:")
			for _, name := range names {
				out.Statusf("", "  %-20s %d", name, st.Sources[name])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
