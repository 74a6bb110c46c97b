package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hybridrag/internal/output"
	"github.com/Aman-CERP/hybridrag/internal/search"
)

// contextOutput is the JSON form of the context command.
type contextOutput struct {
	Context       string             `json:"context"`
	Sources       []search.SourceRef `json:"sources"`
	LowConfidence bool               `json:"low_confidence"`
}

func newContextCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "context <query>",
		Short: "Build an LLM context block for a question",
		Long: `Retrieve the best chunks for a question and print them as one context
block with numbered [Source i: title - url] headers, followed by the
citations.

Examples:
  hybridrag context "why does my backend show DOWN"
  hybridrag context "configure ocsp stapling" --top-k 3 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContext(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	addSearchFlags(cmd, &opts)
	return cmd
}

func runContext(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}

	engine, cleanup, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	text, sources, low, err := engine.RetrieveContextString(ctx, query, opts.retrieveOptions())
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if opts.format == output.FormatJSON {
		if sources == nil {
			sources = []search.SourceRef{}
		}
		return out.JSON(contextOutput{Context: text, Sources: sources, LowConfidence: low})
	}
	out.Context(text, sources, low)
	return nil
}
