package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hybridrag/internal/output"
	"github.com/Aman-CERP/hybridrag/internal/preflight"
)

type doctorOutput struct {
	Status string                  `json:"status"`
	Checks []preflight.CheckResult `json:"checks"`
}

func newDoctorCmd() *cobra.Command {
	var (
		jsonOutput bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check indices and services before serving",
		Long: `Run system checks against the current configuration:

  - the chunk store loads and validates
  - the lexical and dense indices open and match the chunk store
  - the embedding service and reranker answer
  - the log directory has space and is writable

Exits non-zero when a required check fails. Unreachable services are
reported as warnings because queries degrade without them.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cleanup, err := setupLogging(cfg, false)
			if err != nil {
				return err
			}
			defer cleanup()

			checker := preflight.New(cfg,
				preflight.WithOutput(cmd.OutOrStdout()),
				preflight.WithVerbose(verbose))
			results := checker.RunAll(cmd.Context())

			if jsonOutput {
				if err := output.New(cmd.OutOrStdout()).JSON(doctorOutput{
					Status: checker.SummaryStatus(results),
					Checks: results,
				}); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}

			if checker.HasCriticalFailures(results) {
				return fmt.Errorf("system check failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show check details")
	return cmd
}
