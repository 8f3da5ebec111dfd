package cli

import (
	"fmt"

	"github.com/mcpchecker/pairbench/pkg/bench"
	"github.com/mcpchecker/pairbench/pkg/results"
	"github.com/spf13/cobra"
)

// NewReportCmd creates the report command
func NewReportCmd() *cobra.Command {
	var resultsDir string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "report --results-dir <dir>",
		Short: "Re-render REPORT.md from a finished run",
		Long: `Re-render REPORT.md from the evaluation files of a results directory.

The run metadata and raw evaluator output are optional; eval_results.json is
required.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := bench.WriteReport(resultsDir)
			if err != nil {
				return fmt.Errorf("failed to render report: %w", err)
			}

			if quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", results.Layout{Root: resultsDir}.Path(results.ReportFile))
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		},
	}

	cmd.Flags().StringVar(&resultsDir, "results-dir", "", "Results directory of a finished run")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print where the report was written")

	_ = cmd.MarkFlagRequired("results-dir")

	return cmd
}
