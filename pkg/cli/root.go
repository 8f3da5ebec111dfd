package cli

import (
	"context"
	"os"

	"github.com/mcpchecker/pairbench/pkg/util"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root pairbench command
func NewRootCmd() *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "pairbench",
		Short: "Paired A/B benchmark runner for coding agents",
		Long: `pairbench runs a coding agent over a benchmark twice per task: once in an
isolated workdir (baseline) and once in a persistent shared root (treatment).
Both answer ledgers are scored by an external evaluator and compared with an
exact McNemar test.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = util.WithVerbose(ctx, verbose)
			ctx = util.WithLogger(ctx, util.NewLogger(os.Stderr, verbose))
			cmd.SetContext(ctx)
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output and debug logging")

	rootCmd.AddCommand(NewRunCmd())
	rootCmd.AddCommand(NewReportCmd())
	rootCmd.AddCommand(NewDiffCmd())
	rootCmd.AddCommand(NewVerifyCmd())
	rootCmd.AddCommand(NewViewCmd())

	return rootCmd
}

// Execute runs the root command with ctx
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}
