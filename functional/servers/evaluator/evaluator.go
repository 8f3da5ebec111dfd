// Package evaluator implements a stand-in for the correctness checker. A task
// passes when its recorded artifact carries the mock agent's solved marker.
package evaluator

import (
	"fmt"
	"io"
	"strings"

	"github.com/mcpchecker/pairbench/functional/servers/agent"
	"github.com/mcpchecker/pairbench/pkg/ledger"
	"github.com/mcpchecker/pairbench/pkg/task"
	"github.com/spf13/cobra"
)

// NewEvaluateCmd returns the command the benchmark evaluator spec invokes.
func NewEvaluateCmd() *cobra.Command {
	var samples string
	var exitCode int

	cmd := &cobra.Command{
		Use:          "evaluate",
		Short:        "Grade a samples ledger by looking for the solved marker",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := Evaluate(samples, cmd.OutOrStdout()); err != nil {
				return err
			}
			if exitCode != 0 {
				return &agent.ExitError{Code: exitCode}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&samples, "samples", "", "Samples ledger to grade")
	cmd.Flags().IntVar(&exitCode, "exit-code", 0, "Exit with this code after printing results")
	_ = cmd.MarkFlagRequired("samples")

	return cmd
}

// Evaluate prints one "<task_id>: PASS|FAIL" line per record followed by the
// pass@1 rate, the same shape the real checker wrappers emit.
func Evaluate(samplesPath string, out io.Writer) error {
	records, err := ledger.Load(samplesPath)
	if err != nil {
		return err
	}

	byID := make(map[string]ledger.Record, len(records))
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if _, seen := byID[rec.TaskID]; !seen {
			ids = append(ids, rec.TaskID)
		}
		byID[rec.TaskID] = rec
	}
	task.SortIDs(ids)

	passed := 0
	for _, id := range ids {
		verdict := "FAIL"
		if strings.Contains(byID[id].Payload(), agent.SolvedMarker) {
			verdict = "PASS"
			passed++
		}
		fmt.Fprintf(out, "%s: %s\n", id, verdict)
	}

	rate := 0.0
	if len(ids) > 0 {
		rate = float64(passed) / float64(len(ids))
	}
	fmt.Fprintf(out, "pass@1: %.3f\n", rate)
	return nil
}
