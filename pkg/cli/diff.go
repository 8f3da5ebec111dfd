package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mcpchecker/pairbench/pkg/agent"
	"github.com/mcpchecker/pairbench/pkg/analysis"
	"github.com/mcpchecker/pairbench/pkg/results"
	"github.com/mcpchecker/pairbench/pkg/task"
	"github.com/spf13/cobra"
)

// DiffResult holds the per-task comparison of the two conditions of one run
type DiffResult struct {
	BaselineStats  results.Stats
	TreatmentStats results.Stats
	Regressions    []TaskDiff
	Improvements   []TaskDiff
	BothPassed     int
	BothFailed     int
	Significance   analysis.McNemarResult
}

// TaskDiff holds the diff for a single task
type TaskDiff struct {
	TaskID          string
	BaselinePassed  bool
	TreatmentPassed bool
	// Why the failing condition's agent run went wrong, if it did
	FailureReason string
}

// NewDiffCmd creates the diff command
func NewDiffCmd() *cobra.Command {
	var outputFormat string
	var resultsDir string

	cmd := &cobra.Command{
		Use:   "diff --results-dir <dir>",
		Short: "Compare baseline and treatment task by task",
		Long: `Compare the per-task outcomes of the baseline and treatment conditions of
one evaluated run.

Shows the tasks only the treatment solved, the tasks only the baseline solved,
overall pass rates and the paired McNemar test.

Example:
  pairbench diff --results-dir results
  pairbench diff --results-dir results --output markdown`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			diff, err := calculateDiff(resultsDir)
			if err != nil {
				return err
			}

			switch outputFormat {
			case "text":
				outputTextDiff(cmd.OutOrStdout(), diff)
			case "markdown":
				outputMarkdownDiff(cmd.OutOrStdout(), diff)
			default:
				return fmt.Errorf("unknown output format: %s", outputFormat)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&resultsDir, "results-dir", "", "Results directory of an evaluated run")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "Output format (text, markdown)")

	_ = cmd.MarkFlagRequired("results-dir")

	return cmd
}

func calculateDiff(dir string) (DiffResult, error) {
	raw, err := results.LoadEvalRaw(dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return DiffResult{}, err
	}

	sets := results.PassSets(dir, raw)
	baseline, ok := sets[string(agent.ConditionBaseline)]
	if !ok {
		return DiffResult{}, fmt.Errorf("no per-task outcomes for %s in %s", agent.ConditionBaseline, dir)
	}
	treatment, ok := sets[string(agent.ConditionTreatment)]
	if !ok {
		treatment, ok = sets[agent.LegacyTreatmentName]
	}
	if !ok {
		return DiffResult{}, fmt.Errorf("no per-task outcomes for %s in %s", agent.ConditionTreatment, dir)
	}

	universe, err := results.Universe(dir)
	if err != nil {
		return DiffResult{}, err
	}

	diff := DiffResult{
		BaselineStats:  results.CalculateStats(string(agent.ConditionBaseline), baseline, universe),
		TreatmentStats: results.CalculateStats(string(agent.ConditionTreatment), treatment, universe),
		Regressions:    make([]TaskDiff, 0),
		Improvements:   make([]TaskDiff, 0),
		Significance:   analysis.McNemar(baseline, treatment, universe),
	}

	ids := make([]string, 0, len(universe))
	for id := range universe {
		ids = append(ids, id)
	}
	task.SortIDs(ids)

	for _, id := range ids {
		b, t := baseline[id], treatment[id]
		taskDiff := TaskDiff{
			TaskID:          id,
			BaselinePassed:  b,
			TreatmentPassed: t,
		}

		switch {
		case b && t:
			diff.BothPassed++
		case !b && !t:
			diff.BothFailed++
		case b:
			taskDiff.FailureReason = failureReason(dir, id, agent.ConditionTreatment)
			diff.Regressions = append(diff.Regressions, taskDiff)
		default:
			taskDiff.FailureReason = failureReason(dir, id, agent.ConditionBaseline)
			diff.Improvements = append(diff.Improvements, taskDiff)
		}
	}

	return diff, nil
}

// failureReason describes how the agent run of cond went wrong for id, or ""
// when it completed cleanly or no log exists.
func failureReason(dir, id string, cond agent.Condition) string {
	log, err := results.LoadTaskLog(dir, id)
	if err != nil {
		return ""
	}
	md := log.Baseline
	if cond == agent.ConditionTreatment {
		md = log.Treatment
	}
	return describeInvocation(md)
}

func describeInvocation(md agent.Metadata) string {
	switch {
	case md.TimedOut():
		if md.ElapsedS != nil {
			return fmt.Sprintf("agent timed out after %.1fs", *md.ElapsedS)
		}
		return "agent timed out"
	case md.Failed():
		return md.Error
	case md.Returncode != nil && *md.Returncode != 0:
		return fmt.Sprintf("agent exited with code %d", *md.Returncode)
	}
	return ""
}

func outputTextDiff(out io.Writer, diff DiffResult) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	bold := color.New(color.Bold)

	_, _ = bold.Fprintln(out, "=== Baseline vs Treatment ===")
	fmt.Fprintln(out)

	if len(diff.Regressions) > 0 {
		_, _ = red.Fprintf(out, "Regressions (%d):\n", len(diff.Regressions))
		for _, r := range diff.Regressions {
			_, _ = red.Fprintf(out, "  ✗ %s: PASSED → FAILED\n", r.TaskID)
			if r.FailureReason != "" {
				fmt.Fprintf(out, "      %s\n", r.FailureReason)
			}
		}
		fmt.Fprintln(out)
	}

	if len(diff.Improvements) > 0 {
		_, _ = green.Fprintf(out, "Improvements (%d):\n", len(diff.Improvements))
		for _, r := range diff.Improvements {
			_, _ = green.Fprintf(out, "  ✓ %s: FAILED → PASSED\n", r.TaskID)
			if r.FailureReason != "" {
				fmt.Fprintf(out, "      baseline: %s\n", r.FailureReason)
			}
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintf(out, "Unchanged: %d passed in both, %d failed in both\n", diff.BothPassed, diff.BothFailed)
	fmt.Fprintln(out)

	_, _ = bold.Fprintln(out, "=== Summary ===")
	fmt.Fprintln(out)

	fmt.Fprintf(out, "             Baseline    Treatment   Change\n")
	fmt.Fprintf(out, "Tasks:       %d/%-8d %d/%-8d ",
		diff.BaselineStats.TasksPassed, diff.BaselineStats.TasksTotal,
		diff.TreatmentStats.TasksPassed, diff.TreatmentStats.TasksTotal)
	printChange(out, diff.TreatmentStats.PassRate-diff.BaselineStats.PassRate)

	fmt.Fprintf(out, "McNemar:     p=%.4f over %d discordant pairs", diff.Significance.PValue, diff.Significance.Discordant())
	if diff.Significance.Significant {
		_, _ = bold.Fprintf(out, " (significant at %.2f)\n", analysis.SignificanceLevel)
	} else {
		fmt.Fprintln(out, " (not significant)")
	}
}

func printChange(out io.Writer, change float64) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	if change > 0 {
		_, _ = green.Fprintf(out, "+%.1f%%\n", change*100)
	} else if change < 0 {
		_, _ = red.Fprintf(out, "%.1f%%\n", change*100)
	} else {
		fmt.Fprintln(out, "0.0%")
	}
}

func outputMarkdownDiff(out io.Writer, diff DiffResult) {
	fmt.Fprintln(out, "### 📊 Baseline vs Treatment")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "| Metric | Baseline | Treatment | Change |")
	fmt.Fprintln(out, "|--------|----------|-----------|--------|")
	fmt.Fprintf(out, "| Tasks | %d/%d (%.1f%%) | %d/%d (%.1f%%) | %s |\n",
		diff.BaselineStats.TasksPassed, diff.BaselineStats.TasksTotal, diff.BaselineStats.PassRate*100,
		diff.TreatmentStats.TasksPassed, diff.TreatmentStats.TasksTotal, diff.TreatmentStats.PassRate*100,
		formatChangeMarkdown(diff.TreatmentStats.PassRate-diff.BaselineStats.PassRate))

	verdict := "not significant"
	if diff.Significance.Significant {
		verdict = fmt.Sprintf("significant at %.2f", analysis.SignificanceLevel)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "McNemar exact test: p = %.4f (%s), %d improved, %d regressed\n",
		diff.Significance.PValue, verdict, diff.Significance.BToP, diff.Significance.PToB)

	if len(diff.Regressions) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "#### ❌ Regressions (%d)\n", len(diff.Regressions))
		for _, r := range diff.Regressions {
			fmt.Fprintf(out, "- `%s`: PASSED → FAILED", r.TaskID)
			if r.FailureReason != "" {
				fmt.Fprintf(out, " - %s", r.FailureReason)
			}
			fmt.Fprintln(out)
		}
	}

	if len(diff.Improvements) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "#### ✅ Improvements (%d)\n", len(diff.Improvements))
		for _, r := range diff.Improvements {
			fmt.Fprintf(out, "- `%s`: FAILED → PASSED\n", r.TaskID)
		}
	}
}

func formatChangeMarkdown(change float64) string {
	if change > 0 {
		return fmt.Sprintf("🟢 +%.1f%%", change*100)
	} else if change < 0 {
		return fmt.Sprintf("🔴 %.1f%%", change*100)
	}
	return "➖ 0.0%"
}
