package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/mcpchecker/pairbench/pkg/analysis"
	"github.com/mcpchecker/pairbench/pkg/bench"
	"github.com/mcpchecker/pairbench/pkg/benchmark"
	"github.com/mcpchecker/pairbench/pkg/evaluator"
	"github.com/mcpchecker/pairbench/pkg/task"
	"github.com/mcpchecker/pairbench/pkg/util"
	"github.com/spf13/cobra"
	"k8s.io/utils/ptr"
)

type runFlags struct {
	config     string
	benchmark  string
	dataset    string
	agentFile  string
	model      string
	tasks      int
	timeout    int
	mini       bool
	sharedRoot string
	envFile    string
	resultsDir string

	dryRun   bool
	skipEval bool
	resume   bool
}

// NewRunCmd creates the run command
func NewRunCmd() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run both conditions over a benchmark and evaluate them",
		Long: `Run every benchmark task through the baseline and treatment conditions,
append each answer to its condition ledger, then evaluate both ledgers and
write REPORT.md into the results directory.

Settings come from --config when given; flags override the file.

Example:
  pairbench run --benchmark evalplus --dataset HumanEvalPlus.jsonl --tasks 10
  pairbench run --config benchmark.yaml --resume`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := loadRunSpec(flags, cmd.Flags().Changed)
			if err != nil {
				return err
			}

			runner, err := bench.NewRunner(spec, bench.Options{
				DryRun:   flags.dryRun,
				SkipEval: flags.skipEval,
				Resume:   flags.resume,
			})
			if err != nil {
				return fmt.Errorf("failed to create runner: %w", err)
			}
			runner.Out = cmd.OutOrStdout()

			ctx := cmd.Context()
			display := newProgressDisplay(cmd.OutOrStdout(), util.IsVerbose(ctx))

			summary, err := runner.RunWithProgress(ctx, display.handleProgress)
			if summary != nil {
				displaySummary(cmd.OutOrStdout(), summary)
			}
			if err != nil {
				return fmt.Errorf("run failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.config, "config", "c", "", "Benchmark config file (kind: Benchmark)")
	cmd.Flags().StringVar(&flags.benchmark, "benchmark", string(task.KindEvalPlus), "Benchmark kind (evalplus, classeval)")
	cmd.Flags().StringVar(&flags.dataset, "dataset", "", "Dataset file (defaults per benchmark kind)")
	cmd.Flags().StringVar(&flags.agentFile, "agent", "", "Agent spec file (defaults to the claude-code builtin)")
	cmd.Flags().StringVar(&flags.model, "model", benchmark.DefaultModel, "Model id passed to the agent")
	cmd.Flags().IntVar(&flags.tasks, "tasks", 0, "Run only the first N tasks (0 = all)")
	cmd.Flags().IntVar(&flags.timeout, "timeout", benchmark.DefaultTimeoutSeconds, "Per-invocation timeout in seconds")
	cmd.Flags().BoolVar(&flags.mini, "mini", false, "Use the reduced test suite (evalplus only)")
	cmd.Flags().StringVar(&flags.sharedRoot, "shared-root", "", "Persistent root the treatment condition runs in (default \".\")")
	cmd.Flags().StringVar(&flags.envFile, "env-file", "", "Optional .env file merged into the agent environment")
	cmd.Flags().StringVar(&flags.resultsDir, "results-dir", "", "Results directory (default \"results\")")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Print the agent commands without running them")
	cmd.Flags().BoolVar(&flags.skipEval, "skip-eval", false, "Stop after generating both ledgers")
	cmd.Flags().BoolVar(&flags.resume, "resume", false, "Skip tasks already present in both ledgers")

	return cmd
}

// loadRunSpec builds the benchmark spec from the config file, if any, with
// every changed flag applied on top.
func loadRunSpec(flags *runFlags, changed func(string) bool) (*benchmark.BenchmarkSpec, error) {
	var spec *benchmark.BenchmarkSpec
	if flags.config != "" {
		var err error
		spec, err = benchmark.FromFile(flags.config)
		if err != nil {
			return nil, fmt.Errorf("failed to load benchmark config: %w", err)
		}
		if changed("benchmark") && task.Kind(flags.benchmark) != spec.Config.Benchmark {
			return nil, fmt.Errorf("--benchmark %s conflicts with benchmark %q in %s", flags.benchmark, spec.Config.Benchmark, flags.config)
		}
	} else {
		spec = benchmark.New(task.Kind(flags.benchmark))
	}

	cfg := &spec.Config
	if changed("dataset") {
		cfg.Dataset = flags.dataset
		cfg.Evaluator.Dataset = flags.dataset
	}
	if changed("agent") {
		cfg.AgentFile = flags.agentFile
	}
	if changed("model") {
		cfg.Model = flags.model
	}
	if changed("tasks") {
		cfg.Tasks = flags.tasks
	}
	if changed("timeout") {
		cfg.TimeoutSeconds = ptr.To(flags.timeout)
	}
	if changed("mini") {
		cfg.Mini = flags.mini
	}
	if changed("shared-root") {
		cfg.SharedRoot = flags.sharedRoot
	}
	if changed("env-file") {
		cfg.EnvFile = flags.envFile
	}
	if changed("results-dir") {
		cfg.ResultsDir = flags.resultsDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return spec, nil
}

// progressDisplay handles interactive progress display
type progressDisplay struct {
	out     io.Writer
	verbose bool
	green   *color.Color
	red     *color.Color
	yellow  *color.Color
	cyan    *color.Color
	bold    *color.Color
}

func newProgressDisplay(out io.Writer, verbose bool) *progressDisplay {
	return &progressDisplay{
		out:     out,
		verbose: verbose,
		green:   color.New(color.FgGreen),
		red:     color.New(color.FgRed),
		yellow:  color.New(color.FgYellow),
		cyan:    color.New(color.FgCyan),
		bold:    color.New(color.Bold),
	}
}

func (d *progressDisplay) handleProgress(event bench.ProgressEvent) {
	switch event.Type {
	case bench.EventRunStart:
		_, _ = d.bold.Fprintf(d.out, "=== %s ===\n", event.Message)

	case bench.EventTasksLoaded:
		fmt.Fprintln(d.out, event.Message)

	case bench.EventResume:
		_, _ = d.yellow.Fprintln(d.out, event.Message)

	case bench.EventTaskStart:
		fmt.Fprintln(d.out)
		_, _ = d.cyan.Fprintf(d.out, "[%d/%d] %s\n", event.Index, event.Total, event.TaskID)

	case bench.EventTaskSkipped:
		if d.verbose {
			fmt.Fprintf(d.out, "[%d/%d] %s: already in both ledgers, skipping\n", event.Index, event.Total, event.TaskID)
		}

	case bench.EventConditionStart:
		if d.verbose {
			fmt.Fprintf(d.out, "  → Running %s...\n", event.Condition)
		}

	case bench.EventConditionDone:
		d.printCondition(event)

	case bench.EventTaskProgress:
		if p := event.Progress; p != nil && p.Done > 0 {
			fmt.Fprintf(d.out, "  Progress: %d done, avg %.0fs/task, ~%.0fmin remaining\n",
				p.Done, p.Average.Seconds(), p.Remaining.Minutes())
		}

	case bench.EventWarning:
		_, _ = d.yellow.Fprintf(d.out, "WARNING: %s\n", event.Message)
		for _, w := range event.Warnings {
			fmt.Fprintf(d.out, "  - %s\n", w)
		}

	case bench.EventEvalStart:
		fmt.Fprintln(d.out)
		_, _ = d.bold.Fprintf(d.out, "=== %s ===\n", event.Message)

	case bench.EventEvalSkipped:
		fmt.Fprintln(d.out)
		fmt.Fprintf(d.out, "Skipping evaluation (%s)\n", event.Message)

	case bench.EventEvalCondition:
		d.printEvaluation(event)

	case bench.EventReport:
		fmt.Fprintln(d.out)
		fmt.Fprintln(d.out, strings.TrimRight(event.Report, "\n"))

	case bench.EventRunComplete:
		fmt.Fprintln(d.out)
		_, _ = d.bold.Fprintln(d.out, event.Message)
	}
}

func (d *progressDisplay) printCondition(event bench.ProgressEvent) {
	md := event.Metadata
	if md == nil {
		return
	}

	elapsed := ""
	if md.ElapsedS != nil {
		elapsed = fmt.Sprintf(" (%.1fs)", *md.ElapsedS)
	}

	switch {
	case md.TimedOut():
		_, _ = d.red.Fprintf(d.out, "  ✗ %s: timed out%s\n", event.Condition, elapsed)
	case md.Failed():
		_, _ = d.red.Fprintf(d.out, "  ✗ %s: %s%s\n", event.Condition, md.Error, elapsed)
	case md.Returncode == nil:
		// dry run
	case *md.Returncode != 0:
		_, _ = d.yellow.Fprintf(d.out, "  ~ %s: exit %d%s\n", event.Condition, *md.Returncode, elapsed)
	default:
		_, _ = d.green.Fprintf(d.out, "  ✓ %s: done%s\n", event.Condition, elapsed)
	}

	if d.verbose && md.Stderr != "" {
		fmt.Fprintln(d.out, indentBlock(limitMultiline(md.Stderr, defaultMaxOutputLines, defaultMaxLineLength), "      "))
	}
}

func (d *progressDisplay) printEvaluation(event bench.ProgressEvent) {
	res := event.EvalResult
	if res == nil {
		return
	}

	switch {
	case res.Error != "":
		_, _ = d.red.Fprintf(d.out, "%s: evaluator failed: %s\n", event.EvalLabel, res.Error)
	case res.Returncode != 0:
		_, _ = d.yellow.Fprintf(d.out, "%s: evaluator exited with code %d\n", event.EvalLabel, res.Returncode)
	default:
		_, _ = d.green.Fprintf(d.out, "%s: evaluated\n", event.EvalLabel)
	}

	if d.verbose && res.Stdout != "" {
		fmt.Fprintln(d.out, indentBlock(limitMultiline(res.Stdout, 20, defaultMaxLineLength), "  "))
	}
}

func displaySummary(out io.Writer, summary *bench.Summary) {
	bold := color.New(color.Bold)

	fmt.Fprintln(out)
	_, _ = bold.Fprintln(out, "=== Run Summary ===")
	fmt.Fprintf(out, "Run:          %s\n", summary.RunID)
	fmt.Fprintf(out, "Results:      %s\n", summary.ResultsDir)
	fmt.Fprintf(out, "Tasks:        %d run, %d skipped, %d total\n", summary.TasksRun, summary.TasksSkipped, summary.TasksTotal)
	fmt.Fprintf(out, "Invocations:  %d\n", summary.Invocations)

	if len(summary.Outcomes) > 0 {
		outcomes := make([]string, 0, len(summary.Outcomes))
		for outcome, n := range summary.Outcomes {
			outcomes = append(outcomes, fmt.Sprintf("%s=%d", outcome, n))
		}
		sort.Strings(outcomes)
		fmt.Fprintf(out, "Outcomes:     %s\n", strings.Join(outcomes, " "))
	}

	if !summary.Evaluated {
		reason := summary.EvalSkipReason
		if reason == "" {
			reason = "not reached"
		}
		fmt.Fprintf(out, "Evaluation:   skipped (%s)\n", reason)
		return
	}

	if summary.EvalResults != nil {
		for p := summary.EvalResults.Oldest(); p != nil; p = p.Next() {
			fmt.Fprintf(out, "  %-12s %s\n", p.Key+":", formatRates(p.Value))
		}
	}
	fmt.Fprintf(out, "Significance: %s\n", formatSignificance(summary.Significance))
}

func formatRates(rates *evaluator.Rates) string {
	if rates == nil || rates.Len() == 0 {
		return "no rates parsed"
	}
	parts := make([]string, 0, rates.Len())
	for p := rates.Oldest(); p != nil; p = p.Next() {
		parts = append(parts, fmt.Sprintf("%s=%.3f", p.Key, p.Value))
	}
	return strings.Join(parts, " ")
}

func formatSignificance(sig *analysis.McNemarResult) string {
	if sig == nil {
		return "N/A (no per-task outcomes)"
	}
	verdict := "not significant"
	if sig.Significant {
		verdict = "significant"
	}
	return fmt.Sprintf("p=%.4f, %d improved, %d regressed (%s at %.2f)",
		sig.PValue, sig.BToP, sig.PToB, verdict, analysis.SignificanceLevel)
}
