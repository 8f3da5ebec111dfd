// Package cli provides the pairbench commands.
package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/mcpchecker/pairbench/pkg/agent"
	"github.com/mcpchecker/pairbench/pkg/analysis"
	"github.com/mcpchecker/pairbench/pkg/bench"
	"github.com/mcpchecker/pairbench/pkg/results"
	"github.com/spf13/cobra"
)

// verifyResult is the outcome of checking one run against the thresholds
type verifyResult struct {
	Metric    string
	Baseline  float64
	Treatment float64
	MinDelta  float64
	DeltaMet  bool

	RequireSignificant bool
	Significance       *analysis.McNemarResult
	SignificanceMet    bool
}

func (v verifyResult) Delta() float64 {
	return v.Treatment - v.Baseline
}

func (v verifyResult) Passed() bool {
	return v.DeltaMet && v.SignificanceMet
}

// NewVerifyCmd creates the verify command
func NewVerifyCmd() *cobra.Command {
	var resultsDir string
	var metric string
	var minDelta float64
	var requireSignificant bool

	cmd := &cobra.Command{
		Use:   "verify --results-dir <dir>",
		Short: "Verify the treatment beats the baseline by a threshold",
		Long: `Verify that the treatment pass rate exceeds the baseline by at least
--min-delta and, with --require-significant, that the paired McNemar test
finds a significant improvement.

Exits with code 0 if all thresholds are met, code 1 otherwise.
Use 'pairbench diff' to view per-task results.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := bench.LoadReport(resultsDir)
			if err != nil {
				return fmt.Errorf("failed to load results: %w", err)
			}

			res, err := checkThresholds(report, metric, minDelta, requireSignificant)
			if err != nil {
				return err
			}

			outputVerifyResults(cmd.OutOrStdout(), res)

			if !res.Passed() {
				// silent error (SilenceErrors: true), sets exit code 1
				return fmt.Errorf("thresholds not met")
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&resultsDir, "results-dir", "", "Results directory of an evaluated run")
	cmd.Flags().StringVar(&metric, "metric", "pass@1", "Metric compared between the conditions")
	cmd.Flags().Float64Var(&minDelta, "min-delta", 0.0, "Minimum treatment minus baseline difference of the metric")
	cmd.Flags().BoolVar(&requireSignificant, "require-significant", false, "Also require a significant improvement in the paired test")

	_ = cmd.MarkFlagRequired("results-dir")

	return cmd
}

func checkThresholds(report *analysis.Report, metric string, minDelta float64, requireSignificant bool) (verifyResult, error) {
	baseline, err := metricValue(report.EvalResults, string(agent.ConditionBaseline), metric)
	if err != nil {
		return verifyResult{}, err
	}

	treatmentKey, ok := results.TreatmentKey(report.EvalResults)
	if !ok {
		return verifyResult{}, fmt.Errorf("no %s results found", agent.ConditionTreatment)
	}
	treatment, err := metricValue(report.EvalResults, treatmentKey, metric)
	if err != nil {
		return verifyResult{}, err
	}

	res := verifyResult{
		Metric:             metric,
		Baseline:           baseline,
		Treatment:          treatment,
		MinDelta:           minDelta,
		RequireSignificant: requireSignificant,
		Significance:       report.Significance,
		SignificanceMet:    true,
	}
	res.DeltaMet = res.Delta() >= minDelta
	if requireSignificant {
		sig := report.Significance
		res.SignificanceMet = sig != nil && sig.Significant && sig.BToP > sig.PToB
	}
	return res, nil
}

func metricValue(evalResults *results.EvalResults, condition, metric string) (float64, error) {
	rates, ok := evalResults.Get(condition)
	if !ok || rates == nil {
		return 0, fmt.Errorf("no %s results found", condition)
	}
	v, ok := rates.Get(metric)
	if !ok {
		return 0, fmt.Errorf("metric %q not found for %s", metric, condition)
	}
	return v, nil
}

func outputVerifyResults(out io.Writer, res verifyResult) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	bold := color.New(color.Bold)

	_, _ = bold.Fprintln(out, "=== Threshold Verification ===")
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Baseline %s:  %.2f%%\n", res.Metric, res.Baseline*100)
	fmt.Fprintf(out, "Treatment %s: %.2f%%\n", res.Metric, res.Treatment*100)

	if res.DeltaMet {
		_, _ = green.Fprintf(out, "Delta:        %+.2f%% >= %+.2f%% ✓\n", res.Delta()*100, res.MinDelta*100)
	} else {
		_, _ = red.Fprintf(out, "Delta:        %+.2f%% < %+.2f%% ✗\n", res.Delta()*100, res.MinDelta*100)
	}

	switch sig := res.Significance; {
	case !res.RequireSignificant:
		if sig != nil {
			fmt.Fprintf(out, "McNemar:      p=%.4f (not required)\n", sig.PValue)
		}
	case sig == nil:
		_, _ = red.Fprintln(out, "McNemar:      N/A (no per-task outcomes) ✗")
	case res.SignificanceMet:
		_, _ = green.Fprintf(out, "McNemar:      p=%.4f < %.2f, treatment better ✓\n", sig.PValue, analysis.SignificanceLevel)
	case !sig.Significant:
		_, _ = red.Fprintf(out, "McNemar:      p=%.4f >= %.2f ✗\n", sig.PValue, analysis.SignificanceLevel)
	default:
		_, _ = red.Fprintf(out, "McNemar:      p=%.4f, but baseline better ✗\n", sig.PValue)
	}

	fmt.Fprintln(out)
	if res.Passed() {
		_, _ = green.Fprintln(out, "Result: PASSED")
	} else {
		_, _ = red.Fprintln(out, "Result: FAILED")
	}
}
