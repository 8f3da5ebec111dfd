package cli

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/mcpchecker/pairbench/pkg/agent"
	"github.com/mcpchecker/pairbench/pkg/analysis"
	"github.com/mcpchecker/pairbench/pkg/evaluator"
	"github.com/mcpchecker/pairbench/pkg/ledger"
	"github.com/mcpchecker/pairbench/pkg/results"
	"github.com/mcpchecker/pairbench/pkg/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// outcome is whether each condition passed one task
type outcome struct {
	baseline  bool
	treatment bool
}

// createTestResultsDir writes an evaluated results directory where task i
// is HumanEval/i with the given outcome.
func createTestResultsDir(t *testing.T, outcomes []outcome) string {
	t.Helper()

	dir := t.TempDir()
	layout := results.Layout{Root: dir}
	require.NoError(t, layout.Ensure())

	var baselineOut, treatmentOut strings.Builder
	baselinePassed, treatmentPassed := 0, 0
	for i, o := range outcomes {
		id := fmt.Sprintf("HumanEval/%d", i)
		for _, cond := range []agent.Condition{agent.ConditionBaseline, agent.ConditionTreatment} {
			rec := ledger.NewRecord(task.KindEvalPlus, id, fmt.Sprintf("def f%d():\n    return %d\n", i, i))
			require.NoError(t, ledger.Append(layout.SamplesPath(string(cond)), rec))
		}

		fmt.Fprintf(&baselineOut, "%s: %s\n", id, verdict(o.baseline))
		fmt.Fprintf(&treatmentOut, "%s: %s\n", id, verdict(o.treatment))
		if o.baseline {
			baselinePassed++
		}
		if o.treatment {
			treatmentPassed++
		}

		rc := 0
		elapsed := 12.5
		log := &results.TaskLog{
			TaskID:   id,
			Baseline: agent.Metadata{Returncode: &rc, ElapsedS: &elapsed, AgentOutput: []byte(`{"type": "result", "subtype": "success", "num_turns": 3, "result": "Done."}`)},
		}
		if o.treatment {
			log.Treatment = agent.Metadata{Returncode: &rc, ElapsedS: &elapsed}
		} else {
			timeout := 300.0
			log.Treatment = agent.Metadata{Error: agent.ErrTimeout, ElapsedS: &timeout}
		}
		require.NoError(t, results.WriteJSON(layout.TaskLogPath(id), log))
	}

	total := float64(len(outcomes))
	raw := results.NewEvalRaw()
	evalResults := results.NewEvalResults()
	for _, c := range []struct {
		cond   agent.Condition
		stdout string
		passed int
	}{
		{agent.ConditionBaseline, baselineOut.String(), baselinePassed},
		{agent.ConditionTreatment, treatmentOut.String(), treatmentPassed},
	} {
		rate := float64(c.passed) / total
		raw.Set(string(c.cond), &evaluator.Result{Stdout: fmt.Sprintf("%spass@1: %.3f\n", c.stdout, rate)})
		evalResults.Set(string(c.cond), evaluator.ParseRates(fmt.Sprintf("pass@1: %.3f\n", rate)))
	}
	require.NoError(t, results.WriteJSON(layout.Path(results.EvalRawFile), raw))
	require.NoError(t, results.WriteJSON(layout.Path(results.EvalResultsFile), evalResults))

	return dir
}

func verdict(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}

// sampleOutcomes improves HumanEval/1 and HumanEval/2 and regresses HumanEval/3.
func sampleOutcomes() []outcome {
	return []outcome{
		{baseline: true, treatment: true},
		{baseline: false, treatment: true},
		{baseline: false, treatment: true},
		{baseline: true, treatment: false},
	}
}

// significantOutcomes has six improvements and no regressions.
func significantOutcomes() []outcome {
	out := []outcome{{baseline: true, treatment: true}}
	for range 6 {
		out = append(out, outcome{baseline: false, treatment: true})
	}
	return out
}

func TestVerifyCommand(t *testing.T) {
	tests := map[string]struct {
		outcomes []outcome
		args     []string
		passed   bool
		output   []string
	}{
		"delta met": {
			outcomes: sampleOutcomes(),
			args:     []string{"--min-delta", "0.2"},
			passed:   true,
			output:   []string{"=== Threshold Verification ===", "Result: PASSED"},
		},
		"delta not met": {
			outcomes: sampleOutcomes(),
			args:     []string{"--min-delta", "0.5"},
			passed:   false,
			output:   []string{"Result: FAILED"},
		},
		"significance required but not reached": {
			outcomes: sampleOutcomes(),
			args:     []string{"--require-significant"},
			passed:   false,
			output:   []string{"McNemar:      p=1.0000 >= 0.05", "Result: FAILED"},
		},
		"significant improvement": {
			outcomes: significantOutcomes(),
			args:     []string{"--require-significant", "--min-delta", "0.5"},
			passed:   true,
			output:   []string{"treatment better", "Result: PASSED"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			dir := createTestResultsDir(t, tc.outcomes)

			cmd := NewVerifyCmd()
			cmd.SetArgs(append([]string{"--results-dir", dir}, tc.args...))
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)

			err := cmd.Execute()
			if tc.passed {
				require.NoError(t, err)
			} else {
				require.EqualError(t, err, "thresholds not met")
			}
			for _, want := range tc.output {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}

func TestVerifyCommandUnknownMetric(t *testing.T) {
	dir := createTestResultsDir(t, sampleOutcomes())

	cmd := NewVerifyCmd()
	cmd.SetArgs([]string{"--results-dir", dir, "--metric", "pass@10"})
	cmd.SetOut(new(bytes.Buffer))

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `metric "pass@10" not found`)
}

func TestVerifyCommandMissingResults(t *testing.T) {
	cmd := NewVerifyCmd()
	cmd.SetArgs([]string{"--results-dir", t.TempDir()})
	cmd.SetOut(new(bytes.Buffer))

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load results")
}

func TestCheckThresholds_LegacyTreatment(t *testing.T) {
	evalResults := results.NewEvalResults()
	evalResults.Set("baseline", evaluator.ParseRates("pass@1: 0.5\n"))
	evalResults.Set(agent.LegacyTreatmentName, evaluator.ParseRates("pass@1: 0.6\n"))

	res, err := checkThresholds(&analysis.Report{EvalResults: evalResults}, "pass@1", 0.05, false)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, res.Delta(), 1e-9)
	assert.True(t, res.Passed())
}
