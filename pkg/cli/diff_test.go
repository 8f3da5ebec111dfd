package cli

import (
	"bytes"
	"testing"

	"github.com/mcpchecker/pairbench/pkg/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffCommand(t *testing.T) {
	tests := map[string]struct {
		args   []string
		output []string
	}{
		"text": {
			output: []string{
				"Regressions (1):",
				"✗ HumanEval/3: PASSED → FAILED",
				"agent timed out after 300.0s",
				"Improvements (2):",
				"✓ HumanEval/1: FAILED → PASSED",
				"Unchanged: 1 passed in both, 0 failed in both",
				"2/4",
				"3/4",
			},
		},
		"markdown": {
			args: []string{"--output", "markdown"},
			output: []string{
				"| Tasks | 2/4 (50.0%) | 3/4 (75.0%) | 🟢 +25.0% |",
				"#### ❌ Regressions (1)",
				"- `HumanEval/3`: PASSED → FAILED - agent timed out after 300.0s",
				"#### ✅ Improvements (2)",
				"p = 1.0000 (not significant)",
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			dir := createTestResultsDir(t, sampleOutcomes())

			cmd := NewDiffCmd()
			cmd.SetArgs(append([]string{"--results-dir", dir}, tc.args...))
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)

			require.NoError(t, cmd.Execute())
			for _, want := range tc.output {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}

func TestDiffCommandUnknownFormat(t *testing.T) {
	dir := createTestResultsDir(t, sampleOutcomes())

	cmd := NewDiffCmd()
	cmd.SetArgs([]string{"--results-dir", dir, "--output", "html"})
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestDiffCommandNotEvaluated(t *testing.T) {
	cmd := NewDiffCmd()
	cmd.SetArgs([]string{"--results-dir", t.TempDir()})
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no per-task outcomes for baseline")
}

func TestCalculateDiff(t *testing.T) {
	dir := createTestResultsDir(t, sampleOutcomes())

	diff, err := calculateDiff(dir)
	require.NoError(t, err)

	assert.Equal(t, 2, diff.BaselineStats.TasksPassed)
	assert.Equal(t, 3, diff.TreatmentStats.TasksPassed)
	assert.Equal(t, 4, diff.TreatmentStats.TasksTotal)
	assert.Equal(t, 1, diff.BothPassed)
	assert.Equal(t, 0, diff.BothFailed)

	require.Len(t, diff.Improvements, 2)
	assert.Equal(t, "HumanEval/1", diff.Improvements[0].TaskID)
	assert.Equal(t, "HumanEval/2", diff.Improvements[1].TaskID)
	assert.Empty(t, diff.Improvements[0].FailureReason)

	require.Len(t, diff.Regressions, 1)
	assert.Equal(t, TaskDiff{
		TaskID:          "HumanEval/3",
		BaselinePassed:  true,
		TreatmentPassed: false,
		FailureReason:   "agent timed out after 300.0s",
	}, diff.Regressions[0])

	assert.Equal(t, 2, diff.Significance.BToP)
	assert.Equal(t, 1, diff.Significance.PToB)
	assert.False(t, diff.Significance.Significant)
}

func TestCalculateDiffSignificant(t *testing.T) {
	dir := createTestResultsDir(t, significantOutcomes())

	diff, err := calculateDiff(dir)
	require.NoError(t, err)
	assert.Empty(t, diff.Regressions)
	assert.Len(t, diff.Improvements, 6)
	assert.True(t, diff.Significance.Significant)
	assert.InDelta(t, 0.03125, diff.Significance.PValue, 1e-9)
}

func TestDescribeInvocation(t *testing.T) {
	zero, one := 0, 1
	elapsed := 42.0

	tests := map[string]struct {
		md       agent.Metadata
		expected string
	}{
		"clean exit":       {md: agent.Metadata{Returncode: &zero}, expected: ""},
		"non-zero exit":    {md: agent.Metadata{Returncode: &one}, expected: "agent exited with code 1"},
		"timeout":          {md: agent.Metadata{Error: agent.ErrTimeout, ElapsedS: &elapsed}, expected: "agent timed out after 42.0s"},
		"timeout no time":  {md: agent.Metadata{Error: agent.ErrTimeout}, expected: "agent timed out"},
		"launch error":     {md: agent.Metadata{Error: "exec: not found"}, expected: "exec: not found"},
		"no result at all": {md: agent.Metadata{}, expected: ""},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, describeInvocation(tc.md))
		})
	}
}

func TestFormatChangeMarkdown(t *testing.T) {
	tests := map[string]struct {
		change   float64
		expected string
	}{
		"positive": {change: 0.1, expected: "🟢 +10.0%"},
		"negative": {change: -0.25, expected: "🔴 -25.0%"},
		"zero":     {change: 0, expected: "➖ 0.0%"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, formatChangeMarkdown(tc.change))
		})
	}
}
