package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewCommand(t *testing.T) {
	dir := createTestResultsDir(t, sampleOutcomes())

	tests := map[string]struct {
		args     []string
		contains []string
		excludes []string
	}{
		"all tasks": {
			contains: []string{
				"Task: HumanEval/0",
				"Task: HumanEval/3",
				"baseline: PASSED | exit 0 | 12.5s",
				"treatment: FAILED | agent timed out after 300.0s | 300.0s",
				"success turns=3",
				"Done.",
			},
		},
		"filtered": {
			args:     []string{"--task", "humaneval/3"},
			contains: []string{"Task: HumanEval/3"},
			excludes: []string{"Task: HumanEval/0"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cmd := NewViewCmd()
			cmd.SetArgs(append([]string{"--results-dir", dir}, tc.args...))
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)

			require.NoError(t, cmd.Execute())
			for _, want := range tc.contains {
				assert.Contains(t, buf.String(), want)
			}
			for _, unwanted := range tc.excludes {
				assert.NotContains(t, buf.String(), unwanted)
			}
		})
	}
}

func TestViewCommandNoMatch(t *testing.T) {
	dir := createTestResultsDir(t, sampleOutcomes())

	cmd := NewViewCmd()
	cmd.SetArgs([]string{"--results-dir", dir, "--task", "ClassEval"})
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no tasks matched filter "ClassEval"`)
}

func TestSummarizeAgentOutput(t *testing.T) {
	tests := map[string]struct {
		input    string
		expected []string
	}{
		"result object": {
			input: `{"type": "result", "subtype": "success", "num_turns": 4, "duration_ms": 15300, "total_cost_usd": 0.0123, "result": "Implemented the function."}`,
			expected: []string{
				"success turns=4 duration=15.3s cost=$0.0123",
				"result:\n  Implemented the function.",
			},
		},
		"event array": {
			input: `[{"type": "system"}, {"type": "assistant"}, {"type": "result", "is_error": true, "result": "Credit balance is too low"}]`,
			expected: []string{
				"error:\n  Credit balance is too low",
			},
		},
		"unknown shape": {
			input:    `{"answer": 42}`,
			expected: []string{`output: {"answer":42}`},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got := summarizeAgentOutput(json.RawMessage(tc.input), 6, 100)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestLimitMultiline(t *testing.T) {
	raw := strings.Repeat("line\n", 8)

	got := limitMultiline(raw, 3, 100)
	assert.Equal(t, "line\nline\nline\n… (+5 lines)", got)

	assert.Equal(t, "", limitMultiline("\n\n", 3, 100))
	assert.Equal(t, "aaa bbb\nccc", limitMultiline("aaa bbb ccc", 0, 8))
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		input string
		max   int
		want  string
	}{
		{"hello", 10, "hello"},
		{"hello world", 5, "hell…"},
		{"你好世界", 2, "你…"}, // Multi-byte check
		{"你好世界", 4, "你好世界"},
		{"", 5, ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := truncateString(tt.input, tt.max)
			if got != tt.want {
				t.Errorf("truncateString(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.want)
			}
		})
	}
}
