package agent

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMatch(t *testing.T) {
	cfg := NewConfig().
		AddBehavior(*NewBehavior().WithName("treatment-1").ForCondition("treatment").ForTask("HumanEval/1").Then(ActionSolve)).
		AddBehavior(*NewBehavior().WithName("any-2").ForTask("HumanEval/2").Then(ActionFail)).
		WithDefault(ActionLeave)

	tests := map[string]struct {
		condition string
		taskID    string
		expected  Action
	}{
		"exact match":       {condition: "treatment", taskID: "HumanEval/1", expected: ActionSolve},
		"condition differs": {condition: "baseline", taskID: "HumanEval/1", expected: ActionLeave},
		"any condition":     {condition: "baseline", taskID: "humaneval/2", expected: ActionFail},
		"default":           {condition: "treatment", taskID: "HumanEval/3", expected: ActionLeave},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, cfg.Match(tc.condition, tc.taskID).Action)
		})
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	stub := filepath.Join(dir, "solution.py")
	require.NoError(t, os.WriteFile(stub, []byte("def f():\n"), 0644))

	cfg := NewConfig().WithDefault(ActionSolve)
	cfg.RecordFile = filepath.Join(t.TempDir(), "invocations.jsonl")

	out := new(bytes.Buffer)
	require.NoError(t, Run(context.Background(), cfg, Request{Condition: "baseline", TaskID: "HumanEval/0", Workdir: dir}, out))

	data, err := os.ReadFile(stub)
	require.NoError(t, err)
	assert.Contains(t, string(data), SolvedMarker)
	assert.Contains(t, out.String(), `"type":"result"`)

	invs, err := LoadInvocations(cfg.RecordFile)
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.Equal(t, "HumanEval/0", invs[0].TaskID)
	assert.True(t, invs[0].StubFound)
}

func TestRunFail(t *testing.T) {
	cfg := NewConfig().AddBehavior(Behavior{Action: ActionFail, ExitCode: 3})

	err := Run(context.Background(), cfg, Request{Workdir: t.TempDir()}, new(bytes.Buffer))
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.Code)
}

func TestRunHangCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := NewConfig().WithDefault(ActionHang)
	err := Run(ctx, cfg, Request{Workdir: t.TempDir()}, new(bytes.Buffer))
	assert.ErrorIs(t, err, context.Canceled)
}
