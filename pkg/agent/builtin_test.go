package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mcpchecker/pairbench/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBuiltinType(t *testing.T) {
	tests := map[string]struct {
		agentType    string
		shouldExist  bool
		expectedName string
	}{
		"claude-code exists": {
			agentType:    "claude-code",
			shouldExist:  true,
			expectedName: "claude-code",
		},
		"non-existent agent": {
			agentType:   "non-existent",
			shouldExist: false,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			agent, ok := GetBuiltinType(tc.agentType)
			if tc.shouldExist {
				require.True(t, ok)
				require.NotNil(t, agent)
				assert.Equal(t, tc.expectedName, agent.Name())
			} else {
				assert.False(t, ok)
				assert.Nil(t, agent)
			}
		})
	}
}

func TestListBuiltinTypes(t *testing.T) {
	agents := ListBuiltinTypes()
	require.NotEmpty(t, agents)

	for _, agent := range agents {
		assert.NotEmpty(t, agent.Description())
		spec, err := agent.GetDefaults()
		require.NoError(t, err)
		assert.NotEmpty(t, spec.Commands.Isolated)
		assert.NotEmpty(t, spec.Commands.Shared)
	}
}

func TestClaudeCodeAgent_Commands(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	spec, err := (&ClaudeCodeAgent{}).GetDefaults()
	require.NoError(t, err)

	runner, err := NewConditionRunner(spec, util.Environ{}, nil, nil)
	require.NoError(t, err)

	tests := map[string]struct {
		condition Condition
		expected  []string
	}{
		"baseline disables ambient configuration": {
			condition: ConditionBaseline,
			expected: []string{
				"claude",
				"--setting-sources", "",
				"--settings", filepath.Join(home, ".claude", "bare-settings.json"),
				"--strict-mcp-config",
				"--disable-slash-commands",
				"--allowedTools", "Edit,Read,Write,Bash,Glob,Grep",
				"-p",
				"--output-format", "json",
				"--dangerously-skip-permissions",
				"--model", "claude-haiku-4-5",
				"Implement solution.py",
			},
		},
		"treatment uses default configuration": {
			condition: ConditionTreatment,
			expected: []string{
				"claude",
				"--allowedTools", "Edit,Read,Write,Bash,Glob,Grep",
				"-p",
				"--output-format", "json",
				"--dangerously-skip-permissions",
				"--model", "claude-haiku-4-5",
				"Implement solution.py",
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			argv, err := runner.Command(Invocation{
				Condition: tc.condition,
				Model:     "claude-haiku-4-5",
				Prompt:    "Implement solution.py",
			})
			require.NoError(t, err)
			assert.Equal(t, tc.expected, argv)
		})
	}
}

func TestClaudeCodeAgent_StripsNestedSession(t *testing.T) {
	spec, err := (&ClaudeCodeAgent{}).GetDefaults()
	require.NoError(t, err)

	base := util.Environ{"CLAUDECODE": "1", "PATH": os.Getenv("PATH")}
	runner, err := NewConditionRunner(spec, base, map[string]string{"EXTRA": "yes"}, nil)
	require.NoError(t, err)

	env := runner.Environ()
	_, ok := env["CLAUDECODE"]
	assert.False(t, ok)
	assert.Equal(t, "yes", env["EXTRA"])
	assert.Equal(t, "1", base["CLAUDECODE"], "base environment must not change")
}
