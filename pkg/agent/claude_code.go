package agent

import (
	"fmt"
	"os/exec"

	"k8s.io/utils/ptr"
)

const (
	claudeBinary        = "claude"
	claudeAllowedTools  = "Edit,Read,Write,Bash,Glob,Grep"
	claudeBareSettings  = "~/.claude/bare-settings.json"
	claudeNestedSession = "CLAUDECODE"
)

type ClaudeCodeAgent struct{}

func (a *ClaudeCodeAgent) Name() string {
	return "claude-code"
}

func (a *ClaudeCodeAgent) Description() string {
	return "Anthropic's Claude Code CLI in print mode"
}

func (a *ClaudeCodeAgent) ValidateEnvironment() error {
	if _, err := exec.LookPath(claudeBinary); err != nil {
		return fmt.Errorf("'%s' binary not found in PATH", claudeBinary)
	}
	return nil
}

// GetDefaults builds the two invocations. The isolated one turns off every
// ambient settings source, MCP config and slash command; both restrict the
// tool surface to the same list and end with the prompt.
func (a *ClaudeCodeAgent) GetDefaults() (*AgentSpec, error) {
	tail := []string{
		"--allowedTools", "{{ .AllowedTools }}",
		"-p",
		"--output-format", "json",
		"--dangerously-skip-permissions",
		"--model", "{{ .Model }}",
		"{{ .Prompt }}",
	}

	isolated := append([]string{
		claudeBinary,
		"--setting-sources", "",
		"--settings", "{{ .BareSettings }}",
		"--strict-mcp-config",
		"--disable-slash-commands",
	}, tail...)
	shared := append([]string{claudeBinary}, tail...)

	return &AgentSpec{
		Metadata: AgentMetadata{
			Name: "claude-code",
		},
		Commands: AgentCommands{
			Isolated:     isolated,
			Shared:       shared,
			AllowedTools: claudeAllowedTools,
			BareSettings: claudeBareSettings,
			StripEnv:     []string{claudeNestedSession},
			GetVersion:   ptr.To(claudeBinary + " -v"),
		},
	}, nil
}
