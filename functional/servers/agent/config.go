// Package agent implements a scriptable coding agent used by the functional
// tests. It edits the artifact file in its working directory according to a
// list of behaviors read from a JSON config.
package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mcpchecker/pairbench/pkg/workdir"
)

// EnvConfigPath is the environment variable holding the config file path.
const EnvConfigPath = "MOCK_AGENT_CONFIG"

// SolvedMarker is appended to artifacts the agent solved. The mock evaluator
// passes a task when its recorded artifact contains it.
const SolvedMarker = "# mock-agent: solved"

type Action string

const (
	// ActionSolve rewrites the stub into a passing artifact.
	ActionSolve Action = "solve"
	// ActionLeave leaves the stub untouched.
	ActionLeave Action = "leave"
	// ActionFail exits with ExitCode without touching the stub.
	ActionFail Action = "fail"
	// ActionHang blocks until the process is killed.
	ActionHang Action = "hang"
)

// Behavior is one scripted reaction. Empty match fields match anything.
type Behavior struct {
	Name      string `json:"name,omitempty"`
	Condition string `json:"condition,omitempty"`
	TaskID    string `json:"taskId,omitempty"`

	Action   Action `json:"action"`
	ExitCode int    `json:"exitCode,omitempty"`
	Response string `json:"response,omitempty"`
}

// Matches reports whether b applies to an invocation.
func (b *Behavior) Matches(condition, taskID string) bool {
	if b.Condition != "" && b.Condition != condition {
		return false
	}
	if b.TaskID != "" && !strings.EqualFold(b.TaskID, taskID) {
		return false
	}
	return true
}

func NewBehavior() *Behavior {
	return &Behavior{Action: ActionLeave}
}

func (b *Behavior) WithName(name string) *Behavior {
	b.Name = name
	return b
}

func (b *Behavior) ForCondition(condition string) *Behavior {
	b.Condition = condition
	return b
}

func (b *Behavior) ForTask(taskID string) *Behavior {
	b.TaskID = taskID
	return b
}

func (b *Behavior) Then(action Action) *Behavior {
	b.Action = action
	return b
}

// Config drives one agent binary across every invocation of a run.
type Config struct {
	// Behaviors are tried in order, the first match wins.
	Behaviors []Behavior `json:"behaviors,omitempty"`
	Default   Behavior   `json:"default"`

	// ArtifactFile is the stub the agent edits in its working directory.
	ArtifactFile string `json:"artifactFile,omitempty"`

	// RecordFile receives one JSON line per invocation when set.
	RecordFile string `json:"recordFile,omitempty"`
}

func NewConfig() *Config {
	return &Config{
		Default:      *NewBehavior(),
		ArtifactFile: workdir.DefaultArtifactFile,
	}
}

func (c *Config) AddBehavior(b Behavior) *Config {
	c.Behaviors = append(c.Behaviors, b)
	return c
}

func (c *Config) WithDefault(action Action) *Config {
	c.Default.Action = action
	return c
}

// Match returns the behavior for an invocation, falling back to Default.
func (c *Config) Match(condition, taskID string) Behavior {
	for _, b := range c.Behaviors {
		if b.Matches(condition, taskID) {
			return b
		}
	}
	return c.Default
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mock agent config '%s': %w", path, err)
	}

	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse mock agent config '%s': %w", path, err)
	}
	return cfg, nil
}

func SaveConfig(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
