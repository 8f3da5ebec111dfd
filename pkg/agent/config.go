package agent

import (
	"fmt"
	"os"

	"github.com/mcpchecker/pairbench/pkg/util"
	"sigs.k8s.io/yaml"
)

const (
	KindAgent = "Agent"
)

type AgentSpec struct {
	util.TypeMeta `json:",inline"`
	Metadata      AgentMetadata `json:"metadata"`
	Builtin       *BuiltinRef   `json:"builtin,omitempty"`
	Commands      AgentCommands `json:"commands"`
}

// BuiltinRef references a built-in agent type
type BuiltinRef struct {
	// Type is the built-in agent type (e.g. "claude-code")
	Type string `json:"type" validate:"required"`
}

type AgentMetadata struct {
	// Name of the agent
	Name string `json:"name"`

	// Version of the agent - used if Commands.GetVersion is not set
	Version *string `json:"version,omitempty"`
}

// AgentCommands describes how to invoke the agent for each condition. Every
// argv element is a text/template rendered with CommandData, so an element
// rendering to "" is passed through as an empty argument.
type AgentCommands struct {
	// Argv for the isolated (baseline) condition
	Isolated []string `json:"isolated,omitempty" validate:"omitempty,min=1,dive,tmpl"`

	// Argv for the shared (treatment) condition
	Shared []string `json:"shared,omitempty" validate:"omitempty,min=1,dive,tmpl"`

	// Comma separated tool allow list, available as {{ .AllowedTools }}
	AllowedTools string `json:"allowedTools,omitempty"`

	// Settings file for the isolated condition, available as {{ .BareSettings }}.
	// A leading ~/ is expanded to the user's home directory.
	BareSettings string `json:"bareSettings,omitempty"`

	// Environment variables removed before the agent is launched
	StripEnv []string `json:"stripEnv,omitempty"`

	// An optional shell command printing the agent version
	GetVersion *string `json:"getVersion,omitempty"`
}

// CommandData is what argv templates can reference.
type CommandData struct {
	Condition    string
	Model        string
	Prompt       string
	TaskID       string
	Workdir      string
	AllowedTools string
	BareSettings string
	Invocation   int
}

// Argv returns the argv templates for condition.
func (c *AgentCommands) Argv(condition Condition) []string {
	if condition.Isolated() {
		return c.Isolated
	}
	return c.Shared
}

// Validate checks the spec is runnable.
func (s *AgentSpec) Validate() error {
	if err := s.TypeMeta.Validate(KindAgent); err != nil {
		return err
	}
	if len(s.Commands.Isolated) == 0 || len(s.Commands.Shared) == 0 {
		return fmt.Errorf("agent '%s' must define both isolated and shared commands", s.Metadata.Name)
	}
	return util.ValidateStruct(s)
}

func Read(data []byte) (*AgentSpec, error) {
	spec := &AgentSpec{}

	err := yaml.Unmarshal(data, spec)
	if err != nil {
		return nil, err
	}

	if err := spec.TypeMeta.Validate(KindAgent); err != nil {
		return nil, err
	}

	return spec, nil
}

func FromFile(path string) (*AgentSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file '%s' for agentspec: %w", path, err)
	}

	return Read(data)
}
