package agent

import (
	"sort"
)

// BuiltinAgent is an agent CLI pairbench knows how to drive without an
// agent file.
type BuiltinAgent interface {
	Name() string
	Description() string

	// GetDefaults returns the spec used for both conditions.
	GetDefaults() (*AgentSpec, error)

	// ValidateEnvironment fails when the CLI cannot be launched.
	ValidateEnvironment() error
}

// DefaultBuiltin is used when no agent file is given.
const DefaultBuiltin = "claude-code"

var builtinTypes = map[string]BuiltinAgent{
	DefaultBuiltin: &ClaudeCodeAgent{},
}

func GetBuiltinType(name string) (BuiltinAgent, bool) {
	agent, ok := builtinTypes[name]
	return agent, ok
}

// ListBuiltinTypes returns the builtin agents ordered by name.
func ListBuiltinTypes() []BuiltinAgent {
	result := make([]BuiltinAgent, 0, len(builtinTypes))
	for _, agent := range builtinTypes {
		result = append(result, agent)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}
