package agent

import (
	"fmt"

	"github.com/mcpchecker/pairbench/pkg/util"
)

// Resolve returns the spec in path merged with its builtin defaults. An empty
// path selects the default builtin agent.
func Resolve(path string) (*AgentSpec, error) {
	if path == "" {
		return builtinSpec(DefaultBuiltin)
	}
	return LoadWithBuiltins(path)
}

// LoadWithBuiltins loads an agent spec from a file and merges with builtin defaults if specified
func LoadWithBuiltins(yamlPath string) (*AgentSpec, error) {
	spec, err := FromFile(yamlPath)
	if err != nil {
		return nil, err
	}

	if spec.Builtin == nil {
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("invalid agent spec '%s': %w", yamlPath, err)
		}
		return spec, nil
	}

	defaults, err := builtinSpec(spec.Builtin.Type)
	if err != nil {
		return nil, err
	}

	merged := mergeAgentSpecs(defaults, spec)
	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent spec '%s': %w", yamlPath, err)
	}
	return merged, nil
}

// ValidateEnvironment checks the builtin backing spec, if any, can run here.
func ValidateEnvironment(spec *AgentSpec) error {
	name := DefaultBuiltin
	if spec.Builtin != nil {
		name = spec.Builtin.Type
	} else if spec.Metadata.Name != DefaultBuiltin {
		return nil
	}

	builtinAgent, ok := GetBuiltinType(name)
	if !ok {
		return fmt.Errorf("unknown builtin type: %s", name)
	}
	if err := builtinAgent.ValidateEnvironment(); err != nil {
		return fmt.Errorf("builtin type '%s' environment validation failed: %w", name, err)
	}
	return nil
}

func builtinSpec(name string) (*AgentSpec, error) {
	builtinAgent, ok := GetBuiltinType(name)
	if !ok {
		return nil, fmt.Errorf("unknown builtin type: %s", name)
	}

	defaults, err := builtinAgent.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("failed to get defaults for builtin type '%s': %w", name, err)
	}
	defaults.TypeMeta = util.TypeMeta{APIVersion: util.APIVersionV1Alpha1, Kind: KindAgent}
	defaults.Builtin = &BuiltinRef{Type: name}
	return defaults, nil
}

// mergeAgentSpecs merges two agent specs, with overrides taking precedence over defaults
func mergeAgentSpecs(defaults, overrides *AgentSpec) *AgentSpec {
	result := *defaults
	result.TypeMeta = overrides.TypeMeta

	if overrides.Metadata.Name != "" {
		result.Metadata.Name = overrides.Metadata.Name
	}
	if overrides.Metadata.Version != nil {
		result.Metadata.Version = overrides.Metadata.Version
	}
	if overrides.Builtin != nil && overrides.Builtin.Type != "" {
		result.Builtin = &BuiltinRef{Type: overrides.Builtin.Type}
	}

	if len(overrides.Commands.Isolated) > 0 {
		result.Commands.Isolated = overrides.Commands.Isolated
	}
	if len(overrides.Commands.Shared) > 0 {
		result.Commands.Shared = overrides.Commands.Shared
	}
	if overrides.Commands.AllowedTools != "" {
		result.Commands.AllowedTools = overrides.Commands.AllowedTools
	}
	if overrides.Commands.BareSettings != "" {
		result.Commands.BareSettings = overrides.Commands.BareSettings
	}
	// StripEnv extends the defaults instead of replacing them.
	if len(overrides.Commands.StripEnv) > 0 {
		strip := append([]string{}, result.Commands.StripEnv...)
		result.Commands.StripEnv = append(strip, overrides.Commands.StripEnv...)
	}
	if overrides.Commands.GetVersion != nil {
		result.Commands.GetVersion = overrides.Commands.GetVersion
	}

	return &result
}
