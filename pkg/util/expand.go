package util

import (
	"fmt"
	"regexp"
)

// envRef matches ${VAR} and ${VAR:-default}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// Expand replaces ${VAR} and ${VAR:-default} references with values from e.
// A variable that is unset or empty takes its default. A reference without a
// default to an unset or empty variable is an error. Defaults are used
// literally and are not expanded again.
func (e Environ) Expand(value string) (string, error) {
	var missing []string
	out := envRef.ReplaceAllStringFunc(value, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		if v := e[m[1]]; v != "" {
			return v
		}
		if m[2] != "" {
			return m[3]
		}
		missing = append(missing, ref)
		return ref
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("required environment variable(s) not set: %v", missing)
	}
	return out, nil
}

// ExpandEnv expands value against the process environment.
func ExpandEnv(value string) (string, error) {
	return CurrentEnviron().Expand(value)
}
