package util

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Environ is an environment expressed as a map so it can be derived per
// invocation without touching the process environment.
type Environ map[string]string

// CurrentEnviron snapshots os.Environ().
func CurrentEnviron() Environ {
	return ParseEnviron(os.Environ())
}

// ParseEnviron converts KEY=VALUE pairs into an Environ. Later duplicates win.
func ParseEnviron(pairs []string) Environ {
	env := make(Environ, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = v
	}
	return env
}

// Derive returns a copy of e with the strip keys removed and extra merged on
// top. e itself is never modified.
func (e Environ) Derive(strip []string, extra map[string]string) Environ {
	out := make(Environ, len(e)+len(extra))
	for k, v := range e {
		out[k] = v
	}
	for _, k := range strip {
		delete(out, k)
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Pairs renders the environment as sorted KEY=VALUE strings for exec.Cmd.Env.
func (e Environ) Pairs() []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, e[k]))
	}
	return pairs
}

// Truncate cuts s to at most n characters, never splitting a rune.
func Truncate(s string, n int) string {
	if n < 0 || len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
