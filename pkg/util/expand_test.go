package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnviron_Expand(t *testing.T) {
	env := Environ{"HOME": "/home/dev", "EMPTY": "", "DATA": "/data"}

	tt := map[string]struct {
		value    string
		expected string
		errMsg   string
	}{
		"no references": {
			value:    "results",
			expected: "results",
		},
		"required set": {
			value:    "${HOME}/workspace",
			expected: "/home/dev/workspace",
		},
		"several references": {
			value:    "${DATA}/HumanEvalPlus.jsonl:${HOME}",
			expected: "/data/HumanEvalPlus.jsonl:/home/dev",
		},
		"default unused": {
			value:    "${DATA:-/tmp}",
			expected: "/data",
		},
		"default for unset": {
			value:    "${RESULTS:-out}/run",
			expected: "out/run",
		},
		"default for empty": {
			value:    "${EMPTY:-fallback}",
			expected: "fallback",
		},
		"empty default": {
			value:    "x${RESULTS:-}y",
			expected: "xy",
		},
		"default is literal": {
			value:    "${RESULTS:-$HOME}",
			expected: "$HOME",
		},
		"required unset": {
			value:  "${SHARED_ROOT}",
			errMsg: "required environment variable(s) not set: [${SHARED_ROOT}]",
		},
		"required empty": {
			value:  "${EMPTY}",
			errMsg: "required environment variable(s) not set",
		},
		"bare dollar untouched": {
			value:    "$HOME/x",
			expected: "$HOME/x",
		},
	}

	for tn, tc := range tt {
		t.Run(tn, func(t *testing.T) {
			got, err := env.Expand(tc.value)
			if tc.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("PAIRBENCH_TEST_ROOT", "/srv/bench")

	got, err := ExpandEnv("${PAIRBENCH_TEST_ROOT}/shared")
	require.NoError(t, err)
	assert.Equal(t, "/srv/bench/shared", got)
}
