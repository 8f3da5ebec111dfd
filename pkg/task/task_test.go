package task

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunctionTask_Stub(t *testing.T) {
	ft := &FunctionTask{TaskID: "HumanEval/0", PromptPrefix: "def foo():\n    \"\"\"Do stuff.\"\"\"\n"}

	assert.Equal(t, "def foo():\n    \"\"\"Do stuff.\"\"\"\n    pass\n", ft.Stub())
}

func TestFunctionTask_ExtractArtifact(t *testing.T) {
	ft := &FunctionTask{TaskID: "HumanEval/0", PromptPrefix: "def foo():\n"}

	tt := map[string]struct {
		full     string
		expected string
	}{
		"starts with prompt": {
			full:     "def foo():\n    return 42\n",
			expected: "    return 42\n",
		},
		"does not start with prompt": {
			full:     "import os\ndef foo():\n    return 42\n",
			expected: "import os\ndef foo():\n    return 42\n",
		},
		"empty artifact": {
			full:     "",
			expected: "",
		},
	}

	for tn, tc := range tt {
		t.Run(tn, func(t *testing.T) {
			got := ft.ExtractArtifact(tc.full)
			assert.Equal(t, tc.expected, got)
			assert.Equal(t, got, ft.ExtractArtifact(got), "extraction must be idempotent")
		})
	}
}

func TestClassTask_Stub(t *testing.T) {
	tt := map[string]struct {
		task     *ClassTask
		expected []string
	}{
		"single import": {
			task:     &ClassTask{Imports: Imports{"import os"}, Skeleton: "class Foo:\n    pass"},
			expected: []string{"import os", "", "class Foo:", "    pass"},
		},
		"multiple imports": {
			task:     &ClassTask{Imports: Imports{"import os", "import sys"}, Skeleton: "class Bar:\n    pass"},
			expected: []string{"import os", "import sys", "", "class Bar:", "    pass"},
		},
		"no imports": {
			task:     &ClassTask{Skeleton: "class X:\n    pass"},
			expected: []string{"", "class X:", "    pass"},
		},
	}

	for tn, tc := range tt {
		t.Run(tn, func(t *testing.T) {
			assert.Equal(t, tc.expected, strings.Split(tc.task.Stub(), "\n"))
		})
	}
}

func TestClassTask_ExtractArtifactIsIdentity(t *testing.T) {
	ct := &ClassTask{TaskID: "ClassEval_0", Skeleton: "class Foo:\n    pass"}
	assert.Equal(t, "class Foo:\n    x = 1", ct.ExtractArtifact("class Foo:\n    x = 1"))
}

func TestBuildPrompt(t *testing.T) {
	tmpl, err := ParsePrompt(KindEvalPlus, "Fix {{ .File }} for {{ .EntryPoint }} ({{ .TaskID }})")
	require.NoError(t, err)

	ft := &FunctionTask{TaskID: "HumanEval/3", EntryPoint: "below_zero"}
	prompt, err := ft.BuildPrompt(tmpl, "solution.py")
	require.NoError(t, err)
	assert.Equal(t, "Fix solution.py for below_zero (HumanEval/3)", prompt)
}

func TestDefaultPromptsParse(t *testing.T) {
	for _, kind := range []Kind{KindEvalPlus, KindClassEval} {
		tmpl, err := ParsePrompt(kind, DefaultPrompt(kind))
		require.NoError(t, err)

		var tk Task = &FunctionTask{TaskID: "HumanEval/0", EntryPoint: "foo"}
		if kind == KindClassEval {
			tk = &ClassTask{TaskID: "ClassEval_0"}
		}
		prompt, err := tk.BuildPrompt(tmpl, "solution.py")
		require.NoError(t, err)
		assert.Contains(t, prompt, "solution.py")
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("classeval")
	require.NoError(t, err)
	assert.Equal(t, KindClassEval, k)
	assert.Equal(t, 20, k.TaskCount())

	_, err = ParseKind("mbpp")
	assert.Error(t, err)
}

func TestRead(t *testing.T) {
	tt := map[string]struct {
		kind        Kind
		data        string
		expectedIDs []string
		expectErr   bool
	}{
		"json lines sorted numerically": {
			kind: KindEvalPlus,
			data: `{"task_id": "HumanEval/10", "prompt": "def b():\n", "entry_point": "b"}
{"task_id": "HumanEval/2", "prompt": "def a():\n", "entry_point": "a"}
`,
			expectedIDs: []string{"HumanEval/2", "HumanEval/10"},
		},
		"object keyed by id": {
			kind:        KindEvalPlus,
			data:        `{"HumanEval/1": {"task_id": "HumanEval/1", "prompt": "def a():\n", "entry_point": "a"}}`,
			expectedIDs: []string{"HumanEval/1"},
		},
		"classeval array with string imports": {
			kind: KindClassEval,
			data: `[{"task_id": "ClassEval_1", "skeleton": "class A:\n    pass", "test": "", "import_statement": "import os\nimport sys"},
{"task_id": "ClassEval_0", "skeleton": "class B:\n    pass", "test": "", "import_statement": ["import re"]}]`,
			expectedIDs: []string{"ClassEval_0", "ClassEval_1"},
		},
		"missing required field": {
			kind:      KindEvalPlus,
			data:      `{"task_id": "HumanEval/1", "entry_point": "a"}`,
			expectErr: true,
		},
		"bad id format": {
			kind:      KindClassEval,
			data:      `[{"task_id": "HumanEval/0", "skeleton": "class A: pass", "test": ""}]`,
			expectErr: true,
		},
		"duplicate ids": {
			kind: KindEvalPlus,
			data: `{"task_id": "HumanEval/1", "prompt": "def a():\n", "entry_point": "a"}
{"task_id": "HumanEval/1", "prompt": "def a():\n", "entry_point": "a"}`,
			expectErr: true,
		},
		"not json": {
			kind:      KindEvalPlus,
			data:      "HumanEval/1",
			expectErr: true,
		},
	}

	for tn, tc := range tt {
		t.Run(tn, func(t *testing.T) {
			ds, err := Read(tc.kind, []byte(tc.data))
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedIDs, ds.IDs())
		})
	}
}

func TestRead_ClassImports(t *testing.T) {
	ds, err := Read(KindClassEval, []byte(`[{"task_id": "ClassEval_0", "skeleton": "class A:\n    pass", "test": "# t", "import_statement": "import os\nimport sys"}]`))
	require.NoError(t, err)
	require.Len(t, ds.Tasks, 1)

	ct, ok := ds.Tasks[0].(*ClassTask)
	require.True(t, ok)
	assert.Equal(t, Imports{"import os", "import sys"}, ct.Imports)
	assert.Equal(t, "# t", ct.Test)
}

func TestLoadAndLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	data := `[
{"task_id": "ClassEval_0", "skeleton": "class C0:\n    pass", "test": "# test 0", "import_statement": "import os"},
{"task_id": "ClassEval_1", "skeleton": "class C1:\n    pass", "test": "# test 1", "import_statement": "import os"},
{"task_id": "ClassEval_2", "skeleton": "class C2:\n    pass", "test": "# test 2", "import_statement": "import os"},
{"task_id": "ClassEval_3", "skeleton": "class C3:\n    pass", "test": "# test 3", "import_statement": "import os"},
{"task_id": "ClassEval_4", "skeleton": "class C4:\n    pass", "test": "# test 4", "import_statement": "import os"}
]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	ds, err := Load(KindClassEval, path)
	require.NoError(t, err)
	assert.Equal(t, 5, ds.Len())

	limited := ds.Limit(2)
	assert.Equal(t, []string{"ClassEval_0", "ClassEval_1"}, limited.IDs())
	assert.Equal(t, 5, ds.Len(), "limit must not modify the original dataset")
	assert.Same(t, ds, ds.Limit(0))

	_, err = Load(KindClassEval, filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestSortIDs(t *testing.T) {
	ids := []string{"HumanEval/10", "HumanEval/2", "ClassEval_3", "HumanEval/1", "ClassEval_11"}
	SortIDs(ids)
	assert.Equal(t, []string{"ClassEval_3", "ClassEval_11", "HumanEval/1", "HumanEval/2", "HumanEval/10"}, ids)
}
