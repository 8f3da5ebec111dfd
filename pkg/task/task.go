// Package task models benchmark tasks and loads them from dataset files.
//
// A task is resolved once, at load time, into one of two variants:
// FunctionTask for function-completion datasets (HumanEval+) and ClassTask
// for class-completion datasets (ClassEval). Callers only use the Task
// interface, so stub building, prompt building and artifact extraction never
// branch on the dataset kind again.
package task

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"text/template"
)

type Kind string

const (
	KindEvalPlus  Kind = "evalplus"
	KindClassEval Kind = "classeval"
)

const (
	HumanEvalTaskCount = 164
	ClassEvalTaskCount = 20
)

var (
	humanEvalIDPattern = regexp.MustCompile(`^HumanEval/\d+$`)
	classEvalIDPattern = regexp.MustCompile(`^ClassEval_\d+$`)
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindEvalPlus, KindClassEval:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown benchmark kind '%s': expected '%s' or '%s'", s, KindEvalPlus, KindClassEval)
	}
}

// IDPattern is the format every task id of this kind must match.
func (k Kind) IDPattern() *regexp.Regexp {
	if k == KindClassEval {
		return classEvalIDPattern
	}
	return humanEvalIDPattern
}

// TaskCount is the size of the full upstream dataset for this kind.
func (k Kind) TaskCount() int {
	if k == KindClassEval {
		return ClassEvalTaskCount
	}
	return HumanEvalTaskCount
}

// Task is one benchmark item.
type Task interface {
	ID() string
	Kind() Kind

	// Stub is the file content written into a workdir before the agent runs.
	Stub() string

	// BuildPrompt renders the agent prompt for this task.
	BuildPrompt(tmpl *template.Template, file string) (string, error)

	// ExtractArtifact turns the file read back from the workdir into the
	// value recorded in the ledger.
	ExtractArtifact(full string) string
}

// PromptData is what prompt templates can reference.
type PromptData struct {
	TaskID     string
	File       string
	EntryPoint string
	ClassName  string
}

func renderPrompt(tmpl *template.Template, data PromptData) (string, error) {
	if tmpl == nil {
		return "", fmt.Errorf("no prompt template for task %s", data.TaskID)
	}
	buf := bytes.NewBuffer(nil)
	if err := tmpl.Execute(buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt for task %s: %w", data.TaskID, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// FunctionTask completes a single function given its signature and docstring.
type FunctionTask struct {
	TaskID       string `json:"task_id"`
	PromptPrefix string `json:"prompt"`
	EntryPoint   string `json:"entry_point"`
}

var _ Task = &FunctionTask{}

func (t *FunctionTask) ID() string { return t.TaskID }

func (t *FunctionTask) Kind() Kind { return KindEvalPlus }

func (t *FunctionTask) Stub() string {
	return t.PromptPrefix + "    pass\n"
}

func (t *FunctionTask) BuildPrompt(tmpl *template.Template, file string) (string, error) {
	return renderPrompt(tmpl, PromptData{
		TaskID:     t.TaskID,
		File:       file,
		EntryPoint: t.EntryPoint,
	})
}

// ExtractArtifact strips the original prompt prefix when the agent kept it.
// Agents that restate the whole file some other way get recorded verbatim.
func (t *FunctionTask) ExtractArtifact(full string) string {
	if completion, ok := strings.CutPrefix(full, t.PromptPrefix); ok {
		return completion
	}
	return full
}

// ClassTask completes a class skeleton.
type ClassTask struct {
	TaskID    string  `json:"task_id"`
	Skeleton  string  `json:"skeleton"`
	Test      string  `json:"test"`
	Imports   Imports `json:"import_statement"`
	ClassName string  `json:"class_name,omitempty"`
}

var _ Task = &ClassTask{}

func (t *ClassTask) ID() string { return t.TaskID }

func (t *ClassTask) Kind() Kind { return KindClassEval }

// Stub is the import lines, a blank line, then the skeleton.
func (t *ClassTask) Stub() string {
	parts := make([]string, 0, len(t.Imports)+2)
	parts = append(parts, t.Imports...)
	parts = append(parts, "", t.Skeleton)
	return strings.Join(parts, "\n")
}

func (t *ClassTask) BuildPrompt(tmpl *template.Template, file string) (string, error) {
	return renderPrompt(tmpl, PromptData{
		TaskID:    t.TaskID,
		File:      file,
		ClassName: t.ClassName,
	})
}

func (t *ClassTask) ExtractArtifact(full string) string {
	return full
}

// Imports accepts either a list of import lines or a single newline
// separated string.
type Imports []string

func (i *Imports) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*i = list
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("import_statement must be a string or a list of strings: %w", err)
	}

	s = strings.TrimSpace(s)
	if s == "" {
		*i = nil
		return nil
	}
	*i = strings.Split(s, "\n")
	return nil
}
