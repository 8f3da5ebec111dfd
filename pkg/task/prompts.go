package task

import (
	"fmt"
	"text/template"
)

const defaultFunctionPrompt = `The file {{ .File }} contains the signature and docstring of the Python function ` + "`{{ .EntryPoint }}`" + ` followed by a placeholder body.
Replace the placeholder with a correct, complete implementation.
Keep the signature and docstring unchanged, edit {{ .File }} in place and do not create any other files.`

const defaultClassPrompt = `The file {{ .File }} contains a Python class skeleton with its imports.
Implement every method so the class behaves as its docstrings describe.
Keep the class and method signatures unchanged, edit {{ .File }} in place and do not create any other files.`

// DefaultPrompt returns the built-in prompt template text for a kind.
func DefaultPrompt(kind Kind) string {
	if kind == KindClassEval {
		return defaultClassPrompt
	}
	return defaultFunctionPrompt
}

// ParsePrompt compiles prompt template text.
func ParsePrompt(kind Kind, text string) (*template.Template, error) {
	tmpl, err := template.New(string(kind) + "-prompt").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s prompt template: %w", kind, err)
	}
	return tmpl, nil
}
