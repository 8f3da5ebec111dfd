// Package evaluator runs the external correctness checker against a ledger
// and parses what it prints. The checker is opaque: only its exit code,
// stdout and stderr (and, for evalplus, its per-task results file) are used.
package evaluator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"text/template"
	"time"

	"github.com/mcpchecker/pairbench/pkg/task"
	"github.com/mcpchecker/pairbench/pkg/util"
)

// DefaultTimeout bounds one evaluator run. It is much larger than a single
// generation timeout since the checker runs every task.
const DefaultTimeout = 600 * time.Second

// Result is the raw outcome of one evaluator run.
type Result struct {
	Returncode int    `json:"returncode"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	Error      string `json:"error,omitempty"`
}

// CommandData is what evaluator argv templates can reference.
type CommandData struct {
	Samples string
	Dataset string
	Mini    bool
}

// DefaultCommand is the checker argv for kind.
func DefaultCommand(kind task.Kind) []string {
	if kind == task.KindClassEval {
		return []string{"python3", "classeval_wrapper.py", "{{ .Samples }}", "{{ .Dataset }}"}
	}
	return []string{
		"python3", "-m", "evalplus.evaluate",
		"--dataset", "humaneval",
		"--samples", "{{ .Samples }}",
		"--i-just-wanna-run",
		"{{ if .Mini }}--mini{{ end }}",
	}
}

type CommandEvaluator struct {
	argv    []*template.Template
	dataset string
	mini    bool

	// Timeout bounds each Invoke. Zero means DefaultTimeout.
	Timeout time.Duration
	// Dir is the working directory of the checker.
	Dir string
	// Env is the checker environment. Nil inherits the process environment.
	Env util.Environ
}

// New compiles argv. Elements that render to "" are dropped, so optional
// flags can be written as {{ if .Mini }}--mini{{ end }}.
func New(argv []string, dataset string, mini bool) (*CommandEvaluator, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("evaluator command is empty")
	}

	tmpls := make([]*template.Template, 0, len(argv))
	for i, arg := range argv {
		tmpl, err := template.New(fmt.Sprintf("evaluator[%d]", i)).Option("missingkey=error").Parse(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse evaluator argument %d: %w", i, err)
		}
		tmpls = append(tmpls, tmpl)
	}

	return &CommandEvaluator{
		argv:    tmpls,
		dataset: dataset,
		mini:    mini,
		Timeout: DefaultTimeout,
	}, nil
}

// Command renders the argv for samplesPath.
func (e *CommandEvaluator) Command(samplesPath string) ([]string, error) {
	data := CommandData{Samples: samplesPath, Dataset: e.dataset, Mini: e.mini}

	argv := make([]string, 0, len(e.argv))
	for _, tmpl := range e.argv {
		buf := bytes.NewBuffer(nil)
		if err := tmpl.Execute(buf, data); err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", tmpl.Name(), err)
		}
		if buf.Len() == 0 {
			continue
		}
		argv = append(argv, buf.String())
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("evaluator command rendered empty")
	}
	return argv, nil
}

// Invoke runs the checker on samplesPath. A non-zero exit is not an error;
// it is recorded in the result. An error is returned when the checker could
// not be started or hit its timeout, and the result still carries whatever
// output was captured.
func (e *CommandEvaluator) Invoke(ctx context.Context, samplesPath string) (*Result, error) {
	argv, err := e.Command(samplesPath)
	if err != nil {
		return &Result{Returncode: -1, Error: err.Error()}, err
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = e.Dir
	if e.Env != nil {
		cmd.Env = e.Env.Pairs()
	}
	cmd.WaitDelay = 5 * time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	util.Logger(ctx).Info("running evaluator", "command", strings.Join(argv, " "))
	err = cmd.Run()

	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("evaluator timed out after %s", timeout)
		res.Returncode = -1
		res.Error = err.Error()
		return res, err
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.Returncode = exitErr.ExitCode()
			return res, nil
		}
		res.Returncode = -1
		res.Error = err.Error()
		return res, fmt.Errorf("failed to run evaluator: %w", err)
	}
	return res, nil
}
