package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/mcpchecker/pairbench/pkg/task"
	"github.com/mcpchecker/pairbench/pkg/util"
)

// waitDelay bounds how long Wait blocks on output pipes held open by
// grandchildren after the agent itself was killed.
const waitDelay = 5 * time.Second

// ArtifactReader reads back the file the agent was asked to edit.
type ArtifactReader interface {
	ReadArtifact(dir string) (string, error)
}

// Invocation is one agent call for one task under one condition.
type Invocation struct {
	Condition Condition
	Task      task.Task
	Workdir   string
	Model     string
	Prompt    string
	Timeout   time.Duration
	// Sequence labels the call within the run.
	Sequence int
}

// ConditionRunner launches the agent for a single invocation and collects its
// artifact and metadata. It never returns an error: every failure becomes
// metadata plus an empty artifact.
type ConditionRunner struct {
	spec      *AgentSpec
	isolated  []*template.Template
	shared    []*template.Template
	env       util.Environ
	extraEnv  map[string]string
	artifacts ArtifactReader

	// DryRun prints the planned invocation to Out and executes nothing.
	DryRun bool
	Out    io.Writer
}

// NewConditionRunner compiles the argv templates of spec. env is the base
// environment each invocation derives from; extraEnv is merged on top.
func NewConditionRunner(spec *AgentSpec, env util.Environ, extraEnv map[string]string, artifacts ArtifactReader) (*ConditionRunner, error) {
	if spec == nil {
		return nil, fmt.Errorf("cannot create a ConditionRunner for a nil AgentSpec")
	}

	isolated, err := parseArgv("isolated", spec.Commands.Isolated)
	if err != nil {
		return nil, err
	}
	shared, err := parseArgv("shared", spec.Commands.Shared)
	if err != nil {
		return nil, err
	}

	return &ConditionRunner{
		spec:      spec,
		isolated:  isolated,
		shared:    shared,
		env:       env,
		extraEnv:  extraEnv,
		artifacts: artifacts,
		Out:       os.Stdout,
	}, nil
}

func parseArgv(name string, argv []string) ([]*template.Template, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("no %s command defined", name)
	}

	tmpls := make([]*template.Template, 0, len(argv))
	for i, arg := range argv {
		tmpl, err := template.New(fmt.Sprintf("%s[%d]", name, i)).Option("missingkey=error").Parse(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s command argument %d: %w", name, i, err)
		}
		tmpls = append(tmpls, tmpl)
	}
	return tmpls, nil
}

// Spec returns the agent spec the runner was built from.
func (r *ConditionRunner) Spec() *AgentSpec {
	return r.spec
}

// Command renders the argv for inv.
func (r *ConditionRunner) Command(inv Invocation) ([]string, error) {
	tmpls := r.shared
	if inv.Condition.Isolated() {
		tmpls = r.isolated
	}

	data := CommandData{
		Condition:    string(inv.Condition),
		Model:        inv.Model,
		Prompt:       inv.Prompt,
		Workdir:      inv.Workdir,
		AllowedTools: r.spec.Commands.AllowedTools,
		BareSettings: expandHome(r.spec.Commands.BareSettings),
		Invocation:   inv.Sequence,
	}
	if inv.Task != nil {
		data.TaskID = inv.Task.ID()
	}

	argv := make([]string, 0, len(tmpls))
	for _, tmpl := range tmpls {
		buf := bytes.NewBuffer(nil)
		if err := tmpl.Execute(buf, data); err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", tmpl.Name(), err)
		}
		argv = append(argv, buf.String())
	}
	return argv, nil
}

// Environ is the environment handed to the agent process.
func (r *ConditionRunner) Environ() util.Environ {
	return r.env.Derive(r.spec.Commands.StripEnv, r.extraEnv)
}

// Run executes inv and returns the extracted artifact and the invocation
// metadata. On timeout or launch failure the artifact is empty.
func (r *ConditionRunner) Run(ctx context.Context, inv Invocation) (string, Metadata) {
	logger := util.Logger(ctx).With("condition", inv.Condition, "invocation", inv.Sequence)

	argv, err := r.Command(inv)
	if err != nil {
		logger.Error("failed to build agent command", "error", err)
		return "", Metadata{Error: err.Error()}
	}

	if r.DryRun {
		fmt.Fprintf(r.Out, "  [DRY RUN] %s: %s\n", inv.Condition, strings.Join(argv, " "))
		fmt.Fprintf(r.Out, "  [DRY RUN] cwd: %s\n", inv.Workdir)
		return "", Metadata{}
	}

	runCtx := ctx
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = inv.Workdir
	cmd.Env = r.Environ().Pairs()
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("invoking agent", "argv0", argv[0], "workdir", inv.Workdir, "timeout", inv.Timeout)
	start := time.Now()
	err = cmd.Run()
	elapsed := time.Since(start)

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		logger.Warn("agent timed out", "elapsed", elapsed)
		return "", timeoutMetadata(elapsed)
	}

	returncode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || ctx.Err() != nil {
			logger.Error("agent invocation failed", "error", err)
			return "", Metadata{Error: err.Error()}
		}
		returncode = exitErr.ExitCode()
	}

	md := completedMetadata(returncode, elapsed, stdout.Bytes(), stderr.Bytes())
	logger.Debug("agent finished", "returncode", returncode, "elapsed", elapsed)

	artifact, err := r.readArtifact(inv.Workdir)
	if err != nil {
		logger.Warn("failed to read artifact", "error", err)
		return "", md
	}
	if inv.Task != nil {
		artifact = inv.Task.ExtractArtifact(artifact)
	}
	return artifact, md
}

func (r *ConditionRunner) readArtifact(dir string) (string, error) {
	if r.artifacts == nil {
		return "", nil
	}
	return r.artifacts.ReadArtifact(dir)
}

// Version reports the agent version: the output of Commands.GetVersion when
// set, else Metadata.Version, else "".
func (r *ConditionRunner) Version(ctx context.Context) string {
	if r.spec.Commands.GetVersion == nil {
		if r.spec.Metadata.Version != nil {
			return *r.spec.Metadata.Version
		}
		return ""
	}

	shell, ok := os.LookupEnv("SHELL")
	if !ok {
		shell = "/bin/sh"
	}

	cmd := exec.CommandContext(ctx, shell, "-c", *r.spec.Commands.GetVersion)
	cmd.Env = r.Environ().Pairs()
	out, err := cmd.Output()
	if err != nil {
		util.Logger(ctx).Warn("failed to get agent version", "command", *r.spec.Commands.GetVersion, "error", err)
		if r.spec.Metadata.Version != nil {
			return *r.spec.Metadata.Version
		}
		return ""
	}
	return strings.TrimSpace(string(out))
}

func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}
