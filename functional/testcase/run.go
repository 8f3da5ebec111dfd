package testcase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/mcpchecker/pairbench/functional/servers/agent"
	"github.com/mcpchecker/pairbench/pkg/cli"
	"github.com/mcpchecker/pairbench/pkg/ledger"
	"github.com/mcpchecker/pairbench/pkg/results"
	"github.com/mcpchecker/pairbench/pkg/task"
)

// Environment variables for binary paths
const (
	EnvPairbenchBinary = "PAIRBENCH_BINARY"
	EnvMockAgentBinary = "MOCK_AGENT_BINARY"
)

// Runner orchestrates the execution of a test case
type Runner struct {
	tc *TestCase
	t  *testing.T

	generator *Generator

	// Generated paths
	sharedRoot    string
	resultsDir    string
	recordFile    string
	benchmarkFile string
}

// Run executes the test case
func (r *Runner) Run() {
	r.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := r.setup(); err != nil {
		r.t.Fatalf("test setup failed: %v", err)
	}

	if err := r.generateConfigs(); err != nil {
		r.t.Fatalf("config generation failed: %v", err)
	}

	runCtx := r.runPairbench(ctx)

	invocations, err := agent.LoadInvocations(r.recordFile)
	if err != nil {
		r.t.Fatalf("failed to read agent invocations: %v", err)
	}
	runCtx.Invocations = invocations

	for _, assertion := range r.tc.assertions {
		assertion.Assert(r.t, runCtx)
	}
}

func (r *Runner) setup() error {
	var err error

	r.generator, err = NewGenerator(r.t)
	if err != nil {
		return err
	}

	if r.sharedRoot, err = r.generator.Mkdir("shared"); err != nil {
		return err
	}
	r.resultsDir = filepath.Join(r.generator.TempDir(), "results")
	r.recordFile = filepath.Join(r.generator.TempDir(), "invocations.jsonl")

	for name, content := range r.tc.sharedFiles {
		if err := os.WriteFile(filepath.Join(r.sharedRoot, name), []byte(content), 0644); err != nil {
			return err
		}
	}

	return r.seedLedgers()
}

// seedLedgers writes solved records for tasks an earlier run completed.
func (r *Runner) seedLedgers() error {
	if len(r.tc.seedRecords) == 0 {
		return nil
	}

	layout := results.Layout{Root: r.resultsDir}
	if err := layout.Ensure(); err != nil {
		return err
	}
	for condition, ids := range r.tc.seedRecords {
		for _, id := range ids {
			rec := ledger.NewRecord(task.KindEvalPlus, id, "def f():\n    return None\n"+agent.SolvedMarker+"\n")
			if err := ledger.Append(layout.SamplesPath(condition), rec); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Runner) generateConfigs() error {
	mockBinary, err := GetMockAgentBinary()
	if err != nil {
		return err
	}

	builder := r.tc.agentMock
	if builder == nil {
		builder = NewAgentBuilder()
	}
	agentConfig := builder.Build()
	agentConfig.RecordFile = r.recordFile

	configPath, err := r.generator.GenerateAgentConfigJSON(agentConfig)
	if err != nil {
		return err
	}

	agentFile, err := r.generator.GenerateAgentSpecYAML(mockBinary, configPath)
	if err != nil {
		return err
	}

	dataset, err := r.generator.GenerateDataset(r.tc.tasks)
	if err != nil {
		return err
	}

	r.benchmarkFile, err = r.generator.GenerateBenchmarkYAML(BenchmarkFiles{
		Dataset:    dataset,
		AgentFile:  agentFile,
		SharedRoot: r.sharedRoot,
		ResultsDir: r.resultsDir,
		Evaluator:  mockBinary,
		Timeout:    r.tc.timeout,
	})
	return err
}

func (r *Runner) args() []string {
	return append([]string{"run", "--config", r.benchmarkFile}, r.tc.runArgs...)
}

func (r *Runner) runPairbench(ctx context.Context) *RunContext {
	runCtx := &RunContext{
		ResultsDir: r.resultsDir,
		SharedRoot: r.sharedRoot,
	}

	if r.tc.IsInProcess() {
		r.runInProcess(ctx, runCtx)
	} else {
		r.runSubprocess(ctx, runCtx)
	}

	if runCtx.CommandError != nil {
		r.t.Logf("pairbench run failed: %v", runCtx.CommandError)
		r.t.Logf("command output:\n%s", runCtx.CommandOutput)
	}
	return runCtx
}

func (r *Runner) runInProcess(ctx context.Context, runCtx *RunContext) {
	cmd := cli.NewRootCmd()
	cmd.SetArgs(r.args())

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	err := cmd.ExecuteContext(ctx)
	runCtx.CommandOutput = out.String()
	runCtx.CommandError = err
	if err != nil {
		runCtx.CommandOutput += "Error: " + err.Error() + "\n"
		runCtx.ExitCode = 1
	}
}

func (r *Runner) runSubprocess(ctx context.Context, runCtx *RunContext) {
	binary, err := GetPairbenchBinary()
	if err != nil {
		r.t.Fatalf("failed to find pairbench binary: %v", err)
	}

	cmd := exec.CommandContext(ctx, binary, r.args()...)
	cmd.Dir = r.generator.TempDir()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	runCtx.CommandOutput = stdout.String() + stderr.String()
	runCtx.CommandError = err

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		runCtx.ExitCode = exitErr.ExitCode()
	} else if err != nil {
		runCtx.ExitCode = -1
	}
}

// GetPairbenchBinary returns the path to the pairbench binary.
func GetPairbenchBinary() (string, error) {
	return findBinary(EnvPairbenchBinary, "pairbench")
}

// GetMockAgentBinary returns the path to the mock agent binary.
func GetMockAgentBinary() (string, error) {
	return findBinary(EnvMockAgentBinary, "mock-agent")
}

// findBinary checks envVar first, then looks for name in common locations
// relative to the working directory.
func findBinary(envVar, name string) (string, error) {
	if path := os.Getenv(envVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return filepath.Abs(path)
		}
		return "", fmt.Errorf("%s set to %q but file not found", envVar, path)
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	candidates := []string{
		filepath.Join(wd, "..", "..", "bin", name), // from functional/tests
		filepath.Join(wd, "..", "bin", name),       // from functional
		filepath.Join(wd, "bin", name),             // repo root
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return filepath.Abs(candidate)
		}
	}

	return "", fmt.Errorf("%s binary not found; set %s environment variable", name, envVar)
}
