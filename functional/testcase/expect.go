package testcase

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mcpchecker/pairbench/functional/servers/agent"
	pbagent "github.com/mcpchecker/pairbench/pkg/agent"
	"github.com/mcpchecker/pairbench/pkg/bench"
	"github.com/mcpchecker/pairbench/pkg/ledger"
	"github.com/mcpchecker/pairbench/pkg/results"
	"github.com/mcpchecker/pairbench/pkg/workdir"
)

// RunContext contains runtime data needed for assertions.
type RunContext struct {
	CommandOutput string
	ExitCode      int
	CommandError  error

	ResultsDir string
	SharedRoot string

	// Invocations the mock agent recorded, in call order
	Invocations []agent.Invocation
}

// Layout returns the results directory layout.
func (ctx *RunContext) Layout() results.Layout {
	return results.Layout{Root: ctx.ResultsDir}
}

// Assertion defines an expectation that can be checked after a test runs
type Assertion interface {
	Assert(t *testing.T, ctx *RunContext)
}

// ExitCodeAssertion asserts the command exit code
type ExitCodeAssertion struct {
	Expected int
}

func (a *ExitCodeAssertion) Assert(t *testing.T, ctx *RunContext) {
	t.Helper()
	if ctx.ExitCode != a.Expected {
		t.Errorf("expected exit code %d, got %d", a.Expected, ctx.ExitCode)
	}
}

// OutputContainsAssertion asserts that the command output contains a substring
type OutputContainsAssertion struct {
	Substring string
}

func (a *OutputContainsAssertion) Assert(t *testing.T, ctx *RunContext) {
	t.Helper()
	if !strings.Contains(ctx.CommandOutput, a.Substring) {
		t.Errorf("expected output to contain %q", a.Substring)
	}
}

// LedgerRecordsAssertion asserts the record count of a condition ledger. A
// missing ledger counts as empty.
type LedgerRecordsAssertion struct {
	Condition string
	Expected  int
}

func (a *LedgerRecordsAssertion) Assert(t *testing.T, ctx *RunContext) {
	t.Helper()
	path := ctx.Layout().SamplesPath(a.Condition)
	records, err := ledger.Load(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		t.Errorf("failed to load %s ledger: %v", a.Condition, err)
		return
	}
	if len(records) != a.Expected {
		t.Errorf("expected %d %s ledger records, got %d", a.Expected, a.Condition, len(records))
	}
}

// PassRateAssertion asserts the pass@1 the evaluator reported for a condition.
type PassRateAssertion struct {
	Condition string
	Expected  float64
}

func (a *PassRateAssertion) Assert(t *testing.T, ctx *RunContext) {
	t.Helper()
	evalResults, err := results.LoadEvalResults(ctx.ResultsDir)
	if err != nil {
		t.Errorf("failed to load eval results: %v", err)
		return
	}
	rates, ok := evalResults.Get(a.Condition)
	if !ok || rates == nil {
		t.Errorf("no eval results for %s", a.Condition)
		return
	}
	got, ok := rates.Get("pass@1")
	if !ok {
		t.Errorf("no pass@1 for %s", a.Condition)
		return
	}
	if math.Abs(got-a.Expected) > 1e-3 {
		t.Errorf("expected %s pass@1 %.3f, got %.3f", a.Condition, a.Expected, got)
	}
}

// DiscordantAssertion asserts the McNemar discordant pair counts.
type DiscordantAssertion struct {
	BToP int
	PToB int
}

func (a *DiscordantAssertion) Assert(t *testing.T, ctx *RunContext) {
	t.Helper()
	report, err := bench.LoadReport(ctx.ResultsDir)
	if err != nil {
		t.Errorf("failed to load report: %v", err)
		return
	}
	if report.Significance == nil {
		t.Errorf("report has no significance result")
		return
	}
	if report.Significance.BToP != a.BToP || report.Significance.PToB != a.PToB {
		t.Errorf("expected discordant b=%d c=%d, got b=%d c=%d",
			a.BToP, a.PToB, report.Significance.BToP, report.Significance.PToB)
	}
}

// TimedOutAssertion asserts a task log records a timeout for a condition.
type TimedOutAssertion struct {
	TaskID    string
	Condition string
}

func (a *TimedOutAssertion) Assert(t *testing.T, ctx *RunContext) {
	t.Helper()
	log, err := results.LoadTaskLog(ctx.ResultsDir, a.TaskID)
	if err != nil {
		t.Errorf("failed to load task log for %s: %v", a.TaskID, err)
		return
	}
	md := log.Baseline
	if a.Condition == string(pbagent.ConditionTreatment) {
		md = log.Treatment
	}
	if !md.TimedOut() {
		t.Errorf("expected %s %s to time out, got error=%q", a.TaskID, a.Condition, md.Error)
	}
}

// InvocationCountAssertion asserts how many times the mock agent ran.
type InvocationCountAssertion struct {
	Expected int
}

func (a *InvocationCountAssertion) Assert(t *testing.T, ctx *RunContext) {
	t.Helper()
	if len(ctx.Invocations) != a.Expected {
		t.Errorf("expected %d agent invocations, got %d", a.Expected, len(ctx.Invocations))
	}
}

// SharedRootCleanAssertion asserts no stub was left in the shared root and
// every treatment invocation found its stub there.
type SharedRootCleanAssertion struct{}

func (a *SharedRootCleanAssertion) Assert(t *testing.T, ctx *RunContext) {
	t.Helper()
	stub := filepath.Join(ctx.SharedRoot, workdir.DefaultArtifactFile)
	if _, err := os.Stat(stub); err == nil {
		t.Errorf("stub left in shared root: %s", stub)
	}
	for _, inv := range ctx.Invocations {
		if inv.Condition == string(pbagent.ConditionTreatment) && !inv.StubFound {
			t.Errorf("treatment invocation for %s found no stub", inv.TaskID)
		}
	}
}

// NoResultsAssertion asserts the run wrote no metadata file.
type NoResultsAssertion struct{}

func (a *NoResultsAssertion) Assert(t *testing.T, ctx *RunContext) {
	t.Helper()
	if _, err := os.Stat(ctx.Layout().Path(results.MetadataFile)); err == nil {
		t.Errorf("expected no %s in %s", results.MetadataFile, ctx.ResultsDir)
	}
}
