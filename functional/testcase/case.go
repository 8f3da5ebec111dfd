// Package testcase provides a fluent API for defining functional test cases
// that drive a full pairbench run against the mock agent and evaluator.
package testcase

import (
	"fmt"
	"testing"
)

// TaskDef is one dataset entry.
type TaskDef struct {
	ID         string
	Prompt     string
	EntryPoint string
}

// TestCase represents a complete functional test scenario
type TestCase struct {
	t    *testing.T
	name string

	tasks       []TaskDef
	agentMock   *AgentBuilder
	sharedFiles map[string]string
	runArgs     []string
	timeout     int
	inProcess   bool

	// Ledger lines written before the run, keyed by condition
	seedRecords map[string][]string

	assertions []Assertion
}

// New creates a new test case with the given name
func New(t *testing.T, name string) *TestCase {
	return &TestCase{
		t:           t,
		name:        name,
		sharedFiles: make(map[string]string),
		seedRecords: make(map[string][]string),
		timeout:     30,
	}
}

// WithTasks adds n function tasks named HumanEval/0 to HumanEval/n-1.
func (tc *TestCase) WithTasks(n int) *TestCase {
	for i := range n {
		tc.tasks = append(tc.tasks, TaskDef{
			ID:         fmt.Sprintf("HumanEval/%d", i),
			Prompt:     fmt.Sprintf("def f%d():\n    \"\"\"Return nothing.\"\"\"\n", i),
			EntryPoint: fmt.Sprintf("f%d", i),
		})
	}
	return tc
}

// WithAgent configures the mock agent behavior
func (tc *TestCase) WithAgent(configure func(*AgentBuilder)) *TestCase {
	tc.agentMock = NewAgentBuilder()
	configure(tc.agentMock)
	return tc
}

// WithSharedFile places a file in the shared root before the run.
func (tc *TestCase) WithSharedFile(name, content string) *TestCase {
	tc.sharedFiles[name] = content
	return tc
}

// WithRunArgs appends extra arguments to the run command.
func (tc *TestCase) WithRunArgs(args ...string) *TestCase {
	tc.runArgs = append(tc.runArgs, args...)
	return tc
}

// WithTimeout sets the per-invocation agent timeout in seconds.
func (tc *TestCase) WithTimeout(seconds int) *TestCase {
	tc.timeout = seconds
	return tc
}

// WithCompletedTask records taskID in the condition ledger before the run,
// as an interrupted earlier run would have.
func (tc *TestCase) WithCompletedTask(condition, taskID string) *TestCase {
	tc.seedRecords[condition] = append(tc.seedRecords[condition], taskID)
	return tc
}

// InProcess runs pairbench through its command tree instead of the binary.
func (tc *TestCase) InProcess() *TestCase {
	tc.inProcess = true
	return tc
}

// IsInProcess reports whether the run happens in the test process.
func (tc *TestCase) IsInProcess() bool {
	return tc.inProcess
}

// Expect adds an assertion to be checked after the test runs
func (tc *TestCase) Expect(a Assertion) *TestCase {
	tc.assertions = append(tc.assertions, a)
	return tc
}

// ExpectExitCode asserts the command exit code
func (tc *TestCase) ExpectExitCode(code int) *TestCase {
	return tc.Expect(&ExitCodeAssertion{Expected: code})
}

// ExpectOutputContains asserts that the command output contains a substring
func (tc *TestCase) ExpectOutputContains(substring string) *TestCase {
	return tc.Expect(&OutputContainsAssertion{Substring: substring})
}

// ExpectLedgerRecords asserts how many records the condition ledger holds.
func (tc *TestCase) ExpectLedgerRecords(condition string, n int) *TestCase {
	return tc.Expect(&LedgerRecordsAssertion{Condition: condition, Expected: n})
}

// ExpectPassRate asserts the pass@1 recorded for a condition.
func (tc *TestCase) ExpectPassRate(condition string, rate float64) *TestCase {
	return tc.Expect(&PassRateAssertion{Condition: condition, Expected: rate})
}

// ExpectDiscordant asserts the McNemar discordant counts.
func (tc *TestCase) ExpectDiscordant(baselineToTreatment, treatmentToBaseline int) *TestCase {
	return tc.Expect(&DiscordantAssertion{BToP: baselineToTreatment, PToB: treatmentToBaseline})
}

// ExpectTimedOut asserts the task log records a timeout for the condition.
func (tc *TestCase) ExpectTimedOut(taskID, condition string) *TestCase {
	return tc.Expect(&TimedOutAssertion{TaskID: taskID, Condition: condition})
}

// ExpectAgentInvocations asserts how many times the agent ran.
func (tc *TestCase) ExpectAgentInvocations(n int) *TestCase {
	return tc.Expect(&InvocationCountAssertion{Expected: n})
}

// ExpectSharedRootClean asserts no stub was left in the shared root.
func (tc *TestCase) ExpectSharedRootClean() *TestCase {
	return tc.Expect(&SharedRootCleanAssertion{})
}

// ExpectNoResults asserts the run wrote no metadata.
func (tc *TestCase) ExpectNoResults() *TestCase {
	return tc.Expect(&NoResultsAssertion{})
}

// Run executes the test case
func (tc *TestCase) Run() {
	tc.t.Helper()
	tc.t.Run(tc.name, func(t *testing.T) {
		runner := &Runner{tc: tc, t: t}
		runner.Run()
	})
}

// Name returns the test case name
func (tc *TestCase) Name() string {
	return tc.name
}
