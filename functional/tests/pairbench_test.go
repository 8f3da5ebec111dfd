//go:build functional

package tests

import (
	"testing"

	"github.com/mcpchecker/pairbench/functional/testcase"
)

func TestTreatmentImproves(t *testing.T) {
	testcase.New(t, "treatment-solves-everything").
		WithTasks(4).
		WithAgent(func(a *testcase.AgentBuilder) {
			a.OnCondition("treatment").ThenSolve().
				On("baseline", "HumanEval/0").ThenSolve()
		}).
		ExpectExitCode(0).
		ExpectAgentInvocations(8).
		ExpectLedgerRecords("baseline", 4).
		ExpectLedgerRecords("treatment", 4).
		ExpectPassRate("baseline", 0.25).
		ExpectPassRate("treatment", 1.0).
		ExpectDiscordant(3, 0).
		ExpectSharedRootClean().
		ExpectOutputContains("=== Run Summary ===").
		Run()
}

func TestSignificantImprovement(t *testing.T) {
	testcase.New(t, "seven-discordant-pairs").
		WithTasks(7).
		WithAgent(func(a *testcase.AgentBuilder) {
			a.OnCondition("treatment").ThenSolve()
		}).
		InProcess().
		ExpectExitCode(0).
		ExpectDiscordant(7, 0).
		ExpectOutputContains("p=0.0156, 7 improved, 0 regressed (significant").
		Run()
}

func TestRegressionBothWays(t *testing.T) {
	testcase.New(t, "mixed-outcomes").
		WithTasks(3).
		WithAgent(func(a *testcase.AgentBuilder) {
			a.On("baseline", "HumanEval/1").ThenLeave().
				On("treatment", "HumanEval/2").ThenLeave().
				SolveByDefault()
		}).
		ExpectExitCode(0).
		ExpectDiscordant(1, 1).
		ExpectSharedRootClean().
		Run()
}

func TestResumeSkipsCompletedPairs(t *testing.T) {
	testcase.New(t, "resume").
		WithTasks(3).
		WithCompletedTask("baseline", "HumanEval/0").
		WithCompletedTask("treatment", "HumanEval/0").
		WithCompletedTask("baseline", "HumanEval/1").
		WithAgent(func(a *testcase.AgentBuilder) {
			a.SolveByDefault()
		}).
		WithRunArgs("--resume").
		ExpectExitCode(0).
		// HumanEval/1 is only half done, so it reruns in both conditions.
		ExpectAgentInvocations(4).
		ExpectLedgerRecords("treatment", 3).
		ExpectPassRate("treatment", 1.0).
		Run()
}

func TestMarkerFileAbortsRun(t *testing.T) {
	testcase.New(t, "marker-present").
		WithTasks(2).
		WithSharedFile("CLAUDE.md", "# project notes\n").
		ExpectExitCode(1).
		ExpectOutputContains("CLAUDE.md.bak").
		ExpectAgentInvocations(0).
		ExpectNoResults().
		Run()
}

func TestAgentTimeout(t *testing.T) {
	testcase.New(t, "treatment-hangs").
		WithTasks(1).
		WithTimeout(1).
		WithAgent(func(a *testcase.AgentBuilder) {
			a.OnCondition("treatment").ThenHang().
				SolveByDefault()
		}).
		ExpectExitCode(0).
		ExpectTimedOut("HumanEval/0", "treatment").
		ExpectOutputContains("timed out").
		ExpectLedgerRecords("treatment", 1).
		ExpectPassRate("baseline", 1.0).
		ExpectPassRate("treatment", 0.0).
		ExpectSharedRootClean().
		Run()
}

func TestAgentNonZeroExit(t *testing.T) {
	testcase.New(t, "treatment-crashes").
		WithTasks(2).
		WithAgent(func(a *testcase.AgentBuilder) {
			a.On("treatment", "HumanEval/1").ThenFail(2, "rate limited").
				SolveByDefault()
		}).
		ExpectExitCode(0).
		ExpectOutputContains("exit 2").
		ExpectDiscordant(0, 1).
		Run()
}

func TestDryRunWritesNothing(t *testing.T) {
	testcase.New(t, "dry-run").
		WithTasks(2).
		WithRunArgs("--dry-run").
		ExpectExitCode(0).
		ExpectOutputContains("[DRY RUN]").
		ExpectAgentInvocations(0).
		ExpectLedgerRecords("baseline", 0).
		ExpectNoResults().
		ExpectSharedRootClean().
		Run()
}
