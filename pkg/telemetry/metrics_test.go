package telemetry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mcpchecker/pairbench/pkg/agent"
	"github.com/mcpchecker/pairbench/pkg/analysis"
	"github.com/mcpchecker/pairbench/pkg/evaluator"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"
)

func TestInvocationOutcome(t *testing.T) {
	tests := map[string]struct {
		md       agent.Metadata
		expected string
	}{
		"success":  {md: agent.Metadata{Returncode: ptr.To(0), ElapsedS: ptr.To(1.5)}, expected: OutcomeOK},
		"non zero": {md: agent.Metadata{Returncode: ptr.To(2)}, expected: OutcomeNonZero},
		"timeout":  {md: agent.Metadata{Error: agent.ErrTimeout, ElapsedS: ptr.To(300.0)}, expected: OutcomeTimeout},
		"launch":   {md: agent.Metadata{Error: "exec: \"claude\": executable file not found"}, expected: OutcomeError},
		"dry run":  {md: agent.Metadata{}, expected: OutcomeOK},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, InvocationOutcome(tc.md))
		})
	}
}

func TestMetrics(t *testing.T) {
	m := New()

	m.ObserveInvocation(agent.ConditionBaseline, agent.Metadata{Returncode: ptr.To(0), ElapsedS: ptr.To(12.0)})
	m.ObserveInvocation(agent.ConditionTreatment, agent.Metadata{Returncode: ptr.To(0), ElapsedS: ptr.To(20.0)})
	m.ObserveInvocation(agent.ConditionTreatment, agent.Metadata{Error: agent.ErrTimeout, ElapsedS: ptr.To(300.0)})
	m.TaskCompleted()
	m.TaskCompleted()
	m.TaskSkipped()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.invocations.WithLabelValues("treatment", OutcomeTimeout)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.tasks.WithLabelValues("completed")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.invocationDuration), "timeouts are not observed")

	counts, err := m.InvocationCounts()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{OutcomeOK: 2, OutcomeTimeout: 1}, counts)

	rates := evaluator.ParseRates("pass@1: 0.75\npass@10: 0.9\n")
	m.SetRates("baseline", rates)
	m.ObserveEvaluation("baseline", &evaluator.Result{Returncode: 0}, 3*time.Second)
	m.ObserveEvaluation("treatment", &evaluator.Result{Returncode: -1, Error: "evaluator timed out"}, time.Minute)
	m.SetSignificance(analysis.McNemarResult{BToP: 7, PToB: 2, PValue: 0.18})

	assert.Equal(t, 0.9, testutil.ToFloat64(m.passRate.WithLabelValues("baseline", "pass@10")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.evaluations.WithLabelValues("treatment", OutcomeError)))
	assert.Equal(t, 0.18, testutil.ToFloat64(m.pValue))

	path := filepath.Join(t.TempDir(), "metrics.prom")
	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `pairbench_agent_invocations_total{condition="baseline",outcome="ok"} 1`)
	assert.Contains(t, string(data), `pairbench_mcnemar_discordant_tasks{direction="b_to_p"} 7`)
}
