// Package telemetry collects run metrics on a private prometheus registry and
// writes them as a textfile next to the results.
package telemetry

import (
	"fmt"
	"time"

	"github.com/mcpchecker/pairbench/pkg/agent"
	"github.com/mcpchecker/pairbench/pkg/analysis"
	"github.com/mcpchecker/pairbench/pkg/evaluator"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "pairbench"

// Invocation outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeNonZero = "nonzero_exit"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// Metrics is the set of collectors for one run. Every method is safe for
// concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	invocations        *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
	tasks              *prometheus.CounterVec
	evaluations        *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	passRate           *prometheus.GaugeVec
	discordant         *prometheus.GaugeVec
	pValue             prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "invocations_total",
			Help:      "Agent invocations by condition and outcome",
		}, []string{"condition", "outcome"}),
		invocationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "invocation_duration_seconds",
			Help:      "Wall time of completed agent invocations",
			Buckets:   []float64{5, 10, 20, 30, 60, 90, 120, 180, 300, 600},
		}, []string{"condition"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Tasks by status (completed, skipped)",
		}, []string{"status"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "runs_total",
			Help:      "Evaluator runs by condition and outcome",
		}, []string{"condition", "outcome"}),
		evaluationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "duration_seconds",
			Help:      "Wall time of evaluator runs",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 11),
		}, []string{"condition"}),
		passRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pass_rate",
			Help:      "Parsed pass@k rates by condition",
		}, []string{"condition", "metric"}),
		discordant: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mcnemar",
			Name:      "discordant_tasks",
			Help:      "Discordant tasks by direction (b_to_p, p_to_b)",
		}, []string{"direction"}),
		pValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mcnemar",
			Name:      "p_value",
			Help:      "Exact McNemar p-value",
		}),
	}

	m.registry.MustRegister(
		m.invocations,
		m.invocationDuration,
		m.tasks,
		m.evaluations,
		m.evaluationDuration,
		m.passRate,
		m.discordant,
		m.pValue,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// InvocationOutcome classifies agent metadata.
func InvocationOutcome(md agent.Metadata) string {
	switch {
	case md.TimedOut():
		return OutcomeTimeout
	case md.Error != "":
		return OutcomeError
	case md.Returncode != nil && *md.Returncode != 0:
		return OutcomeNonZero
	default:
		return OutcomeOK
	}
}

func (m *Metrics) ObserveInvocation(cond agent.Condition, md agent.Metadata) {
	m.invocations.WithLabelValues(string(cond), InvocationOutcome(md)).Inc()
	if md.ElapsedS != nil && !md.TimedOut() {
		m.invocationDuration.WithLabelValues(string(cond)).Observe(*md.ElapsedS)
	}
}

func (m *Metrics) TaskCompleted() {
	m.tasks.WithLabelValues("completed").Inc()
}

func (m *Metrics) TaskSkipped() {
	m.tasks.WithLabelValues("skipped").Inc()
}

func (m *Metrics) ObserveEvaluation(cond string, res *evaluator.Result, elapsed time.Duration) {
	outcome := OutcomeOK
	switch {
	case res == nil || res.Error != "":
		outcome = OutcomeError
	case res.Returncode != 0:
		outcome = OutcomeNonZero
	}
	m.evaluations.WithLabelValues(cond, outcome).Inc()
	m.evaluationDuration.WithLabelValues(cond).Observe(elapsed.Seconds())
}

func (m *Metrics) SetRates(cond string, rates *evaluator.Rates) {
	if rates == nil {
		return
	}
	for p := rates.Oldest(); p != nil; p = p.Next() {
		m.passRate.WithLabelValues(cond, p.Key).Set(p.Value)
	}
}

func (m *Metrics) SetSignificance(res analysis.McNemarResult) {
	m.discordant.WithLabelValues("b_to_p").Set(float64(res.BToP))
	m.discordant.WithLabelValues("p_to_b").Set(float64(res.PToB))
	m.pValue.Set(res.PValue)
}

// WriteTextfile writes every metric to path in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

// InvocationCounts sums agent invocations per outcome across conditions.
func (m *Metrics) InvocationCounts() (map[string]int, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}

	counts := map[string]int{}
	for _, mf := range families {
		if mf.GetName() != namespace+"_agent_invocations_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			counts[labelValue(metric, "outcome")] += int(metric.GetCounter().GetValue())
		}
	}
	return counts, nil
}

func labelValue(metric *dto.Metric, name string) string {
	for _, lp := range metric.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
