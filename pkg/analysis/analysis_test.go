package analysis

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/mcpchecker/pairbench/pkg/evaluator"
	"github.com/mcpchecker/pairbench/pkg/results"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// pairedSets builds a universe of n tasks where the first concordant tasks
// pass in both conditions, the next bToP pass only in the treatment and the
// next pToB pass only in the baseline.
func pairedSets(n, concordant, bToP, pToB int) (baseline, treatment, universe map[string]bool) {
	baseline, treatment, universe = map[string]bool{}, map[string]bool{}, map[string]bool{}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("HumanEval/%d", i)
		universe[id] = true
		switch {
		case i < concordant:
			baseline[id], treatment[id] = true, true
		case i < concordant+bToP:
			treatment[id] = true
		case i < concordant+bToP+pToB:
			baseline[id] = true
		}
	}
	return baseline, treatment, universe
}

func TestMcNemar(t *testing.T) {
	tests := map[string]struct {
		concordant, bToP, pToB int
		significant            bool
		validate               func(t *testing.T, res McNemarResult)
	}{
		"strong improvement": {
			concordant: 50, bToP: 30, pToB: 5,
			significant: true,
			validate: func(t *testing.T, res McNemarResult) {
				assert.Less(t, res.PValue, 0.05)
				assert.InDelta(t, 2*384168/math.Pow(2, 35), res.PValue, 1e-12)
			},
		},
		"balanced flips": {
			concordant: 50, bToP: 15, pToB: 15,
			validate: func(t *testing.T, res McNemarResult) {
				assert.Greater(t, res.PValue, 0.05)
				assert.InDelta(t, 1.0, res.PValue, 1e-9)
			},
		},
		"no discordant pairs": {
			concordant: 50,
			validate: func(t *testing.T, res McNemarResult) {
				assert.Equal(t, 1.0, res.PValue)
			},
		},
		"regression": {
			concordant: 10, bToP: 1, pToB: 12,
			significant: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			baseline, treatment, universe := pairedSets(100, tc.concordant, tc.bToP, tc.pToB)
			res := McNemar(baseline, treatment, universe)

			assert.Equal(t, tc.bToP, res.BToP)
			assert.Equal(t, tc.pToB, res.PToB)
			assert.Equal(t, tc.significant, res.Significant)
			assert.Len(t, res.Improved, tc.bToP)
			assert.Len(t, res.Regressed, tc.pToB)
			if tc.validate != nil {
				tc.validate(t, res)
			}
		})
	}
}

func TestMcNemar_IgnoresIDsOutsideUniverse(t *testing.T) {
	universe := map[string]bool{"HumanEval/0": true, "HumanEval/1": true}
	baseline := map[string]bool{"HumanEval/0": true, "HumanEval/99": true}
	treatment := map[string]bool{"HumanEval/1": true, "HumanEval/98": true}

	res := McNemar(baseline, treatment, universe)
	assert.Equal(t, []string{"HumanEval/1"}, res.Improved)
	assert.Equal(t, []string{"HumanEval/0"}, res.Regressed)
	assert.Equal(t, 1.0, res.PValue)
}

func TestBinomialTwoSided(t *testing.T) {
	tests := map[string]struct {
		k, n     int
		p        float64
		expected float64
	}{
		"all successes": {k: 5, n: 5, p: 0.5, expected: 2.0 / 32},
		"one of ten":    {k: 1, n: 10, p: 0.5, expected: 22.0 / 1024},
		"symmetric":     {k: 5, n: 10, p: 0.5, expected: 1},
		"zero trials":   {k: 0, n: 0, p: 0.5, expected: 1},
		// k=3 of n=10 with p=0.3 is the mode, so every outcome counts.
		"skewed mode": {k: 3, n: 10, p: 0.3, expected: 1},
		// scipy.stats.binomtest(8, 10, 0.3).pvalue
		"skewed tail":    {k: 8, n: 10, p: 0.3, expected: 0.0015903864},
		"none of twenty": {k: 0, n: 20, p: 0.5, expected: 2.0 / (1 << 20)},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.InDelta(t, tc.expected, BinomialTwoSided(tc.k, tc.n, tc.p), 1e-12)
		})
	}
}

func rates(pairs ...any) *evaluator.Rates {
	r := orderedmap.New[string, float64]()
	for i := 0; i < len(pairs); i += 2 {
		r.Set(pairs[i].(string), pairs[i+1].(float64))
	}
	return r
}

func TestRenderReport(t *testing.T) {
	evalResults := results.NewEvalResults()
	evalResults.Set("baseline", rates("pass@1", 0.70))
	evalResults.Set("treatment", rates("pass@1", 0.78))

	report := RenderReport(Report{
		Metadata:    &results.Metadata{Model: "gpt-4o"},
		EvalResults: evalResults,
	})

	assert.Contains(t, report, "gpt-4o")
	assert.Contains(t, report, "0.7000")
	assert.Contains(t, report, "0.7800")
	assert.Contains(t, report, "- pass@1: +0.0800")
	assert.Contains(t, report, "## Delta (treatment - baseline)")
	assert.Contains(t, report, "- **Started**: N/A")
	assert.NotContains(t, report, "## Paired Significance")
}

func TestRenderReport_SectionOrder(t *testing.T) {
	evalResults := results.NewEvalResults()
	evalResults.Set("baseline", rates("pass@1", 0.5, "pass@10", 0.9))
	evalResults.Set("plankton", rates("pass@10", 0.85, "pass@1", 0.6))

	sig := McNemar(pairedSets(100, 50, 30, 5))
	report := RenderReport(Report{
		Metadata: &results.Metadata{
			Model:        "claude-haiku-4-5",
			Agent:        "claude-code",
			AgentVersion: "2.0.1",
			StartedAt:    "2025-01-01T00:00:00+0000",
		},
		EvalResults:  evalResults,
		Significance: &sig,
	})

	order := []string{
		"# Pairbench Report",
		"## Metadata",
		"- **Agent**: claude-code 2.0.1",
		"## Pass Rates",
		"### baseline",
		"- pass@1: 0.5000",
		"- pass@10: 0.9000",
		"### plankton",
		"- pass@10: 0.8500",
		"- pass@1: 0.6000",
		"## Delta (plankton - baseline)",
		"- pass@1: +0.1000",
		"- pass@10: -0.0500",
		"## Paired Significance",
		"- Baseline fail, treatment pass: 30",
		"- Significant at 0.05: yes",
	}

	pos := 0
	for _, want := range order {
		idx := strings.Index(report[pos:], want)
		require.GreaterOrEqual(t, idx, 0, "missing or out of order: %q\n%s", want, report)
		pos += idx + len(want)
	}
}

func TestRenderReport_NoDeltaWithoutBothConditions(t *testing.T) {
	evalResults := results.NewEvalResults()
	evalResults.Set("baseline", rates("pass@1", 0.5))

	report := RenderReport(Report{EvalResults: evalResults})
	assert.NotContains(t, report, "## Delta")
	assert.Contains(t, report, "- **Model**: N/A")
}
