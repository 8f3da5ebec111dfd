package analysis

import (
	"fmt"
	"strings"

	"github.com/mcpchecker/pairbench/pkg/agent"
	"github.com/mcpchecker/pairbench/pkg/results"
)

const notAvailable = "N/A"

// Report is everything RenderReport needs. Significance is optional.
type Report struct {
	Metadata     *results.Metadata
	EvalResults  *results.EvalResults
	Significance *McNemarResult
}

// RenderReport renders the markdown report. Conditions and metrics appear in
// the order they were recorded.
func RenderReport(r Report) string {
	md := r.Metadata
	if md == nil {
		md = &results.Metadata{}
	}

	lines := []string{
		"# Pairbench Report",
		"",
		"## Metadata",
		"",
		fmt.Sprintf("- **Model**: %s", orNA(md.Model)),
		fmt.Sprintf("- **Agent**: %s", orNA(strings.TrimSpace(md.Agent+" "+md.AgentVersion))),
		fmt.Sprintf("- **Benchmark**: %s", orNA(string(md.Benchmark))),
		fmt.Sprintf("- **Tasks**: %d", md.TaskCount),
		fmt.Sprintf("- **Started**: %s", orNA(md.StartedAt)),
		fmt.Sprintf("- **Finished**: %s", orNA(md.FinishedAt)),
	}
	if md.RunID != "" {
		lines = append(lines, fmt.Sprintf("- **Run**: %s", md.RunID))
	}
	lines = append(lines, "", "## Pass Rates", "")

	evalResults := r.EvalResults
	if evalResults == nil {
		evalResults = results.NewEvalResults()
	}

	for cond := evalResults.Oldest(); cond != nil; cond = cond.Next() {
		lines = append(lines, fmt.Sprintf("### %s", cond.Key), "")
		if cond.Value != nil {
			for m := cond.Value.Oldest(); m != nil; m = m.Next() {
				lines = append(lines, fmt.Sprintf("- %s: %.4f", m.Key, m.Value))
			}
		}
		lines = append(lines, "")
	}

	baseline, hasBaseline := evalResults.Get(string(agent.ConditionBaseline))
	treatmentKey, hasTreatment := results.TreatmentKey(evalResults)
	if hasBaseline && hasTreatment && baseline != nil {
		treatment, _ := evalResults.Get(treatmentKey)
		lines = append(lines, fmt.Sprintf("## Delta (%s - baseline)", treatmentKey), "")
		for m := baseline.Oldest(); m != nil; m = m.Next() {
			if treatment == nil {
				break
			}
			if tv, ok := treatment.Get(m.Key); ok {
				lines = append(lines, fmt.Sprintf("- %s: %+.4f", m.Key, tv-m.Value))
			}
		}
		lines = append(lines, "")
	}

	if sig := r.Significance; sig != nil {
		verdict := "no"
		if sig.Significant {
			verdict = "yes"
		}
		lines = append(lines,
			"## Paired Significance",
			"",
			fmt.Sprintf("- Discordant tasks: %d", sig.Discordant()),
			fmt.Sprintf("- Baseline fail, treatment pass: %d", sig.BToP),
			fmt.Sprintf("- Treatment fail, baseline pass: %d", sig.PToB),
			fmt.Sprintf("- p-value (exact McNemar): %.4g", sig.PValue),
			fmt.Sprintf("- Significant at %.2f: %s", SignificanceLevel, verdict),
			"",
		)
	}

	return strings.Join(lines, "\n")
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}
