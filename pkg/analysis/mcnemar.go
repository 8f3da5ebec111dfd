// Package analysis compares the two conditions of a run: the exact paired
// significance test over discordant tasks, and the markdown report.
package analysis

import (
	"github.com/mcpchecker/pairbench/pkg/task"
)

// SignificanceLevel is the p-value below which a difference is significant.
const SignificanceLevel = 0.05

// McNemarResult is the outcome of the paired test. Concordant tasks (both
// pass or both fail) carry no information and are not counted.
type McNemarResult struct {
	// BToP counts tasks the baseline failed and the treatment passed.
	BToP int `json:"b_to_p"`
	// PToB counts tasks the treatment failed and the baseline passed.
	PToB        int     `json:"p_to_b"`
	PValue      float64 `json:"p_value"`
	Significant bool    `json:"significant"`

	Improved  []string `json:"improved,omitempty"`
	Regressed []string `json:"regressed,omitempty"`
}

// Discordant is the number of tasks on which the conditions disagree.
func (r McNemarResult) Discordant() int {
	return r.BToP + r.PToB
}

// McNemar runs the exact McNemar test on the pass sets of both conditions
// over universe. Ids outside universe are ignored.
func McNemar(baselinePass, treatmentPass, universe map[string]bool) McNemarResult {
	var res McNemarResult
	for id := range universe {
		switch b, t := baselinePass[id], treatmentPass[id]; {
		case !b && t:
			res.Improved = append(res.Improved, id)
		case b && !t:
			res.Regressed = append(res.Regressed, id)
		}
	}
	task.SortIDs(res.Improved)
	task.SortIDs(res.Regressed)

	res.BToP = len(res.Improved)
	res.PToB = len(res.Regressed)

	n := res.Discordant()
	if n == 0 {
		res.PValue = 1
	} else {
		res.PValue = BinomialTwoSided(res.BToP, n, 0.5)
	}
	res.Significant = res.PValue < SignificanceLevel
	return res
}
