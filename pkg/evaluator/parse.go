package evaluator

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Rates maps metric names to values in the order the evaluator printed them.
type Rates = orderedmap.OrderedMap[string, float64]

var (
	rateLine = regexp.MustCompile(`(?m)^(pass@\d+):\s+([\d.]+)`)
	passLine = regexp.MustCompile(`(?m)^\s*(\S+):\s+(PASS|FAIL)\s*$`)
)

// ParseRates extracts every "pass@k: <float>" line of stdout. Everything else
// is ignored. A metric printed twice keeps its first position and its last
// value.
func ParseRates(stdout string) *Rates {
	rates := orderedmap.New[string, float64]()
	for _, m := range rateLine.FindAllStringSubmatch(stdout, -1) {
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		rates.Set(m[1], v)
	}
	return rates
}

// ParsePassSet returns the ids reported on "<id>: PASS" lines. ok is true
// when stdout carried at least one per-task line, so an all-FAIL run yields
// an empty set rather than no set.
func ParsePassSet(stdout string) (pass map[string]bool, ok bool) {
	pass = map[string]bool{}
	for _, m := range passLine.FindAllStringSubmatch(stdout, -1) {
		ok = true
		if m[2] == "PASS" {
			pass[m[1]] = true
		}
	}
	return pass, ok
}

// EvalPlusResultsPath is where evalplus writes per-task results for
// samplesPath.
func EvalPlusResultsPath(samplesPath string) string {
	return strings.TrimSuffix(samplesPath, ".jsonl") + "_eval_results.json"
}

type evalPlusResults struct {
	Eval map[string][]evalPlusSample `json:"eval"`
}

type evalPlusSample struct {
	BaseStatus string `json:"base_status"`
	PlusStatus string `json:"plus_status"`
}

// LoadEvalPlusPassSet reads an evalplus results file. A task passes when its
// first sample passed both the base and the extra tests.
func LoadEvalPlusPassSet(path string) (map[string]bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read evalplus results '%s': %w", path, err)
	}

	var results evalPlusResults
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("failed to decode evalplus results '%s': %w", path, err)
	}

	pass := map[string]bool{}
	for id, samples := range results.Eval {
		if len(samples) == 0 {
			continue
		}
		if samples[0].BaseStatus == "pass" && samples[0].PlusStatus == "pass" {
			pass[id] = true
		}
	}
	return pass, nil
}
