package bench

import (
	"errors"
	"fmt"
	"os"

	"github.com/mcpchecker/pairbench/pkg/agent"
	"github.com/mcpchecker/pairbench/pkg/analysis"
	"github.com/mcpchecker/pairbench/pkg/results"
)

// Significance runs the paired test for a results directory. It returns nil
// without error when either condition has no per-task outcomes.
func Significance(dir string, raw *results.EvalRaw) (*analysis.McNemarResult, error) {
	sets := results.PassSets(dir, raw)

	baseline, ok := sets[string(agent.ConditionBaseline)]
	if !ok {
		return nil, nil
	}
	treatment, ok := sets[string(agent.ConditionTreatment)]
	if !ok {
		treatment, ok = sets[agent.LegacyTreatmentName]
	}
	if !ok {
		return nil, nil
	}

	universe, err := results.Universe(dir)
	if err != nil {
		return nil, err
	}

	res := analysis.McNemar(baseline, treatment, universe)
	return &res, nil
}

// LoadReport gathers the report inputs of a finished run. Metadata and raw
// evaluator output are optional; the parsed rates are not.
func LoadReport(dir string) (*analysis.Report, error) {
	evalResults, err := results.LoadEvalResults(dir)
	if err != nil {
		return nil, err
	}

	md, err := results.LoadMetadata(dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	raw, err := results.LoadEvalRaw(dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	sig, err := Significance(dir, raw)
	if err != nil {
		return nil, err
	}

	return &analysis.Report{
		Metadata:     md,
		EvalResults:  evalResults,
		Significance: sig,
	}, nil
}

// WriteReport re-renders REPORT.md for dir and returns its content.
func WriteReport(dir string) (string, error) {
	report, err := LoadReport(dir)
	if err != nil {
		return "", err
	}

	text := analysis.RenderReport(*report)
	path := results.Layout{Root: dir}.Path(results.ReportFile)
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return text, nil
}
