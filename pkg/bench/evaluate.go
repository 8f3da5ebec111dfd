package bench

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mcpchecker/pairbench/pkg/agent"
	"github.com/mcpchecker/pairbench/pkg/analysis"
	"github.com/mcpchecker/pairbench/pkg/evaluator"
	"github.com/mcpchecker/pairbench/pkg/ledger"
	"github.com/mcpchecker/pairbench/pkg/results"
	"github.com/mcpchecker/pairbench/pkg/task"
	"github.com/mcpchecker/pairbench/pkg/util"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/ptr"
)

type ledgerRef struct {
	label string
	path  string
}

// ledgerLabel is the condition name a ledger file stands for.
func ledgerLabel(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".jsonl")
}

// evaluate validates both ledgers, runs the evaluator on each and writes the
// raw output, the parsed rates and the report. Evaluator failures are
// recorded, not returned.
func (r *Runner) evaluate(ctx context.Context, state *run, md *results.Metadata, expected int, summary *Summary) error {
	cfg := state.cfg
	logger := util.Logger(ctx)

	name := "EvalPlus"
	if cfg.Benchmark == task.KindClassEval {
		name = "ClassEval"
	}
	r.progress(ProgressEvent{Type: EventEvalStart, Message: fmt.Sprintf("%s Evaluation", name)})

	refs := []ledgerRef{
		{label: string(agent.ConditionBaseline), path: state.baseline},
		{label: ledgerLabel(state.treatment), path: state.treatment},
	}

	for _, ref := range refs {
		records, err := ledger.Load(ref.path)
		var problems []string
		if err != nil {
			problems = []string{err.Error()}
		} else {
			problems = ledger.Validate(records, expected, cfg.Benchmark)
		}
		if len(problems) > 0 {
			r.warn(fmt.Sprintf("%s ledger validation errors:", ref.label), problems...)
		}
	}

	// Per-task results from an earlier evaluation must not stand in for
	// this one.
	for _, ref := range refs {
		if err := removeIfExists(evaluator.EvalPlusResultsPath(ref.path)); err != nil {
			return fmt.Errorf("failed to clear stale evaluator results: %w", err)
		}
	}

	ev, err := evaluator.New(cfg.Evaluator.Command, cfg.Evaluator.Dataset, cfg.Mini && cfg.Benchmark == task.KindEvalPlus)
	if err != nil {
		return err
	}
	ev.Timeout = cfg.EvaluatorTimeout()
	ev.Dir = cfg.Evaluator.Dir

	outputs := make([]*evaluator.Result, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ptr.Deref(cfg.Evaluator.Concurrency, 1))
	for i, ref := range refs {
		g.Go(func() error {
			samples, err := filepath.Abs(ref.path)
			if err != nil {
				samples = ref.path
			}

			start := time.Now()
			res, err := ev.Invoke(gctx, samples)
			state.metrics.ObserveEvaluation(ref.label, res, time.Since(start))
			if err != nil {
				logger.Warn("evaluator failed", "condition", ref.label, "error", err)
				if ctx.Err() != nil {
					return ctx.Err()
				}
			}
			outputs[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("evaluation interrupted: %w", err)
	}

	raw := results.NewEvalRaw()
	evalResults := results.NewEvalResults()
	for i, ref := range refs {
		res := outputs[i]
		r.progress(ProgressEvent{Type: EventEvalCondition, EvalLabel: ref.label, EvalResult: res})

		raw.Set(ref.label, res)
		rates := evaluator.ParseRates(res.Stdout)
		evalResults.Set(ref.label, rates)
		state.metrics.SetRates(ref.label, rates)
	}

	if err := results.WriteJSON(state.layout.Path(results.EvalRawFile), raw); err != nil {
		return err
	}
	if err := results.WriteJSON(state.layout.Path(results.EvalResultsFile), evalResults); err != nil {
		return err
	}

	sig, err := Significance(state.layout.Root, raw)
	if err != nil {
		logger.Warn("failed to compute paired significance", "error", err)
	}
	if sig != nil {
		state.metrics.SetSignificance(*sig)
	}

	summary.Evaluated = true
	summary.EvalResults = evalResults
	summary.Significance = sig

	report := analysis.RenderReport(analysis.Report{
		Metadata:     md,
		EvalResults:  evalResults,
		Significance: sig,
	})
	if err := os.WriteFile(state.layout.Path(results.ReportFile), []byte(report), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	r.progress(ProgressEvent{Type: EventReport, Report: report})
	return nil
}
