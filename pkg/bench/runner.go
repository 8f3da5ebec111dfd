// Package bench drives a full run: every task through both conditions, the
// ledgers, the evaluator and the report.
package bench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/template"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcpchecker/pairbench/pkg/agent"
	"github.com/mcpchecker/pairbench/pkg/analysis"
	"github.com/mcpchecker/pairbench/pkg/benchmark"
	"github.com/mcpchecker/pairbench/pkg/evaluator"
	"github.com/mcpchecker/pairbench/pkg/ledger"
	"github.com/mcpchecker/pairbench/pkg/results"
	"github.com/mcpchecker/pairbench/pkg/task"
	"github.com/mcpchecker/pairbench/pkg/telemetry"
	"github.com/mcpchecker/pairbench/pkg/util"
	"github.com/mcpchecker/pairbench/pkg/workdir"
)

// ErrMarkerPresent aborts a run when the marker file sits in the shared root.
var ErrMarkerPresent = errors.New("marker file present in shared root")

type Options struct {
	// DryRun prints the planned commands and writes no results.
	DryRun bool
	// SkipEval stops after the generation phase.
	SkipEval bool
	// Resume skips tasks already present in both ledgers.
	Resume bool
}

// Summary describes a finished run.
type Summary struct {
	RunID        string
	ResultsDir   string
	TasksTotal   int
	TasksRun     int
	TasksSkipped int
	Invocations  int

	// Outcome counts of agent invocations, keyed by telemetry outcome
	Outcomes map[string]int

	Evaluated      bool
	EvalSkipReason string
	EvalResults    *results.EvalResults
	Significance   *analysis.McNemarResult
}

type Runner struct {
	spec     *benchmark.BenchmarkSpec
	opts     Options
	progress ProgressCallback

	// Env is the base agent environment. Nil snapshots the process environment.
	Env util.Environ
	// Out receives dry-run command listings.
	Out io.Writer
	// TempDir is where isolated workdirs are created.
	TempDir string

	now func() time.Time
}

func NewRunner(spec *benchmark.BenchmarkSpec, opts Options) (*Runner, error) {
	if spec == nil {
		return nil, fmt.Errorf("benchmark spec cannot be nil")
	}
	if err := spec.Config.Validate(); err != nil {
		return nil, err
	}

	return &Runner{
		spec:     spec,
		opts:     opts,
		progress: NoopProgressCallback,
		Out:      os.Stdout,
		now:      time.Now,
	}, nil
}

func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	return r.RunWithProgress(ctx, NoopProgressCallback)
}

// run bundles what the task loop needs.
type run struct {
	rc        *RunContext
	cfg       *benchmark.BenchmarkConfig
	layout    results.Layout
	prov      *workdir.Provisioner
	agent     *agent.ConditionRunner
	prompt    *template.Template
	metrics   *telemetry.Metrics
	baseline  string
	treatment string
}

func (r *Runner) RunWithProgress(ctx context.Context, callback ProgressCallback) (*Summary, error) {
	if callback == nil {
		callback = NoopProgressCallback
	}
	r.progress = callback

	cfg := &r.spec.Config
	logger := util.Logger(ctx)

	layout := results.Layout{Root: cfg.ResultsDir}
	if err := layout.Ensure(); err != nil {
		return nil, err
	}

	if marker := cfg.Marker(); marker != "" && !r.opts.DryRun {
		if _, err := os.Stat(marker); err == nil {
			return nil, fmt.Errorf("%w: %s; rename it (for example to %s.bak) before running", ErrMarkerPresent, marker, marker)
		}
	}

	rc := newRunContext(r.now())
	ctx = WithRunContext(ctx, rc)
	logger = logger.With("run", rc.RunID)
	ctx = util.WithLogger(ctx, logger)

	r.progress(ProgressEvent{Type: EventRunStart, Message: fmt.Sprintf("Starting %s run %s", cfg.Benchmark, rc.RunID)})

	state, err := r.prepare(ctx, rc, layout)
	if err != nil {
		return nil, err
	}

	if cfg.Benchmark == task.KindClassEval && cfg.Mini {
		r.warn("--mini is not applicable to classeval, ignoring")
	}

	full, err := task.Load(cfg.Benchmark, cfg.Dataset)
	if err != nil {
		return nil, err
	}
	ds := full.Limit(cfg.Tasks)
	r.progress(ProgressEvent{
		Type:    EventTasksLoaded,
		Total:   ds.Len(),
		Message: fmt.Sprintf("Loaded %d tasks", ds.Len()),
	})

	completed, err := r.openLedgers(state)
	if err != nil {
		return nil, err
	}

	md := &results.Metadata{
		RunID:        rc.RunID,
		Agent:        state.agent.Spec().Metadata.Name,
		AgentVersion: r.agentVersion(ctx, state.agent),
		Model:        cfg.Model,
		Benchmark:    cfg.Benchmark,
		TaskCount:    ds.Len(),
		Mini:         cfg.Mini,
		TimeoutS:     int(cfg.Timeout() / time.Second),
		Resume:       r.opts.Resume,
		StartedAt:    results.Timestamp(rc.StartedAt),
	}

	summary := &Summary{
		RunID:      rc.RunID,
		ResultsDir: layout.Root,
		TasksTotal: ds.Len(),
	}

	loopErr := r.runTasks(ctx, state, ds, completed, summary)

	md.FinishedAt = results.Timestamp(r.now())
	summary.Invocations = rc.Invocations()
	if !r.opts.DryRun {
		if err := results.WriteJSON(layout.Path(results.MetadataFile), md); err != nil {
			return summary, errors.Join(loopErr, err)
		}
	}
	if loopErr != nil {
		return summary, errors.Join(loopErr, r.writeMetrics(state, summary))
	}

	switch {
	case r.opts.DryRun:
		summary.EvalSkipReason = "dry run"
	case r.opts.SkipEval:
		summary.EvalSkipReason = "skip-eval"
	case cfg.Tasks > 0 && cfg.Tasks < full.Len():
		summary.EvalSkipReason = fmt.Sprintf("partial run: %d/%d tasks", cfg.Tasks, full.Len())
	}

	if summary.EvalSkipReason != "" {
		r.progress(ProgressEvent{Type: EventEvalSkipped, Message: summary.EvalSkipReason})
	} else if err := r.evaluate(ctx, state, md, full.Len(), summary); err != nil {
		return summary, errors.Join(err, r.writeMetrics(state, summary))
	}

	if err := r.writeMetrics(state, summary); err != nil {
		return summary, err
	}

	r.progress(ProgressEvent{Type: EventRunComplete, Message: fmt.Sprintf("Results: %s", layout.Root)})
	return summary, nil
}

func (r *Runner) prepare(ctx context.Context, rc *RunContext, layout results.Layout) (*run, error) {
	cfg := &r.spec.Config

	spec, err := agent.Resolve(cfg.AgentFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load agent spec: %w", err)
	}
	if !r.opts.DryRun {
		if err := agent.ValidateEnvironment(spec); err != nil {
			return nil, err
		}
	}

	var extraEnv map[string]string
	if cfg.EnvFile != "" {
		extraEnv, err = godotenv.Read(cfg.EnvFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read env file '%s': %w", cfg.EnvFile, err)
		}
	}

	env := r.Env
	if env == nil {
		env = util.CurrentEnviron()
	}

	prov := workdir.NewProvisioner(cfg.SharedRoot)
	prov.ArtifactFile = cfg.ArtifactFile
	prov.TempDir = r.TempDir

	condRunner, err := agent.NewConditionRunner(spec, env, extraEnv, prov)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent runner from spec: %w", err)
	}
	condRunner.DryRun = r.opts.DryRun
	condRunner.Out = r.Out

	text, err := cfg.PromptText()
	if err != nil {
		return nil, err
	}
	prompt, err := task.ParsePrompt(cfg.Benchmark, text)
	if err != nil {
		return nil, err
	}

	util.Logger(ctx).Debug("run prepared", "agent", spec.Metadata.Name, "sharedRoot", cfg.SharedRoot, "results", layout.Root)

	return &run{
		rc:      rc,
		cfg:     cfg,
		layout:  layout,
		prov:    prov,
		agent:   condRunner,
		prompt:  prompt,
		metrics: telemetry.New(),
	}, nil
}

// openLedgers picks the ledger paths and returns the ids to skip. Without
// resume both ledgers and their evalplus results files are deleted.
func (r *Runner) openLedgers(state *run) (map[string]bool, error) {
	state.baseline = state.layout.SamplesPath(string(agent.ConditionBaseline))

	if !r.opts.Resume {
		state.treatment = state.layout.SamplesPath(string(agent.ConditionTreatment))
		for _, p := range []string{state.baseline, state.treatment} {
			if err := removeIfExists(p); err != nil {
				return nil, fmt.Errorf("failed to reset ledger: %w", err)
			}
			if err := removeIfExists(evaluator.EvalPlusResultsPath(p)); err != nil {
				return nil, fmt.Errorf("failed to reset ledger: %w", err)
			}
		}
		return map[string]bool{}, nil
	}

	state.treatment = state.layout.TreatmentSamplesPath()
	completed, err := ledger.CompletedIDs(state.baseline, state.treatment)
	if err != nil {
		return nil, err
	}
	r.progress(ProgressEvent{
		Type:    EventResume,
		Message: fmt.Sprintf("Resuming: %d tasks already completed, skipping them", len(completed)),
	})
	return completed, nil
}

func (r *Runner) agentVersion(ctx context.Context, runner *agent.ConditionRunner) string {
	if r.opts.DryRun {
		return ""
	}
	return runner.Version(ctx)
}

func (r *Runner) runTasks(ctx context.Context, state *run, ds *task.Dataset, completed map[string]bool, summary *Summary) error {
	start := r.now()
	total := ds.Len()

	for i, t := range ds.Tasks {
		index := i + 1
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run interrupted before %s: %w", t.ID(), err)
		}

		if completed[t.ID()] {
			summary.TasksSkipped++
			state.metrics.TaskSkipped()
			r.progress(ProgressEvent{Type: EventTaskSkipped, Index: index, Total: total, TaskID: t.ID()})
			continue
		}

		r.progress(ProgressEvent{Type: EventTaskStart, Index: index, Total: total, TaskID: t.ID()})
		if err := r.runTask(ctx, state, t); err != nil {
			return err
		}

		summary.TasksRun++
		state.metrics.TaskCompleted()
		r.progress(ProgressEvent{
			Type:     EventTaskProgress,
			Index:    index,
			Total:    total,
			TaskID:   t.ID(),
			Progress: estimate(summary.TasksRun, index, total, r.now().Sub(start)),
		})
	}
	return nil
}

// runTask runs both conditions for t. Only failures that leave the results
// directory or the shared root unusable are returned.
func (r *Runner) runTask(ctx context.Context, state *run, t task.Task) error {
	logger := util.Logger(ctx).With("task", t.ID())

	if err := state.prov.CheckSharedClean(); err != nil {
		if !errors.Is(err, workdir.ErrStaleStub) {
			return err
		}
		r.warn(fmt.Sprintf("%v; removing it before %s", err, t.ID()))
		if err := state.prov.RemoveSharedStub(); err != nil {
			return fmt.Errorf("shared root is not clean: %w", err)
		}
	}

	log := &results.TaskLog{TaskID: t.ID()}

	isolatedDir, err := state.prov.CreateIsolated(ctx, t)
	if err != nil {
		logger.Error("isolated workdir is degraded", "error", err)
	}
	defer func() {
		if err := state.prov.RemoveIsolated(isolatedDir); err != nil {
			logger.Warn("failed to remove isolated workdir", "dir", isolatedDir, "error", err)
		}
	}()

	var baselineArtifact string
	baselineArtifact, log.Baseline = r.runCondition(ctx, state, t, agent.ConditionBaseline, isolatedDir, err)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run interrupted during %s: %w", t.ID(), err)
	}
	if err := r.record(state.baseline, t, baselineArtifact); err != nil {
		return err
	}

	sharedDir, err := state.prov.CreateShared(t)
	if err != nil {
		logger.Error("failed to write stub into shared root", "error", err)
	}
	var treatmentArtifact string
	treatmentArtifact, log.Treatment = r.runCondition(ctx, state, t, agent.ConditionTreatment, sharedDir, err)
	if err := state.prov.RemoveSharedStub(); err != nil {
		logger.Warn("failed to remove shared stub", "error", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run interrupted during %s: %w", t.ID(), err)
	}
	if err := r.record(state.treatment, t, treatmentArtifact); err != nil {
		return err
	}

	if r.opts.DryRun {
		return nil
	}
	return results.WriteJSON(state.layout.TaskLogPath(t.ID()), log)
}

// runCondition runs one condition in dir. A workdir that could not be created
// at all turns into failure metadata without launching the agent.
func (r *Runner) runCondition(ctx context.Context, state *run, t task.Task, cond agent.Condition, dir string, provisionErr error) (string, agent.Metadata) {
	r.progress(ProgressEvent{Type: EventConditionStart, TaskID: t.ID(), Condition: cond})

	var (
		artifact string
		md       agent.Metadata
	)
	switch prompt, err := t.BuildPrompt(state.prompt, state.cfg.ArtifactFile); {
	case dir == "":
		md = agent.Metadata{Error: fmt.Sprintf("workdir unavailable: %v", provisionErr)}
	case err != nil:
		md = agent.Metadata{Error: err.Error()}
	default:
		artifact, md = state.agent.Run(ctx, agent.Invocation{
			Condition: cond,
			Task:      t,
			Workdir:   dir,
			Model:     state.cfg.Model,
			Prompt:    prompt,
			Timeout:   state.cfg.Timeout(),
			Sequence:  state.rc.NextInvocation(),
		})
	}

	if !r.opts.DryRun {
		state.metrics.ObserveInvocation(cond, md)
	}
	r.progress(ProgressEvent{Type: EventConditionDone, TaskID: t.ID(), Condition: cond, Metadata: &md})
	return artifact, md
}

func (r *Runner) record(path string, t task.Task, artifact string) error {
	if r.opts.DryRun {
		return nil
	}
	return ledger.Append(path, ledger.NewRecord(t.Kind(), t.ID(), artifact))
}

func (r *Runner) writeMetrics(state *run, summary *Summary) error {
	if counts, err := state.metrics.InvocationCounts(); err == nil {
		summary.Outcomes = counts
	}
	if r.opts.DryRun {
		return nil
	}
	return state.metrics.WriteTextfile(state.layout.Path(results.MetricsFile))
}

func (r *Runner) warn(msg string, details ...string) {
	r.progress(ProgressEvent{Type: EventWarning, Message: msg, Warnings: details})
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
