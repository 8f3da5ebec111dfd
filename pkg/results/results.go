// Package results provides utilities for writing and loading a results
// directory and computing per-condition statistics from it.
package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mcpchecker/pairbench/pkg/agent"
	"github.com/mcpchecker/pairbench/pkg/evaluator"
	"github.com/mcpchecker/pairbench/pkg/ledger"
	"github.com/mcpchecker/pairbench/pkg/task"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	SamplesDir      = "samples"
	LogsDir         = "logs"
	MetadataFile    = "metadata.json"
	EvalRawFile     = "eval_raw.json"
	EvalResultsFile = "eval_results.json"
	ReportFile      = "REPORT.md"
	MetricsFile     = "metrics.prom"
)

// Layout resolves the paths inside a results directory.
type Layout struct {
	Root string
}

func (l Layout) SamplesPath(condition string) string {
	return filepath.Join(l.Root, SamplesDir, condition+".jsonl")
}

func (l Layout) TaskLogPath(taskID string) string {
	return filepath.Join(l.Root, LogsDir, strings.ReplaceAll(taskID, "/", "_")+".json")
}

func (l Layout) Path(name string) string {
	return filepath.Join(l.Root, name)
}

// Ensure creates the samples and logs directories.
func (l Layout) Ensure() error {
	for _, d := range []string{SamplesDir, LogsDir} {
		if err := os.MkdirAll(filepath.Join(l.Root, d), 0755); err != nil {
			return fmt.Errorf("failed to create results directory: %w", err)
		}
	}
	return nil
}

// TreatmentSamplesPath returns the treatment ledger, falling back to the
// legacy name when only that exists.
func (l Layout) TreatmentSamplesPath() string {
	path := l.SamplesPath(string(agent.ConditionTreatment))
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		legacy := l.SamplesPath(agent.LegacyTreatmentName)
		if _, err := os.Stat(legacy); err == nil {
			return legacy
		}
	}
	return path
}

// Metadata describes one run.
type Metadata struct {
	RunID        string    `json:"run_id,omitempty"`
	Agent        string    `json:"agent,omitempty"`
	AgentVersion string    `json:"agent_version,omitempty"`
	Model        string    `json:"model"`
	Benchmark    task.Kind `json:"benchmark"`
	TaskCount    int       `json:"task_count"`
	Mini         bool      `json:"mini"`
	TimeoutS     int       `json:"timeout"`
	Resume       bool      `json:"resume,omitempty"`
	StartedAt    string    `json:"started_at"`
	FinishedAt   string    `json:"finished_at,omitempty"`
}

// UnmarshalJSON also accepts the key names written by older runs.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	type plain Metadata
	aux := struct {
		*plain
		StartTime         string `json:"start_time"`
		EndTime           string `json:"end_time"`
		ClaudeCodeVersion string `json:"claude_code_version"`
	}{plain: (*plain)(m)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if m.StartedAt == "" {
		m.StartedAt = aux.StartTime
	}
	if m.FinishedAt == "" {
		m.FinishedAt = aux.EndTime
	}
	if m.AgentVersion == "" {
		m.AgentVersion = aux.ClaudeCodeVersion
	}
	return nil
}

// Timestamp formats t the way metadata stores it.
func Timestamp(t time.Time) string {
	return t.Format("2006-01-02T15:04:05-0700")
}

// TaskLog is the per-task subprocess metadata of both conditions.
type TaskLog struct {
	TaskID    string         `json:"task_id"`
	Baseline  agent.Metadata `json:"baseline"`
	Treatment agent.Metadata `json:"treatment"`
}

// EvalRaw maps condition names to raw evaluator output.
type EvalRaw = orderedmap.OrderedMap[string, *evaluator.Result]

// EvalResults maps condition names to parsed rates.
type EvalResults = orderedmap.OrderedMap[string, *evaluator.Rates]

func NewEvalRaw() *EvalRaw {
	return orderedmap.New[string, *evaluator.Result]()
}

func NewEvalResults() *EvalResults {
	return orderedmap.New[string, *evaluator.Rates]()
}

// WriteJSON writes v indented to path.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// LoadMetadata reads metadata.json from dir.
func LoadMetadata(dir string) (*Metadata, error) {
	data, err := os.ReadFile(Layout{Root: dir}.Path(MetadataFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	md := &Metadata{}
	if err := json.Unmarshal(data, md); err != nil {
		return nil, fmt.Errorf("failed to parse metadata JSON: %w", err)
	}
	return md, nil
}

// LoadEvalResults reads eval_results.json from dir, preserving key order.
func LoadEvalResults(dir string) (*EvalResults, error) {
	data, err := os.ReadFile(Layout{Root: dir}.Path(EvalResultsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read eval results: %w", err)
	}

	raw := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(data, raw); err != nil {
		return nil, fmt.Errorf("failed to parse eval results JSON: %w", err)
	}

	out := NewEvalResults()
	for p := raw.Oldest(); p != nil; p = p.Next() {
		rates := orderedmap.New[string, float64]()
		if err := json.Unmarshal(p.Value, rates); err != nil {
			return nil, fmt.Errorf("failed to parse eval results for %s: %w", p.Key, err)
		}
		out.Set(p.Key, rates)
	}
	return out, nil
}

// LoadEvalRaw reads eval_raw.json from dir, preserving key order.
func LoadEvalRaw(dir string) (*EvalRaw, error) {
	data, err := os.ReadFile(Layout{Root: dir}.Path(EvalRawFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read raw eval output: %w", err)
	}

	raw := NewEvalRaw()
	if err := json.Unmarshal(data, raw); err != nil {
		return nil, fmt.Errorf("failed to parse raw eval output JSON: %w", err)
	}
	return raw, nil
}

// LoadTaskLog reads the per-task log for taskID.
func LoadTaskLog(dir, taskID string) (*TaskLog, error) {
	data, err := os.ReadFile(Layout{Root: dir}.TaskLogPath(taskID))
	if err != nil {
		return nil, fmt.Errorf("failed to read task log for %s: %w", taskID, err)
	}

	log, err := parseTaskLog(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse task log for %s: %w", taskID, err)
	}
	return log, nil
}

// parseTaskLog also accepts logs that stored the treatment under its legacy name.
func parseTaskLog(data []byte) (*TaskLog, error) {
	aux := struct {
		TaskLog
		Plankton *agent.Metadata `json:"plankton"`
	}{}
	if err := json.Unmarshal(data, &aux); err != nil {
		return nil, err
	}
	if aux.Plankton != nil {
		aux.TaskLog.Treatment = *aux.Plankton
	}
	return &aux.TaskLog, nil
}

// LoadTaskLogs reads every per-task log in dir, ordered by task id.
func LoadTaskLogs(dir string) ([]*TaskLog, error) {
	entries, err := os.ReadDir(filepath.Join(dir, LogsDir))
	if err != nil {
		return nil, fmt.Errorf("failed to read task logs: %w", err)
	}

	logs := make([]*TaskLog, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, LogsDir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read task log %s: %w", e.Name(), err)
		}
		log, err := parseTaskLog(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse task log %s: %w", e.Name(), err)
		}
		logs = append(logs, log)
	}

	ids := make([]string, len(logs))
	byID := make(map[string]*TaskLog, len(logs))
	for i, l := range logs {
		ids[i] = l.TaskID
		byID[l.TaskID] = l
	}
	task.SortIDs(ids)
	for i, id := range ids {
		logs[i] = byID[id]
	}
	return logs, nil
}

// TreatmentKey returns the treatment condition name used in m, accepting
// the legacy name. ok is false when neither is present.
func TreatmentKey[V any](m *orderedmap.OrderedMap[string, V]) (string, bool) {
	for _, k := range []string{string(agent.ConditionTreatment), agent.LegacyTreatmentName} {
		if _, ok := m.Get(k); ok {
			return k, true
		}
	}
	return "", false
}

// PassSets derives per-condition pass sets for a finished run. An evalplus
// results file next to a ledger is preferred; otherwise the per-task lines of
// the raw evaluator stdout are used. A condition whose stdout reports only
// failures gets an empty set. Conditions with neither are omitted.
func PassSets(dir string, raw *EvalRaw) map[string]map[string]bool {
	layout := Layout{Root: dir}
	sets := map[string]map[string]bool{}
	for _, cond := range []string{string(agent.ConditionBaseline), string(agent.ConditionTreatment), agent.LegacyTreatmentName} {
		if pass, err := evaluator.LoadEvalPlusPassSet(evaluator.EvalPlusResultsPath(layout.SamplesPath(cond))); err == nil {
			sets[cond] = pass
			continue
		}
		if raw == nil {
			continue
		}
		res, ok := raw.Get(cond)
		if !ok || res == nil {
			continue
		}
		if pass, seen := evaluator.ParsePassSet(res.Stdout); seen {
			sets[cond] = pass
		}
	}
	return sets
}

// Universe is the set of task ids recorded in either ledger.
func Universe(dir string) (map[string]bool, error) {
	layout := Layout{Root: dir}
	all := map[string]bool{}
	for _, path := range []string{layout.SamplesPath(string(agent.ConditionBaseline)), layout.TreatmentSamplesPath()} {
		ids, err := ledger.IDs(path)
		if err != nil {
			return nil, err
		}
		for id := range ids {
			all[id] = true
		}
	}
	return all, nil
}

// Stats holds computed statistics for one condition.
type Stats struct {
	Condition   string  `json:"condition"`
	TasksTotal  int     `json:"tasksTotal"`
	TasksPassed int     `json:"tasksPassed"`
	PassRate    float64 `json:"passRate"`
}

// CalculateStats computes pass counts of one condition over universe.
func CalculateStats(condition string, pass, universe map[string]bool) Stats {
	stats := Stats{
		Condition:  condition,
		TasksTotal: len(universe),
	}

	for id := range universe {
		if pass[id] {
			stats.TasksPassed++
		}
	}

	if stats.TasksTotal > 0 {
		stats.PassRate = float64(stats.TasksPassed) / float64(stats.TasksTotal)
	}
	return stats
}
