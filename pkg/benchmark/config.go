// Package benchmark holds the YAML description of a run: which dataset,
// which agent, which evaluator, and the knobs the CLI can override.
package benchmark

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mcpchecker/pairbench/pkg/evaluator"
	"github.com/mcpchecker/pairbench/pkg/task"
	"github.com/mcpchecker/pairbench/pkg/util"
	"github.com/mcpchecker/pairbench/pkg/workdir"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/yaml"
)

const (
	KindBenchmark = "Benchmark"

	DefaultModel          = "claude-haiku-4-5-20251001"
	DefaultTimeoutSeconds = 300
	DefaultMarkerFile     = "CLAUDE.md"
	DefaultResultsDir     = "results"
)

type BenchmarkSpec struct {
	Metadata BenchmarkMetadata `json:"metadata"`
	Config   BenchmarkConfig   `json:"config"`
}

type BenchmarkMetadata struct {
	Name string `json:"name"`
}

type BenchmarkConfig struct {
	// Dataset kind: evalplus or classeval
	Benchmark task.Kind `json:"benchmark" validate:"required,oneof=evalplus classeval"`

	// Dataset file
	Dataset string `json:"dataset" validate:"required"`

	// Optional agent spec file. Empty uses the claude-code builtin.
	AgentFile string `json:"agentFile,omitempty"`

	Model          string `json:"model" validate:"required"`
	TimeoutSeconds *int   `json:"timeoutSeconds,omitempty" validate:"omitempty,gt=0"`

	// Limit to the first N tasks, 0 runs everything
	Tasks int  `json:"tasks,omitempty" validate:"gte=0"`
	Mini  bool `json:"mini,omitempty"`

	// Persistent root the treatment condition runs in
	SharedRoot   string `json:"sharedRoot,omitempty"`
	ArtifactFile string `json:"artifactFile,omitempty"`

	// File in SharedRoot that aborts the run when present. "" disables the check.
	MarkerFile *string `json:"markerFile,omitempty"`

	// Prompt template. Defaults to the built-in prompt for the benchmark kind.
	Prompt *util.Source `json:"prompt,omitempty"`

	// Optional .env file merged into the agent environment
	EnvFile string `json:"envFile,omitempty"`

	ResultsDir string          `json:"resultsDir,omitempty"`
	Evaluator  EvaluatorConfig `json:"evaluator,omitempty"`
}

type EvaluatorConfig struct {
	// Argv templates with {{ .Samples }}, {{ .Dataset }} and {{ .Mini }}
	Command []string `json:"command,omitempty" validate:"omitempty,dive,tmpl"`

	TimeoutSeconds *int `json:"timeoutSeconds,omitempty" validate:"omitempty,gt=0"`

	// Reference data passed as {{ .Dataset }}. Defaults to the task dataset.
	Dataset string `json:"dataset,omitempty"`

	// Working directory of the evaluator
	Dir string `json:"dir,omitempty"`

	// How many condition ledgers are evaluated at once
	Concurrency *int `json:"concurrency,omitempty" validate:"omitempty,min=1,max=2"`
}

// New returns a spec for kind with every default filled in.
func New(kind task.Kind) *BenchmarkSpec {
	spec := &BenchmarkSpec{
		Metadata: BenchmarkMetadata{Name: string(kind)},
		Config:   BenchmarkConfig{Benchmark: kind},
	}
	spec.Config.ApplyDefaults()
	return spec
}

func (b *BenchmarkSpec) UnmarshalJSON(data []byte) error {
	type Doppleganger BenchmarkSpec

	tmp := (*Doppleganger)(b)
	return util.UnmarshalWithKind(data, tmp, KindBenchmark)
}

// ApplyDefaults fills every unset field.
func (c *BenchmarkConfig) ApplyDefaults() {
	if c.Benchmark == "" {
		c.Benchmark = task.KindEvalPlus
	}
	if c.Dataset == "" {
		c.Dataset = DefaultDataset(c.Benchmark)
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.TimeoutSeconds == nil {
		c.TimeoutSeconds = ptr.To(DefaultTimeoutSeconds)
	}
	if c.SharedRoot == "" {
		c.SharedRoot = "."
	}
	if c.ArtifactFile == "" {
		c.ArtifactFile = workdir.DefaultArtifactFile
	}
	if c.MarkerFile == nil {
		c.MarkerFile = ptr.To(DefaultMarkerFile)
	}
	if c.ResultsDir == "" {
		c.ResultsDir = DefaultResultsDir
	}
	if len(c.Evaluator.Command) == 0 {
		c.Evaluator.Command = evaluator.DefaultCommand(c.Benchmark)
	}
	if c.Evaluator.TimeoutSeconds == nil {
		c.Evaluator.TimeoutSeconds = ptr.To(int(evaluator.DefaultTimeout / time.Second))
	}
	if c.Evaluator.Dataset == "" {
		c.Evaluator.Dataset = c.Dataset
	}
	if c.Evaluator.Concurrency == nil {
		c.Evaluator.Concurrency = ptr.To(1)
	}
}

// DefaultDataset is the dataset file name used when none is configured.
func DefaultDataset(kind task.Kind) string {
	if kind == task.KindClassEval {
		return "ClassEval_data.json"
	}
	return "HumanEvalPlus.jsonl"
}

// Validate checks the config after defaults were applied.
func (c *BenchmarkConfig) Validate() error {
	if err := util.ValidateStruct(c); err != nil {
		return err
	}
	if c.Prompt != nil && c.Prompt.Inline != "" && c.Prompt.File != "" {
		return fmt.Errorf("prompt: only one of inline or file may be set")
	}
	return nil
}

func (c *BenchmarkConfig) Timeout() time.Duration {
	return time.Duration(ptr.Deref(c.TimeoutSeconds, DefaultTimeoutSeconds)) * time.Second
}

func (c *BenchmarkConfig) EvaluatorTimeout() time.Duration {
	if c.Evaluator.TimeoutSeconds == nil {
		return evaluator.DefaultTimeout
	}
	return time.Duration(*c.Evaluator.TimeoutSeconds) * time.Second
}

// Marker returns the marker path, or "" when the check is disabled.
func (c *BenchmarkConfig) Marker() string {
	name := ptr.Deref(c.MarkerFile, DefaultMarkerFile)
	if name == "" {
		return ""
	}
	return filepath.Join(c.SharedRoot, name)
}

// PromptText returns the configured prompt template text.
func (c *BenchmarkConfig) PromptText() (string, error) {
	if c.Prompt.IsEmpty() {
		return task.DefaultPrompt(c.Benchmark), nil
	}
	return c.Prompt.GetValue()
}

func Read(data []byte, basePath string) (*BenchmarkSpec, error) {
	spec := &BenchmarkSpec{}

	err := yaml.Unmarshal(data, spec)
	if err != nil {
		return nil, err
	}

	spec.Config.ApplyDefaults()

	cfg := &spec.Config
	for _, p := range []*string{
		&cfg.Dataset,
		&cfg.AgentFile,
		&cfg.SharedRoot,
		&cfg.EnvFile,
		&cfg.ResultsDir,
		&cfg.Evaluator.Dataset,
		&cfg.Evaluator.Dir,
	} {
		if err := expandPath(p); err != nil {
			return nil, err
		}
		resolveFilePath(p, basePath)
	}
	cfg.Prompt.ResolvePath(basePath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// expandPath substitutes ${VAR} and ${VAR:-default} references in a path field.
func expandPath(filePath *string) error {
	expanded, err := util.ExpandEnv(*filePath)
	if err != nil {
		return fmt.Errorf("failed to expand '%s': %w", *filePath, err)
	}
	*filePath = expanded
	return nil
}

func resolveFilePath(filePath *string, basePath string) {
	if filePath == nil || *filePath == "" || filepath.IsAbs(*filePath) {
		return
	}
	*filePath = filepath.Join(basePath, *filePath)
}

func FromFile(path string) (*BenchmarkSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file '%s' for benchmark spec: %w", path, err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for '%s': %w", path, err)
	}

	return Read(data, filepath.Dir(absPath))
}
