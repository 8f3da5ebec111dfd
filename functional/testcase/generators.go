package testcase

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sigs.k8s.io/yaml"

	"github.com/mcpchecker/pairbench/functional/servers/agent"
	pbagent "github.com/mcpchecker/pairbench/pkg/agent"
	"github.com/mcpchecker/pairbench/pkg/benchmark"
	"github.com/mcpchecker/pairbench/pkg/task"
)

// Generator handles generating configuration files for a test case
type Generator struct {
	t       *testing.T
	tempDir string
}

// NewGenerator creates a new generator with a temporary directory
func NewGenerator(t *testing.T) (*Generator, error) {
	tempDir, err := os.MkdirTemp("", "pairbench-functional-*")
	if err != nil {
		return nil, err
	}

	t.Cleanup(func() {
		os.RemoveAll(tempDir)
	})

	return &Generator{
		t:       t,
		tempDir: tempDir,
	}, nil
}

// TempDir returns the temporary directory path
func (g *Generator) TempDir() string {
	return g.tempDir
}

// GenerateDataset writes tasks as a HumanEval+ JSON lines file.
func (g *Generator) GenerateDataset(tasks []TaskDef) (string, error) {
	var sb strings.Builder
	for _, td := range tasks {
		line, err := json.Marshal(map[string]string{
			"task_id":     td.ID,
			"prompt":      td.Prompt,
			"entry_point": td.EntryPoint,
		})
		if err != nil {
			return "", err
		}
		sb.Write(line)
		sb.WriteByte('\n')
	}
	return g.WriteFile("HumanEvalPlus.jsonl", sb.String())
}

// GenerateAgentConfigJSON writes a mock agent configuration to a JSON file
func (g *Generator) GenerateAgentConfigJSON(agentConfig *agent.Config) (string, error) {
	return g.writeJSON("agent-config.json", agentConfig)
}

// GenerateAgentSpecYAML writes an agent spec running the mock binary for
// both conditions.
func (g *Generator) GenerateAgentSpecYAML(binary, configPath string) (string, error) {
	argv := func(condition pbagent.Condition) []string {
		return []string{
			binary, "run",
			"--config", configPath,
			"--condition", string(condition),
			"--task", "{{ .TaskID }}",
			"--prompt", "{{ .Prompt }}",
		}
	}

	spec := map[string]any{
		"kind": pbagent.KindAgent,
		"metadata": map[string]any{
			"name":    "mock-agent",
			"version": "0.0.0-mock",
		},
		"commands": map[string]any{
			"isolated": argv(pbagent.ConditionBaseline),
			"shared":   argv(pbagent.ConditionTreatment),
		},
	}

	return g.writeYAML("agent.yaml", spec)
}

// BenchmarkFiles are the inputs a benchmark spec points at.
type BenchmarkFiles struct {
	Dataset    string
	AgentFile  string
	SharedRoot string
	ResultsDir string
	Evaluator  string
	Timeout    int
}

// GenerateBenchmarkYAML writes a benchmark spec whose evaluator is the mock
// binary's evaluate command.
func (g *Generator) GenerateBenchmarkYAML(files BenchmarkFiles) (string, error) {
	spec := map[string]any{
		"kind": benchmark.KindBenchmark,
		"metadata": map[string]any{
			"name": "functional",
		},
		"config": map[string]any{
			"benchmark":      string(task.KindEvalPlus),
			"dataset":        files.Dataset,
			"agentFile":      files.AgentFile,
			"model":          "mock-model",
			"timeoutSeconds": files.Timeout,
			"sharedRoot":     files.SharedRoot,
			"resultsDir":     files.ResultsDir,
			"evaluator": map[string]any{
				"command":        []string{files.Evaluator, "evaluate", "--samples", "{{ .Samples }}"},
				"timeoutSeconds": 60,
				"concurrency":    2,
			},
		},
	}

	return g.writeYAML("benchmark.yaml", spec)
}

func (g *Generator) writeYAML(filename string, data any) (string, error) {
	out, err := yaml.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", filename, err)
	}
	return g.WriteFile(filename, string(out))
}

func (g *Generator) writeJSON(filename string, data any) (string, error) {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", filename, err)
	}
	return g.WriteFile(filename, string(out))
}

// WriteFile writes content under the temp directory and returns its path.
func (g *Generator) WriteFile(filename, content string) (string, error) {
	path := filepath.Join(g.tempDir, filename)
	return path, os.WriteFile(path, []byte(content), 0644)
}

// Mkdir creates a directory under the temp directory.
func (g *Generator) Mkdir(name string) (string, error) {
	path := filepath.Join(g.tempDir, name)
	return path, os.MkdirAll(path, 0755)
}
