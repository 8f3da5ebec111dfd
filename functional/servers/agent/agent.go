package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

// ExitError makes the binary exit with Code.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Invocation is what the agent records about each call.
type Invocation struct {
	Condition string `json:"condition"`
	TaskID    string `json:"taskId"`
	Workdir   string `json:"workdir"`
	Behavior  string `json:"behavior,omitempty"`
	Action    Action `json:"action"`
	// StubFound is false when the artifact file was missing on entry.
	StubFound bool `json:"stubFound"`
}

// result mirrors the final event of a headless claude run.
type result struct {
	Type     string `json:"type"`
	Subtype  string `json:"subtype"`
	IsError  bool   `json:"is_error"`
	NumTurns int    `json:"num_turns"`
	Result   string `json:"result"`
}

// NewRunCmd returns the command the benchmark agent spec invokes.
func NewRunCmd() *cobra.Command {
	var (
		configPath string
		condition  string
		taskID     string
		prompt     string
	)

	cmd := &cobra.Command{
		Use:          "run",
		Short:        "Act as a coding agent on the artifact in the working directory",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = os.Getenv(EnvConfigPath)
			}
			if configPath == "" {
				return fmt.Errorf("no config: pass --config or set %s", EnvConfigPath)
			}
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}

			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			return Run(cmd.Context(), cfg, Request{
				Condition: condition,
				TaskID:    taskID,
				Prompt:    prompt,
				Workdir:   wd,
			}, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to the behavior config (defaults to $"+EnvConfigPath+")")
	cmd.Flags().StringVar(&condition, "condition", "", "Condition being run")
	cmd.Flags().StringVar(&taskID, "task", "", "Task id being run")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Prompt text")

	return cmd
}

// Request is one agent invocation.
type Request struct {
	Condition string
	TaskID    string
	Prompt    string
	Workdir   string
}

// Run applies the matching behavior to req.Workdir and writes a result event
// to out.
func Run(ctx context.Context, cfg *Config, req Request, out io.Writer) error {
	behavior := cfg.Match(req.Condition, req.TaskID)
	artifact := filepath.Join(req.Workdir, cfg.ArtifactFile)

	stub, err := os.ReadFile(artifact)
	found := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read artifact: %w", err)
	}

	if err := record(cfg.RecordFile, Invocation{
		Condition: req.Condition,
		TaskID:    req.TaskID,
		Workdir:   req.Workdir,
		Behavior:  behavior.Name,
		Action:    behavior.Action,
		StubFound: found,
	}); err != nil {
		return err
	}

	switch behavior.Action {
	case ActionSolve:
		solved := string(stub) + "    return None\n" + SolvedMarker + "\n"
		if err := os.WriteFile(artifact, []byte(solved), 0644); err != nil {
			return fmt.Errorf("failed to write artifact: %w", err)
		}
	case ActionFail:
		if behavior.Response != "" {
			fmt.Fprintln(os.Stderr, behavior.Response)
		}
		code := behavior.ExitCode
		if code == 0 {
			code = 1
		}
		return &ExitError{Code: code}
	case ActionHang:
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Minute):
		}
	case ActionLeave, "":
	default:
		return fmt.Errorf("unknown action %q", behavior.Action)
	}

	response := behavior.Response
	if response == "" {
		response = fmt.Sprintf("%s %s", behavior.Action, req.TaskID)
	}
	return json.NewEncoder(out).Encode(result{
		Type:     "result",
		Subtype:  "success",
		NumTurns: 1,
		Result:   response,
	})
}

func record(path string, inv Invocation) error {
	if path == "" {
		return nil
	}
	data, err := json.Marshal(inv)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open record file: %w", err)
	}
	_, werr := f.Write(append(data, '\n'))
	return errors.Join(werr, f.Close())
}

// LoadInvocations reads the record file written by Run.
func LoadInvocations(path string) ([]Invocation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var out []Invocation
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var inv Invocation
		if err := dec.Decode(&inv); err != nil {
			return nil, fmt.Errorf("failed to parse record file: %w", err)
		}
		out = append(out, inv)
	}
	return out, nil
}
