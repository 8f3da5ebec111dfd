package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mcpchecker/pairbench/pkg/agent"
	"github.com/mcpchecker/pairbench/pkg/results"
	"github.com/spf13/cobra"
)

const (
	defaultMaxOutputLines = 6
	defaultMaxLineLength  = 100
)

type viewOptions struct {
	showStderr     bool
	maxOutputLines int
	maxLineLength  int
}

// NewViewCmd creates the view command for rendering per-task agent logs.
func NewViewCmd() *cobra.Command {
	var (
		resultsDir string
		taskFilter string
		opts       = viewOptions{
			maxOutputLines: defaultMaxOutputLines,
			maxLineLength:  defaultMaxLineLength,
		}
	)

	cmd := &cobra.Command{
		Use:   "view --results-dir <dir>",
		Short: "Pretty-print the per-task agent logs of a run",
		Long: `Render the per-task logs written by "pairbench run" in a human-friendly format.

Each task shows both conditions with their exit status, elapsed time, the
evaluator verdict when the run was evaluated, and a summary of the agent output.

Examples:
  pairbench view --results-dir results
  pairbench view --results-dir results --task HumanEval/12 --stderr`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logs, err := results.LoadTaskLogs(resultsDir)
			if err != nil {
				return err
			}

			filtered := filterLogs(logs, taskFilter)
			if len(filtered) == 0 {
				if taskFilter == "" {
					return errors.New("no task logs found in results")
				}
				return fmt.Errorf("no tasks matched filter %q", taskFilter)
			}

			raw, err := results.LoadEvalRaw(resultsDir)
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			pass := results.PassSets(resultsDir, raw)

			out := cmd.OutOrStdout()
			for idx, log := range filtered {
				if idx > 0 {
					fmt.Fprintln(out)
				}
				printTaskLog(out, log, pass, opts)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&resultsDir, "results-dir", "", "Results directory of a run")
	cmd.Flags().StringVar(&taskFilter, "task", "", "Only show tasks whose id contains this value")
	cmd.Flags().BoolVar(&opts.showStderr, "stderr", false, "Include captured agent stderr")
	cmd.Flags().IntVar(&opts.maxOutputLines, "max-output-lines", opts.maxOutputLines, "Maximum lines of agent output to display (0 = unlimited)")
	cmd.Flags().IntVar(&opts.maxLineLength, "max-line-length", opts.maxLineLength, "Maximum characters per line when formatting agent output")

	_ = cmd.MarkFlagRequired("results-dir")

	return cmd
}

func filterLogs(logs []*results.TaskLog, filter string) []*results.TaskLog {
	if filter == "" {
		return logs
	}

	filter = strings.ToLower(filter)
	filtered := make([]*results.TaskLog, 0, len(logs))
	for _, l := range logs {
		if strings.Contains(strings.ToLower(l.TaskID), filter) {
			filtered = append(filtered, l)
		}
	}
	return filtered
}

func printTaskLog(out io.Writer, log *results.TaskLog, pass map[string]map[string]bool, opts viewOptions) {
	bold := color.New(color.Bold)
	_, _ = bold.Fprintf(out, "Task: %s\n", log.TaskID)

	treatmentPass := pass[string(agent.ConditionTreatment)]
	if treatmentPass == nil {
		treatmentPass = pass[agent.LegacyTreatmentName]
	}

	printCondition(out, log.TaskID, agent.ConditionBaseline, log.Baseline, pass[string(agent.ConditionBaseline)], opts)
	printCondition(out, log.TaskID, agent.ConditionTreatment, log.Treatment, treatmentPass, opts)
}

func printCondition(out io.Writer, taskID string, cond agent.Condition, md agent.Metadata, pass map[string]bool, opts viewOptions) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	parts := make([]string, 0, 3)

	statusColor := green
	switch {
	case pass == nil:
		statusColor = yellow
		parts = append(parts, "NOT EVALUATED")
	case pass[taskID]:
		parts = append(parts, "PASSED")
	default:
		statusColor = red
		parts = append(parts, "FAILED")
	}

	if reason := describeInvocation(md); reason != "" {
		parts = append(parts, reason)
	} else if md.Returncode != nil {
		parts = append(parts, "exit 0")
	}
	if md.ElapsedS != nil {
		parts = append(parts, fmt.Sprintf("%.1fs", *md.ElapsedS))
	}

	_, _ = statusColor.Fprintf(out, "  %s: %s\n", cond, strings.Join(parts, " | "))

	switch {
	case len(md.AgentOutput) > 0:
		for _, line := range summarizeAgentOutput(md.AgentOutput, opts.maxOutputLines, opts.maxLineLength) {
			fmt.Fprintf(out, "    %s\n", strings.ReplaceAll(line, "\n", "\n    "))
		}
	case md.RawStdout != nil && strings.TrimSpace(*md.RawStdout) != "":
		printMultilineField(out, "Output", limitMultiline(*md.RawStdout, opts.maxOutputLines, opts.maxLineLength))
	}

	if opts.showStderr && strings.TrimSpace(md.Stderr) != "" {
		printMultilineField(out, "Stderr", limitMultiline(md.Stderr, opts.maxOutputLines, opts.maxLineLength))
	}
}

// agentResult is the final message of claude's JSON output
type agentResult struct {
	Type         string   `json:"type"`
	Subtype      string   `json:"subtype,omitempty"`
	IsError      bool     `json:"is_error,omitempty"`
	Result       string   `json:"result,omitempty"`
	NumTurns     int      `json:"num_turns,omitempty"`
	DurationMS   int64    `json:"duration_ms,omitempty"`
	TotalCostUSD *float64 `json:"total_cost_usd,omitempty"`
}

// summarizeAgentOutput condenses structured agent output. A single result
// object and an array of events ending in one are understood; anything else
// is shown as truncated JSON.
func summarizeAgentOutput(raw json.RawMessage, maxLines, maxLineLength int) []string {
	res, ok := findAgentResult(raw)
	if !ok {
		return []string{fmt.Sprintf("output: %s", truncateString(compactJSON(raw), maxLineLength))}
	}

	stats := make([]string, 0, 4)
	if res.Subtype != "" {
		stats = append(stats, res.Subtype)
	}
	if res.NumTurns > 0 {
		stats = append(stats, fmt.Sprintf("turns=%d", res.NumTurns))
	}
	if res.DurationMS > 0 {
		stats = append(stats, fmt.Sprintf("duration=%.1fs", float64(res.DurationMS)/1000))
	}
	if res.TotalCostUSD != nil {
		stats = append(stats, fmt.Sprintf("cost=$%.4f", *res.TotalCostUSD))
	}

	summaries := make([]string, 0, 2)
	if len(stats) > 0 {
		summaries = append(summaries, strings.Join(stats, " "))
	}

	if text := strings.TrimSpace(res.Result); text != "" {
		label := "result"
		if res.IsError {
			label = "error"
		}
		block := limitMultiline(text, maxLines, maxLineLength)
		summaries = append(summaries, fmt.Sprintf("%s:\n%s", label, indentBlock(block, "  ")))
	}
	return summaries
}

func findAgentResult(raw json.RawMessage) (agentResult, bool) {
	var single agentResult
	if err := json.Unmarshal(raw, &single); err == nil {
		return single, single.Type == "result"
	}

	var events []json.RawMessage
	if err := json.Unmarshal(raw, &events); err != nil {
		return agentResult{}, false
	}
	for i := len(events) - 1; i >= 0; i-- {
		var evt agentResult
		if err := json.Unmarshal(events[i], &evt); err == nil && evt.Type == "result" {
			return evt, true
		}
	}
	return agentResult{}, false
}

func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func limitMultiline(raw string, maxLines, maxLineLength int) string {
	raw = strings.TrimRight(raw, "\n")
	if raw == "" {
		return ""
	}

	lines := strings.Split(raw, "\n")
	limited := make([]string, 0, len(lines))
	for idx, line := range lines {
		if maxLines > 0 && idx >= maxLines {
			limited = append(limited, fmt.Sprintf("… (+%d lines)", len(lines)-idx))
			break
		}
		if maxLineLength > 0 {
			limited = append(limited, strings.Split(wrapText(line, maxLineLength), "\n")...)
		} else {
			limited = append(limited, line)
		}
	}
	return strings.Join(limited, "\n")
}

func truncateString(s string, max int) string {
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	if max <= 1 {
		return string(runes[:max])
	}
	return fmt.Sprintf("%s…", strings.TrimSpace(string(runes[:max-1])))
}

func indentBlock(block, indent string) string {
	lines := strings.Split(block, "\n")
	for i, line := range lines {
		lines[i] = indent + line
	}
	return strings.Join(lines, "\n")
}

func wrapText(s string, width int) string {
	if width <= 0 || len(s) <= width {
		return s
	}

	words := strings.Fields(s)
	if len(words) == 0 {
		return ""
	}

	lines := make([]string, 0)
	current := words[0]

	for _, word := range words[1:] {
		if len(current)+1+len(word) > width {
			lines = append(lines, current)
			current = word
		} else {
			current += " " + word
		}
	}
	lines = append(lines, current)

	return strings.Join(lines, "\n")
}

func printMultilineField(out io.Writer, label, value string) {
	value = strings.TrimRight(value, "\n")
	if !strings.Contains(value, "\n") {
		fmt.Fprintf(out, "    %s: %s\n", label, value)
		return
	}

	fmt.Fprintf(out, "    %s:\n", label)
	for _, line := range strings.Split(value, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fmt.Fprintf(out, "      %s\n", line)
	}
}
