// Package ledger implements the per-condition append-only JSON lines file of
// generated artifacts. A task pair is complete only when both condition
// ledgers hold a record for it, which is what resume relies on.
package ledger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mcpchecker/pairbench/pkg/task"
)

// Record is one line of a ledger. Function tasks fill Completion, class
// tasks fill Predict with a single element.
type Record struct {
	TaskID     string   `json:"task_id"`
	Completion *string  `json:"completion,omitempty"`
	Predict    []string `json:"predict,omitempty"`
}

// NewRecord builds the record shape the evaluator for kind expects.
func NewRecord(kind task.Kind, taskID, artifact string) Record {
	if kind == task.KindClassEval {
		return Record{TaskID: taskID, Predict: []string{artifact}}
	}
	return Record{TaskID: taskID, Completion: &artifact}
}

// Payload returns the recorded artifact regardless of shape.
func (r Record) Payload() string {
	if r.Completion != nil {
		return *r.Completion
	}
	if len(r.Predict) > 0 {
		return r.Predict[0]
	}
	return ""
}

// Append writes rec as exactly one line at the end of path. Existing lines
// are never touched.
func Append(path string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode ledger record for %s: %w", rec.TaskID, err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open ledger '%s': %w", path, err)
	}

	_, werr := f.Write(data)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		return fmt.Errorf("failed to append to ledger '%s': %w", path, err)
	}
	return nil
}

// Load returns the records of path in write order. Blank lines are skipped.
func Load(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger '%s': %w", path, err)
	}

	var records []Record
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), len(data)+1)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(text, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode ledger '%s' line %d: %w", path, line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan ledger '%s': %w", path, err)
	}
	return records, nil
}

// IDs returns the set of task ids in path. A missing file is an empty set.
func IDs(path string) (map[string]bool, error) {
	records, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, err
	}

	ids := make(map[string]bool, len(records))
	for _, r := range records {
		ids[r.TaskID] = true
	}
	return ids, nil
}

// CompletedIDs returns the ids present in both ledgers.
func CompletedIDs(pathA, pathB string) (map[string]bool, error) {
	a, err := IDs(pathA)
	if err != nil {
		return nil, err
	}
	b, err := IDs(pathB)
	if err != nil {
		return nil, err
	}

	done := make(map[string]bool)
	for id := range a {
		if b[id] {
			done[id] = true
		}
	}
	return done, nil
}

// Validate reports every discrepancy between records and a well formed
// ledger of expected entries for kind. It never fails; an empty result
// means the ledger is well formed.
func Validate(records []Record, expected int, kind task.Kind) []string {
	var problems []string
	if len(records) != expected {
		problems = append(problems, fmt.Sprintf("expected count %d, got %d", expected, len(records)))
	}

	pattern := kind.IDPattern()
	seen := make(map[string]bool, len(records))
	for i, r := range records {
		if !pattern.MatchString(r.TaskID) {
			problems = append(problems, fmt.Sprintf("invalid task_id at index %d: %q", i, r.TaskID))
		}
		if seen[r.TaskID] {
			problems = append(problems, fmt.Sprintf("duplicate task_id: %s (a resumed run re-executes a half-written pair; the earlier record stays)", r.TaskID))
		}
		seen[r.TaskID] = true

		if kind == task.KindClassEval {
			if len(r.Predict) == 0 || r.Predict[0] == "" {
				problems = append(problems, fmt.Sprintf("empty or missing predict at index %d (%s)", i, r.TaskID))
			}
		} else if r.Completion == nil || *r.Completion == "" {
			problems = append(problems, fmt.Sprintf("empty completion at index %d (%s)", i, r.TaskID))
		}
	}
	return problems
}
