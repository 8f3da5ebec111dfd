package task

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/google/jsonschema-go/jsonschema"
	"k8s.io/utils/ptr"
)

// Dataset is the ordered set of tasks for one run.
type Dataset struct {
	Kind  Kind
	Tasks []Task
}

var functionRecordSchema = jsonschema.Schema{
	Type:     "object",
	Required: []string{"task_id", "prompt", "entry_point"},
	Properties: map[string]*jsonschema.Schema{
		"task_id":     {Type: "string", MinLength: ptr.To(1)},
		"prompt":      {Type: "string", MinLength: ptr.To(1)},
		"entry_point": {Type: "string"},
	},
}

var classRecordSchema = jsonschema.Schema{
	Type:     "object",
	Required: []string{"task_id", "skeleton", "test"},
	Properties: map[string]*jsonschema.Schema{
		"task_id":          {Type: "string", MinLength: ptr.To(1)},
		"skeleton":         {Type: "string", MinLength: ptr.To(1)},
		"test":             {Type: "string"},
		"import_statement": {Types: []string{"string", "array", "null"}},
		"class_name":       {Type: "string"},
	},
}

// Load reads the dataset file at path as the given kind.
func Load(kind Kind, path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset '%s': %w", path, err)
	}

	ds, err := Read(kind, data)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset '%s': %w", path, err)
	}
	return ds, nil
}

// Read decodes a dataset. The data may be JSON lines, a JSON array of
// records, or a JSON object mapping task ids to records.
func Read(kind Kind, data []byte) (*Dataset, error) {
	schema := &functionRecordSchema
	if kind == KindClassEval {
		schema = &classRecordSchema
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s record schema: %w", kind, err)
	}

	raws, err := splitRecords(data)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{Kind: kind, Tasks: make([]Task, 0, len(raws))}
	seen := make(map[string]bool, len(raws))
	var errs error
	for i, raw := range raws {
		var instance any
		if err := json.Unmarshal(raw, &instance); err != nil {
			errs = errors.Join(errs, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		if err := resolved.Validate(instance); err != nil {
			errs = errors.Join(errs, fmt.Errorf("record %d: %w", i, err))
			continue
		}

		t, err := decodeTask(kind, raw)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		if !kind.IDPattern().MatchString(t.ID()) {
			errs = errors.Join(errs, fmt.Errorf("record %d: task id '%s' does not match %s", i, t.ID(), kind.IDPattern()))
			continue
		}
		if seen[t.ID()] {
			errs = errors.Join(errs, fmt.Errorf("record %d: duplicate task id '%s'", i, t.ID()))
			continue
		}
		seen[t.ID()] = true
		ds.Tasks = append(ds.Tasks, t)
	}
	if errs != nil {
		return nil, errs
	}

	sortTasks(ds.Tasks)
	return ds, nil
}

func decodeTask(kind Kind, raw json.RawMessage) (Task, error) {
	switch kind {
	case KindClassEval:
		t := &ClassTask{}
		if err := json.Unmarshal(raw, t); err != nil {
			return nil, err
		}
		return t, nil
	case KindEvalPlus:
		t := &FunctionTask{}
		if err := json.Unmarshal(raw, t); err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown benchmark kind '%s'", kind)
	}
}

func splitRecords(data []byte) ([]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var records []json.RawMessage
	for {
		var value json.RawMessage
		err := dec.Decode(&value)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode dataset: %w", err)
		}

		trimmed := bytes.TrimSpace(value)
		switch {
		case len(trimmed) == 0:
			continue
		case trimmed[0] == '[':
			var list []json.RawMessage
			if err := json.Unmarshal(trimmed, &list); err != nil {
				return nil, fmt.Errorf("failed to decode dataset array: %w", err)
			}
			records = append(records, list...)
		case trimmed[0] == '{':
			var obj map[string]json.RawMessage
			if err := json.Unmarshal(trimmed, &obj); err != nil {
				return nil, fmt.Errorf("failed to decode dataset object: %w", err)
			}
			if _, ok := obj["task_id"]; ok {
				records = append(records, trimmed)
				continue
			}
			keys := make([]string, 0, len(obj))
			for k := range obj {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				records = append(records, obj[k])
			}
		default:
			return nil, fmt.Errorf("unexpected JSON value in dataset: %s", truncateRaw(trimmed))
		}
	}
	return records, nil
}

func truncateRaw(b []byte) string {
	if len(b) > 40 {
		return string(b[:40]) + "..."
	}
	return string(b)
}

// Limit keeps the first n tasks. n <= 0 keeps everything.
func (d *Dataset) Limit(n int) *Dataset {
	if n <= 0 || n >= len(d.Tasks) {
		return d
	}
	return &Dataset{Kind: d.Kind, Tasks: d.Tasks[:n]}
}

func (d *Dataset) IDs() []string {
	ids := make([]string, 0, len(d.Tasks))
	for _, t := range d.Tasks {
		ids = append(ids, t.ID())
	}
	return ids
}

func (d *Dataset) Len() int {
	return len(d.Tasks)
}

// sortTasks orders by id prefix, then by the trailing number, so that
// HumanEval/2 comes before HumanEval/10.
func sortTasks(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return lessID(tasks[i].ID(), tasks[j].ID())
	})
}

// SortIDs sorts task ids in the same order datasets use.
func SortIDs(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		return lessID(ids[i], ids[j])
	})
}

func lessID(a, b string) bool {
	pa, na := splitID(a)
	pb, nb := splitID(b)
	if pa != pb {
		return pa < pb
	}
	if na != nb {
		return na < nb
	}
	return a < b
}

func splitID(id string) (string, int) {
	end := len(id)
	start := end
	for start > 0 && id[start-1] >= '0' && id[start-1] <= '9' {
		start--
	}
	if start == end {
		return id, -1
	}
	n, err := strconv.Atoi(id[start:end])
	if err != nil {
		return id, -1
	}
	return id[:start], n
}
