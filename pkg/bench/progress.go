package bench

import (
	"time"

	"github.com/mcpchecker/pairbench/pkg/agent"
	"github.com/mcpchecker/pairbench/pkg/evaluator"
)

type EventType string

const (
	EventRunStart       EventType = "run_start"
	EventTasksLoaded    EventType = "tasks_loaded"
	EventResume         EventType = "resume"
	EventTaskStart      EventType = "task_start"
	EventTaskSkipped    EventType = "task_skipped"
	EventConditionStart EventType = "condition_start"
	EventConditionDone  EventType = "condition_done"
	EventTaskProgress   EventType = "task_progress"
	EventWarning        EventType = "warning"
	EventEvalStart      EventType = "eval_start"
	EventEvalSkipped    EventType = "eval_skipped"
	EventEvalCondition  EventType = "eval_condition"
	EventReport         EventType = "report"
	EventRunComplete    EventType = "run_complete"
)

// ProgressEvent is emitted by the runner as the run advances. Only the fields
// relevant to Type are set.
type ProgressEvent struct {
	Type    EventType
	Message string

	// Position of the task in the run, 1-based
	Index  int
	Total  int
	TaskID string

	Condition agent.Condition
	Metadata  *agent.Metadata

	Progress *Progress

	Warnings []string

	// Set on EventEvalCondition
	EvalLabel  string
	EvalResult *evaluator.Result

	// Set on EventReport
	Report string
}

// Progress is the running average after each finished task.
type Progress struct {
	Done      int
	Average   time.Duration
	Remaining time.Duration
}

type ProgressCallback func(event ProgressEvent)

func NoopProgressCallback(ProgressEvent) {}

// estimate projects the remaining time from the tasks finished so far. index
// is the 1-based position of the last finished task.
func estimate(done, index, total int, elapsed time.Duration) *Progress {
	if done <= 0 {
		return &Progress{}
	}
	avg := elapsed / time.Duration(done)
	return &Progress{
		Done:      done,
		Average:   avg,
		Remaining: avg * time.Duration(total-index),
	}
}
