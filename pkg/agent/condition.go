package agent

import "fmt"

// Condition is one arm of the experiment.
type Condition string

const (
	// ConditionBaseline runs in an isolated workdir with ambient configuration
	// disabled.
	ConditionBaseline Condition = "baseline"
	// ConditionTreatment runs in the shared root with default configuration.
	ConditionTreatment Condition = "treatment"

	// LegacyTreatmentName is the treatment label used by older results
	// directories.
	LegacyTreatmentName = "plankton"
)

// Conditions lists the arms in execution order.
var Conditions = []Condition{ConditionBaseline, ConditionTreatment}

func ParseCondition(s string) (Condition, error) {
	switch s {
	case string(ConditionBaseline):
		return ConditionBaseline, nil
	case string(ConditionTreatment), LegacyTreatmentName:
		return ConditionTreatment, nil
	default:
		return "", fmt.Errorf("unknown condition '%s'", s)
	}
}

// Isolated reports whether the condition runs outside the shared root.
func (c Condition) Isolated() bool {
	return c == ConditionBaseline
}
