package testcase

import (
	"github.com/mcpchecker/pairbench/functional/servers/agent"
)

// AgentBuilder provides a fluent API for configuring mock agent behavior.
type AgentBuilder struct {
	config *agent.Config
}

// NewAgentBuilder creates a new agent builder
func NewAgentBuilder() *AgentBuilder {
	return &AgentBuilder{
		config: agent.NewConfig(),
	}
}

// On starts a behavior for one condition and task. Empty values match any.
func (b *AgentBuilder) On(condition, taskID string) *BehaviorBuilder {
	return &BehaviorBuilder{
		agentBuilder: b,
		behavior:     agent.NewBehavior().ForCondition(condition).ForTask(taskID),
	}
}

// OnCondition starts a behavior matching every task of a condition.
func (b *AgentBuilder) OnCondition(condition string) *BehaviorBuilder {
	return b.On(condition, "")
}

// OnTask starts a behavior matching a task in both conditions.
func (b *AgentBuilder) OnTask(taskID string) *BehaviorBuilder {
	return b.On("", taskID)
}

// SolveByDefault makes unmatched invocations solve their task.
func (b *AgentBuilder) SolveByDefault() *AgentBuilder {
	b.config.WithDefault(agent.ActionSolve)
	return b
}

// Build returns the agent configuration
func (b *AgentBuilder) Build() *agent.Config {
	return b.config
}

// BehaviorBuilder builds a single behavior. A Then* call finalizes it and
// returns to the AgentBuilder.
type BehaviorBuilder struct {
	agentBuilder *AgentBuilder
	behavior     *agent.Behavior
}

// WithName sets an optional name for this behavior (useful for debugging)
func (bb *BehaviorBuilder) WithName(name string) *BehaviorBuilder {
	bb.behavior.WithName(name)
	return bb
}

func (bb *BehaviorBuilder) ThenSolve() *AgentBuilder {
	return bb.finish(agent.ActionSolve)
}

func (bb *BehaviorBuilder) ThenLeave() *AgentBuilder {
	return bb.finish(agent.ActionLeave)
}

// ThenFail exits with code without touching the stub.
func (bb *BehaviorBuilder) ThenFail(code int, message string) *AgentBuilder {
	bb.behavior.ExitCode = code
	bb.behavior.Response = message
	return bb.finish(agent.ActionFail)
}

// ThenHang blocks until the runner's timeout kills the agent.
func (bb *BehaviorBuilder) ThenHang() *AgentBuilder {
	return bb.finish(agent.ActionHang)
}

func (bb *BehaviorBuilder) finish(action agent.Action) *AgentBuilder {
	bb.behavior.Then(action)
	bb.agentBuilder.config.AddBehavior(*bb.behavior)
	return bb.agentBuilder
}

// Re-export types from agent package for convenience
type (
	AgentConfig = agent.Config
	Behavior    = agent.Behavior
	Invocation  = agent.Invocation
)

const EnvAgentConfigPath = agent.EnvConfigPath

var (
	NewAgentConfig  = agent.NewConfig
	LoadAgentConfig = agent.LoadConfig
	SaveAgentConfig = agent.SaveConfig
)
