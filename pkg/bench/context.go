package bench

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RunContext is the state shared by every step of one run.
type RunContext struct {
	RunID     string
	StartedAt time.Time

	invocations int
}

func newRunContext(now time.Time) *RunContext {
	return &RunContext{
		RunID:     uuid.NewString(),
		StartedAt: now,
	}
}

// NextInvocation returns the sequence number of the next agent call, starting
// at 1. Calls are sequential, so no locking is done.
func (rc *RunContext) NextInvocation() int {
	rc.invocations++
	return rc.invocations
}

// Invocations is the number of agent calls made so far.
func (rc *RunContext) Invocations() int {
	return rc.invocations
}

type runContextKey struct{}

func WithRunContext(ctx context.Context, rc *RunContext) context.Context {
	return context.WithValue(ctx, runContextKey{}, rc)
}

// RunContextFrom returns the RunContext stored in ctx, if any.
func RunContextFrom(ctx context.Context) (*RunContext, bool) {
	rc, ok := ctx.Value(runContextKey{}).(*RunContext)
	return rc, ok && rc != nil
}
