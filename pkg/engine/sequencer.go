package engine

import (
	"context"
	"log/slog"

	"github.com/rhuss/cadence/pkg/api"
	"github.com/rhuss/cadence/pkg/debug"
	"github.com/rhuss/cadence/pkg/tools"
)

// ToolObserver is notified around each tool execution. Returning false
// from either method stops the sequence; the engine does this when the
// exchange was cancelled.
type ToolObserver interface {
	ToolStarted(inv tools.Invocation) bool
	ToolFinished(inv tools.Invocation, res tools.Result) bool
}

// Sequencer executes tool invocations strictly one after another, in the
// order given. Later calls may depend on side effects of earlier ones.
type Sequencer struct {
	registry tools.Registry
}

// NewSequencer creates a Sequencer over r.
func NewSequencer(r tools.Registry) *Sequencer {
	return &Sequencer{registry: r}
}

// Run executes invs in order and reports whether every invocation was
// executed and observed.
func (s *Sequencer) Run(ctx context.Context, invs []tools.Invocation, obs ToolObserver) bool {
	for _, inv := range invs {
		if ctx.Err() != nil {
			return false
		}
		if !obs.ToolStarted(inv) {
			return false
		}
		res := s.Execute(ctx, inv)
		if !obs.ToolFinished(inv, res) {
			return false
		}
	}
	return true
}

// Execute runs a single invocation. It never panics: unparsable
// arguments and tool faults become failed results.
func (s *Sequencer) Execute(ctx context.Context, inv tools.Invocation) (res tools.Result) {
	if inv.ArgumentsErr != nil {
		debug.Log("tools", "invalid tool arguments",
			"tool", inv.Name,
			"arguments", debug.Truncate(inv.RawArguments, 200),
			"error", inv.ArgumentsErr,
		)
		return tools.Failuref("invalid arguments for %s: %v", inv.Name, inv.ArgumentsErr)
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("tool registry panicked", "tool", inv.Name, "panic", r)
			res = tools.Failure(api.NewToolFault(r).Error())
		}
	}()

	args := inv.Arguments
	if args == nil {
		args = map[string]any{}
	}
	return s.registry.Execute(ctx, inv.Name, args)
}
