// Package registry aggregates tool providers into the single tools.Registry
// the engine consumes. Tool names are resolved first come, first served:
// when two providers declare the same name, the first registered provider
// keeps it.
//
// Typed Go functions become tools through [Define], which reflects the
// parameter schema from the input struct.
package registry

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rhuss/cadence/pkg/api"
	"github.com/rhuss/cadence/pkg/debug"
	"github.com/rhuss/cadence/pkg/observability"
	"github.com/rhuss/cadence/pkg/tools"
)

// Registry routes tool calls to providers. It records execution metrics
// and converts provider panics into failed results.
type Registry struct {
	mu sync.RWMutex

	providers []tools.Provider
	owner     map[string]tools.Provider
}

var _ tools.Registry = (*Registry)(nil)

// New creates an empty Registry.
func New() *Registry {
	return &Registry{owner: make(map[string]tools.Provider)}
}

// Register adds a provider.
func (r *Registry) Register(p tools.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers = append(r.providers, p)

	decls := p.Declarations()
	for _, d := range decls {
		if existing, ok := r.owner[d.Name]; ok {
			slog.Warn("tool name conflict, keeping first provider",
				"tool", d.Name,
				"winner", existing.Name(),
				"loser", p.Name(),
			)
			continue
		}
		r.owner[d.Name] = p
	}

	slog.Info("registered tool provider", "provider", p.Name(), "tools", len(decls))
}

// Declarations returns the declarations of every routable tool, grouped by
// provider in registration order. Names shadowed by an earlier provider
// are left out.
func (r *Registry) Declarations() []tools.Declaration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []tools.Declaration
	for _, p := range r.providers {
		for _, d := range p.Declarations() {
			if r.owner[d.Name] == p {
				out = append(out, d)
			}
		}
	}
	return out
}

// Names returns the routable tool names.
func (r *Registry) Names() []string {
	decls := r.Declarations()
	names := make([]string, len(decls))
	for i, d := range decls {
		names[i] = d.Name
	}
	return names
}

// unknownToolLabel is the tool_name label of calls no provider owns.
const unknownToolLabel = "unknown"

// Execute runs the named tool. It never panics.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result tools.Result) {
	r.mu.RLock()
	p, ok := r.owner[name]
	r.mu.RUnlock()

	if !ok {
		// The name comes from the model; a fixed label keeps the series bounded.
		observability.ToolExecutionsTotal.WithLabelValues("none", unknownToolLabel, "unknown").Inc()
		return tools.UnknownTool(name)
	}

	providerName := p.Name()
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("tool panicked", "provider", providerName, "tool", name, "panic", rec)
			result = tools.Failure(api.NewToolFault(rec).Error())
			observability.ToolExecutionsTotal.WithLabelValues(providerName, name, "panic").Inc()
			observability.ToolDuration.WithLabelValues(providerName, name).Observe(time.Since(start).Seconds())
		}
	}()

	debug.Log("tools", "executing tool", "provider", providerName, "tool", name)

	output, err := p.Execute(ctx, name, args)

	status := "success"
	if err != nil {
		status = "error"
		result = tools.Failure(err.Error())
	} else {
		result = tools.Success(output)
	}

	observability.ToolExecutionsTotal.WithLabelValues(providerName, name, status).Inc()
	observability.ToolDuration.WithLabelValues(providerName, name).Observe(time.Since(start).Seconds())
	debug.Log("tools", "tool finished", "tool", name, "status", status,
		"output", debug.Truncate(result.Text(), 200))

	return result
}

// Close closes every provider that holds resources.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for _, p := range r.providers {
		c, ok := p.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			slog.Warn("failed to close tool provider", "provider", p.Name(), "error", err)
			lastErr = err
		}
	}
	return lastErr
}
