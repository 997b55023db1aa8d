package tools

import (
	"context"

	"github.com/samber/lo"
)

// Filter restricts a Registry to an allow list of tool names. Tools
// outside the list are hidden from Declarations and rejected by Execute.
// An empty list allows everything.
func Filter(r Registry, allowed []string) Registry {
	if len(allowed) == 0 {
		return r
	}
	return &filtered{inner: r, allowed: lo.SliceToMap(allowed, func(n string) (string, struct{}) {
		return n, struct{}{}
	})}
}

type filtered struct {
	inner   Registry
	allowed map[string]struct{}
}

func (f *filtered) Declarations() []Declaration {
	return lo.Filter(f.inner.Declarations(), func(d Declaration, _ int) bool {
		_, ok := f.allowed[d.Name]
		return ok
	})
}

func (f *filtered) Execute(ctx context.Context, name string, args map[string]any) Result {
	if _, ok := f.allowed[name]; !ok {
		return Failuref("tool %s is not in the allowed tools list", name)
	}
	return f.inner.Execute(ctx, name, args)
}
