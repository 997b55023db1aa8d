package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/rhuss/cadence/pkg/tools"
)

// Handler executes a tool with its parsed arguments.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Tool is a declaration paired with its handler.
type Tool struct {
	tools.Declaration
	Handler Handler
}

// Define builds a Tool from a typed function. The parameter schema is
// reflected from T, and arguments are decoded into T before fn runs.
//
// Struct tags follow invopop/jsonschema:
//
//	type SetTempoInput struct {
//		BPM int `json:"bpm" jsonschema:"required,minimum=10,maximum=999"`
//	}
func Define[T any](name, description string, fn func(ctx context.Context, in T) (string, error)) Tool {
	return Tool{
		Declaration: tools.Declaration{
			Name:        name,
			Description: description,
			Parameters:  SchemaFor[T](),
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			in, err := Decode[T](args)
			if err != nil {
				return "", fmt.Errorf("invalid arguments for %s: %w", name, err)
			}
			return fn(ctx, in)
		},
	}
}

// Decode converts a parsed argument object into T.
func Decode[T any](args map[string]any) (T, error) {
	var in T
	if args == nil {
		args = map[string]any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return in, err
	}
	err = json.Unmarshal(data, &in)
	return in, err
}

// SchemaFor reflects the JSON Schema of T as a plain object suitable for a
// tool declaration.
func SchemaFor[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)

	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("marshal schema for %T: %v", v, err))
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("unmarshal schema for %T: %v", v, err))
	}

	delete(out, "$schema")
	delete(out, "$id")
	if _, ok := out["properties"]; !ok {
		out["properties"] = map[string]any{}
	}
	return out
}

// Functions is a provider backed by in-process handlers.
type Functions struct {
	name  string
	tools []Tool
	index map[string]int
}

var _ tools.Provider = (*Functions)(nil)

// NewFunctions creates a provider holding the given tools. A later tool
// with a duplicate name replaces the earlier one.
func NewFunctions(name string, ts ...Tool) *Functions {
	f := &Functions{name: name, index: make(map[string]int)}
	for _, t := range ts {
		f.Add(t)
	}
	return f
}

// Add registers one more tool.
func (f *Functions) Add(t Tool) {
	if i, ok := f.index[t.Name]; ok {
		f.tools[i] = t
		return
	}
	f.index[t.Name] = len(f.tools)
	f.tools = append(f.tools, t)
}

// Name returns the provider name.
func (f *Functions) Name() string { return f.name }

// Declarations lists the tools in the order they were added.
func (f *Functions) Declarations() []tools.Declaration {
	out := make([]tools.Declaration, len(f.tools))
	for i, t := range f.tools {
		out[i] = t.Declaration
	}
	return out
}

// Execute runs the named handler.
func (f *Functions) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	i, ok := f.index[name]
	if !ok {
		return "", fmt.Errorf("unknown tool %s", name)
	}
	return f.tools[i].Handler(ctx, args)
}
