package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Declaration describes one tool to the model.
type Declaration struct {
	Name        string
	Description string

	// Parameters is a JSON Schema object describing the arguments.
	Parameters map[string]any
}

// Invocation is one tool call requested by the model, in executable form.
type Invocation struct {
	// ID is the call identifier assigned by the model. Tool turns echo it.
	ID string

	Name string

	// Arguments is the parsed argument object. Numbers decode as float64.
	Arguments map[string]any

	// RawArguments is the concatenated argument text as streamed.
	RawArguments string

	// ArgumentsErr is set when RawArguments is not a JSON object. Such an
	// invocation is reported as failed without calling the tool.
	ArgumentsErr error
}

// ParseArguments parses streamed argument text into an argument object.
// Empty or blank text is an empty object.
func ParseArguments(raw string) (map[string]any, error) {
	args := map[string]any{}
	if isBlank(raw) {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		// "null" decodes without error.
		return map[string]any{}, nil
	}
	return args, nil
}

func isBlank(s string) bool {
	for _, c := range s {
		if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
			return false
		}
	}
	return true
}

// Result is the outcome of one tool execution. Output is meaningful when
// Succeeded is true, ErrorMessage otherwise.
type Result struct {
	Succeeded    bool
	Output       string
	ErrorMessage string
}

// Success returns a successful Result.
func Success(output string) Result {
	return Result{Succeeded: true, Output: output}
}

// Failure returns a failed Result.
func Failure(message string) Result {
	return Result{ErrorMessage: message}
}

// Failuref returns a failed Result with a formatted message.
func Failuref(format string, args ...any) Result {
	return Failure(fmt.Sprintf(format, args...))
}

// Text returns the output on success and the error message on failure.
// It becomes the content of the tool turn.
func (r Result) Text() string {
	if r.Succeeded {
		return r.Output
	}
	return r.ErrorMessage
}

// Registry is the tool catalog consumed by the engine.
type Registry interface {
	// Declarations lists every tool the model may call.
	Declarations() []Declaration

	// Execute runs the named tool. Unknown names and tool faults are
	// reported as failed Results, never as panics.
	Execute(ctx context.Context, name string, args map[string]any) Result
}

// Provider contributes a named group of tools to a registry.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	Declarations() []Declaration

	// Execute runs one of the provider's tools. A returned error becomes
	// a failed Result carrying the error text.
	Execute(ctx context.Context, name string, args map[string]any) (string, error)
}

// UnknownTool returns the Result for a tool name no provider handles.
func UnknownTool(name string) Result {
	return Failuref("unknown tool %s", name)
}
