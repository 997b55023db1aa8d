package stream

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rhuss/cadence/pkg/api"
	"github.com/rhuss/cadence/pkg/debug"
	"github.com/rhuss/cadence/pkg/tools"
)

// DefaultToolCallType is the type reported for tool calls whose fragments
// never named one.
const DefaultToolCallType = "function"

// maxToolCalls bounds the tool-call index accepted from a stream. The
// placeholder slots up to an index are allocated eagerly.
const maxToolCalls = 128

// ToolCallBuffer collects the fragments of one tool call.
type ToolCallBuffer struct {
	ID   string
	Type string
	Name string
	Args strings.Builder
}

func (b *ToolCallBuffer) empty() bool {
	return b.ID == "" && b.Name == "" && b.Args.Len() == 0
}

// Delta is what one payload contributed to the accumulator.
type Delta struct {
	// Content and Reasoning hold only the newly appended fragments.
	Content   string
	Reasoning string

	// Err is set when the payload carried an error field. The accumulator
	// ignores all further payloads.
	Err *api.Error

	// Skipped is true when the payload was not a JSON object.
	Skipped bool
}

// Accumulator folds the payloads of one streaming round. The zero value
// is ready to use. It is not safe for concurrent use; the engine
// serializes access.
type Accumulator struct {
	content   strings.Builder
	reasoning strings.Builder
	calls     []*ToolCallBuffer

	failed  bool
	skipped int
}

// Fold merges one data payload.
func (a *Accumulator) Fold(payload []byte) Delta {
	if a.failed {
		return Delta{}
	}

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return a.skip(payload, "not a JSON object")
	}

	var c chunk
	if err := json.Unmarshal(trimmed, &c); err != nil {
		return a.skip(payload, err.Error())
	}

	if msg, ok := errorMessage(c.Error); ok {
		a.failed = true
		debug.Log("streaming", "error event in stream", "message", msg)
		return Delta{Err: api.NewAPIError(0, msg)}
	}

	if len(c.Choices) == 0 {
		return Delta{}
	}

	var out Delta
	d := c.Choices[0].Delta

	if d.Content != nil && *d.Content != "" {
		a.content.WriteString(*d.Content)
		out.Content = *d.Content
	}

	if r := d.reasoning(); r != "" {
		a.reasoning.WriteString(r)
		out.Reasoning = r
	}

	for _, tc := range d.ToolCalls {
		if tc.Index < 0 || tc.Index >= maxToolCalls {
			debug.Log("streaming", "ignoring tool call fragment with out of range index", "index", tc.Index)
			continue
		}
		a.merge(tc)
	}

	return out
}

func (a *Accumulator) merge(tc toolCallDelta) {
	for len(a.calls) <= tc.Index {
		a.calls = append(a.calls, &ToolCallBuffer{})
	}
	buf := a.calls[tc.Index]

	if tc.ID != "" {
		buf.ID = tc.ID
	}
	if tc.Type != "" {
		buf.Type = tc.Type
	}
	if tc.Function.Name != "" {
		buf.Name = tc.Function.Name
	}
	buf.Args.WriteString(tc.Function.Arguments)
}

func (a *Accumulator) skip(payload []byte, reason string) Delta {
	a.skipped++
	debug.Log("streaming", "skipping malformed stream event",
		"reason", reason,
		"data", debug.Truncate(string(payload), 200),
	)
	return Delta{Skipped: true}
}

// Content returns the text accumulated so far.
func (a *Accumulator) Content() string { return a.content.String() }

// Reasoning returns the reasoning text accumulated so far.
func (a *Accumulator) Reasoning() string { return a.reasoning.String() }

// Failed reports whether an error event stopped the fold.
func (a *Accumulator) Failed() bool { return a.failed }

// Skipped returns the number of malformed payloads ignored.
func (a *Accumulator) Skipped() int { return a.skipped }

// HasToolCalls reports whether any tool call was assembled.
func (a *Accumulator) HasToolCalls() bool {
	return len(a.buffers()) > 0
}

// buffers returns the assembled tool calls in index order. Placeholder
// slots that never received a fragment with content are left out.
func (a *Accumulator) buffers() []*ToolCallBuffer {
	out := make([]*ToolCallBuffer, 0, len(a.calls))
	for _, b := range a.calls {
		if !b.empty() {
			out = append(out, b)
		}
	}
	return out
}

// ToolCalls returns the raw tool-call structures for the assistant turn,
// in declaration order.
func (a *Accumulator) ToolCalls() []api.ToolCall {
	bufs := a.buffers()
	if len(bufs) == 0 {
		return nil
	}
	calls := make([]api.ToolCall, len(bufs))
	for i, b := range bufs {
		typ := b.Type
		if typ == "" {
			typ = DefaultToolCallType
		}
		calls[i] = api.ToolCall{
			ID:   b.ID,
			Type: typ,
			Function: api.FunctionCall{
				Name:      b.Name,
				Arguments: b.Args.String(),
			},
		}
	}
	return calls
}

// Invocations converts the assembled tool calls into executable requests,
// in declaration order. Argument text that is not a JSON object is
// reported through Invocation.ArgumentsErr.
func (a *Accumulator) Invocations() []tools.Invocation {
	bufs := a.buffers()
	if len(bufs) == 0 {
		return nil
	}
	invs := make([]tools.Invocation, len(bufs))
	for i, b := range bufs {
		raw := b.Args.String()
		args, err := tools.ParseArguments(raw)
		invs[i] = tools.Invocation{
			ID:           b.ID,
			Name:         b.Name,
			Arguments:    args,
			RawArguments: raw,
			ArgumentsErr: err,
		}
	}
	return invs
}

// Reset discards everything accumulated.
func (a *Accumulator) Reset() {
	*a = Accumulator{}
}
