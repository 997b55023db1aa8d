package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rhuss/cadence/pkg/provider"
	"github.com/rhuss/cadence/pkg/storage/memory"
	"github.com/rhuss/cadence/pkg/tools"
)

const waitTimeout = 2 * time.Second

// scriptedTransport hands out one scripted reply per Stream call.
type scriptedTransport struct {
	mu      sync.Mutex
	replies []reply
	bodies  [][]byte
	keys    []string
	models  []provider.ModelInfo
}

type reply struct {
	body io.ReadCloser
	err  error
}

func (t *scriptedTransport) push(r ...reply) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replies = append(t.replies, r...)
}

func (t *scriptedTransport) Stream(_ context.Context, apiKey string, body []byte) (io.ReadCloser, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.bodies = append(t.bodies, body)
	t.keys = append(t.keys, apiKey)
	if len(t.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	r := t.replies[0]
	t.replies = t.replies[1:]
	return r.body, r.err
}

func (t *scriptedTransport) calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.bodies)
}

// request decodes the n-th request body.
func (t *scriptedTransport) request(tb testing.TB, n int) map[string]any {
	tb.Helper()
	t.mu.Lock()
	defer t.mu.Unlock()
	if n >= len(t.bodies) {
		tb.Fatalf("request %d not sent (%d total)", n, len(t.bodies))
	}
	var m map[string]any
	if err := json.Unmarshal(t.bodies[n], &m); err != nil {
		tb.Fatalf("request %d is not JSON: %v", n, err)
	}
	return m
}

// listingTransport also lists models.
type listingTransport struct {
	scriptedTransport
	gotKey string
}

func (t *listingTransport) ListModels(_ context.Context, apiKey string) ([]provider.ModelInfo, error) {
	t.gotKey = apiKey
	return t.models, nil
}

// sse renders payloads as a complete event stream ending with [DONE].
func sse(payloads ...string) io.ReadCloser {
	var b strings.Builder
	for _, p := range payloads {
		b.WriteString("data: " + p + "\n\n")
	}
	b.WriteString("data: [DONE]\n\n")
	return io.NopCloser(strings.NewReader(b.String()))
}

func quote(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

func contentChunk(s string) string {
	return `{"choices":[{"index":0,"delta":{"content":` + quote(s) + `}}]}`
}

func reasoningChunk(s string) string {
	return `{"choices":[{"index":0,"delta":{"reasoning":` + quote(s) + `}}]}`
}

func toolChunk(index int, id, name, args string) string {
	fn := map[string]any{"arguments": args}
	if name != "" {
		fn["name"] = name
	}
	tc := map[string]any{"index": index, "function": fn}
	if id != "" {
		tc["id"] = id
	}
	data, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{
			"index": 0,
			"delta": map[string]any{"tool_calls": []any{tc}},
		}},
	})
	return string(data)
}

// recorder collects events in delivery order.
type recorder struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func record(e *Engine) *recorder {
	r := &recorder{ch: make(chan Event, 1024)}
	e.Subscribe(func(ev Event) {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
		r.ch <- ev
	})
	return r
}

// waitFor consumes events until one of type typ arrives.
func (r *recorder) waitFor(t *testing.T, typ EventType) Event {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev := <-r.ch:
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s; got %v", typ, r.types())
			return Event{}
		}
	}
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *recorder) ofType(typ EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// fakeRegistry records executions. fn defaults to echoing the arguments.
type fakeRegistry struct {
	mu    sync.Mutex
	decls []tools.Declaration
	calls []toolCall
	fn    func(ctx context.Context, name string, args map[string]any) tools.Result
}

type toolCall struct {
	name string
	args map[string]any
}

func newFakeRegistry(names ...string) *fakeRegistry {
	r := &fakeRegistry{}
	for _, n := range names {
		r.decls = append(r.decls, tools.Declaration{
			Name:        n,
			Description: n + " tool",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		})
	}
	return r
}

func (r *fakeRegistry) Declarations() []tools.Declaration { return r.decls }

func (r *fakeRegistry) Execute(ctx context.Context, name string, args map[string]any) tools.Result {
	r.mu.Lock()
	r.calls = append(r.calls, toolCall{name: name, args: args})
	fn := r.fn
	r.mu.Unlock()

	known := false
	for _, d := range r.decls {
		known = known || d.Name == name
	}
	if !known {
		return tools.UnknownTool(name)
	}
	if fn != nil {
		return fn(ctx, name, args)
	}
	data, _ := json.Marshal(args)
	return tools.Success(name + ":" + string(data))
}

func (r *fakeRegistry) executed() []toolCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]toolCall(nil), r.calls...)
}

// newTestEngine creates a configured engine that is closed on cleanup.
func newTestEngine(t *testing.T, tr provider.Transport, reg tools.Registry, cfg Config) *Engine {
	t.Helper()
	store := memory.New()
	if err := store.Set(context.Background(), SettingsNamespace, KeyAPIKey, "sk-test"); err != nil {
		t.Fatal(err)
	}
	e, err := New(tr, reg, store, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}
