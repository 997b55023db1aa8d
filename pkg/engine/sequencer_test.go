package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rhuss/cadence/pkg/tools"
)

// observerLog records observer callbacks and can stop after n starts.
type observerLog struct {
	started  []string
	finished []tools.Result
	stopAt   int
}

func (o *observerLog) ToolStarted(inv tools.Invocation) bool {
	if o.stopAt > 0 && len(o.started) == o.stopAt {
		return false
	}
	o.started = append(o.started, inv.ID)
	return true
}

func (o *observerLog) ToolFinished(_ tools.Invocation, res tools.Result) bool {
	o.finished = append(o.finished, res)
	return true
}

func invocation(id, name, raw string) tools.Invocation {
	args, err := tools.ParseArguments(raw)
	return tools.Invocation{ID: id, Name: name, Arguments: args, RawArguments: raw, ArgumentsErr: err}
}

func TestSequencer_RunsInOrder(t *testing.T) {
	var order []string
	reg := newFakeRegistry("add_track", "add_notes")
	reg.fn = func(_ context.Context, name string, _ map[string]any) tools.Result {
		order = append(order, name)
		return tools.Success("ok")
	}

	obs := &observerLog{}
	ok := NewSequencer(reg).Run(context.Background(), []tools.Invocation{
		invocation("c1", "add_track", `{}`),
		invocation("c2", "add_notes", `{"track_index":0}`),
	}, obs)

	if !ok {
		t.Fatal("Run reported an interrupted sequence")
	}
	if strings.Join(order, ",") != "add_track,add_notes" {
		t.Errorf("order = %v", order)
	}
	if strings.Join(obs.started, ",") != "c1,c2" || len(obs.finished) != 2 {
		t.Errorf("observer = %+v", obs)
	}
}

func TestSequencer_StopsWhenObserverDeclines(t *testing.T) {
	reg := newFakeRegistry("a")
	obs := &observerLog{stopAt: 1}

	ok := NewSequencer(reg).Run(context.Background(), []tools.Invocation{
		invocation("c1", "a", `{}`),
		invocation("c2", "a", `{}`),
	}, obs)

	if ok {
		t.Error("Run should report the interruption")
	}
	if n := len(reg.executed()); n != 1 {
		t.Errorf("executed = %d, want 1", n)
	}
}

func TestSequencer_StopsOnCancelledContext(t *testing.T) {
	reg := newFakeRegistry("a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if NewSequencer(reg).Run(ctx, []tools.Invocation{invocation("c1", "a", `{}`)}, &observerLog{}) {
		t.Error("Run should stop on a cancelled context")
	}
	if len(reg.executed()) != 0 {
		t.Error("no tool may run after cancellation")
	}
}

func TestSequencer_Execute(t *testing.T) {
	reg := newFakeRegistry("set_tempo", "explode", "fail")
	reg.fn = func(_ context.Context, name string, args map[string]any) tools.Result {
		switch name {
		case "explode":
			panic(errors.New("index out of range"))
		case "fail":
			return tools.Failure("bpm must be between 10 and 999, got 5")
		}
		return tools.Success("ok")
	}
	seq := NewSequencer(reg)

	tests := []struct {
		name    string
		inv     tools.Invocation
		want    tools.Result
		wantPre string
	}{
		{
			name: "success",
			inv:  invocation("c1", "set_tempo", `{"bpm":120}`),
			want: tools.Success("ok"),
		},
		{
			name: "unknown tool",
			inv:  invocation("c1", "make_coffee", `{}`),
			want: tools.Failure("unknown tool make_coffee"),
		},
		{
			name: "tool failure",
			inv:  invocation("c1", "fail", `{"bpm":5}`),
			want: tools.Failure("bpm must be between 10 and 999, got 5"),
		},
		{
			name: "panic",
			inv:  invocation("c1", "explode", `{}`),
			want: tools.Failure("tool execution error: index out of range"),
		},
		{
			name:    "invalid arguments",
			inv:     invocation("c1", "set_tempo", `{"bpm":`),
			wantPre: "invalid arguments for set_tempo: ",
		},
		{
			name: "nil arguments",
			inv:  tools.Invocation{ID: "c1", Name: "set_tempo"},
			want: tools.Success("ok"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := seq.Execute(context.Background(), tt.inv)
			if tt.wantPre != "" {
				if got.Succeeded || !strings.HasPrefix(got.ErrorMessage, tt.wantPre) {
					t.Errorf("Execute = %+v, want failure starting with %q", got, tt.wantPre)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Execute = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSequencer_InvalidArgumentsSkipRegistry(t *testing.T) {
	reg := newFakeRegistry("set_tempo")
	NewSequencer(reg).Execute(context.Background(), invocation("c1", "set_tempo", `not json`))
	if len(reg.executed()) != 0 {
		t.Error("registry must not be called with unparsable arguments")
	}
}

func TestSequencer_NilArgumentsBecomeEmptyObject(t *testing.T) {
	reg := newFakeRegistry("a")
	NewSequencer(reg).Execute(context.Background(), tools.Invocation{ID: "c1", Name: "a"})

	calls := reg.executed()
	if len(calls) != 1 || calls[0].args == nil {
		t.Errorf("calls = %+v", calls)
	}
}
