package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/rhuss/cadence/pkg/api"
	"github.com/rhuss/cadence/pkg/engine"
	"github.com/rhuss/cadence/pkg/tools/builtins/project"
	"github.com/rhuss/cadence/pkg/transport"
)

const helpText = `Commands:
  /key <api-key>   set and store the api key
  /model [id]      show or set the model
  /models [filter] list the models of the backend
  /tools           list the available tools
  /status          show engine and project state
  /history         show the conversation
  /reset           clear the conversation
  /cancel          cancel the running request (or press Ctrl-C)
  /quit            exit
Anything else is sent to the assistant.`

// conversation is the engine surface the REPL drives.
type conversation interface {
	transport.Conversation
	SetModel(model string) error
}

var _ conversation = (*engine.Engine)(nil)

// repl reads commands and messages and prints engine events.
type repl struct {
	conv    conversation
	project *project.Project
	in      io.Reader
	out     io.Writer

	mu        sync.Mutex
	done      chan struct{} // closed when the running exchange finishes
	midLine   bool          // streamed text without a trailing newline
	reasoning bool
}

func newREPL(conv conversation, p *project.Project, in io.Reader, out io.Writer) *repl {
	return &repl{conv: conv, project: p, in: in, out: out}
}

func (r *repl) run(ctx context.Context) error {
	unsubscribe := r.conv.Subscribe(r.handle)
	defer unsubscribe()

	fmt.Fprintf(r.out, "cadence, model %s. Type /help for commands.\n", r.conv.Model())
	if !r.conv.IsConfigured() {
		fmt.Fprintln(r.out, "No api key set. Use /key <api-key> first.")
	}

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := r.command(ctx, line); quit {
				return nil
			}
			continue
		}
		r.send(ctx, line)
	}
}

// send starts an exchange and waits for it to finish.
func (r *repl) send(ctx context.Context, text string) {
	done := make(chan struct{})
	r.mu.Lock()
	r.done = done
	r.mu.Unlock()

	if err := r.conv.SendMessage(text); err != nil {
		r.mu.Lock()
		r.done = nil
		r.mu.Unlock()
		fmt.Fprintln(r.out, "error:", err)
		return
	}

	select {
	case <-done:
	case <-ctx.Done():
		r.conv.Cancel()
	}
}

func (r *repl) interrupt() {
	if r.conv.State() == engine.Processing {
		r.conv.Cancel()
	}
}

// handle prints one engine event. It runs on the dispatcher goroutine.
func (r *repl) handle(ev engine.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Type {
	case engine.EventReasoningDelta:
		if !r.reasoning {
			r.breakLine()
			fmt.Fprint(r.out, "(thinking) ")
			r.reasoning = true
		}
		fmt.Fprint(r.out, ev.Text)
		r.midLine = true
	case engine.EventContentDelta:
		if r.reasoning {
			r.breakLine()
			r.reasoning = false
		}
		fmt.Fprint(r.out, ev.Text)
		r.midLine = true
	case engine.EventToolCallStarted:
		r.breakLine()
		r.reasoning = false
		fmt.Fprintf(r.out, "[tool] %s %s\n", ev.ToolName, ev.Arguments)
	case engine.EventToolCallFinished:
		status := "ok"
		if !ev.Succeeded {
			status = "failed"
		}
		fmt.Fprintf(r.out, "[tool] %s %s: %s\n", ev.ToolName, status, firstLine(ev.Text))
	case engine.EventError:
		r.breakLine()
		fmt.Fprintln(r.out, "error:", ev.Message)
	case engine.EventProcessingFinished:
		r.breakLine()
		r.reasoning = false
		if r.done != nil {
			close(r.done)
			r.done = nil
		}
	}
}

func (r *repl) breakLine() {
	if r.midLine {
		fmt.Fprintln(r.out)
		r.midLine = false
	}
}

// command runs a slash command and reports whether to quit.
func (r *repl) command(ctx context.Context, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(r.out, helpText)
	case "/key":
		if arg == "" {
			fmt.Fprintln(r.out, "usage: /key <api-key>")
			return false
		}
		if err := r.conv.Configure(arg, ""); err != nil {
			fmt.Fprintln(r.out, "warning:", err)
		}
		fmt.Fprintln(r.out, "api key saved")
	case "/model":
		if arg == "" {
			fmt.Fprintln(r.out, "model:", r.conv.Model())
			return false
		}
		if err := r.conv.SetModel(arg); err != nil {
			fmt.Fprintln(r.out, "warning:", err)
		}
		fmt.Fprintln(r.out, "model set to", r.conv.Model())
	case "/models":
		r.listModels(ctx, arg)
	case "/tools":
		for _, d := range r.conv.Tools() {
			fmt.Fprintf(r.out, "  %-22s %s\n", d.Name, d.Description)
		}
	case "/status":
		fmt.Fprintf(r.out, "state: %s, model: %s, configured: %t, turns: %d, tempo: %d BPM\n",
			r.conv.State(), r.conv.Model(), r.conv.IsConfigured(), len(r.conv.History()), r.project.Tempo())
	case "/history":
		for _, t := range r.conv.History() {
			switch {
			case t.HasToolCalls():
				names := lo.Map(t.ToolCalls, func(c api.ToolCall, _ int) string { return c.Function.Name })
				fmt.Fprintf(r.out, "%s: %s [calls %s]\n", t.Role, t.Content, strings.Join(names, ", "))
			case t.Name != "":
				fmt.Fprintf(r.out, "%s (%s): %s\n", t.Role, t.Name, firstLine(t.Content))
			default:
				fmt.Fprintf(r.out, "%s: %s\n", t.Role, t.Content)
			}
		}
	case "/reset":
		r.conv.ResetHistory()
		fmt.Fprintln(r.out, "conversation cleared")
	case "/cancel":
		r.conv.Cancel()
	default:
		fmt.Fprintf(r.out, "unknown command %s, try /help\n", name)
	}
	return false
}

func (r *repl) listModels(ctx context.Context, filter string) {
	models, err := r.conv.ListModels(ctx)
	if err != nil {
		fmt.Fprintln(r.out, "error:", err)
		return
	}
	filter = strings.ToLower(filter)
	for _, m := range models {
		if filter != "" && !strings.Contains(strings.ToLower(m.ID), filter) {
			continue
		}
		marker := " "
		if m.ID == r.conv.Model() {
			marker = "*"
		}
		fmt.Fprintf(r.out, "%s %s\n", marker, m.ID)
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
