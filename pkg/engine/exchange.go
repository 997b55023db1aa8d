package engine

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rhuss/cadence/pkg/api"
	"github.com/rhuss/cadence/pkg/debug"
	"github.com/rhuss/cadence/pkg/observability"
	"github.com/rhuss/cadence/pkg/stream"
	"github.com/rhuss/cadence/pkg/tools"
)

// readBufferSize is the size of a single transport read.
const readBufferSize = 4096

// errStopped ends stream consumption once the exchange is no longer
// current or has already failed.
var errStopped = errors.New("exchange stopped")

// run drives the rounds of one exchange until it ends. It owns the
// transport body; every state change goes through Engine.mu and is
// dropped when ex is stale.
func (e *Engine) run(ex *exchange) {
	defer e.wg.Done()

	for round := 1; ; round++ {
		invs, ok := e.streamRound(ex, round)
		if !ok {
			return
		}
		if !e.sequencer.Run(ex.ctx, invs, roundObserver{e: e, ex: ex}) {
			return
		}
		if !e.commitRound(ex) {
			return
		}
	}
}

// streamRound sends one request and folds its stream. It returns the
// tool invocations to execute, or false when the exchange ended.
func (e *Engine) streamRound(ex *exchange, round int) ([]tools.Invocation, bool) {
	e.mu.Lock()
	if !e.isCurrentLocked(ex) {
		e.mu.Unlock()
		return nil, false
	}
	ex.round = round
	ex.acc.Reset()
	e.phase = PhaseStreaming
	turns := e.history.snapshot()
	apiKey, model := e.apiKey, e.model
	e.mu.Unlock()

	observability.RoundsTotal.Inc()

	body, err := stream.BuildRequest(model, e.cfg.systemPrompt(), turns, e.registry.Declarations())
	if err != nil {
		e.fail(ex, err)
		return nil, false
	}

	debug.Log("engine", "starting round",
		"exchange", ex.id,
		"round", round,
		"turns", len(turns),
		"bytes", len(body),
	)
	if debug.TraceIsEnabled("providers") {
		debug.Raw("providers", string(body))
	}

	start := time.Now()
	rc, err := e.transport.Stream(ex.ctx, apiKey, body)
	if err != nil {
		recordProvider(model, "error", start)
		if api.KindOf(err) == "" {
			err = api.NewTransportError(err)
		}
		e.fail(ex, err)
		return nil, false
	}

	e.mu.Lock()
	if !e.isCurrentLocked(ex) {
		e.mu.Unlock()
		rc.Close()
		return nil, false
	}
	ex.body = rc
	e.emitLocked(ex, Event{Type: EventStreamOpened})
	e.mu.Unlock()

	err = e.consume(ex, rc)
	switch {
	case errors.Is(err, errStopped):
		return nil, false
	case err != nil && ex.ctx.Err() != nil:
		return nil, false
	case err != nil:
		recordProvider(model, "error", start)
		e.fail(ex, api.NewTransportError(err))
		return nil, false
	}
	recordProvider(model, "success", start)

	return e.finishRound(ex)
}

func recordProvider(model, status string, start time.Time) {
	observability.ProviderRequestsTotal.WithLabelValues(model, status).Inc()
	observability.ProviderLatency.WithLabelValues(model).Observe(time.Since(start).Seconds())
}

// consume reads the body until EOF. Lines are handed to processLine as
// soon as they are complete.
func (e *Engine) consume(ex *exchange, r io.Reader) error {
	var dec stream.LineDecoder
	buf := make([]byte, readBufferSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, line := range dec.Write(buf[:n]) {
				if !e.processLine(ex, line) {
					return errStopped
				}
			}
		}
		if errors.Is(err, io.EOF) {
			if tail, ok := dec.Flush(); ok && !e.processLine(ex, tail) {
				return errStopped
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// processLine folds one line into the accumulator and emits its deltas.
// It returns false when the exchange is stale or the line ended it.
func (e *Engine) processLine(ex *exchange, line string) bool {
	payload, kind := stream.ParseLine(line)
	switch kind {
	case stream.LineIgnored:
		return true
	case stream.LineDone:
		debug.Log("streaming", "end-of-stream sentinel", "exchange", ex.id)
		return true
	}

	debug.Trace("streaming", "stream event", "data", debug.Truncate(payload, 500))

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.isCurrentLocked(ex) {
		return false
	}

	d := ex.acc.Fold([]byte(payload))
	if d.Skipped {
		observability.StreamEventsSkipped.Inc()
		return true
	}
	if d.Err != nil {
		e.failLocked(ex, d.Err, "error")
		return false
	}
	if d.Content != "" {
		e.emitLocked(ex, Event{Type: EventContentDelta, Text: d.Content})
	}
	if d.Reasoning != "" {
		e.emitLocked(ex, Event{Type: EventReasoningDelta, Text: d.Reasoning})
	}
	return true
}

// finishRound applies the end-of-stream rules: tool calls stage a tool
// round, content finalizes the answer, and nothing at all ends the
// exchange silently.
func (e *Engine) finishRound(ex *exchange) ([]tools.Invocation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.isCurrentLocked(ex) {
		return nil, false
	}

	if ex.body != nil {
		ex.body.Close()
		ex.body = nil
	}
	e.emitLocked(ex, Event{Type: EventStreamClosed})

	content := ex.acc.Content()

	if ex.acc.HasToolCalls() {
		if limit := e.cfg.maxRounds(); limit >= 0 && ex.round >= limit {
			e.failLocked(ex, fmt.Errorf("%w (%d)", ErrRoundLimit, limit), "round_limit")
			return nil, false
		}

		calls := ex.acc.ToolCalls()
		invs := ex.acc.Invocations()
		ex.acc.Reset()

		e.history.begin()
		e.history.append(api.NewAssistantTurn(content, calls))
		e.phase = PhaseExecutingTools

		debug.Log("engine", "round requested tools", "exchange", ex.id, "round", ex.round, "calls", len(invs))
		return invs, true
	}

	if content != "" {
		e.history.append(api.NewAssistantTurn(content, nil))
		e.emitLocked(ex, Event{Type: EventResponseFinalized, Text: content})
		e.endLocked(ex, "final")
		return nil, false
	}

	debug.Log("engine", "round produced no content",
		"exchange", ex.id,
		"kind", api.KindNoResponse,
		"skipped", ex.acc.Skipped(),
	)
	e.endLocked(ex, "empty")
	return nil, false
}

// commitRound makes the tool round permanent before the next request.
func (e *Engine) commitRound(ex *exchange) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.isCurrentLocked(ex) {
		return false
	}
	e.history.commit()
	return true
}

// roundObserver records tool progress of one exchange.
type roundObserver struct {
	e  *Engine
	ex *exchange
}

func (o roundObserver) ToolStarted(inv tools.Invocation) bool {
	o.e.mu.Lock()
	defer o.e.mu.Unlock()
	if !o.e.isCurrentLocked(o.ex) {
		return false
	}
	o.e.emitLocked(o.ex, Event{
		Type:      EventToolCallStarted,
		ToolName:  inv.Name,
		Arguments: inv.RawArguments,
	})
	return true
}

func (o roundObserver) ToolFinished(inv tools.Invocation, res tools.Result) bool {
	o.e.mu.Lock()
	defer o.e.mu.Unlock()
	if !o.e.isCurrentLocked(o.ex) {
		debug.Log("tools", "dropping result of cancelled exchange", "tool", inv.Name)
		return false
	}
	o.e.history.append(api.NewToolTurn(inv.ID, inv.Name, res.Text()))
	o.e.emitLocked(o.ex, Event{
		Type:      EventToolCallFinished,
		ToolName:  inv.Name,
		Arguments: inv.RawArguments,
		Succeeded: res.Succeeded,
		Text:      res.Text(),
	})
	return true
}
