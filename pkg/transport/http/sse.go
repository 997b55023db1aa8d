package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rhuss/cadence/pkg/api"
	"github.com/rhuss/cadence/pkg/engine"
)

// EventPayload is the JSON form of an engine event on the wire.
type EventPayload struct {
	Type       string `json:"type"`
	ExchangeID string `json:"exchange_id,omitempty"`
	Round      int    `json:"round,omitempty"`
	Text       string `json:"text,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	Arguments  string `json:"arguments,omitempty"`
	Succeeded  *bool  `json:"succeeded,omitempty"`
	Message    string `json:"message,omitempty"`
	ErrorKind  string `json:"error_kind,omitempty"`
}

// NewEventPayload converts an engine event. Succeeded is only set for
// finished tool calls, ErrorKind only for errors.
func NewEventPayload(ev engine.Event) EventPayload {
	p := EventPayload{
		Type:       ev.Type.String(),
		ExchangeID: ev.ExchangeID,
		Round:      ev.Round,
		Text:       ev.Text,
		ToolName:   ev.ToolName,
		Arguments:  ev.Arguments,
		Message:    ev.Message,
	}
	if ev.Type == engine.EventToolCallFinished {
		ok := ev.Succeeded
		p.Succeeded = &ok
	}
	if ev.Type == engine.EventError {
		p.ErrorKind = string(api.KindOf(ev.Err))
	}
	return p
}

// sseWriter writes server-sent events and flushes after each one.
type sseWriter struct {
	w   http.ResponseWriter
	rc  *http.ResponseController
	seq int
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	return &sseWriter{w: w, rc: http.NewResponseController(w)}
}

// start sends the SSE headers and a retry hint.
func (s *sseWriter) start() error {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprint(s.w, "retry: 3000\n\n"); err != nil {
		return err
	}
	return s.rc.Flush()
}

// writeEvent sends one event in the form
//
//	id: {seq}
//	event: {type}
//	data: {json}
func (s *sseWriter) writeEvent(ev engine.Event) error {
	data, err := json.Marshal(NewEventPayload(ev))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	s.seq++
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", s.seq, ev.Type, data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}

// writeHeartbeat sends an SSE comment that keeps idle connections open.
func (s *sseWriter) writeHeartbeat() error {
	if _, err := fmt.Fprint(s.w, ": keep-alive\n\n"); err != nil {
		return err
	}
	return s.rc.Flush()
}

// writeDone terminates a per-exchange stream.
func (s *sseWriter) writeDone() error {
	if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	return s.rc.Flush()
}
