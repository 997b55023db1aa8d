package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/cadence/pkg/api"
	"github.com/rhuss/cadence/pkg/debug"
	"github.com/rhuss/cadence/pkg/engine"
	"github.com/rhuss/cadence/pkg/observability"
	"github.com/rhuss/cadence/pkg/provider"
	"github.com/rhuss/cadence/pkg/transport"
)

// Adapter serves the cadence bridge API over HTTP.
type Adapter struct {
	conv    transport.Conversation
	health  transport.HealthChecker // nil if the store cannot report health
	streams *transport.StreamRegistry
	mux     *http.ServeMux
	config  Config

	nextStream atomic.Int64
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize       int64
	HeartbeatInterval time.Duration

	// EventBuffer is the number of events queued per stream before a slow
	// client is disconnected.
	EventBuffer int

	// MetricsPath serves Prometheus metrics when non-empty.
	MetricsPath string
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize:       1 << 20, // 1 MB
		HeartbeatInterval: 15 * time.Second,
		EventBuffer:       1024,
		MetricsPath:       "/metrics",
	}
}

// NewAdapter creates an HTTP adapter for conv. health is optional.
func NewAdapter(conv transport.Conversation, health transport.HealthChecker, cfg Config) *Adapter {
	def := DefaultConfig()
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = def.MaxBodySize
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = def.EventBuffer
	}

	a := &Adapter{
		conv:    conv,
		health:  health,
		streams: transport.NewStreamRegistry(),
		mux:     http.NewServeMux(),
		config:  cfg,
	}

	a.mux.HandleFunc("POST /v1/messages", a.handleSendMessage)
	a.mux.HandleFunc("POST /v1/cancel", a.handleCancel)
	a.mux.HandleFunc("GET /v1/history", a.handleGetHistory)
	a.mux.HandleFunc("DELETE /v1/history", a.handleResetHistory)
	a.mux.HandleFunc("GET /v1/status", a.handleStatus)
	a.mux.HandleFunc("PUT /v1/config", a.handleConfigure)
	a.mux.HandleFunc("GET /v1/models", a.handleListModels)
	a.mux.HandleFunc("GET /v1/tools", a.handleListTools)
	a.mux.HandleFunc("GET /v1/events", a.handleEvents)
	a.mux.HandleFunc("GET /healthz", a.handleHealth)
	if cfg.MetricsPath != "" {
		a.mux.Handle("GET "+cfg.MetricsPath, promhttp.Handler())
	}

	return a
}

// Handler returns the routing handler. Metrics are recorded per matched
// route pattern, so it must receive the request unmodified from the outer
// middleware chain.
func (a *Adapter) Handler() http.Handler {
	return observability.MetricsMiddleware(a.mux)
}

// CloseStreams ends all open event streams and returns how many there were.
func (a *Adapter) CloseStreams() int {
	return a.streams.CancelAll()
}

// MessageRequest is the body of POST /v1/messages.
type MessageRequest struct {
	Text string `json:"text"`
}

// MessageResponse acknowledges an accepted message.
type MessageResponse struct {
	ExchangeID string `json:"exchange_id"`
	State      string `json:"state"`
}

// ConfigRequest is the body of PUT /v1/config. APIKey is required; an
// empty string clears the key. An empty Model keeps the current one.
type ConfigRequest struct {
	APIKey *string `json:"api_key"`
	Model  string  `json:"model"`
}

// Status describes the engine for GET /v1/status.
type Status struct {
	State         string   `json:"state"`
	Phase         string   `json:"phase"`
	ExchangeID    string   `json:"exchange_id,omitempty"`
	Configured    bool     `json:"configured"`
	Model         string   `json:"model"`
	HistoryLength int      `json:"history_length"`
	Tools         []string `json:"tools"`
}

// ToolInfo describes one tool for GET /v1/tools.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// List wraps collection responses.
type List[T any] struct {
	Object string `json:"object"`
	Data   []T    `json:"data"`
}

// handleSendMessage handles POST /v1/messages. With ?stream=true or an
// Accept header of text/event-stream, the events of the started exchange
// are relayed until it finishes.
func (a *Adapter) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		transport.WriteErrorResponse(w, http.StatusBadRequest, transport.ErrorTypeInvalidRequest, "text is required")
		return
	}

	if wantsStream(r) {
		a.streamMessage(w, r, req.Text)
		return
	}

	if err := a.conv.SendMessage(req.Text); err != nil {
		transport.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, MessageResponse{
		ExchangeID: a.conv.ExchangeID(),
		State:      engine.Processing.String(),
	})
}

func wantsStream(r *http.Request) bool {
	if r.URL.Query().Get("stream") == "true" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// streamMessage sends text and relays the events of the resulting exchange.
func (a *Adapter) streamMessage(w http.ResponseWriter, r *http.Request, text string) {
	sub := a.subscribe()
	defer sub.unsubscribe()

	if err := a.conv.SendMessage(text); err != nil {
		transport.WriteError(w, err)
		return
	}
	// Empty when the exchange already finished; the first exchange seen
	// on the subscription is ours then.
	exchangeID := a.conv.ExchangeID()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	streamID := a.register(cancel)
	defer a.streams.Remove(streamID)

	sse := newSSEWriter(w)
	if err := sse.start(); err != nil {
		return
	}

	heartbeat := time.NewTicker(a.config.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.overflow:
			slog.Warn("event stream too slow, closing", "stream", streamID, "buffer", a.config.EventBuffer)
			return
		case <-heartbeat.C:
			if sse.writeHeartbeat() != nil {
				return
			}
		case ev := <-sub.events:
			if exchangeID == "" && ev.Type == engine.EventProcessingStarted {
				exchangeID = ev.ExchangeID
			}
			if exchangeID == "" || ev.ExchangeID != exchangeID {
				continue
			}
			if sse.writeEvent(ev) != nil {
				return
			}
			if ev.Type == engine.EventProcessingFinished {
				sse.writeDone()
				return
			}
		}
	}
}

// handleEvents handles GET /v1/events, relaying every engine event until
// the client disconnects or the server shuts down.
func (a *Adapter) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := a.subscribe()
	defer sub.unsubscribe()

	streamID := a.register(cancel)
	defer a.streams.Remove(streamID)

	observability.EventSubscribers.Inc()
	defer observability.EventSubscribers.Dec()

	sse := newSSEWriter(w)
	if err := sse.start(); err != nil {
		return
	}
	debug.Log("transport", "event stream opened", "stream", streamID)
	defer debug.Log("transport", "event stream closed", "stream", streamID)

	heartbeat := time.NewTicker(a.config.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.overflow:
			slog.Warn("event stream too slow, closing", "stream", streamID, "buffer", a.config.EventBuffer)
			return
		case <-heartbeat.C:
			if sse.writeHeartbeat() != nil {
				return
			}
		case ev := <-sub.events:
			if sse.writeEvent(ev) != nil {
				return
			}
		}
	}
}

func (a *Adapter) register(cancel context.CancelFunc) string {
	id := fmt.Sprintf("stream-%d", a.nextStream.Add(1))
	a.streams.Register(id, cancel)
	return id
}

// handleCancel handles POST /v1/cancel. Cancelling while idle is a no-op.
func (a *Adapter) handleCancel(w http.ResponseWriter, r *http.Request) {
	a.conv.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

// handleGetHistory handles GET /v1/history.
func (a *Adapter) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	turns := a.conv.History()
	if turns == nil {
		turns = []api.Turn{}
	}
	writeJSON(w, http.StatusOK, List[api.Turn]{Object: "list", Data: turns})
}

// handleResetHistory handles DELETE /v1/history.
func (a *Adapter) handleResetHistory(w http.ResponseWriter, r *http.Request) {
	a.conv.ResetHistory()
	w.WriteHeader(http.StatusNoContent)
}

// handleStatus handles GET /v1/status.
func (a *Adapter) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.status())
}

func (a *Adapter) status() Status {
	decls := a.conv.Tools()
	names := make([]string, 0, len(decls))
	for _, d := range decls {
		names = append(names, d.Name)
	}
	return Status{
		State:         a.conv.State().String(),
		Phase:         a.conv.Phase().String(),
		ExchangeID:    a.conv.ExchangeID(),
		Configured:    a.conv.IsConfigured(),
		Model:         a.conv.Model(),
		HistoryLength: len(a.conv.History()),
		Tools:         names,
	}
}

// handleConfigure handles PUT /v1/config.
func (a *Adapter) handleConfigure(w http.ResponseWriter, r *http.Request) {
	var req ConfigRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}
	if req.APIKey == nil {
		transport.WriteErrorResponse(w, http.StatusBadRequest, transport.ErrorTypeInvalidRequest, "api_key is required")
		return
	}
	if err := a.conv.Configure(*req.APIKey, strings.TrimSpace(req.Model)); err != nil {
		// The in-memory configuration is applied even when persisting fails.
		transport.WriteErrorResponse(w, http.StatusInternalServerError, transport.ErrorTypeServer, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a.status())
}

// handleListModels handles GET /v1/models.
func (a *Adapter) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := a.conv.ListModels(r.Context())
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	if models == nil {
		models = []provider.ModelInfo{}
	}
	writeJSON(w, http.StatusOK, List[provider.ModelInfo]{Object: "list", Data: models})
}

// handleListTools handles GET /v1/tools.
func (a *Adapter) handleListTools(w http.ResponseWriter, r *http.Request) {
	decls := a.conv.Tools()
	out := make([]ToolInfo, 0, len(decls))
	for _, d := range decls {
		out = append(out, ToolInfo{Name: d.Name, Description: d.Description, Parameters: d.Parameters})
	}
	writeJSON(w, http.StatusOK, List[ToolInfo]{Object: "list", Data: out})
}

// handleHealth handles GET /healthz.
func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	if a.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.health.HealthCheck(ctx); err != nil {
			transport.WriteErrorResponse(w, http.StatusServiceUnavailable, transport.ErrorTypeUnavailable,
				"settings store unhealthy: "+err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeJSON reads a size-limited JSON body into v. On failure it writes
// the error response and returns false.
func (a *Adapter) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || mt != "application/json" {
			transport.WriteErrorResponse(w, http.StatusUnsupportedMediaType,
				transport.ErrorTypeInvalidRequest, "Content-Type must be application/json")
			return false
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, transport.ErrorTypeInvalidRequest,
				fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize))
			return false
		}
		transport.WriteErrorResponse(w, http.StatusBadRequest, transport.ErrorTypeInvalidRequest,
			"invalid JSON: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// subscription relays engine events into a buffered channel without ever
// blocking the dispatcher. A full buffer closes overflow.
type subscription struct {
	events      chan engine.Event
	overflow    chan struct{}
	once        sync.Once
	unsubscribe func()
}

func (a *Adapter) subscribe() *subscription {
	s := &subscription{
		events:   make(chan engine.Event, a.config.EventBuffer),
		overflow: make(chan struct{}),
	}
	s.unsubscribe = a.conv.Subscribe(func(ev engine.Event) {
		select {
		case s.events <- ev:
		default:
			s.once.Do(func() { close(s.overflow) })
		}
	})
	return s
}
