package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	gohttp "net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rhuss/cadence/pkg/api"
	"github.com/rhuss/cadence/pkg/engine"
	"github.com/rhuss/cadence/pkg/provider"
	"github.com/rhuss/cadence/pkg/tools"
	"github.com/rhuss/cadence/pkg/transport"
)

// fakeConversation is a hand-written Conversation for adapter tests.
type fakeConversation struct {
	mu         sync.Mutex
	sent       []string
	sendErr    error
	exchangeID string
	onSend     func()
	cancels    int
	resets     int
	apiKey     string
	model      string
	configErr  error
	history    []api.Turn
	models     []provider.ModelInfo
	modelsErr  error
	decls      []tools.Declaration
	state      engine.State

	subs   map[int]engine.Handler
	nextID int
}

func newFakeConversation() *fakeConversation {
	return &fakeConversation{
		model: "test-model",
		subs:  make(map[int]engine.Handler),
		decls: []tools.Declaration{
			{Name: "get_tempo", Description: "Get the tempo"},
			{Name: "set_tempo", Description: "Set the tempo", Parameters: map[string]any{"type": "object"}},
		},
	}
}

func (f *fakeConversation) SendMessage(text string) error {
	f.mu.Lock()
	if f.sendErr != nil {
		err := f.sendErr
		f.mu.Unlock()
		return err
	}
	f.sent = append(f.sent, text)
	f.history = append(f.history, api.NewUserTurn(text))
	f.state = engine.Processing
	onSend := f.onSend
	f.mu.Unlock()
	if onSend != nil {
		onSend()
	}
	return nil
}

func (f *fakeConversation) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
}

func (f *fakeConversation) ResetHistory() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.history = nil
}

func (f *fakeConversation) Configure(apiKey, model string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKey = apiKey
	if model != "" {
		f.model = model
	}
	return f.configErr
}

func (f *fakeConversation) Subscribe(h engine.Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.subs[id] = h
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *fakeConversation) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// emit delivers events to all subscribers, like the engine dispatcher.
func (f *fakeConversation) emit(events ...engine.Event) {
	f.mu.Lock()
	hs := make([]engine.Handler, 0, len(f.subs))
	for _, h := range f.subs {
		hs = append(hs, h)
	}
	f.mu.Unlock()
	for _, ev := range events {
		for _, h := range hs {
			h(ev)
		}
	}
}

func (f *fakeConversation) State() engine.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeConversation) Phase() engine.Phase { return engine.PhaseIdle }

func (f *fakeConversation) ExchangeID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exchangeID
}

func (f *fakeConversation) IsConfigured() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.apiKey != ""
}

func (f *fakeConversation) Model() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.model
}

func (f *fakeConversation) History() []api.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return api.CloneTurns(f.history)
}

func (f *fakeConversation) Tools() []tools.Declaration { return f.decls }

func (f *fakeConversation) ListModels(context.Context) ([]provider.ModelInfo, error) {
	return f.models, f.modelsErr
}

type fakeHealth struct{ err error }

func (h fakeHealth) HealthCheck(context.Context) error { return h.err }

func newTestAdapter(conv *fakeConversation, health *fakeHealth) gohttp.Handler {
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = time.Hour
	var hc transport.HealthChecker
	if health != nil {
		hc = health
	}
	return NewAdapter(conv, hc, cfg).Handler()
}

func do(t *testing.T, h gohttp.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body %q: %v", rec.Body.String(), err)
	}
	return body.Error.Type, body.Error.Message
}

func TestSendMessage(t *testing.T) {
	conv := newFakeConversation()
	conv.exchangeID = "exch_1"
	h := newTestAdapter(conv, nil)

	rec := do(t, h, "POST", "/v1/messages", `{"text":"set the tempo to 128"}`)

	if rec.Code != gohttp.StatusAccepted {
		t.Fatalf("status = %d, want 202; body=%s", rec.Code, rec.Body.String())
	}
	var got MessageResponse
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.ExchangeID != "exch_1" || got.State != "processing" {
		t.Errorf("response = %+v", got)
	}
	if len(conv.sent) != 1 || conv.sent[0] != "set the tempo to 128" {
		t.Errorf("sent = %v", conv.sent)
	}
}

func TestSendMessageErrors(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		sendErr     error
		wantStatus  int
		wantType    string
	}{
		{"not configured", `{"text":"hi"}`, "application/json", api.ErrNotConfigured, gohttp.StatusPreconditionFailed, "not_configured"},
		{"already processing", `{"text":"hi"}`, "application/json", api.ErrAlreadyProcessing, gohttp.StatusConflict, "already_processing"},
		{"closed", `{"text":"hi"}`, "application/json", engine.ErrClosed, gohttp.StatusServiceUnavailable, "unavailable"},
		{"blank text", `{"text":"   "}`, "application/json", nil, gohttp.StatusBadRequest, "invalid_request"},
		{"invalid json", `{"text":`, "application/json", nil, gohttp.StatusBadRequest, "invalid_request"},
		{"wrong content type", `text=hi`, "application/x-www-form-urlencoded", nil, gohttp.StatusUnsupportedMediaType, "invalid_request"},
		{"too large", `{"text":"` + strings.Repeat("a", 2<<20) + `"}`, "application/json", nil, gohttp.StatusRequestEntityTooLarge, "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := newFakeConversation()
			conv.sendErr = tt.sendErr
			h := newTestAdapter(conv, nil)

			req := httptest.NewRequest("POST", "/v1/messages", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body=%s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if typ, _ := decodeError(t, rec); typ != tt.wantType {
				t.Errorf("error type = %q, want %q", typ, tt.wantType)
			}
		})
	}
}

func TestSendMessageCharsetContentType(t *testing.T) {
	conv := newFakeConversation()
	h := newTestAdapter(conv, nil)

	req := httptest.NewRequest("POST", "/v1/messages", strings.NewReader(`{"text":"hi"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != gohttp.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}
}

func TestSendMessageStream(t *testing.T) {
	conv := newFakeConversation()
	conv.exchangeID = "exch_7"
	conv.onSend = func() {
		go conv.emit(
			// A late event of an earlier exchange is not relayed.
			engine.Event{Type: engine.EventProcessingFinished, ExchangeID: "exch_6"},
			engine.Event{Type: engine.EventProcessingStarted, ExchangeID: "exch_7"},
			engine.Event{Type: engine.EventContentDelta, ExchangeID: "exch_7", Round: 1, Text: "Hel"},
			engine.Event{Type: engine.EventContentDelta, ExchangeID: "exch_7", Round: 1, Text: "lo"},
			engine.Event{Type: engine.EventResponseFinalized, ExchangeID: "exch_7", Round: 1, Text: "Hello"},
			engine.Event{Type: engine.EventProcessingFinished, ExchangeID: "exch_7", Round: 1},
		)
	}
	srv := httptest.NewServer(newTestAdapter(conv, nil))
	defer srv.Close()

	resp, err := gohttp.Post(srv.URL+"/v1/messages?stream=true", "application/json", strings.NewReader(`{"text":"hi"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	events, done := readSSE(t, resp.Body)
	if !done {
		t.Error("stream did not end with [DONE]")
	}
	var types []string
	for _, ev := range events {
		types = append(types, ev.Type)
		if ev.ExchangeID != "exch_7" {
			t.Errorf("relayed event of exchange %q", ev.ExchangeID)
		}
	}
	want := "processing_started,content_delta,content_delta,response_finalized,processing_finished"
	if got := strings.Join(types, ","); got != want {
		t.Errorf("events = %s, want %s", got, want)
	}
	if len(events) == 5 && events[3].Text != "Hello" {
		t.Errorf("finalized text = %q", events[3].Text)
	}

	waitFor(t, func() bool { return conv.subscribers() == 0 })
}

func TestSendMessageStreamRejected(t *testing.T) {
	conv := newFakeConversation()
	conv.sendErr = api.ErrAlreadyProcessing
	h := newTestAdapter(conv, nil)

	req := httptest.NewRequest("POST", "/v1/messages", strings.NewReader(`{"text":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != gohttp.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
	if conv.subscribers() != 0 {
		t.Error("subscription leaked after rejected send")
	}
}

func TestEventsRelay(t *testing.T) {
	conv := newFakeConversation()
	srv := httptest.NewServer(newTestAdapter(conv, nil))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := gohttp.NewRequestWithContext(ctx, "GET", srv.URL+"/v1/events", nil)
	resp, err := gohttp.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	waitFor(t, func() bool { return conv.subscribers() == 1 })

	conv.emit(
		engine.Event{Type: engine.EventToolCallStarted, ExchangeID: "e1", Round: 1, ToolName: "set_tempo", Arguments: `{"bpm":128}`},
		engine.Event{Type: engine.EventToolCallFinished, ExchangeID: "e1", Round: 1, ToolName: "set_tempo", Arguments: `{"bpm":128}`, Text: "Tempo set to 128 BPM"},
		engine.Event{Type: engine.EventError, ExchangeID: "e1", Round: 2, Message: "API error: rate limited", Err: api.NewAPIError(429, "rate limited")},
	)

	reader := bufio.NewReader(resp.Body)
	var got []EventPayload
	for len(got) < 3 {
		ev, ok := nextSSEEvent(t, reader)
		if !ok {
			t.Fatalf("stream ended after %d events", len(got))
		}
		got = append(got, ev)
	}

	if got[0].Type != "tool_call_started" || got[0].ToolName != "set_tempo" || got[0].Succeeded != nil {
		t.Errorf("event 0 = %+v", got[0])
	}
	if got[1].Succeeded == nil || *got[1].Succeeded {
		t.Errorf("event 1 succeeded = %v, want explicit false", got[1].Succeeded)
	}
	if got[1].Text != "Tempo set to 128 BPM" {
		t.Errorf("event 1 text = %q", got[1].Text)
	}
	if got[2].Type != "error" || got[2].ErrorKind != "api_error" || got[2].Message != "API error: rate limited" {
		t.Errorf("event 2 = %+v", got[2])
	}

	cancel()
	waitFor(t, func() bool { return conv.subscribers() == 0 })
}

func TestEventsOverflowClosesStream(t *testing.T) {
	conv := newFakeConversation()
	cfg := DefaultConfig()
	cfg.EventBuffer = 1
	cfg.HeartbeatInterval = time.Hour
	a := NewAdapter(conv, nil, cfg)

	// Subscribe directly so nothing drains the buffer.
	sub := a.subscribe()
	defer sub.unsubscribe()

	conv.emit(engine.Event{Type: engine.EventContentDelta}, engine.Event{Type: engine.EventContentDelta})

	select {
	case <-sub.overflow:
	default:
		t.Fatal("overflow not signalled for a full buffer")
	}
	// A third event must not block or panic.
	conv.emit(engine.Event{Type: engine.EventContentDelta})
}

func TestCloseStreams(t *testing.T) {
	conv := newFakeConversation()
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = time.Hour
	a := NewAdapter(conv, nil, cfg)
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp, err := gohttp.Get(srv.URL + "/v1/events")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	waitFor(t, func() bool { return conv.subscribers() == 1 })

	if n := a.CloseStreams(); n != 1 {
		t.Errorf("CloseStreams = %d, want 1", n)
	}

	done := make(chan struct{})
	go func() {
		io.Copy(io.Discard, resp.Body)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("event stream still open after CloseStreams")
	}
}

func TestCancelAndHistory(t *testing.T) {
	conv := newFakeConversation()
	conv.history = []api.Turn{api.NewUserTurn("hi"), api.NewAssistantTurn("hello", nil)}
	h := newTestAdapter(conv, nil)

	rec := do(t, h, "GET", "/v1/history", "")
	if rec.Code != gohttp.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	var list struct {
		Object string     `json:"object"`
		Data   []api.Turn `json:"data"`
	}
	json.Unmarshal(rec.Body.Bytes(), &list)
	if list.Object != "list" || len(list.Data) != 2 || list.Data[1].Content != "hello" {
		t.Errorf("history = %+v", list)
	}

	if rec := do(t, h, "POST", "/v1/cancel", ""); rec.Code != gohttp.StatusNoContent {
		t.Errorf("cancel status = %d, want 204", rec.Code)
	}
	if rec := do(t, h, "POST", "/v1/cancel", ""); rec.Code != gohttp.StatusNoContent {
		t.Errorf("second cancel status = %d, want 204", rec.Code)
	}
	if conv.cancels != 2 {
		t.Errorf("cancels = %d, want 2", conv.cancels)
	}

	if rec := do(t, h, "DELETE", "/v1/history", ""); rec.Code != gohttp.StatusNoContent {
		t.Errorf("reset status = %d, want 204", rec.Code)
	}
	rec = do(t, h, "GET", "/v1/history", "")
	if !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Errorf("history after reset = %s, want empty data array", rec.Body.String())
	}
}

func TestStatusAndConfigure(t *testing.T) {
	conv := newFakeConversation()
	h := newTestAdapter(conv, nil)

	var st Status
	json.Unmarshal(do(t, h, "GET", "/v1/status", "").Body.Bytes(), &st)
	if st.Configured || st.State != "idle" || st.Model != "test-model" {
		t.Errorf("status = %+v", st)
	}
	if strings.Join(st.Tools, ",") != "get_tempo,set_tempo" {
		t.Errorf("tools = %v", st.Tools)
	}

	rec := do(t, h, "PUT", "/v1/config", `{"api_key":"sk-new","model":" openai/gpt-4o "}`)
	if rec.Code != gohttp.StatusOK {
		t.Fatalf("config status = %d; body=%s", rec.Code, rec.Body.String())
	}
	json.Unmarshal(rec.Body.Bytes(), &st)
	if !st.Configured || st.Model != "openai/gpt-4o" {
		t.Errorf("status after configure = %+v", st)
	}
	if conv.apiKey != "sk-new" {
		t.Errorf("api key = %q", conv.apiKey)
	}

	// Omitted model keeps the current one.
	do(t, h, "PUT", "/v1/config", `{"api_key":"sk-other"}`)
	if conv.model != "openai/gpt-4o" || conv.apiKey != "sk-other" {
		t.Errorf("model = %q, key = %q", conv.model, conv.apiKey)
	}

	rec = do(t, h, "PUT", "/v1/config", `{"model":"x"}`)
	if rec.Code != gohttp.StatusBadRequest {
		t.Errorf("missing api_key status = %d, want 400", rec.Code)
	}

	conv.configErr = errors.New("saving api key: read-only file system")
	rec = do(t, h, "PUT", "/v1/config", `{"api_key":"sk-3"}`)
	if rec.Code != gohttp.StatusInternalServerError {
		t.Errorf("persist failure status = %d, want 500", rec.Code)
	}
	if _, msg := decodeError(t, rec); !strings.Contains(msg, "read-only") {
		t.Errorf("message = %q", msg)
	}
}

func TestListModelsAndTools(t *testing.T) {
	conv := newFakeConversation()
	conv.models = []provider.ModelInfo{{ID: "openai/gpt-4o", Name: "GPT-4o", ContextLength: 128000}}
	h := newTestAdapter(conv, nil)

	rec := do(t, h, "GET", "/v1/models", "")
	if rec.Code != gohttp.StatusOK {
		t.Fatalf("models status = %d", rec.Code)
	}
	var models List[provider.ModelInfo]
	json.Unmarshal(rec.Body.Bytes(), &models)
	if len(models.Data) != 1 || models.Data[0].ContextLength != 128000 {
		t.Errorf("models = %+v", models)
	}

	conv.modelsErr = api.NewAPIError(gohttp.StatusUnauthorized, "invalid key")
	if rec := do(t, h, "GET", "/v1/models", ""); rec.Code != gohttp.StatusUnauthorized {
		t.Errorf("models error status = %d, want 401", rec.Code)
	}
	conv.modelsErr = engine.ErrNoModelLister
	if rec := do(t, h, "GET", "/v1/models", ""); rec.Code != gohttp.StatusNotImplemented {
		t.Errorf("no lister status = %d, want 501", rec.Code)
	}

	var toolList List[ToolInfo]
	json.Unmarshal(do(t, h, "GET", "/v1/tools", "").Body.Bytes(), &toolList)
	if len(toolList.Data) != 2 || toolList.Data[1].Parameters["type"] != "object" {
		t.Errorf("tools = %+v", toolList)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		health     *fakeHealth
		wantStatus int
	}{
		{"no checker", nil, gohttp.StatusOK},
		{"healthy", &fakeHealth{}, gohttp.StatusOK},
		{"unhealthy", &fakeHealth{err: errors.New("connection refused")}, gohttp.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestAdapter(newFakeConversation(), tt.health), "GET", "/healthz", "")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(t, newTestAdapter(newFakeConversation(), nil), "GET", "/metrics", "")
	if rec.Code != gohttp.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "cadence_") {
		t.Error("metrics output lacks cadence collectors")
	}
}

func TestUnknownRoute(t *testing.T) {
	h := newTestAdapter(newFakeConversation(), nil)
	if rec := do(t, h, "GET", "/v1/responses", ""); rec.Code != gohttp.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if rec := do(t, h, "GET", "/v1/messages", ""); rec.Code != gohttp.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

// readSSE reads events until [DONE] or EOF.
func readSSE(t *testing.T, body io.Reader) ([]EventPayload, bool) {
	t.Helper()
	reader := bufio.NewReader(body)
	var events []EventPayload
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return events, false
		}
		line = strings.TrimRight(line, "\n")
		if line == "data: [DONE]" {
			return events, true
		}
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			var ev EventPayload
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				t.Fatalf("decoding event %q: %v", data, err)
			}
			events = append(events, ev)
		}
	}
}

// nextSSEEvent reads the next data line.
func nextSSEEvent(t *testing.T, reader *bufio.Reader) (EventPayload, bool) {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return EventPayload{}, false
		}
		if data, ok := strings.CutPrefix(strings.TrimRight(line, "\n"), "data: "); ok {
			var ev EventPayload
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				t.Fatalf("decoding event %q: %v", data, err)
			}
			return ev, true
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 5s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
