package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rhuss/cadence/pkg/api"
	"github.com/rhuss/cadence/pkg/debug"
	"github.com/rhuss/cadence/pkg/observability"
	"github.com/rhuss/cadence/pkg/provider"
	"github.com/rhuss/cadence/pkg/storage"
	"github.com/rhuss/cadence/pkg/storage/memory"
	"github.com/rhuss/cadence/pkg/stream"
	"github.com/rhuss/cadence/pkg/tools"
)

// State is the engine lifecycle state.
type State int

const (
	// Idle accepts SendMessage.
	Idle State = iota
	// Processing covers streaming and tool execution of one exchange.
	Processing
)

func (s State) String() string {
	if s == Processing {
		return "processing"
	}
	return "idle"
}

// Phase refines Processing for observers.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStreaming
	PhaseExecutingTools
)

func (p Phase) String() string {
	switch p {
	case PhaseStreaming:
		return "streaming"
	case PhaseExecutingTools:
		return "executing_tools"
	default:
		return "idle"
	}
}

// ErrClosed is returned by SendMessage after Close.
var ErrClosed = errors.New("engine closed")

// ErrRoundLimit ends an exchange whose model keeps requesting tools past
// Config.MaxRounds.
var ErrRoundLimit = errors.New("tool round limit reached")

// ErrNoModelLister is returned by ListModels when the transport cannot list
// models.
var ErrNoModelLister = errors.New("transport does not support listing models")

// Engine runs conversations against a streaming chat-completion backend.
// It is safe for concurrent use.
type Engine struct {
	transport provider.Transport
	registry  tools.Registry
	sequencer *Sequencer
	store     storage.Store
	cfg       Config
	events    *dispatcher

	mu      sync.Mutex
	apiKey  string
	model   string
	history history
	state   State
	phase   Phase
	gen     uint64
	current *exchange
	closed  bool

	wg sync.WaitGroup
}

// exchange is one SendMessage and its rounds. Fields other than the
// immutable ones are guarded by Engine.mu.
type exchange struct {
	id      string
	gen     uint64
	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time

	round int
	acc   stream.Accumulator
	body  io.ReadCloser
}

// New creates an Engine. The transport must not be nil. A nil registry
// offers no tools and a nil store keeps settings in memory. The api key
// and model are loaded from the store.
func New(t provider.Transport, r tools.Registry, s storage.Store, cfg Config) (*Engine, error) {
	if t == nil {
		return nil, fmt.Errorf("engine: transport must not be nil")
	}
	if r == nil {
		r = noTools{}
	}
	if len(cfg.AllowedTools) > 0 {
		r = tools.Filter(r, cfg.AllowedTools)
	}
	if s == nil {
		s = memory.New()
	}

	e := &Engine{
		transport: t,
		registry:  r,
		sequencer: NewSequencer(r),
		store:     s,
		cfg:       cfg,
		events:    newDispatcher(),
		history:   newHistory(),
	}

	ctx := cfg.baseContext()
	e.apiKey = s.Get(ctx, SettingsNamespace, KeyAPIKey, "")
	if cfg.APIKey != "" {
		e.apiKey = cfg.APIKey
	}
	e.model = s.Get(ctx, SettingsNamespace, KeyModel, cfg.defaultModel())

	debug.Log("engine", "engine created",
		"model", e.model,
		"configured", e.apiKey != "",
		"tools", len(r.Declarations()),
		"max_rounds", cfg.maxRounds(),
	)
	return e, nil
}

// Configure sets the api key and model and persists them. An empty model
// keeps the current one. History and state are not affected.
func (e *Engine) Configure(apiKey, model string) error {
	e.mu.Lock()
	e.apiKey = apiKey
	if model != "" {
		e.model = model
	}
	e.mu.Unlock()

	ctx := e.cfg.baseContext()
	var errs []error
	if err := e.store.Set(ctx, SettingsNamespace, KeyAPIKey, apiKey); err != nil {
		errs = append(errs, fmt.Errorf("saving api key: %w", err))
	}
	if model != "" {
		if err := e.store.Set(ctx, SettingsNamespace, KeyModel, model); err != nil {
			errs = append(errs, fmt.Errorf("saving model: %w", err))
		}
	}
	return errors.Join(errs...)
}

// SetModel changes and persists the model only. The next request uses it.
func (e *Engine) SetModel(model string) error {
	if model == "" {
		return errors.New("model must not be empty")
	}
	e.mu.Lock()
	e.model = model
	e.mu.Unlock()

	if err := e.store.Set(e.cfg.baseContext(), SettingsNamespace, KeyModel, model); err != nil {
		return fmt.Errorf("saving model: %w", err)
	}
	return nil
}

// SendMessage appends a user turn and starts an exchange. It fails with
// api.ErrNotConfigured without an api key and with
// api.ErrAlreadyProcessing while an exchange is active; in both cases
// nothing changes.
func (e *Engine) SendMessage(text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.apiKey == "" {
		return api.ErrNotConfigured
	}
	if e.state == Processing {
		return api.ErrAlreadyProcessing
	}

	e.history.append(api.NewUserTurn(text))

	e.gen++
	ctx, cancel := context.WithCancel(e.cfg.baseContext())
	ex := &exchange{
		id:      api.NewExchangeID(),
		gen:     e.gen,
		ctx:     ctx,
		cancel:  cancel,
		started: time.Now(),
	}
	e.current = ex
	e.state = Processing
	observability.ExchangesActive.Inc()

	debug.Log("engine", "exchange started", "exchange", ex.id, "model", e.model)
	e.emitLocked(ex, Event{Type: EventProcessingStarted})

	e.wg.Add(1)
	go e.run(ex)
	return nil
}

// Cancel aborts the active exchange, if any. Turns of an unfinished tool
// round are removed; the user turn stays. Cancel is idempotent.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelLocked()
}

func (e *Engine) cancelLocked() {
	ex := e.current
	if ex == nil {
		return
	}
	removed := e.history.rollback()
	ex.acc.Reset()
	debug.Log("engine", "exchange cancelled", "exchange", ex.id, "round", ex.round, "rolled_back", removed)
	e.endLocked(ex, "cancelled")
}

// ResetHistory cancels the active exchange and clears the history.
func (e *Engine) ResetHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelLocked()
	e.history.clear()
}

// Close cancels the active exchange, waits for it to unwind, and stops
// event delivery after the queued events are handed out. It must not be
// called from an event handler.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.cancelLocked()
	e.mu.Unlock()

	e.wg.Wait()
	e.events.close()
	return nil
}

// Subscribe registers h for all future events and returns a function
// that removes it.
func (e *Engine) Subscribe(h Handler) (unsubscribe func()) {
	return e.events.subscribe(h)
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Phase returns what the active exchange is doing.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// ExchangeID returns the ID of the active exchange, or "".
func (e *Engine) ExchangeID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return ""
	}
	return e.current.id
}

// IsConfigured reports whether an api key is set.
func (e *Engine) IsConfigured() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.apiKey != ""
}

// Model returns the configured model.
func (e *Engine) Model() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model
}

// History returns a copy of the conversation.
func (e *Engine) History() []api.Turn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.snapshot()
}

// Tools returns the declarations offered to the model.
func (e *Engine) Tools() []tools.Declaration {
	return e.registry.Declarations()
}

// ListModels returns the models of the backend when the transport can
// list them.
func (e *Engine) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	lister, ok := e.transport.(provider.ModelLister)
	if !ok {
		return nil, ErrNoModelLister
	}

	e.mu.Lock()
	key := e.apiKey
	e.mu.Unlock()
	if key == "" {
		return nil, api.ErrNotConfigured
	}
	return lister.ListModels(ctx, key)
}

// isCurrentLocked reports whether ex is still the active exchange.
func (e *Engine) isCurrentLocked(ex *exchange) bool {
	return e.current == ex && e.gen == ex.gen
}

func (e *Engine) emitLocked(ex *exchange, ev Event) {
	ev.ExchangeID = ex.id
	if ev.Round == 0 {
		ev.Round = ex.round
	}
	e.events.publish(ev)
}

// endLocked moves the engine to Idle and emits processing-finished. It
// aborts the transport and invalidates ex, so nothing the exchange
// goroutine does afterwards takes effect.
func (e *Engine) endLocked(ex *exchange, outcome string) {
	ex.cancel()
	if ex.body != nil {
		ex.body.Close()
		ex.body = nil
	}

	e.gen++
	e.current = nil
	e.state = Idle
	e.phase = PhaseIdle

	observability.ExchangesActive.Dec()
	observability.ExchangesTotal.WithLabelValues(outcome).Inc()

	debug.Log("engine", "exchange finished",
		"exchange", ex.id,
		"outcome", outcome,
		"rounds", ex.round,
		"duration", time.Since(ex.started),
	)
	e.emitLocked(ex, Event{Type: EventProcessingFinished})
}

// failLocked surfaces err once and ends the exchange.
func (e *Engine) failLocked(ex *exchange, err error, outcome string) {
	e.history.rollback()
	e.emitLocked(ex, Event{Type: EventError, Message: err.Error(), Err: err})
	e.endLocked(ex, outcome)
}

func (e *Engine) fail(ex *exchange, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.isCurrentLocked(ex) {
		e.failLocked(ex, err, "error")
	}
}

// noTools is the registry used when none is given.
type noTools struct{}

func (noTools) Declarations() []tools.Declaration { return nil }

func (noTools) Execute(_ context.Context, name string, _ map[string]any) tools.Result {
	return tools.UnknownTool(name)
}
