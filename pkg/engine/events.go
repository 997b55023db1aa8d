package engine

import (
	"log/slog"
	"sync"
)

// EventType identifies an engine event.
type EventType int

const (
	EventProcessingStarted EventType = iota
	EventProcessingFinished
	EventStreamOpened
	EventStreamClosed
	EventContentDelta
	EventReasoningDelta
	EventResponseFinalized
	EventToolCallStarted
	EventToolCallFinished
	EventError
)

var eventNames = [...]string{
	EventProcessingStarted:  "processing_started",
	EventProcessingFinished: "processing_finished",
	EventStreamOpened:       "stream_opened",
	EventStreamClosed:       "stream_closed",
	EventContentDelta:       "content_delta",
	EventReasoningDelta:     "reasoning_delta",
	EventResponseFinalized:  "response_finalized",
	EventToolCallStarted:    "tool_call_started",
	EventToolCallFinished:   "tool_call_finished",
	EventError:              "error",
}

func (t EventType) String() string {
	if t >= 0 && int(t) < len(eventNames) {
		return eventNames[t]
	}
	return "unknown"
}

// Event reports engine progress. Which fields are set depends on Type:
//
//   - ContentDelta, ReasoningDelta: Text is the new fragment only.
//   - ResponseFinalized: Text is the complete answer.
//   - ToolCallStarted: ToolName, Arguments (raw JSON text).
//   - ToolCallFinished: ToolName, Arguments, Succeeded, Text (output or
//     error message).
//   - Error: Message is human readable, Err the typed cause.
type Event struct {
	Type       EventType `json:"type"`
	ExchangeID string    `json:"exchange_id,omitempty"`
	Round      int       `json:"round,omitempty"`

	Text      string `json:"text,omitempty"`
	ToolName  string `json:"tool_name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Succeeded bool   `json:"succeeded,omitempty"`
	Message   string `json:"message,omitempty"`

	Err error `json:"-"`
}

// Handler receives events. Handlers run on the dispatcher goroutine, one
// event at a time.
type Handler func(Event)

type subscription struct {
	id int
	h  Handler
}

// dispatcher delivers events in publish order on its own goroutine. The
// queue is unbounded, so publish never blocks.
type dispatcher struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	subs   []subscription
	nextID int
	closed bool
	done   chan struct{}
}

func newDispatcher() *dispatcher {
	d := &dispatcher{done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	go d.loop()
	return d
}

func (d *dispatcher) publish(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.queue = append(d.queue, ev)
	d.cond.Signal()
}

func (d *dispatcher) subscribe(h Handler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++
	d.subs = append(d.subs, subscription{id: id, h: h})

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			for i, s := range d.subs {
				if s.id == id {
					d.subs = append(d.subs[:i:i], d.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// close stops accepting events, delivers what is queued, and waits for
// the loop to exit.
func (d *dispatcher) close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		d.cond.Broadcast()
	}
	d.mu.Unlock()
	<-d.done
}

func (d *dispatcher) loop() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		ev := d.queue[0]
		d.queue[0] = Event{}
		d.queue = d.queue[1:]
		subs := append([]subscription(nil), d.subs...)
		d.mu.Unlock()

		for _, s := range subs {
			deliver(s.h, ev)
		}
	}
}

func deliver(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panicked", "event", ev.Type.String(), "panic", r)
		}
	}()
	h(ev)
}
