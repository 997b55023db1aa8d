package transport

import (
	"context"
	"sync"
)

// StreamRegistry tracks open event streams by connection ID so they can be
// ended on shutdown. All methods are safe for concurrent access.
type StreamRegistry struct {
	mu      sync.Mutex
	entries map[string]context.CancelFunc
}

// NewStreamRegistry creates a new empty registry.
func NewStreamRegistry() *StreamRegistry {
	return &StreamRegistry{
		entries: make(map[string]context.CancelFunc),
	}
}

// Register adds a stream. cancel ends it.
func (r *StreamRegistry) Register(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = cancel
}

// Cancel ends a single stream. Returns false if the ID is not registered.
func (r *StreamRegistry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.entries[id]
	if !ok {
		return false
	}
	cancel()
	delete(r.entries, id)
	return true
}

// CancelAll ends every registered stream and returns how many there were.
func (r *StreamRegistry) CancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries)
	for id, cancel := range r.entries {
		cancel()
		delete(r.entries, id)
	}
	return n
}

// Remove drops a stream without cancelling it. Called when the client
// disconnects.
func (r *StreamRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Len returns the number of open streams.
func (r *StreamRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
