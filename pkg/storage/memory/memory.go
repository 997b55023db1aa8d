// Package memory provides an in-memory settings store for tests and
// ephemeral deployments. Values are lost when the process restarts.
package memory

import (
	"context"
	"sync"

	"github.com/rhuss/cadence/pkg/storage"
)

// Store is an in-memory settings store.
type Store struct {
	mu     sync.RWMutex
	values map[string]map[string]string
}

var (
	_ storage.Store    = (*Store)(nil)
	_ storage.Lookuper = (*Store)(nil)
)

// New creates an empty store.
func New() *Store {
	return &Store{values: make(map[string]map[string]string)}
}

// Lookup returns the value of namespace/key.
func (s *Store) Lookup(_ context.Context, namespace, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[namespace][key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

// Get returns the value of namespace/key or def.
func (s *Store) Get(ctx context.Context, namespace, key, def string) string {
	return storage.GetOrDefault(ctx, s, namespace, key, def)
}

// Set stores a value.
func (s *Store) Set(_ context.Context, namespace, key, value string) error {
	if err := storage.ValidateKey(namespace, key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.values[namespace]
	if !ok {
		ns = make(map[string]string)
		s.values[namespace] = ns
	}
	ns[key] = value
	return nil
}

// Delete removes a value. Deleting a missing key returns ErrNotFound.
func (s *Store) Delete(_ context.Context, namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.values[namespace][key]; !ok {
		return storage.ErrNotFound
	}
	delete(s.values[namespace], key)
	if len(s.values[namespace]) == 0 {
		delete(s.values, namespace)
	}
	return nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
