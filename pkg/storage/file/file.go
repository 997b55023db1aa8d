// Package file provides a settings store persisted as a YAML document:
//
//	agent:
//	  apikey: sk-or-...
//	  model: anthropic/claude-sonnet-4.5
//
// The whole document is rewritten on every Set. The file holds secrets and
// is created with mode 0600.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/rhuss/cadence/pkg/debug"
	"github.com/rhuss/cadence/pkg/storage"
)

// Store is a YAML file backed settings store.
type Store struct {
	mu     sync.RWMutex
	path   string
	values map[string]map[string]string
}

var (
	_ storage.Store    = (*Store)(nil)
	_ storage.Lookuper = (*Store)(nil)
)

// New opens the settings file at path. A missing file is treated as an
// empty store and created on the first Set.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("settings file path must not be empty")
	}
	s := &Store{path: path, values: make(map[string]map[string]string)}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		debug.Log("storage", "settings file does not exist yet", "path", path)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, &s.values); err != nil {
		return nil, fmt.Errorf("parsing settings file %s: %w", path, err)
	}
	if s.values == nil {
		s.values = make(map[string]map[string]string)
	}
	return s, nil
}

// Path returns the file location.
func (s *Store) Path() string { return s.path }

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

// Set stores a value and rewrites the file. The in-memory state is only
// updated when the write succeeds.
func (s *Store) Set(_ context.Context, namespace, key, value string) error {
	if err := storage.ValidateKey(namespace, key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]map[string]string, len(s.values)+1)
	for ns, kv := range s.values {
		copied := make(map[string]string, len(kv))
		for k, v := range kv {
			copied[k] = v
		}
		next[ns] = copied
	}
	if next[namespace] == nil {
		next[namespace] = make(map[string]string)
	}
	next[namespace][key] = value

	if err := s.write(next); err != nil {
		return err
	}
	s.values = next
	debug.Log("storage", "setting saved", "namespace", namespace, "key", key, "path", s.path)
	return nil
}

// write replaces the file atomically through a temp file in the same
// directory.
func (s *Store) write(values map[string]map[string]string) error {
	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("creating temp settings file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("setting file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp settings file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing settings file: %w", err)
	}
	return nil
}

// HealthCheck verifies the file is readable when it exists.
func (s *Store) HealthCheck(_ context.Context) error {
	_, err := os.Stat(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Close is a no-op; every Set is already durable.
func (s *Store) Close() error {
	return nil
}
