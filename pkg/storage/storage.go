package storage

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// Store is a namespaced key/value settings store.
type Store interface {
	// Get returns the stored value, or def when the key is unset or the
	// store cannot be read.
	Get(ctx context.Context, namespace, key, def string) string

	// Set stores a value.
	Set(ctx context.Context, namespace, key, value string) error
}

// Lookuper is implemented by adapters that distinguish a missing key from
// a read failure.
type Lookuper interface {
	// Lookup returns ErrNotFound when the key has no value.
	Lookup(ctx context.Context, namespace, key string) (string, error)
}

// GetOrDefault implements Store.Get on top of Lookup. Read failures are
// logged and yield def.
func GetOrDefault(ctx context.Context, l Lookuper, namespace, key, def string) string {
	v, err := l.Lookup(ctx, namespace, key)
	if err == nil {
		return v
	}
	if !errors.Is(err, ErrNotFound) {
		slog.Warn("reading setting failed, using default",
			"namespace", namespace,
			"key", key,
			"error", err,
		)
	}
	return def
}

// ValidateKey rejects empty namespaces and keys.
func ValidateKey(namespace, key string) error {
	if strings.TrimSpace(namespace) == "" {
		return errors.New("namespace must not be empty")
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("key must not be empty")
	}
	return nil
}
