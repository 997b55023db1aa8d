// Package postgres provides a PostgreSQL settings store. It uses pgx/v5
// for connection pooling and applies embedded schema migrations.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/cadence/pkg/debug"
	"github.com/rhuss/cadence/pkg/storage"
)

// Store is a PostgreSQL-backed settings store.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ storage.Store    = (*Store)(nil)
	_ storage.Lookuper = (*Store)(nil)
)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// Lookup returns the value of namespace/key.
func (s *Store) Lookup(ctx context.Context, namespace, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		"SELECT value FROM settings WHERE namespace = $1 AND key = $2",
		namespace, key,
	).Scan(&value)

	if errors.Is(err, pgx.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying setting: %w", err)
	}
	return value, nil
}

// Get returns the value of namespace/key or def.
func (s *Store) Get(ctx context.Context, namespace, key, def string) string {
	return storage.GetOrDefault(ctx, s, namespace, key, def)
}

// Set upserts a value.
func (s *Store) Set(ctx context.Context, namespace, key, value string) error {
	if err := storage.ValidateKey(namespace, key); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO settings (namespace, key, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (namespace, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, namespace, key, value)
	if err != nil {
		return fmt.Errorf("saving setting: %w", err)
	}

	debug.Log("storage", "setting saved", "namespace", namespace, "key", key)
	return nil
}

// Delete removes a value.
func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	result, err := s.pool.Exec(ctx,
		"DELETE FROM settings WHERE namespace = $1 AND key = $2",
		namespace, key,
	)
	if err != nil {
		return fmt.Errorf("deleting setting: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
