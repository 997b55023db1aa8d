package postgres

import "time"

// Config holds the PostgreSQL connection settings of the settings store.
type Config struct {
	// DSN is the connection string, e.g.
	// "postgres://cadence:secret@db:5432/cadence?sslmode=require".
	DSN string

	// Pool sizing. Defaults: 25 max, 5 min.
	MaxConns int32
	MinConns int32

	// MaxConnLifetime recycles connections after this duration (default 5m).
	MaxConnLifetime time.Duration

	// MigrateOnStart applies the embedded schema migrations in New.
	MigrateOnStart bool
}

func (c *Config) defaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 25
	}
	if c.MinConns == 0 {
		c.MinConns = 5
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = 5 * time.Minute
	}
}
