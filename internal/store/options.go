package store

import (
	"log/slog"
	"strings"
)

// Opts holds configuration for store backends.
type Opts struct {
	DSN      string
	Postgres bool
}

// Option configures a store backend.
type Option func(*Opts)

// WithSQLiteDSN selects the SQLite backend with a database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Postgres = false
	}
}

// WithPostgresDSN selects the PostgreSQL backend with a connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Postgres = true
	}
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and
// "sqlite3" for anything else.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// Open builds the backend selected by opts. Without a DSN it returns an
// in-memory store.
func Open(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	switch {
	case cfg.DSN == "":
		slog.Info("No database DSN provided, using in-memory store")
		return NewInMemoryStore(), nil
	case cfg.Postgres:
		return NewPostgresStore(opts...)
	default:
		return NewSQLiteStore(opts...)
	}
}
