// Package store provides storage backends for FocusPipe.
//
// This file implements a PostgreSQL-backed store for events, tier grants and sessions.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/FocusPipe/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}

func (s *PostgresStore) AppendEvent(e models.Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO events (participant_id, kind, value, created_at) VALUES ($1, $2, $3, $4)`,
		e.ParticipantID, e.Kind, nilIfEmpty(e.Value), e.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AppendEvent failed", "error", err, "participantID", e.ParticipantID, "kind", e.Kind)
		return fmt.Errorf("failed to append %s event for %s: %w", e.Kind, e.ParticipantID, err)
	}
	return nil
}

func (s *PostgresStore) CountEvents(participantID string, kind models.EventKind, since, until time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM events WHERE participant_id = $1 AND kind = $2 AND created_at >= $3 AND created_at < $4`,
		participantID, kind, since, until,
	).Scan(&n)
	if err != nil {
		slog.Error("PostgresStore CountEvents failed", "error", err, "participantID", participantID, "kind", kind)
		return 0, fmt.Errorf("failed to count %s events for %s: %w", kind, participantID, err)
	}
	return n, nil
}

func (s *PostgresStore) ListEvents(participantID string, limit int) ([]models.Event, error) {
	query := `SELECT id, participant_id, kind, value, created_at FROM events WHERE participant_id = $1 ORDER BY id DESC`
	args := []any{participantID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events for %s: %w", participantID, err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate event rows: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) GetSubscription(participantID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.QueryRow(
		`SELECT participant_id, tier, expires_at, updated_at FROM subscriptions WHERE participant_id = $1`,
		participantID,
	).Scan(&sub.ParticipantID, &sub.Tier, &sub.ExpiresAt, &sub.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSubscription failed", "error", err, "participantID", participantID)
		return nil, fmt.Errorf("failed to get subscription for %s: %w", participantID, err)
	}
	return &sub, nil
}

func (s *PostgresStore) SaveSubscription(sub models.Subscription) error {
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO subscriptions (participant_id, tier, expires_at, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (participant_id) DO UPDATE SET tier = EXCLUDED.tier, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at`,
		sub.ParticipantID, sub.Tier, sub.ExpiresAt, sub.UpdatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore SaveSubscription failed", "error", err, "participantID", sub.ParticipantID)
		return fmt.Errorf("failed to save subscription for %s: %w", sub.ParticipantID, err)
	}
	slog.Debug("PostgresStore SaveSubscription succeeded", "participantID", sub.ParticipantID, "tier", sub.Tier)
	return nil
}

// SaveSession stores or replaces the live session of a participant.
func (s *PostgresStore) SaveSession(sess *models.Session) error {
	data, err := encodeSession(sess)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO sessions (participant_id, session_id, step, data, updated_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (participant_id) DO UPDATE SET session_id = EXCLUDED.session_id, step = EXCLUDED.step,
		 data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		sess.ParticipantID, sess.ID, sess.Step, data, time.Now(),
	)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "participantID", sess.ParticipantID)
		return fmt.Errorf("failed to save session for %s: %w", sess.ParticipantID, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "participantID", sess.ParticipantID, "step", sess.Step)
	return nil
}

// GetSession retrieves the live session of a participant.
func (s *PostgresStore) GetSession(participantID string) (*models.Session, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM sessions WHERE participant_id = $1`, participantID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "participantID", participantID)
		return nil, fmt.Errorf("failed to get session for %s: %w", participantID, err)
	}
	return decodeSession(participantID, data)
}

// DeleteSession removes the live session of a participant.
func (s *PostgresStore) DeleteSession(participantID string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE participant_id = $1`, participantID); err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "participantID", participantID)
		return fmt.Errorf("failed to delete session for %s: %w", participantID, err)
	}
	return nil
}
