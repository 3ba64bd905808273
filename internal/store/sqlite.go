// Package store provides storage backends for FocusPipe.
//
// This file implements an SQLite-backed store for events, tier grants and sessions.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/FocusPipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// A single connection serializes writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}

func (s *SQLiteStore) AppendEvent(e models.Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO events (participant_id, kind, value, created_at) VALUES (?, ?, ?, ?)`,
		e.ParticipantID, e.Kind, nilIfEmpty(e.Value), e.CreatedAt.UTC())
	if err != nil {
		slog.Error("SQLiteStore AppendEvent failed", "error", err, "participantID", e.ParticipantID, "kind", e.Kind)
		return fmt.Errorf("failed to append %s event for %s: %w", e.Kind, e.ParticipantID, err)
	}
	return nil
}

func (s *SQLiteStore) CountEvents(participantID string, kind models.EventKind, since, until time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM events WHERE participant_id = ? AND kind = ? AND created_at >= ? AND created_at < ?`,
		participantID, kind, since.UTC(), until.UTC(),
	).Scan(&n)
	if err != nil {
		slog.Error("SQLiteStore CountEvents failed", "error", err, "participantID", participantID, "kind", kind)
		return 0, fmt.Errorf("failed to count %s events for %s: %w", kind, participantID, err)
	}
	return n, nil
}

func (s *SQLiteStore) ListEvents(participantID string, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT id, participant_id, kind, value, created_at FROM events WHERE participant_id = ? ORDER BY id DESC LIMIT ?`,
		participantID, limit,
	)
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

func (s *SQLiteStore) GetSubscription(participantID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.QueryRow(
		`SELECT participant_id, tier, expires_at, updated_at FROM subscriptions WHERE participant_id = ?`,
		participantID,
	).Scan(&sub.ParticipantID, &sub.Tier, &sub.ExpiresAt, &sub.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSubscription failed", "error", err, "participantID", participantID)
		return nil, fmt.Errorf("failed to get subscription for %s: %w", participantID, err)
	}
	return &sub, nil
}

func (s *SQLiteStore) SaveSubscription(sub models.Subscription) error {
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO subscriptions (participant_id, tier, expires_at, updated_at) VALUES (?, ?, ?, ?)`,
		sub.ParticipantID, sub.Tier, sub.ExpiresAt.UTC(), sub.UpdatedAt.UTC(),
	)
	if err != nil {
		slog.Error("SQLiteStore SaveSubscription failed", "error", err, "participantID", sub.ParticipantID)
		return fmt.Errorf("failed to save subscription for %s: %w", sub.ParticipantID, err)
	}
	slog.Debug("SQLiteStore SaveSubscription succeeded", "participantID", sub.ParticipantID, "tier", sub.Tier)
	return nil
}

// SaveSession stores or replaces the live session of a participant.
func (s *SQLiteStore) SaveSession(sess *models.Session) error {
	data, err := encodeSession(sess)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO sessions (participant_id, session_id, step, data, updated_at) VALUES (?, ?, ?, ?, ?)`,
		sess.ParticipantID, sess.ID, sess.Step, data, time.Now().UTC(),
	)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "participantID", sess.ParticipantID)
		return fmt.Errorf("failed to save session for %s: %w", sess.ParticipantID, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "participantID", sess.ParticipantID, "step", sess.Step)
	return nil
}

// GetSession retrieves the live session of a participant.
func (s *SQLiteStore) GetSession(participantID string) (*models.Session, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM sessions WHERE participant_id = ?`, participantID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "participantID", participantID)
		return nil, fmt.Errorf("failed to get session for %s: %w", participantID, err)
	}
	return decodeSession(participantID, data)
}

// DeleteSession removes the live session of a participant.
func (s *SQLiteStore) DeleteSession(participantID string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE participant_id = ?`, participantID); err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "participantID", participantID)
		return fmt.Errorf("failed to delete session for %s: %w", participantID, err)
	}
	return nil
}
