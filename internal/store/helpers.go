package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/FocusPipe/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanCallback scans a Callback in column order
// id, participant_id, kind, session_id, value, fire_at, created_at.
func scanCallback(row scanner) (models.Callback, error) {
	var cb models.Callback
	var value sql.NullString
	err := row.Scan(&cb.ID, &cb.ParticipantID, &cb.Kind, &cb.SessionID, &value, &cb.FireAt, &cb.CreatedAt)
	if err != nil {
		return cb, fmt.Errorf("scan callback failed: %w", err)
	}
	cb.Value = value.String
	return cb, nil
}

// scanEvent scans an Event in column order id, participant_id, kind, value, created_at.
func scanEvent(row scanner) (models.Event, error) {
	var e models.Event
	var value sql.NullString
	if err := row.Scan(&e.ID, &e.ParticipantID, &e.Kind, &value, &e.CreatedAt); err != nil {
		return e, fmt.Errorf("scan event failed: %w", err)
	}
	e.Value = value.String
	return e, nil
}

// encodeSession serializes a session for the data column.
func encodeSession(sess *models.Session) (string, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("failed to encode session for %s: %w", sess.ParticipantID, err)
	}
	return string(data), nil
}

// decodeSession parses the data column back into a session.
func decodeSession(participantID, data string) (*models.Session, error) {
	var sess models.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session for %s: %w", participantID, err)
	}
	if sess.Bindings == nil {
		sess.Bindings = make(map[models.Phase]models.Binding)
	}
	return &sess, nil
}
