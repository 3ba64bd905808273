package store

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/FocusPipe/internal/models"
)

// Compile-time check that SQLiteStore implements CallbackRepo.
var _ CallbackRepo = (*SQLiteStore)(nil)

func (s *SQLiteStore) SaveCallback(cb models.Callback) error {
	if cb.CreatedAt.IsZero() {
		cb.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO callbacks (participant_id, kind, id, session_id, value, fire_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cb.ParticipantID, cb.Kind, cb.ID, cb.SessionID, nilIfEmpty(cb.Value), cb.FireAt.UTC(), cb.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save callback failed: %w", err)
	}
	slog.Debug("SQLiteStore.SaveCallback", "participantID", cb.ParticipantID, "kind", cb.Kind, "fireAt", cb.FireAt)
	return nil
}

func (s *SQLiteStore) DeleteCallback(participantID string, kind models.CallbackKind, id string) error {
	var err error
	if id == "" {
		_, err = s.db.Exec(`DELETE FROM callbacks WHERE participant_id = ? AND kind = ?`, participantID, kind)
	} else {
		_, err = s.db.Exec(`DELETE FROM callbacks WHERE participant_id = ? AND kind = ? AND id = ?`, participantID, kind, id)
	}
	if err != nil {
		return fmt.Errorf("delete callback failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListCallbacks() ([]models.Callback, error) {
	rows, err := s.db.Query(
		`SELECT id, participant_id, kind, session_id, value, fire_at, created_at FROM callbacks ORDER BY fire_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list callbacks query failed: %w", err)
	}
	defer rows.Close()

	var out []models.Callback
	for rows.Next() {
		cb, err := scanCallback(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list callbacks iteration failed: %w", err)
	}
	return out, nil
}
