package store

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/FocusPipe/internal/models"
)

// Compile-time check that PostgresStore implements CallbackRepo.
var _ CallbackRepo = (*PostgresStore)(nil)

func (s *PostgresStore) SaveCallback(cb models.Callback) error {
	if cb.CreatedAt.IsZero() {
		cb.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO callbacks (participant_id, kind, id, session_id, value, fire_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (participant_id, kind) DO UPDATE SET id = EXCLUDED.id, session_id = EXCLUDED.session_id,
		 value = EXCLUDED.value, fire_at = EXCLUDED.fire_at, created_at = EXCLUDED.created_at`,
		cb.ParticipantID, cb.Kind, cb.ID, cb.SessionID, nilIfEmpty(cb.Value), cb.FireAt, cb.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save callback failed: %w", err)
	}
	slog.Debug("PostgresStore.SaveCallback", "participantID", cb.ParticipantID, "kind", cb.Kind, "fireAt", cb.FireAt)
	return nil
}

func (s *PostgresStore) DeleteCallback(participantID string, kind models.CallbackKind, id string) error {
	var err error
	if id == "" {
		_, err = s.db.Exec(`DELETE FROM callbacks WHERE participant_id = $1 AND kind = $2`, participantID, kind)
	} else {
		_, err = s.db.Exec(`DELETE FROM callbacks WHERE participant_id = $1 AND kind = $2 AND id = $3`, participantID, kind, id)
	}
	if err != nil {
		return fmt.Errorf("delete callback failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCallbacks() ([]models.Callback, error) {
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
