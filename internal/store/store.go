// Package store provides storage backends for FocusPipe.
//
// It includes an in-memory store plus SQLite and PostgreSQL stores for the event
// log, tier grants, live sessions, armed follow-up callbacks and inbound
// de-duplication records.
package store

import (
	"time"

	"github.com/BTreeMap/FocusPipe/internal/models"
)

// EventLog is the append-only participant event log.
type EventLog interface {
	// AppendEvent appends one entry. CreatedAt defaults to now when zero.
	AppendEvent(e models.Event) error
	// CountEvents counts entries of kind with since <= created_at < until.
	CountEvents(participantID string, kind models.EventKind, since, until time.Time) (int, error)
	// ListEvents returns the most recent entries for a participant, newest first.
	ListEvents(participantID string, limit int) ([]models.Event, error)
}

// SubscriptionRepo persists tier grants.
type SubscriptionRepo interface {
	GetSubscription(participantID string) (*models.Subscription, error)
	SaveSubscription(sub models.Subscription) error
}

// SessionRepo persists the live session of each participant.
type SessionRepo interface {
	SaveSession(sess *models.Session) error
	// GetSession returns nil, nil when the participant has no stored session.
	GetSession(participantID string) (*models.Session, error)
	DeleteSession(participantID string) error
}

// Store is the full persistence surface used by the service.
type Store interface {
	EventLog
	SubscriptionRepo
	SessionRepo
	CallbackRepo
	DedupRepo
	Close() error
}

// Compile-time checks that every backend implements Store.
var (
	_ Store = (*InMemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
