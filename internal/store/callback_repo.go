// Package store provides the CallbackRepo interface for armed follow-up callbacks.
package store

import "github.com/BTreeMap/FocusPipe/internal/models"

// CallbackRepo persists armed follow-up callbacks so they can be re-armed after a
// restart. Records are keyed by (participant, kind); saving replaces.
type CallbackRepo interface {
	// SaveCallback inserts or replaces the callback for its participant and kind.
	SaveCallback(cb models.Callback) error

	// DeleteCallback removes the callback for participant and kind. When id is
	// non-empty only a record with that id is removed, so a fired callback cannot
	// delete a newer arming of the same kind.
	DeleteCallback(participantID string, kind models.CallbackKind, id string) error

	// ListCallbacks returns every stored callback ordered by fire time.
	ListCallbacks() ([]models.Callback, error)
}
