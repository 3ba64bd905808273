package models

import "time"

// CallbackKind names a follow-up timer slot. A participant holds at most one
// armed callback per kind.
type CallbackKind string

const (
	CallbackCheck   CallbackKind = "check"
	CallbackRemind  CallbackKind = "remind"
	CallbackSupport CallbackKind = "support"
)

// CallbackKinds lists every kind, in cancellation order.
var CallbackKinds = []CallbackKind{CallbackCheck, CallbackRemind, CallbackSupport}

// Callback is an armed follow-up and its payload.
type Callback struct {
	// ID identifies one arming; re-arming the same kind produces a new ID.
	ID            string       `json:"id"`
	ParticipantID string       `json:"participant_id"`
	Kind          CallbackKind `json:"kind"`
	SessionID     string       `json:"session_id"`
	// Value is a short annotation logged with the fire event, such as "10m".
	Value     string    `json:"value,omitempty"`
	FireAt    time.Time `json:"fire_at"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidCallbackKind reports whether k is one of the known kinds.
func ValidCallbackKind(k CallbackKind) bool {
	for _, kind := range CallbackKinds {
		if kind == k {
			return true
		}
	}
	return false
}
