package models

import "time"

// EventKind names an entry in the participant event log.
type EventKind string

const (
	EventStartFlow      EventKind = "start_flow"
	EventQuotaDenied    EventKind = "quota_denied"
	EventEnergy         EventKind = "energy"
	EventActionsSet     EventKind = "actions_set"
	EventType           EventKind = "type"
	EventScore          EventKind = "score"
	EventFocus          EventKind = "focus"
	EventStarted        EventKind = "started"
	EventDelayed        EventKind = "delayed"
	EventDelayDenied    EventKind = "delay_denied"
	EventSkip           EventKind = "skip"
	EventCheckSent      EventKind = "check_sent"
	EventReminderSent   EventKind = "reminder_sent"
	EventSupportSent    EventKind = "support_sent"
	EventProgress       EventKind = "progress"
	EventQuitAction     EventKind = "quit_action"
	EventCallbackMissed EventKind = "callback_missed"
	EventTierGranted    EventKind = "tier_granted"
)

// Event is one append-only log entry.
type Event struct {
	ID            int64     `json:"id,omitempty"`
	ParticipantID string    `json:"participant_id"`
	Kind          EventKind `json:"kind"`
	Value         string    `json:"value,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
