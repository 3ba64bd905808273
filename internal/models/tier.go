package models

import "time"

// TierCode names a subscription tier.
type TierCode string

const (
	TierFree    TierCode = "free"
	TierBasic   TierCode = "basic"
	TierPremium TierCode = "premium"
	TierAdmin   TierCode = "admin"
)

// Subscription is a participant's persisted tier grant.
type Subscription struct {
	ParticipantID string    `json:"participant_id"`
	Tier          TierCode  `json:"tier"`
	ExpiresAt     time.Time `json:"expires_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Active reports whether the grant is still in force at now.
func (s Subscription) Active(now time.Time) bool {
	return s.Tier != "" && now.Before(s.ExpiresAt)
}
