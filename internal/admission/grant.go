package admission

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/BTreeMap/FocusPipe/internal/models"
)

// SubscriptionStore reads and writes tier grants.
type SubscriptionStore interface {
	SubscriptionReader
	SaveSubscription(sub models.Subscription) error
}

// EventAppender appends to the participant event log.
type EventAppender interface {
	AppendEvent(e models.Event) error
}

// Granter applies paid tier grants. It is the only writer of subscriptions.
type Granter struct {
	subs   SubscriptionStore
	events EventAppender
	plans  Plans
	now    func() time.Time
}

// NewGranter creates a Granter validating tiers against plans.
func NewGranter(subs SubscriptionStore, events EventAppender, plans Plans) *Granter {
	return &Granter{subs: subs, events: events, plans: plans, now: time.Now}
}

// GrantTier gives participantID the tier for days. An active grant of the same
// tier is extended from its current expiry.
func (g *Granter) GrantTier(participantID string, tier models.TierCode, days int) (models.Subscription, error) {
	if participantID == "" {
		return models.Subscription{}, fmt.Errorf("participant id cannot be empty")
	}
	if days <= 0 {
		return models.Subscription{}, fmt.Errorf("%w: %d", models.ErrInvalidGrantDays, days)
	}
	if _, ok := g.plans[tier]; !ok || tier == models.TierAdmin || tier == models.TierFree {
		return models.Subscription{}, fmt.Errorf("%w: %q", models.ErrUnknownTier, tier)
	}

	now := g.now()
	from := now
	existing, err := g.subs.GetSubscription(participantID)
	if err != nil {
		return models.Subscription{}, fmt.Errorf("failed to read subscription for %s: %w", participantID, err)
	}
	if existing != nil && existing.Tier == tier && existing.Active(now) {
		from = existing.ExpiresAt
	}

	sub := models.Subscription{
		ParticipantID: participantID,
		Tier:          tier,
		ExpiresAt:     from.AddDate(0, 0, days),
		UpdatedAt:     now,
	}
	if err := g.subs.SaveSubscription(sub); err != nil {
		return models.Subscription{}, fmt.Errorf("failed to save subscription for %s: %w", participantID, err)
	}
	if err := g.events.AppendEvent(models.Event{
		ParticipantID: participantID,
		Kind:          models.EventTierGranted,
		Value:         string(tier) + ":" + strconv.Itoa(days),
		CreatedAt:     now,
	}); err != nil {
		slog.Error("Granter.GrantTier: failed to append event", "error", err, "participantID", participantID)
	}
	slog.Info("Granter.GrantTier: tier granted", "participantID", participantID, "tier", tier, "expiresAt", sub.ExpiresAt)
	return sub, nil
}
