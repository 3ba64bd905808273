// Package admission decides whether a participant may start a focus session today
// and owns the tier grant hook used by the payment collaborator.
package admission

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/FocusPipe/internal/models"
)

// SubscriptionReader reads persisted tier grants.
type SubscriptionReader interface {
	GetSubscription(participantID string) (*models.Subscription, error)
}

// EventCounter counts log entries of one kind in a time window.
type EventCounter interface {
	CountEvents(participantID string, kind models.EventKind, since, until time.Time) (int, error)
}

// Decision is the outcome of TryStart.
type Decision struct {
	Allowed bool            `json:"allowed"`
	Tier    models.TierCode `json:"tier"`
	Plan    Plan            `json:"plan"`
	Used    int             `json:"used"`
	Reason  string          `json:"reason,omitempty"`
}

// Gate applies tier caps to session starts.
type Gate struct {
	subs   SubscriptionReader
	events EventCounter
	plans  Plans
	admins map[string]bool
	loc    *time.Location
	now    func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithAdmins adds participant ids that are always admitted.
func WithAdmins(ids ...string) Option {
	return func(g *Gate) {
		for _, id := range ids {
			if id != "" {
				g.admins[id] = true
			}
		}
	}
}

// WithPlans replaces the tier table.
func WithPlans(plans Plans) Option {
	return func(g *Gate) { g.plans = plans }
}

// WithLocation sets the time zone that defines a day.
func WithLocation(loc *time.Location) Option {
	return func(g *Gate) {
		if loc != nil {
			g.loc = loc
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// NewGate creates a Gate over the given tier and usage sources.
func NewGate(subs SubscriptionReader, events EventCounter, opts ...Option) *Gate {
	g := &Gate{
		subs:   subs,
		events: events,
		plans:  DefaultPlans(),
		admins: make(map[string]bool),
		loc:    time.UTC,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	slog.Debug("Gate created", "tiers", len(g.plans), "admins", len(g.admins), "location", g.loc.String())
	return g
}

// IsAdmin reports whether participantID is in the admin set.
func (g *Gate) IsAdmin(participantID string) bool {
	return g.admins[participantID]
}

// EffectiveTier resolves the tier in force for a participant. Admins resolve to
// the admin tier; missing, unknown or expired grants resolve to free.
func (g *Gate) EffectiveTier(participantID string) (models.TierCode, error) {
	if g.IsAdmin(participantID) {
		return models.TierAdmin, nil
	}
	sub, err := g.subs.GetSubscription(participantID)
	if err != nil {
		return "", fmt.Errorf("failed to read subscription for %s: %w", participantID, err)
	}
	if sub == nil || !sub.Active(g.now()) {
		return models.TierFree, nil
	}
	if _, ok := g.plans[sub.Tier]; !ok {
		slog.Warn("Gate.EffectiveTier: unknown tier on subscription, using free", "participantID", participantID, "tier", sub.Tier)
		return models.TierFree, nil
	}
	return sub.Tier, nil
}

// Plan returns the plan of tier, falling back to free.
func (g *Gate) Plan(tier models.TierCode) Plan {
	if p, ok := g.plans[tier]; ok {
		return p
	}
	return g.plans[models.TierFree]
}

// Plans returns the tier table.
func (g *Gate) Plans() Plans {
	return g.plans
}

// DayBounds returns the start and end of the current day in the gate's zone.
func (g *Gate) DayBounds() (time.Time, time.Time) {
	now := g.now().In(g.loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, g.loc)
	return start, start.AddDate(0, 0, 1)
}

// CountToday counts today's events of kind for a participant.
func (g *Gate) CountToday(participantID string, kind models.EventKind) (int, error) {
	start, end := g.DayBounds()
	n, err := g.events.CountEvents(participantID, kind, start, end)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s events for %s: %w", kind, participantID, err)
	}
	return n, nil
}

// TryStart decides whether a new session may begin. A denial carries a reason
// naming the cap and the tier. TryStart never writes.
func (g *Gate) TryStart(participantID string) (Decision, error) {
	tier, err := g.EffectiveTier(participantID)
	if err != nil {
		return Decision{}, err
	}
	plan := g.Plan(tier)
	d := Decision{Allowed: true, Tier: tier, Plan: plan}
	if tier == models.TierAdmin || plan.Unlimited {
		slog.Debug("Gate.TryStart: unlimited tier", "participantID", participantID, "tier", tier)
		return d, nil
	}

	used, err := g.CountToday(participantID, models.EventFocus)
	if err != nil {
		return Decision{}, err
	}
	d.Used = used
	if used >= plan.DailyCap {
		d.Allowed = false
		d.Reason = fmt.Sprintf("You've reached today's limit of %d focus sessions on the %s plan. Come back tomorrow or upgrade your plan.",
			plan.DailyCap, plan.Label)
		slog.Info("Gate.TryStart: denied", "participantID", participantID, "tier", tier, "used", used, "cap", plan.DailyCap)
		return d, nil
	}
	slog.Debug("Gate.TryStart: allowed", "participantID", participantID, "tier", tier, "used", used, "cap", plan.DailyCap)
	return d, nil
}

// ActiveGrant returns the participant's grant when it is still in force.
func (g *Gate) ActiveGrant(participantID string) (*models.Subscription, error) {
	sub, err := g.subs.GetSubscription(participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to read subscription for %s: %w", participantID, err)
	}
	if sub == nil || !sub.Active(g.now()) {
		return nil, nil
	}
	return sub, nil
}

// Location returns the time zone that defines a day.
func (g *Gate) Location() *time.Location {
	return g.loc
}
