package scheduler

import (
	"log/slog"
	"time"
)

// Default maintenance settings.
const (
	DefaultMaintenanceSpec = "17 3 * * *"
	DefaultDedupRetention  = 7 * 24 * time.Hour
	DefaultIdleAfter       = 24 * time.Hour
)

// InboundPruner deletes old inbound de-duplication records.
type InboundPruner interface {
	PruneInbound(before time.Time) (int, error)
}

// SessionEvicter drops cached sessions untouched since before.
type SessionEvicter interface {
	EvictIdle(before time.Time) int
}

// Maintenance prunes de-duplication records and evicts idle cached sessions.
type Maintenance struct {
	inbound        InboundPruner
	sessions       SessionEvicter
	dedupRetention time.Duration
	idleAfter      time.Duration
	now            func() time.Time
}

// MaintenanceOption configures Maintenance.
type MaintenanceOption func(*Maintenance)

// WithDedupRetention sets how long inbound message ids are remembered.
func WithDedupRetention(d time.Duration) MaintenanceOption {
	return func(m *Maintenance) { m.dedupRetention = d }
}

// WithIdleAfter sets how long a cached session may stay untouched.
func WithIdleAfter(d time.Duration) MaintenanceOption {
	return func(m *Maintenance) { m.idleAfter = d }
}

// WithMaintenanceClock overrides time.Now.
func WithMaintenanceClock(now func() time.Time) MaintenanceOption {
	return func(m *Maintenance) { m.now = now }
}

// NewMaintenance creates the maintenance job. Either dependency may be nil.
func NewMaintenance(inbound InboundPruner, sessions SessionEvicter, opts ...MaintenanceOption) *Maintenance {
	m := &Maintenance{
		inbound:        inbound,
		sessions:       sessions,
		dedupRetention: DefaultDedupRetention,
		idleAfter:      DefaultIdleAfter,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run performs one maintenance pass.
func (m *Maintenance) Run() {
	now := m.now()
	if m.inbound != nil {
		n, err := m.inbound.PruneInbound(now.Add(-m.dedupRetention))
		if err != nil {
			slog.Error("Maintenance.Run: prune inbound failed", "error", err)
		} else {
			slog.Info("Maintenance.Run: pruned inbound records", "count", n)
		}
	}
	if m.sessions != nil {
		n := m.sessions.EvictIdle(now.Add(-m.idleAfter))
		slog.Info("Maintenance.Run: evicted idle sessions", "count", n)
	}
}

// Register schedules Run on s. An empty spec uses DefaultMaintenanceSpec.
func (m *Maintenance) Register(s *Scheduler, spec string) error {
	if spec == "" {
		spec = DefaultMaintenanceSpec
	}
	return s.AddJob(spec, m.Run)
}
