package scheduler

import (
	"errors"
	"testing"
	"time"
)

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler(WithLocation(time.UTC))
	defer s.Stop()
	if err := s.AddJob("* * * * *", func() {}); err != nil {
		t.Errorf("Expected no error adding job, got %v", err)
	}
	if err := s.AddJob("not a spec", func() {}); err == nil {
		t.Error("Expected error for invalid expression")
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 job, got %d", s.Len())
	}
}

type fakePruner struct {
	before time.Time
	err    error
}

func (f *fakePruner) PruneInbound(before time.Time) (int, error) {
	f.before = before
	return 3, f.err
}

type fakeEvicter struct {
	before time.Time
}

func (f *fakeEvicter) EvictIdle(before time.Time) int {
	f.before = before
	return 1
}

func TestMaintenanceRun(t *testing.T) {
	now := time.Date(2026, 3, 10, 3, 17, 0, 0, time.UTC)
	pruner := &fakePruner{}
	evicter := &fakeEvicter{}
	m := NewMaintenance(pruner, evicter,
		WithDedupRetention(48*time.Hour),
		WithIdleAfter(time.Hour),
		WithMaintenanceClock(func() time.Time { return now }))

	m.Run()
	if !pruner.before.Equal(now.Add(-48 * time.Hour)) {
		t.Errorf("unexpected prune cutoff %v", pruner.before)
	}
	if !evicter.before.Equal(now.Add(-time.Hour)) {
		t.Errorf("unexpected eviction cutoff %v", evicter.before)
	}

	// A failing prune does not stop eviction.
	pruner.err = errors.New("db closed")
	evicter.before = time.Time{}
	m.Run()
	if evicter.before.IsZero() {
		t.Error("expected eviction after prune failure")
	}
}

func TestMaintenanceRegister(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	m := NewMaintenance(nil, nil)
	m.Run()
	if err := m.Register(s, ""); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("expected maintenance job registered, got %d", s.Len())
	}
}
