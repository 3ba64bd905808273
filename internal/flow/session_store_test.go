package flow

import (
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/FocusPipe/internal/models"
	"github.com/BTreeMap/FocusPipe/internal/store"
)

func TestSessionStore_WriteThroughAndLazyLoad(t *testing.T) {
	repo := store.NewInMemoryStore()
	s := NewSessionStore(repo)

	sess := models.NewSession("s1", "p1", models.TierFree, testNow)
	if err := s.Replace(sess); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	stored, err := repo.GetSession("p1")
	if err != nil || stored == nil || stored.ID != "s1" {
		t.Fatalf("expected write-through, got %+v (err=%v)", stored, err)
	}

	// A fresh store sees the persisted session.
	other := NewSessionStore(repo)
	got, err := other.Get("p1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil || got.ID != "s1" {
		t.Fatalf("expected lazy load of s1, got %+v", got)
	}

	if err := other.Delete("p1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if stored, _ := repo.GetSession("p1"); stored != nil {
		t.Errorf("expected session deleted from repo, got %+v", stored)
	}
}

func TestSessionStore_GetReturnsCopy(t *testing.T) {
	s := NewSessionStore(nil)
	if err := s.Replace(models.NewSession("s1", "p1", models.TierFree, testNow)); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	got, _ := s.Get("p1")
	got.Step = models.StepIdle
	got.Bind(models.PhaseEnergy, "x")

	again, _ := s.Get("p1")
	if again.Step != models.StepEnergy {
		t.Errorf("mutating a copy changed the live session")
	}
	if _, ok := again.Bindings[models.PhaseEnergy]; ok {
		t.Errorf("mutating a copy's bindings changed the live session")
	}
}

func TestSessionStore_UnlockWithoutChangesDoesNotWrite(t *testing.T) {
	repo := store.NewInMemoryStore()
	s := NewSessionStore(repo)
	h, err := s.Lock("p1")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if h.Session() != nil {
		t.Fatal("expected no session")
	}
	if err := h.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if stored, _ := repo.GetSession("p1"); stored != nil {
		t.Errorf("expected nothing persisted, got %+v", stored)
	}
}

func TestSessionStore_SerializesParticipant(t *testing.T) {
	s := NewSessionStore(nil)
	if err := s.Replace(models.NewSession("s1", "p1", models.TierFree, testNow)); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := s.Lock("p1")
			if err != nil {
				t.Errorf("Lock failed: %v", err)
				return
			}
			sess := h.Session()
			n := sess.ActionIndex
			time.Sleep(time.Microsecond)
			sess.ActionIndex = n + 1
			h.MarkDirty()
			h.Unlock()
		}()
	}
	wg.Wait()

	got, _ := s.Get("p1")
	if got.ActionIndex != workers {
		t.Errorf("expected %d serialized increments, got %d", workers, got.ActionIndex)
	}
}

func TestSessionStore_EvictIdle(t *testing.T) {
	repo := store.NewInMemoryStore()
	s := NewSessionStore(repo)
	now := testNow
	s.now = func() time.Time { return now }

	if err := s.Replace(models.NewSession("s1", "p1", models.TierFree, now)); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	held, err := s.Lock("p2")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	if n := s.EvictIdle(now.Add(-time.Minute)); n != 0 {
		t.Errorf("expected nothing evicted before the cutoff, got %d", n)
	}
	if n := s.EvictIdle(now.Add(time.Minute)); n != 1 {
		t.Errorf("expected p1 evicted and held p2 kept, got %d", n)
	}
	held.Unlock()

	got, err := s.Get("p1")
	if err != nil || got == nil || got.ID != "s1" {
		t.Fatalf("expected evicted session to reload from repo, got %+v (err=%v)", got, err)
	}
}

func TestSessionStore_EvictIdleWithoutRepoKeepsSessions(t *testing.T) {
	s := NewSessionStore(nil)
	s.now = func() time.Time { return testNow }
	if err := s.Replace(models.NewSession("s1", "p1", models.TierFree, testNow)); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	if _, err := s.Get("p2"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if n := s.EvictIdle(testNow.Add(time.Hour)); n != 1 {
		t.Errorf("expected only the empty entry evicted, got %d", n)
	}
	if got, _ := s.Get("p1"); got == nil {
		t.Fatal("live session lost without a repo")
	}
}
