package flow

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/FocusPipe/internal/models"
	"github.com/BTreeMap/FocusPipe/internal/store"
	"github.com/BTreeMap/FocusPipe/internal/util"
)

// CallbackHandler performs the side effect of a fired follow-up.
type CallbackHandler func(ctx context.Context, cb models.Callback)

// stopper is the part of *time.Timer the scheduler uses.
type stopper interface {
	Stop() bool
}

type followUpKey struct {
	participantID string
	kind          models.CallbackKind
}

// followUpEntry tracks one armed callback
type followUpEntry struct {
	cb          models.Callback
	timer       stopper
	gen         uint64
	scheduledAt time.Time
}

type followUpShard struct {
	mu      sync.Mutex
	entries map[followUpKey]*followUpEntry
}

// FollowUpScheduler keeps at most one armed callback per (participant, kind).
// Arming is cancel-then-set. A fired callback is removed from the set before
// its handler runs. Callers serialize Arm and Cancel per participant.
type FollowUpScheduler struct {
	shards  [sessionShards]*followUpShard
	repo    store.CallbackRepo
	handler CallbackHandler
	gen     uint64
	genMu   sync.Mutex
	ctx     context.Context

	afterFunc func(time.Duration, func()) stopper
	now       func() time.Time
}

// FollowUpOption configures a FollowUpScheduler.
type FollowUpOption func(*FollowUpScheduler)

// WithCallbackRepo persists armed callbacks so they survive a restart.
func WithCallbackRepo(repo store.CallbackRepo) FollowUpOption {
	return func(s *FollowUpScheduler) { s.repo = repo }
}

// WithFireContext sets the base context handed to callback handlers.
func WithFireContext(ctx context.Context) FollowUpOption {
	return func(s *FollowUpScheduler) { s.ctx = ctx }
}

// NewFollowUpScheduler creates a scheduler backed by time.AfterFunc.
func NewFollowUpScheduler(opts ...FollowUpOption) *FollowUpScheduler {
	slog.Debug("Creating FollowUpScheduler")
	s := &FollowUpScheduler{
		ctx: context.Background(),
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		now: time.Now,
	}
	for i := range s.shards {
		s.shards[i] = &followUpShard{entries: make(map[followUpKey]*followUpEntry)}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetHandler installs the fire handler. It must be set before the first Arm.
func (s *FollowUpScheduler) SetHandler(h CallbackHandler) {
	s.handler = h
}

func (s *FollowUpScheduler) shard(participantID string) *followUpShard {
	h := fnv.New32a()
	h.Write([]byte(participantID))
	return s.shards[h.Sum32()%sessionShards]
}

func (s *FollowUpScheduler) nextGen() uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.gen++
	return s.gen
}

// Arm schedules kind for participantID after delay, replacing any armed
// callback of the same kind.
func (s *FollowUpScheduler) Arm(participantID string, kind models.CallbackKind, delay time.Duration, sessionID, value string) (models.Callback, error) {
	if delay < 0 {
		delay = 0
	}
	now := s.now()
	cb := models.Callback{
		ID:            util.GenerateCallbackID(),
		ParticipantID: participantID,
		Kind:          kind,
		SessionID:     sessionID,
		Value:         value,
		FireAt:        now.Add(delay),
		CreatedAt:     now,
	}
	s.install(cb, delay, now)

	if s.repo != nil {
		if err := s.repo.SaveCallback(cb); err != nil {
			slog.Error("FollowUpScheduler.Arm: persist failed", "error", err, "participantID", participantID, "kind", kind)
			return cb, fmt.Errorf("failed to persist %s callback: %w", kind, err)
		}
	}
	slog.Debug("FollowUpScheduler.Arm", "participantID", participantID, "kind", kind, "delay", delay)
	return cb, nil
}

// Restore arms an already persisted callback in memory.
func (s *FollowUpScheduler) Restore(cb models.Callback, delay time.Duration) error {
	if !models.ValidCallbackKind(cb.Kind) {
		return fmt.Errorf("unknown callback kind %q", cb.Kind)
	}
	if delay < 0 {
		delay = 0
	}
	s.install(cb, delay, s.now())
	return nil
}

func (s *FollowUpScheduler) install(cb models.Callback, delay time.Duration, now time.Time) {
	key := followUpKey{cb.ParticipantID, cb.Kind}
	gen := s.nextGen()
	sh := s.shard(cb.ParticipantID)

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if old, ok := sh.entries[key]; ok {
		old.timer.Stop()
	}
	entry := &followUpEntry{cb: cb, gen: gen, scheduledAt: now}
	entry.timer = s.afterFunc(delay, func() { s.fire(key, gen) })
	sh.entries[key] = entry
}

// fire removes the entry if it is still the current arming, then runs the handler.
func (s *FollowUpScheduler) fire(key followUpKey, gen uint64) {
	sh := s.shard(key.participantID)
	sh.mu.Lock()
	entry, ok := sh.entries[key]
	if !ok || entry.gen != gen {
		sh.mu.Unlock()
		return
	}
	delete(sh.entries, key)
	sh.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.DeleteCallback(key.participantID, key.kind, entry.cb.ID); err != nil {
			slog.Error("FollowUpScheduler.fire: failed to drop persisted callback", "error", err, "participantID", key.participantID, "kind", key.kind)
		}
	}

	slog.Debug("FollowUpScheduler executing callback", "participantID", key.participantID, "kind", key.kind)
	if s.handler == nil {
		slog.Warn("FollowUpScheduler.fire: no handler installed", "kind", key.kind)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("FollowUpScheduler.fire: handler panicked", "panic", r, "participantID", key.participantID, "kind", key.kind)
		}
	}()
	s.handler(s.ctx, entry.cb)
}

// Cancel disarms kind for participantID. Cancelling an unarmed kind is a no-op.
func (s *FollowUpScheduler) Cancel(participantID string, kind models.CallbackKind) {
	key := followUpKey{participantID, kind}
	sh := s.shard(participantID)
	sh.mu.Lock()
	entry, ok := sh.entries[key]
	if ok {
		entry.timer.Stop()
		delete(sh.entries, key)
	}
	sh.mu.Unlock()
	if !ok {
		return
	}

	if s.repo != nil {
		if err := s.repo.DeleteCallback(participantID, kind, entry.cb.ID); err != nil {
			slog.Error("FollowUpScheduler.Cancel: failed to drop persisted callback", "error", err, "participantID", participantID, "kind", kind)
		}
	}
	slog.Debug("FollowUpScheduler.Cancel succeeded", "participantID", participantID, "kind", kind)
}

// CancelAll disarms every kind for participantID.
func (s *FollowUpScheduler) CancelAll(participantID string) {
	for _, kind := range models.CallbackKinds {
		s.Cancel(participantID, kind)
	}
}

// IsArmed reports whether kind is armed for participantID.
func (s *FollowUpScheduler) IsArmed(participantID string, kind models.CallbackKind) bool {
	_, ok := s.Pending(participantID, kind)
	return ok
}

// Pending returns the armed callback of kind, if any.
func (s *FollowUpScheduler) Pending(participantID string, kind models.CallbackKind) (models.Callback, bool) {
	sh := s.shard(participantID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	entry, ok := sh.entries[followUpKey{participantID, kind}]
	if !ok {
		return models.Callback{}, false
	}
	return entry.cb, true
}

// Armed returns the callbacks armed for participantID in kind order.
func (s *FollowUpScheduler) Armed(participantID string) []models.Callback {
	var out []models.Callback
	for _, kind := range models.CallbackKinds {
		if cb, ok := s.Pending(participantID, kind); ok {
			out = append(out, cb)
		}
	}
	return out
}

// Stop disarms every in-memory timer. Persisted callbacks are kept for recovery.
func (s *FollowUpScheduler) Stop() {
	count := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, entry := range sh.entries {
			entry.timer.Stop()
			count++
		}
		sh.entries = make(map[followUpKey]*followUpEntry)
		sh.mu.Unlock()
	}
	slog.Info("FollowUpScheduler stopped all timers", "count", count)
}

// ListActive returns information about all armed callbacks.
func (s *FollowUpScheduler) ListActive() []models.TimerInfo {
	now := s.now()
	result := make([]models.TimerInfo, 0)
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, entry := range sh.entries {
			remaining := entry.cb.FireAt.Sub(now)
			if remaining < 0 {
				remaining = 0
			}
			result = append(result, models.TimerInfo{
				ParticipantID: entry.cb.ParticipantID,
				Kind:          entry.cb.Kind,
				SessionID:     entry.cb.SessionID,
				ScheduledAt:   entry.scheduledAt,
				ExpiresAt:     entry.cb.FireAt,
				Remaining:     remaining.String(),
			})
		}
		sh.mu.Unlock()
	}
	slog.Debug("FollowUpScheduler ListActive", "count", len(result))
	return result
}
