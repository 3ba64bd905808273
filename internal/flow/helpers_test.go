package flow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/FocusPipe/internal/admission"
	"github.com/BTreeMap/FocusPipe/internal/models"
	"github.com/BTreeMap/FocusPipe/internal/store"
)

// mockSender records outbound messages and hands out sequential ids.
type mockSender struct {
	mu   sync.Mutex
	sent []models.OutboundMessage
	ids  []string
	next int
	fail error
}

func (m *mockSender) SendMessage(ctx context.Context, msg models.OutboundMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return "", m.fail
	}
	m.next++
	id := fmt.Sprintf("msg-%d", m.next)
	m.sent = append(m.sent, msg)
	m.ids = append(m.ids, id)
	return id, nil
}

func (m *mockSender) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *mockSender) last() models.OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return models.OutboundMessage{}
	}
	return m.sent[len(m.sent)-1]
}

// idFor returns the id of the latest message offering payload.
func (m *mockSender) idFor(payload string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		for _, b := range m.sent[i].FlatButtons() {
			if b.Payload == payload {
				return m.ids[i]
			}
		}
	}
	return ""
}

func (m *mockSender) anyContains(sub string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.sent {
		if strings.Contains(msg.Text, sub) {
			return true
		}
	}
	return false
}

// fakeTimer stands in for *time.Timer; tests fire it by hand.
type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	wasLive := !t.stopped && !t.fired
	t.stopped = true
	return wasLive
}

type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (ft *fakeTimers) afterFunc(d time.Duration, f func()) stopper {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	ft.timers = append(ft.timers, t)
	return t
}

func (ft *fakeTimers) live() []*fakeTimer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	var out []*fakeTimer
	for _, t := range ft.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fire runs a timer the way time.AfterFunc would, regardless of Stop.
func (ft *fakeTimers) fire(t *fakeTimer) {
	ft.mu.Lock()
	t.fired = true
	ft.mu.Unlock()
	t.f()
}

func newFakeScheduler(repo store.CallbackRepo, now time.Time) (*FollowUpScheduler, *fakeTimers) {
	ft := &fakeTimers{}
	var opts []FollowUpOption
	if repo != nil {
		opts = append(opts, WithCallbackRepo(repo))
	}
	s := NewFollowUpScheduler(opts...)
	s.afterFunc = ft.afterFunc
	s.now = func() time.Time { return now }
	return s, ft
}

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type harness struct {
	engine    *Engine
	sender    *mockSender
	store     *store.InMemoryStore
	scheduler *FollowUpScheduler
	timers    *fakeTimers
	sessions  *SessionStore
}

func newHarness(t *testing.T, gateOpts ...admission.Option) *harness {
	t.Helper()
	st := store.NewInMemoryStore()
	clock := func() time.Time { return testNow }
	gate := admission.NewGate(st, st, append([]admission.Option{admission.WithClock(clock)}, gateOpts...)...)
	sessions := NewSessionStore(st)
	sessions.now = clock
	scheduler, timers := newFakeScheduler(st, testNow)
	sender := &mockSender{}
	engine := NewEngine(sessions, scheduler, gate, sender, st,
		WithEngineClock(clock),
		WithMotivator(&StaticMotivator{pick: func(int) int { return 0 }}),
	)
	return &harness{engine: engine, sender: sender, store: st, scheduler: scheduler, timers: timers, sessions: sessions}
}

func (h *harness) grant(t *testing.T, pid string, tier models.TierCode) {
	t.Helper()
	if err := h.store.SaveSubscription(models.Subscription{ParticipantID: pid, Tier: tier, ExpiresAt: testNow.Add(24 * time.Hour)}); err != nil {
		t.Fatalf("SaveSubscription failed: %v", err)
	}
}

// press answers the latest prompt that offers payload.
func (h *harness) press(t *testing.T, pid, payload string) (models.Ack, error) {
	t.Helper()
	return h.engine.HandleButton(context.Background(), pid, h.sender.idFor(payload), payload)
}

func (h *harness) mustPress(t *testing.T, pid, payload string) models.Ack {
	t.Helper()
	ack, err := h.press(t, pid, payload)
	if err != nil {
		t.Fatalf("press %s failed: %v", payload, err)
	}
	return ack
}

func (h *harness) session(t *testing.T, pid string) *models.Session {
	t.Helper()
	sess, err := h.sessions.Get(pid)
	if err != nil {
		t.Fatalf("session lookup failed: %v", err)
	}
	return sess
}

func (h *harness) countEvents(pid string, kind models.EventKind) int {
	n, _ := h.store.CountEvents(pid, kind, testNow.Add(-time.Hour), testNow.Add(time.Hour))
	return n
}

// runToResult drives a participant from start to the result prompt with the
// three reference actions and low energy.
func (h *harness) runToResult(t *testing.T, pid string) {
	t.Helper()
	ctx := context.Background()
	if err := h.engine.Start(ctx, pid); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	h.mustPress(t, pid, "energy:low")
	if err := h.engine.HandleText(ctx, pid, "write report\nclean desk\ncall bank"); err != nil {
		t.Fatalf("actions text failed: %v", err)
	}
	for _, typ := range []string{"mental", "routine", "social"} {
		h.mustPress(t, pid, "type:"+typ)
	}
	scores := [][]int{{5, 5, 1, 5}, {1, 1, 5, 1}, {3, 3, 3, 3}}
	for _, row := range scores {
		for _, v := range row {
			h.mustPress(t, pid, fmt.Sprintf("score:%d", v))
		}
	}
}
