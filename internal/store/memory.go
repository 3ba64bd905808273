package store

import (
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/FocusPipe/internal/models"
)

// InMemoryStore keeps everything in process memory. It backs tests and the
// console transport.
type InMemoryStore struct {
	mu        sync.RWMutex
	events    []models.Event
	nextEvent int64
	subs      map[string]models.Subscription
	sessions  map[string]*models.Session
	callbacks map[string]models.Callback
	inbound   map[string]DedupRecord
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		subs:      make(map[string]models.Subscription),
		sessions:  make(map[string]*models.Session),
		callbacks: make(map[string]models.Callback),
		inbound:   make(map[string]DedupRecord),
	}
}

func callbackKey(participantID string, kind models.CallbackKind) string {
	return participantID + "|" + string(kind)
}

func (s *InMemoryStore) AppendEvent(e models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	s.nextEvent++
	e.ID = s.nextEvent
	s.events = append(s.events, e)
	return nil
}

func (s *InMemoryStore) CountEvents(participantID string, kind models.EventKind, since, until time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.events {
		if e.ParticipantID == participantID && e.Kind == kind && !e.CreatedAt.Before(since) && e.CreatedAt.Before(until) {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) ListEvents(participantID string, limit int) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].ParticipantID != participantID {
			continue
		}
		out = append(out, s.events[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) GetSubscription(participantID string) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[participantID]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (s *InMemoryStore) SaveSubscription(sub models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.ParticipantID] = sub
	return nil
}

func (s *InMemoryStore) SaveSession(sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ParticipantID] = sess.Clone()
	return nil
}

func (s *InMemoryStore) GetSession(participantID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[participantID]
	if !ok {
		return nil, nil
	}
	return sess.Clone(), nil
}

func (s *InMemoryStore) DeleteSession(participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, participantID)
	return nil
}

func (s *InMemoryStore) SaveCallback(cb models.Callback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks[callbackKey(cb.ParticipantID, cb.Kind)] = cb
	return nil
}

func (s *InMemoryStore) DeleteCallback(participantID string, kind models.CallbackKind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := callbackKey(participantID, kind)
	if cb, ok := s.callbacks[key]; ok && (id == "" || cb.ID == id) {
		delete(s.callbacks, key)
	}
	return nil
}

func (s *InMemoryStore) ListCallbacks() ([]models.Callback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Callback, 0, len(s.callbacks))
	for _, cb := range s.callbacks {
		out = append(out, cb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out, nil
}

func (s *InMemoryStore) IsDuplicate(messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.inbound[messageID]
	return ok, nil
}

func (s *InMemoryStore) RecordInbound(messageID, participantID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inbound[messageID]; ok {
		return false, nil
	}
	s.inbound[messageID] = DedupRecord{MessageID: messageID, ParticipantID: participantID, ReceivedAt: time.Now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.inbound[messageID]; ok {
		now := time.Now()
		rec.ProcessedAt = &now
		s.inbound[messageID] = rec
	}
	return nil
}

func (s *InMemoryStore) PruneInbound(before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, rec := range s.inbound {
		if rec.ReceivedAt.Before(before) {
			delete(s.inbound, id)
			n++
		}
	}
	return n, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
