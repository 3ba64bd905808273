package flow

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/FocusPipe/internal/models"
	"github.com/BTreeMap/FocusPipe/internal/store"
)

const sessionShards = 32

// SessionStore holds the live session of each participant. Entries are locked
// per participant; the shard locks only guard the maps. With a repo configured,
// sessions are loaded lazily and written through on Unlock.
type SessionStore struct {
	shards [sessionShards]*sessionShard
	repo   store.SessionRepo
	now    func() time.Time
}

type sessionShard struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry
}

type sessionEntry struct {
	mu      sync.Mutex
	sess    *models.Session
	loaded  bool
	touched time.Time
	refs    int // guarded by the shard mutex
}

// NewSessionStore creates a session store. repo may be nil for a purely
// in-memory store.
func NewSessionStore(repo store.SessionRepo) *SessionStore {
	s := &SessionStore{repo: repo, now: time.Now}
	for i := range s.shards {
		s.shards[i] = &sessionShard{entries: make(map[string]*sessionEntry)}
	}
	return s
}

func (s *SessionStore) shard(participantID string) *sessionShard {
	h := fnv.New32a()
	h.Write([]byte(participantID))
	return s.shards[h.Sum32()%sessionShards]
}

// SessionHandle is exclusive access to one participant's session. It must be
// released with Unlock.
type SessionHandle struct {
	store         *SessionStore
	participantID string
	entry         *sessionEntry
	dirty         bool
	deleted       bool
}

// Lock acquires the participant's session, loading it from the repo on first use.
func (s *SessionStore) Lock(participantID string) (*SessionHandle, error) {
	sh := s.shard(participantID)
	sh.mu.Lock()
	e, ok := sh.entries[participantID]
	if !ok {
		e = &sessionEntry{}
		sh.entries[participantID] = e
	}
	e.refs++
	sh.mu.Unlock()

	e.mu.Lock()
	if !e.loaded && s.repo != nil {
		sess, err := s.repo.GetSession(participantID)
		if err != nil {
			e.mu.Unlock()
			s.release(sh, e)
			return nil, fmt.Errorf("failed to load session for %s: %w", participantID, err)
		}
		e.sess = sess
	}
	e.loaded = true
	return &SessionHandle{store: s, participantID: participantID, entry: e}, nil
}

func (s *SessionStore) release(sh *sessionShard, e *sessionEntry) {
	sh.mu.Lock()
	e.refs--
	sh.mu.Unlock()
}

// Session returns the live session, or nil when the participant has none.
// The pointer is valid until Unlock.
func (h *SessionHandle) Session() *models.Session {
	return h.entry.sess
}

// Replace installs sess as the participant's live session.
func (h *SessionHandle) Replace(sess *models.Session) {
	h.entry.sess = sess
	h.dirty = true
	h.deleted = false
}

// MarkDirty flags the session for write-through on Unlock.
func (h *SessionHandle) MarkDirty() {
	h.dirty = true
}

// Delete drops the participant's session.
func (h *SessionHandle) Delete() {
	h.entry.sess = nil
	h.deleted = true
	h.dirty = false
}

// Unlock persists pending changes and releases the session.
func (h *SessionHandle) Unlock() error {
	s := h.store
	var err error
	now := s.now()
	if s.repo != nil {
		switch {
		case h.deleted:
			err = s.repo.DeleteSession(h.participantID)
		case h.dirty && h.entry.sess != nil:
			h.entry.sess.UpdatedAt = now
			err = s.repo.SaveSession(h.entry.sess)
		}
	} else if h.dirty && h.entry.sess != nil {
		h.entry.sess.UpdatedAt = now
	}
	if err != nil {
		slog.Error("SessionStore.Unlock: write-through failed", "error", err, "participantID", h.participantID)
	}
	h.entry.touched = now
	h.entry.mu.Unlock()
	s.release(s.shard(h.participantID), h.entry)
	return err
}

// Get returns a copy of the participant's live session, or nil.
func (s *SessionStore) Get(participantID string) (*models.Session, error) {
	h, err := s.Lock(participantID)
	if err != nil {
		return nil, err
	}
	sess := h.Session().Clone()
	return sess, h.Unlock()
}

// Replace installs sess as the live session of its participant.
func (s *SessionStore) Replace(sess *models.Session) error {
	h, err := s.Lock(sess.ParticipantID)
	if err != nil {
		return err
	}
	h.Replace(sess)
	return h.Unlock()
}

// Delete removes the participant's live session.
func (s *SessionStore) Delete(participantID string) error {
	h, err := s.Lock(participantID)
	if err != nil {
		return err
	}
	h.Delete()
	return h.Unlock()
}

// EvictIdle drops cached entries not touched since before. Entries that are
// held or waited on are kept. Without a repo only empty entries are dropped,
// since the cache is the only copy of a live session.
func (s *SessionStore) EvictIdle(before time.Time) int {
	evicted := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, e := range sh.entries {
			if e.refs > 0 || !e.mu.TryLock() {
				continue
			}
			if e.touched.Before(before) && (s.repo != nil || e.sess == nil) {
				delete(sh.entries, id)
				evicted++
			}
			e.mu.Unlock()
		}
		sh.mu.Unlock()
	}
	if evicted > 0 {
		slog.Debug("SessionStore.EvictIdle", "evicted", evicted)
	}
	return evicted
}

// Len returns the number of cached entries.
func (s *SessionStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}
