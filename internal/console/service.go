// Package console runs the focus ritual in a terminal, for local use and demos.
//
// Service implements messaging.Service over in-process channels and Model is a
// bubbletea chat view on top of it.
package console

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BTreeMap/FocusPipe/internal/messaging"
	"github.com/BTreeMap/FocusPipe/internal/models"
)

// DefaultParticipant is the participant id used for the terminal user.
const DefaultParticipant = "console"

// Outgoing is a message sent to the terminal user.
type Outgoing struct {
	ID   string
	To   string
	Body string
	At   time.Time
}

// Service is an in-process messaging.Service.
type Service struct {
	participant string
	events      chan models.InboundEvent
	outbox      chan Outgoing
	seq         atomic.Int64
	mu          sync.RWMutex
	stopped     bool
}

var _ messaging.Service = (*Service)(nil)

// NewService creates a Service for a single participant.
func NewService(participant string) *Service {
	if participant == "" {
		participant = DefaultParticipant
	}
	return &Service{
		participant: participant,
		events:      make(chan models.InboundEvent, messaging.DefaultChannelBufferSize),
		outbox:      make(chan Outgoing, messaging.DefaultChannelBufferSize),
	}
}

// Participant returns the participant id of the terminal user.
func (s *Service) Participant() string {
	return s.participant
}

// ValidateAndCanonicalizeRecipient accepts any non-empty id.
func (s *Service) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	r := strings.TrimSpace(recipient)
	if r == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	return r, nil
}

// SendMessage queues body for the terminal and returns its id.
func (s *Service) SendMessage(ctx context.Context, to string, body string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return "", messaging.ErrServiceStopped
	}
	out := Outgoing{ID: fmt.Sprintf("CON%05d", s.seq.Add(1)), To: to, Body: body, At: time.Now()}
	select {
	case s.outbox <- out:
		return out.ID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Submit delivers a line typed by the user. quotedID, when set, marks the
// line as a reply to that message.
func (s *Service) Submit(text, quotedID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return messaging.ErrServiceStopped
	}
	ev := models.InboundEvent{
		MessageID:       fmt.Sprintf("IN%05d", s.seq.Add(1)),
		ParticipantID:   s.participant,
		Kind:            models.InboundText,
		Text:            text,
		SourceMessageID: quotedID,
		ReceivedAt:      time.Now(),
	}
	select {
	case s.events <- ev:
		return nil
	case <-time.After(messaging.DefaultChannelTimeout):
		return fmt.Errorf("console input dropped: event channel full")
	}
}

// Outbox returns the channel of messages for the terminal.
func (s *Service) Outbox() <-chan Outgoing {
	return s.outbox
}

// Start is a no-op.
func (s *Service) Start(ctx context.Context) error {
	return nil
}

// Stop closes both channels. It is safe to call more than once.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.events)
	close(s.outbox)
	return nil
}

// Events returns the channel of inbound events.
func (s *Service) Events() <-chan models.InboundEvent {
	return s.events
}
