package messaging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/FocusPipe/internal/models"
	"github.com/BTreeMap/FocusPipe/internal/whatsapp"
	"go.mau.fi/whatsmeow/types/events"
)

// WhatsAppService implements Service using the Whatsmeow-based whatsapp client.
type WhatsAppService struct {
	client   whatsapp.WhatsAppSender
	waClient *whatsapp.Client // Access to underlying client for event handling
	events   chan models.InboundEvent
	done     chan struct{}
	mu       sync.RWMutex
	stopped  bool
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given WhatsAppSender.
func NewWhatsAppService(client whatsapp.WhatsAppSender) *WhatsAppService {
	service := &WhatsAppService{
		client: client,
		events: make(chan models.InboundEvent, DefaultChannelBufferSize),
		done:   make(chan struct{}),
	}

	// If the client is a full Client (not just an interface), store it for event handling
	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}

	return service
}

// ValidateAndCanonicalizeRecipient reduces a phone number or JID user to its digits.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	user, _, _ := strings.Cut(recipient, "@")
	return canonicalPhone(user)
}

// Start registers the event handler on the underlying client.
func (s *WhatsAppService) Start(ctx context.Context) error {
	slog.Debug("WhatsAppService Start invoked")

	if s.waClient != nil && s.waClient.GetClient() != nil {
		s.waClient.GetClient().AddEventHandler(s.handleEvent)
		slog.Debug("WhatsAppService event handler registered")
	} else {
		slog.Debug("WhatsAppService no full client available, skipping event handling (likely mock)")
	}
	return nil
}

// Stop stops background processing and closes the event channel.
func (s *WhatsAppService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)
	close(s.events)
	if s.waClient != nil {
		s.waClient.Disconnect()
	}
	slog.Info("WhatsAppService stopped and channels closed")
	return nil
}

// SendMessage sends a message and returns its WhatsApp id.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) (string, error) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return "", ErrServiceStopped
	}

	slog.Debug("WhatsAppService SendMessage invoked", "to", to, "body_length", len(body))
	id, err := s.client.SendMessage(ctx, to, body)
	if err != nil {
		slog.Error("WhatsAppService SendMessage error", "error", err, "to", to)
		return "", err
	}
	slog.Info("WhatsAppService message sent", "to", to, "id", id)
	return id, nil
}

// Events returns a channel of inbound participant events.
func (s *WhatsAppService) Events() <-chan models.InboundEvent {
	return s.events
}

func (s *WhatsAppService) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		s.handleIncomingMessage(v)
	default:
		slog.Debug("WhatsAppService ignoring event type", "type", getEventType(v))
	}
}

// handleIncomingMessage converts a participant's text message into an inbound event.
// The id of a quoted message is carried as SourceMessageID.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Message == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}

	var text, quoted string
	switch {
	case evt.Message.Conversation != nil:
		text = evt.Message.GetConversation()
	case evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil:
		text = evt.Message.GetExtendedTextMessage().GetText()
		quoted = evt.Message.GetExtendedTextMessage().GetContextInfo().GetStanzaID()
	default:
		slog.Debug("WhatsAppService ignoring non-text message", "from", evt.Info.Sender.String())
		return
	}

	ev := models.InboundEvent{
		MessageID:       string(evt.Info.ID),
		ParticipantID:   evt.Info.Sender.User,
		Kind:            models.InboundText,
		Text:            text,
		SourceMessageID: quoted,
		ReceivedAt:      evt.Info.Timestamp,
	}
	slog.Debug("WhatsAppService processing incoming message", "from", ev.ParticipantID, "body_length", len(text), "quoted", quoted != "")
	s.emit(ev)
}

func (s *WhatsAppService) emit(ev models.InboundEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		slog.Warn("WhatsAppService dropping inbound event (service stopped)", "from", ev.ParticipantID)
		return
	}
	select {
	case s.events <- ev:
		slog.Info("WhatsAppService incoming message forwarded", "from", ev.ParticipantID)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService events channel blocked, dropping message", "from", ev.ParticipantID, "timeout", DefaultChannelTimeout)
	}
}

// getEventType returns a string representation of the event type for logging
func getEventType(evt interface{}) string {
	switch evt.(type) {
	case *events.Message:
		return "Message"
	case *events.Receipt:
		return "Receipt"
	case *events.Presence:
		return "Presence"
	case *events.Connected:
		return "Connected"
	case *events.Disconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}
