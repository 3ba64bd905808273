package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/BTreeMap/FocusPipe/internal/models"
	"github.com/BTreeMap/FocusPipe/internal/twiliowhatsapp"
)

// TwilioService implements the Service interface using Twilio API. Inbound
// messages arrive through TwilioWebhookHandler.
type TwilioService struct {
	client     twiliowhatsapp.TwilioWhatsAppSender // Could be real Twilio client or MockClient
	validator  *twiliowhatsapp.SignatureValidator
	webhookURL string
	events     chan models.InboundEvent
	done       chan struct{}
	mu         sync.RWMutex
	stopped    bool
}

// TwilioOption configures a TwilioService.
type TwilioOption func(*TwilioService)

// WithSignatureValidation rejects webhook requests whose X-Twilio-Signature does
// not match publicURL, the webhook address configured in the Twilio console.
func WithSignatureValidation(v *twiliowhatsapp.SignatureValidator, publicURL string) TwilioOption {
	return func(s *TwilioService) {
		s.validator = v
		s.webhookURL = publicURL
	}
}

// NewTwilioService creates a new TwilioService around a Twilio client.
func NewTwilioService(client twiliowhatsapp.TwilioWhatsAppSender, opts ...TwilioOption) *TwilioService {
	service := &TwilioService{
		client: client,
		events: make(chan models.InboundEvent, DefaultChannelBufferSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp phone number.
// It removes all non-numeric characters, including a "whatsapp:" prefix.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical, err := canonicalPhone(recipient)
	if err != nil {
		return "", err
	}
	if canonical != recipient {
		slog.Debug("TwilioService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// Start is a no-op for Twilio (inbound traffic arrives through the webhook)
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the event channel and stops the service
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)
	close(s.events)
	return nil
}

// SendMessage sends a message via Twilio and returns the message SID.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) (string, error) {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return "", ErrServiceStopped
	}
	s.mu.RUnlock()

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendMessage validation error", "error", err, "to", to)
		return "", err
	}
	return s.client.SendMessage(ctx, canonicalTo, body)
}

// Events returns the channel of inbound participant events.
func (s *TwilioService) Events() <-chan models.InboundEvent {
	return s.events
}

// TwilioWebhookHandler handles inbound Twilio webhook requests.
// It parses incoming messages and emits them on the Events channel. A reply to
// an earlier message carries its SID as SourceMessageID.
func (s *TwilioService) TwilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Twilio webhook received")

	if err := r.ParseForm(); err != nil {
		slog.Error("Failed to parse Twilio webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if s.validator != nil {
		params := make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			params[k] = r.PostForm.Get(k)
		}
		if !s.validator.Validate(s.webhookURL, params, r.Header.Get("X-Twilio-Signature")) {
			slog.Warn("Twilio webhook signature mismatch", "remote", r.RemoteAddr)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	from := r.FormValue("From")
	body := r.FormValue("Body")

	if from == "" || body == "" {
		slog.Warn("Twilio webhook missing fields", "from", from, "body_length", len(body))
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	ev := models.InboundEvent{
		MessageID:       r.FormValue("MessageSid"),
		ParticipantID:   from,
		Kind:            models.InboundText,
		Text:            body,
		SourceMessageID: r.FormValue("OriginalRepliedMessageSid"),
		ReceivedAt:      time.Now(),
	}
	slog.Info("Inbound WhatsApp message from Twilio", "from", from, "messageSid", ev.MessageID)

	s.safeEmitEvent(ev)

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// safeEmitEvent pushes an inbound event unless the service is stopped.
func (s *TwilioService) safeEmitEvent(ev models.InboundEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		slog.Warn("TwilioService dropping inbound event (service stopped)", "from", ev.ParticipantID)
		return
	}

	select {
	case s.events <- ev:
		slog.Debug("TwilioService emitted inbound event", "from", ev.ParticipantID)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioService events channel blocked, dropping message", "from", ev.ParticipantID)
	}
}
