package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/BTreeMap/FocusPipe/internal/flow"
	"github.com/BTreeMap/FocusPipe/internal/models"
)

// DefaultKeyboardLimit is how many keyboards are remembered per participant.
const DefaultKeyboardLimit = 8

const replyHint = "(Reply with the number of your choice.)"

var menuLine = "Menu: " + flow.MenuStart + " · " + flow.MenuStats + " · " + flow.MenuHelp

// RenderText renders an outbound message for transports without native buttons.
// Buttons become a numbered list in reading order.
func RenderText(msg models.OutboundMessage) string {
	var b strings.Builder
	b.WriteString(msg.Text)
	if buttons := msg.FlatButtons(); len(buttons) > 0 {
		b.WriteString("\n")
		for i, btn := range buttons {
			fmt.Fprintf(&b, "\n%d. %s", i+1, btn.Label)
		}
		b.WriteString("\n\n")
		b.WriteString(replyHint)
	}
	if msg.ShowMenu {
		b.WriteString("\n\n")
		b.WriteString(menuLine)
	}
	return b.String()
}

type keyboard struct {
	messageID string
	buttons   []models.Button
}

// KeyboardRegistry remembers the button sets sent to each participant so that
// text replies can be mapped back to button presses.
type KeyboardRegistry struct {
	mu            sync.Mutex
	limit         int
	byParticipant map[string][]keyboard // oldest first
}

// NewKeyboardRegistry creates a registry keeping up to limit keyboards per
// participant. A non-positive limit uses DefaultKeyboardLimit.
func NewKeyboardRegistry(limit int) *KeyboardRegistry {
	if limit <= 0 {
		limit = DefaultKeyboardLimit
	}
	return &KeyboardRegistry{limit: limit, byParticipant: make(map[string][]keyboard)}
}

// Remember records the buttons of a sent message.
func (r *KeyboardRegistry) Remember(participantID, messageID string, buttons []models.Button) {
	if messageID == "" || len(buttons) == 0 {
		return
	}
	kb := keyboard{messageID: messageID, buttons: append([]models.Button(nil), buttons...)}

	r.mu.Lock()
	defer r.mu.Unlock()
	list := append(r.byParticipant[participantID], kb)
	if len(list) > r.limit {
		list = list[len(list)-r.limit:]
	}
	r.byParticipant[participantID] = list
}

// Resolve maps a text reply to a button press. A quoted message selects its own
// keyboard; without a quote the participant's latest keyboard is used. It
// returns the id of the message the button belongs to.
func (r *KeyboardRegistry) Resolve(participantID, quotedID, text string) (sourceID, payload string, ok bool) {
	r.mu.Lock()
	list := r.byParticipant[participantID]
	var kb keyboard
	found := false
	if quotedID != "" {
		for i := len(list) - 1; i >= 0; i-- {
			if list[i].messageID == quotedID {
				kb, found = list[i], true
				break
			}
		}
	} else if len(list) > 0 {
		kb, found = list[len(list)-1], true
	}
	r.mu.Unlock()

	if !found {
		return "", "", false
	}
	btn, ok := matchButton(kb.buttons, text)
	if !ok {
		return "", "", false
	}
	return kb.messageID, btn.Payload, true
}

func matchButton(buttons []models.Button, text string) (models.Button, bool) {
	t := strings.TrimSuffix(strings.TrimSpace(text), ".")
	if t == "" || strings.Contains(t, "\n") {
		return models.Button{}, false
	}
	if n, err := strconv.Atoi(t); err == nil {
		if n >= 1 && n <= len(buttons) {
			return buttons[n-1], true
		}
		return models.Button{}, false
	}
	for _, b := range buttons {
		if strings.EqualFold(b.Label, t) || strings.EqualFold(labelWords(b.Label), labelWords(t)) {
			return b, true
		}
	}
	return models.Button{}, false
}

// labelWords drops leading symbols such as emoji from a label.
func labelWords(label string) string {
	return strings.TrimSpace(strings.TrimLeftFunc(label, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}))
}

// KeyboardSender renders outbound messages as text, sends them through a
// Service and remembers their keyboards.
type KeyboardSender struct {
	svc       Service
	keyboards *KeyboardRegistry
}

// NewKeyboardSender creates a KeyboardSender.
func NewKeyboardSender(svc Service, keyboards *KeyboardRegistry) *KeyboardSender {
	return &KeyboardSender{svc: svc, keyboards: keyboards}
}

// SendMessage renders and sends msg, returning the transport message id.
func (s *KeyboardSender) SendMessage(ctx context.Context, msg models.OutboundMessage) (string, error) {
	to, err := s.svc.ValidateAndCanonicalizeRecipient(msg.To)
	if err != nil {
		return "", fmt.Errorf("invalid recipient: %w", err)
	}
	id, err := s.svc.SendMessage(ctx, to, RenderText(msg))
	if err != nil {
		return "", err
	}
	if msg.HasButtons() {
		s.keyboards.Remember(to, id, msg.FlatButtons())
		slog.Debug("KeyboardSender remembered keyboard", "to", to, "messageID", id, "buttons", len(msg.FlatButtons()))
	}
	return id, nil
}
