package models

import "time"

// Button is one option of an outbound button set.
type Button struct {
	Label   string `json:"label"`
	Payload string `json:"payload"`
}

// OutboundMessage is a message to a participant. Buttons are laid out in rows;
// ShowMenu asks the transport to surface the persistent menu commands.
type OutboundMessage struct {
	To       string     `json:"to"`
	Text     string     `json:"text"`
	Buttons  [][]Button `json:"buttons,omitempty"`
	ShowMenu bool       `json:"show_menu,omitempty"`
}

// HasButtons reports whether the message renders a button set.
func (m OutboundMessage) HasButtons() bool {
	for _, row := range m.Buttons {
		if len(row) > 0 {
			return true
		}
	}
	return false
}

// FlatButtons returns the buttons in reading order.
func (m OutboundMessage) FlatButtons() []Button {
	var out []Button
	for _, row := range m.Buttons {
		out = append(out, row...)
	}
	return out
}

// InboundKind distinguishes free text from button presses.
type InboundKind string

const (
	InboundText   InboundKind = "text"
	InboundButton InboundKind = "button"
)

// InboundEvent is a participant action delivered by a transport.
type InboundEvent struct {
	// MessageID is the transport id of the inbound message, used for de-duplication.
	MessageID     string      `json:"message_id,omitempty"`
	ParticipantID string      `json:"participant_id"`
	Kind          InboundKind `json:"kind"`
	Text          string      `json:"text,omitempty"`
	// SourceMessageID is the id of the message whose button was pressed.
	SourceMessageID string    `json:"source_message_id,omitempty"`
	Payload         string    `json:"payload,omitempty"`
	ReceivedAt      time.Time `json:"received_at"`
}

// Ack is the short answer to an inbound event. Transports that can show a
// transient notice for a button press display Text; others ignore it.
type Ack struct {
	Text string `json:"text,omitempty"`
}
