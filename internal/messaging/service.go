// Package messaging connects the focus engine to chat transports: the transport
// Service abstraction, keyboard rendering for text-only transports and the
// inbound dispatcher.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/BTreeMap/FocusPipe/internal/models"
)

// Constants for transport services
const (
	// DefaultChannelBufferSize defines the default buffer size for inbound event channels
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines how long an emit may block before the event is dropped
	DefaultChannelTimeout = 1 * time.Second
)

// ErrServiceStopped is returned when sending through a stopped service.
var ErrServiceStopped = errors.New("messaging service stopped")

// phoneNumberRegex matches every non-digit character of a phone number.
var phoneNumberRegex = regexp.MustCompile(`\D`)

// Service defines a pluggable message delivery abstraction.
// Outbound messages are plain text; inbound participant actions arrive on Events.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient identifier.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends body to a recipient and returns the transport message id.
	SendMessage(ctx context.Context, to string, body string) (string, error)

	// Start begins any background processing (e.g., event handlers).
	Start(ctx context.Context) error

	// Stop stops background processing and closes the event channel.
	Stop() error

	// Events returns a channel of inbound participant events.
	Events() <-chan models.InboundEvent
}

// canonicalPhone strips a phone number down to its digits.
func canonicalPhone(recipient string) (string, error) {
	if recipient == "" {
		return "", errors.New("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	return canonical, nil
}
