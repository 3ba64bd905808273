// Package twiliowhatsapp wraps the Twilio API for WhatsApp integration in FocusPipe.
package twiliowhatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/twilio/twilio-go"
	twilioClient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioWhatsAppSender sends WhatsApp messages through Twilio and returns the message SID.
type TwilioWhatsAppSender interface {
	SendMessage(ctx context.Context, to string, body string) (string, error)
}

// Opts holds configuration options for the Twilio WhatsApp client.
// This focuses solely on Twilio API requirements
type Opts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string
}

// Option defines a configuration option for the Twilio WhatsApp client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sending number, with or without the "whatsapp:" prefix.
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// Client wraps Twilio REST API for WhatsApp
type Client struct {
	client    *twilio.RestClient
	fromWhats string // WhatsApp number in "whatsapp:+1234567890" format
}

// NewClient creates a Twilio client. Credentials and the sending number are required.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromWhats_set", cfg.FromWhats != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)

	return &Client{
		client:    client,
		fromWhats: WhatsAppAddress(cfg.FromWhats),
	}, nil
}

// WhatsAppAddress formats a phone number as a Twilio WhatsApp address.
func WhatsAppAddress(number string) string {
	n := strings.TrimPrefix(strings.TrimSpace(number), "whatsapp:")
	if !strings.HasPrefix(n, "+") {
		n = "+" + n
	}
	return "whatsapp:" + n
}

// SendMessage sends a WhatsApp message using Twilio API and returns its SID.
func (c *Client) SendMessage(ctx context.Context, to string, body string) (string, error) {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(WhatsAppAddress(to))
	params.SetFrom(c.fromWhats)
	params.SetBody(body)

	resp, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendMessage failed", "to", to, "error", err)
		return "", fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	if resp.Sid == nil {
		return "", fmt.Errorf("twilio returned no message SID for %s", to)
	}

	slog.Debug("Twilio message sent", "to", to, "sid", *resp.Sid)
	return *resp.Sid, nil
}

// SignatureValidator checks the X-Twilio-Signature header of webhook requests.
type SignatureValidator struct {
	validator twilioClient.RequestValidator
}

// NewSignatureValidator creates a validator for the account's auth token.
func NewSignatureValidator(authToken string) *SignatureValidator {
	return &SignatureValidator{validator: twilioClient.NewRequestValidator(authToken)}
}

// Validate reports whether signature matches the public webhook url and form params.
func (v *SignatureValidator) Validate(url string, params map[string]string, signature string) bool {
	return v.validator.Validate(url, params, signature)
}

// MockClient records messages instead of sending them.
type MockClient struct {
	mu           sync.Mutex
	SentMessages []SentMessage
	SendErr      error
	next         int
}

// SentMessage is one message captured by MockClient.
type SentMessage struct {
	Sid  string
	To   string
	Body string
}

func NewMockClient() *MockClient {
	return &MockClient{
		SentMessages: []SentMessage{},
	}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return "", m.SendErr
	}
	m.next++
	sid := fmt.Sprintf("SM%032d", m.next)
	m.SentMessages = append(m.SentMessages, SentMessage{Sid: sid, To: to, Body: body})
	return sid, nil
}

// Messages returns a copy of the captured messages.
func (m *MockClient) Messages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.SentMessages...)
}
