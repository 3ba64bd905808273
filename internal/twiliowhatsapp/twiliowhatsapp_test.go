package twiliowhatsapp

import (
	"context"
	"testing"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	sid, err := mock.SendMessage(ctx, "12345", "Hello Test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sid == "" {
		t.Fatal("expected a message SID")
	}

	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mock.SentMessages))
	}

	if mock.SentMessages[0].Body != "Hello Test" {
		t.Errorf("expected body %q, got %q", "Hello Test", mock.SentMessages[0].Body)
	}
	if mock.SentMessages[0].Sid != sid {
		t.Errorf("expected captured SID %q, got %q", sid, mock.SentMessages[0].Sid)
	}
}

func TestWhatsAppAddress(t *testing.T) {
	cases := map[string]string{
		"15551234567":            "whatsapp:+15551234567",
		"+15551234567":           "whatsapp:+15551234567",
		"whatsapp:+15551234567":  "whatsapp:+15551234567",
		" whatsapp:15551234567 ": "whatsapp:+15551234567",
	}
	for in, want := range cases {
		if got := WhatsAppAddress(in); got != want {
			t.Errorf("WhatsAppAddress(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	if _, err := NewClient(WithFromWhats("+15550000000")); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("token")); err == nil {
		t.Error("expected error without sending number")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("token"), WithFromWhats("+15550000000")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSignatureValidator_RejectsForgedSignature(t *testing.T) {
	v := NewSignatureValidator("secret")
	params := map[string]string{"From": "whatsapp:+15551234567", "Body": "hi"}
	if v.Validate("https://example.com/webhooks/twilio", params, "forged") {
		t.Error("expected forged signature to be rejected")
	}
}
