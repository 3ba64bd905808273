// Package testutil provides shared test helpers for FocusPipe packages that
// sit above the flow engine.
package testutil

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/BTreeMap/FocusPipe/internal/admission"
	"github.com/BTreeMap/FocusPipe/internal/flow"
	"github.com/BTreeMap/FocusPipe/internal/messaging"
	"github.com/BTreeMap/FocusPipe/internal/models"
	"github.com/BTreeMap/FocusPipe/internal/store"
	"github.com/BTreeMap/FocusPipe/internal/twiliowhatsapp"
)

// Harness is a real engine wired to an in-memory store and the Twilio mock client.
type Harness struct {
	Store      *store.InMemoryStore
	Mock       *twiliowhatsapp.MockClient
	Twilio     *messaging.TwilioService
	FollowUps  *flow.FollowUpScheduler
	Keyboards  *messaging.KeyboardRegistry
	Engine     *flow.Engine
	Dispatcher *messaging.Dispatcher
}

// NewHarness builds a Harness. The follow-up scheduler is stopped when the test ends.
func NewHarness(t *testing.T, opts ...flow.EngineOption) *Harness {
	t.Helper()
	h := &Harness{
		Store:     store.NewInMemoryStore(),
		Mock:      twiliowhatsapp.NewMockClient(),
		Keyboards: messaging.NewKeyboardRegistry(0),
	}
	h.Twilio = messaging.NewTwilioService(h.Mock)
	h.FollowUps = flow.NewFollowUpScheduler(flow.WithCallbackRepo(h.Store))
	t.Cleanup(h.FollowUps.Stop)
	h.Engine = flow.NewEngine(flow.NewSessionStore(h.Store), h.FollowUps, admission.NewGate(h.Store, h.Store),
		messaging.NewKeyboardSender(h.Twilio, h.Keyboards), h.Store, opts...)
	h.Dispatcher = messaging.NewDispatcher(h.Twilio, h.Engine, h.Keyboards, messaging.WithDeduper(h.Store))
	return h
}

// Say delivers a text message from participantID through the dispatcher.
func (h *Harness) Say(t *testing.T, messageID, participantID, text string) {
	t.Helper()
	ev := models.InboundEvent{MessageID: messageID, ParticipantID: participantID, Kind: models.InboundText, Text: text}
	if err := h.Dispatcher.Process(t.Context(), ev); err != nil {
		t.Fatalf("Process(%q): %v", text, err)
	}
}

// LastMessage returns the body of the last message sent, or "".
func (h *Harness) LastMessage() string {
	msgs := h.Mock.Messages()
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Body
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected int, rr *httptest.ResponseRecorder, context string) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("%s: expected status %d, got %d: %s", context, expected, rr.Code, rr.Body.String())
	}
}

// AssertJSONResponse decodes an APIResponse and validates its status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus models.APIStatus) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rr.Body.String(), err)
	}
	if resp.Status != string(expectedStatus) {
		t.Errorf("expected status %q, got %q (%s)", expectedStatus, resp.Status, resp.Message)
	}
	return resp
}

// DecodeResult re-decodes the untyped Result of an APIResponse into target.
func DecodeResult(t *testing.T, resp models.APIResponse, target any) {
	t.Helper()
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("failed to marshal result: %v", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		t.Fatalf("failed to decode result %s: %v", raw, err)
	}
}
