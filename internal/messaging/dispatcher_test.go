package messaging

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/FocusPipe/internal/admission"
	"github.com/BTreeMap/FocusPipe/internal/flow"
	"github.com/BTreeMap/FocusPipe/internal/models"
	"github.com/BTreeMap/FocusPipe/internal/store"
	"github.com/BTreeMap/FocusPipe/internal/twiliowhatsapp"
)

// recordingHandler records events and returns a fixed result.
type recordingHandler struct {
	events []models.InboundEvent
	ack    models.Ack
	err    error
}

func (h *recordingHandler) HandleEvent(ctx context.Context, ev models.InboundEvent) (models.Ack, error) {
	h.events = append(h.events, ev)
	return h.ack, h.err
}

func TestDispatcher_CanonicalizesAndDeduplicates(t *testing.T) {
	st := store.NewInMemoryStore()
	handler := &recordingHandler{}
	d := NewDispatcher(NewTwilioService(twiliowhatsapp.NewMockClient()), handler, nil, WithDeduper(st))

	ev := models.InboundEvent{MessageID: "SM1", ParticipantID: "whatsapp:+15551234567", Kind: models.InboundText, Text: "hi"}
	if err := d.Process(context.Background(), ev); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if err := d.Process(context.Background(), ev); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if len(handler.events) != 1 {
		t.Fatalf("expected redelivered message dropped, handler saw %d", len(handler.events))
	}
	if handler.events[0].ParticipantID != "15551234567" {
		t.Errorf("expected canonical participant id, got %q", handler.events[0].ParticipantID)
	}
}

func TestDispatcher_ResolvesRepliesButKeepsCommands(t *testing.T) {
	keyboards := NewKeyboardRegistry(0)
	keyboards.Remember("15551234567", "SM9", energyButtons)
	handler := &recordingHandler{}
	d := NewDispatcher(NewTwilioService(twiliowhatsapp.NewMockClient()), handler, keyboards)
	ctx := context.Background()

	d.Process(ctx, models.InboundEvent{ParticipantID: "15551234567", Kind: models.InboundText, Text: "1"})
	d.Process(ctx, models.InboundEvent{ParticipantID: "15551234567", Kind: models.InboundText, Text: "start"})

	if len(handler.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(handler.events))
	}
	press := handler.events[0]
	if press.Kind != models.InboundButton || press.Payload != "energy:low" || press.SourceMessageID != "SM9" {
		t.Errorf("expected resolved button press, got %+v", press)
	}
	if handler.events[1].Kind != models.InboundText {
		t.Errorf("expected command to stay text, got %+v", handler.events[1])
	}
}

func TestDispatcher_ErrorHandling(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	handler := &recordingHandler{err: models.ErrStaleInteraction}
	d := NewDispatcher(NewTwilioService(mock), handler, nil)
	ctx := context.Background()
	ev := models.InboundEvent{ParticipantID: "15551234567", Kind: models.InboundText, Text: "x"}

	if err := d.Process(ctx, ev); err != nil {
		t.Fatalf("recoverable error must not surface: %v", err)
	}
	if len(mock.Messages()) != 0 {
		t.Fatalf("recoverable error must not send a message")
	}

	handler.err = errors.New("database is locked")
	if err := d.Process(ctx, ev); err == nil {
		t.Fatal("expected handler failure to surface")
	}
	msgs := mock.Messages()
	if len(msgs) != 1 || msgs[0].Body != flow.GenericErrorText {
		t.Fatalf("expected generic error message, got %+v", msgs)
	}
}

func TestDispatcher_DeliversAcks(t *testing.T) {
	handler := &recordingHandler{ack: models.Ack{Text: "✅"}}
	var got []string
	d := NewDispatcher(NewTwilioService(twiliowhatsapp.NewMockClient()), handler, nil,
		WithAckFunc(func(pid string, ack models.Ack) { got = append(got, pid+":"+ack.Text) }))
	d.Process(context.Background(), models.InboundEvent{ParticipantID: "15551234567", Kind: models.InboundText, Text: "x"})
	if len(got) != 1 || got[0] != "15551234567:✅" {
		t.Errorf("unexpected acks: %v", got)
	}
}

func TestDispatcher_InvalidSender(t *testing.T) {
	handler := &recordingHandler{}
	d := NewDispatcher(NewTwilioService(twiliowhatsapp.NewMockClient()), handler, nil)
	if err := d.Process(context.Background(), models.InboundEvent{ParticipantID: "abc", Kind: models.InboundText}); err == nil {
		t.Fatal("expected invalid sender error")
	}
	if len(handler.events) != 0 {
		t.Error("invalid sender must not reach the handler")
	}
}

// TestDispatcher_EngineOverText runs the start of the ritual through a text
// transport: numbered replies press the latest keyboard.
func TestDispatcher_EngineOverText(t *testing.T) {
	st := store.NewInMemoryStore()
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock)
	keyboards := NewKeyboardRegistry(0)
	scheduler := flow.NewFollowUpScheduler()
	defer scheduler.Stop()
	engine := flow.NewEngine(flow.NewSessionStore(st), scheduler, admission.NewGate(st, st), NewKeyboardSender(svc, keyboards), st)
	d := NewDispatcher(svc, engine, keyboards, WithDeduper(st))
	ctx := context.Background()
	from := "whatsapp:+15551234567"

	if err := d.Process(ctx, models.InboundEvent{MessageID: "SM1", ParticipantID: from, Kind: models.InboundText, Text: "start"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	energySid := mock.Messages()[0].Sid
	if err := d.Process(ctx, models.InboundEvent{MessageID: "SM2", ParticipantID: from, Kind: models.InboundText, Text: "1"}); err != nil {
		t.Fatalf("energy reply failed: %v", err)
	}
	sess, _ := engine.Session("15551234567")
	if sess == nil || sess.Energy != models.EnergyLow || sess.Step != models.StepActions {
		t.Fatalf("expected low energy and actions step, got %+v", sess)
	}

	// Quoting the answered energy prompt is a duplicate press and changes nothing.
	if err := d.Process(ctx, models.InboundEvent{MessageID: "SM3", ParticipantID: from, Kind: models.InboundText, Text: "3", SourceMessageID: energySid}); err != nil {
		t.Fatalf("quoted reply failed: %v", err)
	}
	sess, _ = engine.Session("15551234567")
	if sess.Energy != models.EnergyLow {
		t.Errorf("expected energy to stay low, got %s", sess.Energy)
	}

	if err := d.Process(ctx, models.InboundEvent{MessageID: "SM4", ParticipantID: from, Kind: models.InboundText, Text: "write report\nclean desk\ncall bank"}); err != nil {
		t.Fatalf("actions failed: %v", err)
	}
	last := mock.Messages()[len(mock.Messages())-1]
	if !strings.Contains(last.Body, "write report") || !strings.Contains(last.Body, "1. ") {
		t.Errorf("expected numbered type prompt, got %q", last.Body)
	}
}

// chanService is a Service whose inbound events are pushed by the test.
type chanService struct {
	events chan models.InboundEvent
}

func (s *chanService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalPhone(recipient)
}

func (s *chanService) SendMessage(ctx context.Context, to, body string) (string, error) {
	return "", nil
}

func (s *chanService) Start(ctx context.Context) error { return nil }

func (s *chanService) Stop() error {
	close(s.events)
	return nil
}

func (s *chanService) Events() <-chan models.InboundEvent { return s.events }

// gatedHandler blocks events of one participant until released and reports
// the order in which events finish.
type gatedHandler struct {
	blocked string
	release chan struct{}
	mu      sync.Mutex
	order   []string
	done    chan string
}

func (h *gatedHandler) HandleEvent(ctx context.Context, ev models.InboundEvent) (models.Ack, error) {
	if ev.ParticipantID == h.blocked {
		<-h.release
	}
	h.mu.Lock()
	h.order = append(h.order, ev.ParticipantID+":"+ev.Text)
	h.mu.Unlock()
	h.done <- ev.ParticipantID + ":" + ev.Text
	return models.Ack{}, nil
}

func TestDispatcher_ParticipantsDoNotBlockEachOther(t *testing.T) {
	svc := &chanService{events: make(chan models.InboundEvent, 10)}
	handler := &gatedHandler{blocked: "15550000001", release: make(chan struct{}), done: make(chan string, 10)}
	d := NewDispatcher(svc, handler, nil)
	d.Start(t.Context())

	svc.events <- models.InboundEvent{ParticipantID: "+1 555 000 0001", Kind: models.InboundText, Text: "a1"}
	svc.events <- models.InboundEvent{ParticipantID: "+1 555 000 0001", Kind: models.InboundText, Text: "a2"}
	svc.events <- models.InboundEvent{ParticipantID: "+1 555 000 0002", Kind: models.InboundText, Text: "b1"}

	select {
	case got := <-handler.done:
		if got != "15550000002:b1" {
			t.Fatalf("expected the unblocked participant first, got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second participant was blocked behind the first")
	}

	close(handler.release)
	for range 2 {
		select {
		case <-handler.done:
		case <-time.After(2 * time.Second):
			t.Fatal("blocked participant never finished")
		}
	}

	svc.Stop()
	d.Wait()
	handler.mu.Lock()
	defer handler.mu.Unlock()
	want := []string{"15550000002:b1", "15550000001:a1", "15550000001:a2"}
	if strings.Join(handler.order, ",") != strings.Join(want, ",") {
		t.Errorf("expected order %v, got %v", want, handler.order)
	}
}
