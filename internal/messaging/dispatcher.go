package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BTreeMap/FocusPipe/internal/flow"
	"github.com/BTreeMap/FocusPipe/internal/models"
)

// Handler applies one inbound participant event.
type Handler interface {
	HandleEvent(ctx context.Context, ev models.InboundEvent) (models.Ack, error)
}

// InboundDeduper records inbound transport message ids.
type InboundDeduper interface {
	// RecordInbound returns false when messageID was already recorded.
	RecordInbound(messageID, participantID string) (bool, error)
	MarkProcessed(messageID string) error
}

// AckFunc receives the acknowledgment of a handled event.
type AckFunc func(participantID string, ack models.Ack)

// Dispatcher routes inbound events from a Service to a Handler. It canonicalizes
// the sender, drops redelivered messages, maps text replies onto remembered
// keyboards and answers unexpected handler failures with a generic message.
type Dispatcher struct {
	svc       Service
	handler   Handler
	keyboards *KeyboardRegistry
	dedup     InboundDeduper
	onAck     AckFunc
	errorText string

	mu      sync.Mutex
	workers map[string]*participantWorker
	wg      sync.WaitGroup
}

// participantWorker processes the events of one participant in arrival order.
// pending counts events routed to it and not yet processed.
type participantWorker struct {
	events  chan models.InboundEvent
	pending int
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDeduper enables inbound de-duplication by transport message id.
func WithDeduper(d InboundDeduper) DispatcherOption {
	return func(disp *Dispatcher) { disp.dedup = d }
}

// WithAckFunc delivers acknowledgments to transports that can display them.
func WithAckFunc(f AckFunc) DispatcherOption {
	return func(disp *Dispatcher) { disp.onAck = f }
}

// WithErrorMessage replaces the generic failure message.
func WithErrorMessage(text string) DispatcherOption {
	return func(disp *Dispatcher) { disp.errorText = text }
}

// NewDispatcher creates a Dispatcher. keyboards may be nil for transports with
// native buttons.
func NewDispatcher(svc Service, handler Handler, keyboards *KeyboardRegistry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		svc:       svc,
		handler:   handler,
		keyboards: keyboards,
		errorText: flow.GenericErrorText,
		workers:   make(map[string]*participantWorker),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Process handles one inbound event. Interaction errors are answered by the
// handler itself and are not returned.
func (d *Dispatcher) Process(ctx context.Context, ev models.InboundEvent) error {
	canonical, err := d.svc.ValidateAndCanonicalizeRecipient(ev.ParticipantID)
	if err != nil {
		slog.Error("Dispatcher.Process: invalid sender", "error", err, "from", ev.ParticipantID)
		return fmt.Errorf("invalid sender: %w", err)
	}
	ev.ParticipantID = canonical

	if d.dedup != nil && ev.MessageID != "" {
		fresh, err := d.dedup.RecordInbound(ev.MessageID, canonical)
		if err != nil {
			slog.Warn("Dispatcher.Process: de-dup record failed, processing anyway", "error", err, "messageID", ev.MessageID)
		} else if !fresh {
			slog.Debug("Dispatcher.Process: dropping redelivered message", "messageID", ev.MessageID, "participantID", canonical)
			return nil
		}
	}

	ev = d.resolve(ev)
	slog.Debug("Dispatcher.Process", "participantID", canonical, "kind", ev.Kind)

	ack, err := d.handler.HandleEvent(ctx, ev)
	if d.dedup != nil && ev.MessageID != "" {
		if mErr := d.dedup.MarkProcessed(ev.MessageID); mErr != nil {
			slog.Warn("Dispatcher.Process: failed to mark processed", "error", mErr, "messageID", ev.MessageID)
		}
	}
	if ack.Text != "" && d.onAck != nil {
		d.onAck(canonical, ack)
	}
	if err == nil {
		return nil
	}
	if models.IsRecoverable(err) {
		slog.Debug("Dispatcher.Process: interaction rejected", "participantID", canonical, "error", err)
		return nil
	}

	slog.Error("Dispatcher.Process: handler failed", "error", err, "participantID", canonical)
	if _, sendErr := d.svc.SendMessage(ctx, canonical, d.errorText); sendErr != nil {
		slog.Error("Dispatcher.Process: failed to send error message", "error", sendErr, "participantID", canonical)
	}
	return fmt.Errorf("handler failed: %w", err)
}

// resolve turns a text reply into a button press when it names an option of a
// remembered keyboard. Menu commands always stay text.
func (d *Dispatcher) resolve(ev models.InboundEvent) models.InboundEvent {
	if d.keyboards == nil || ev.Kind != models.InboundText || flow.IsCommand(ev.Text) {
		return ev
	}
	sourceID, payload, ok := d.keyboards.Resolve(ev.ParticipantID, ev.SourceMessageID, ev.Text)
	if !ok {
		return ev
	}
	slog.Debug("Dispatcher resolved reply to button", "participantID", ev.ParticipantID, "sourceMessageID", sourceID, "payload", payload)
	ev.Kind = models.InboundButton
	ev.SourceMessageID = sourceID
	ev.Payload = payload
	return ev
}

// Start begins processing events from the service until ctx is done or the
// event channel closes. Each participant gets its own worker, so events of one
// participant are handled in order while unrelated participants proceed in
// parallel.
func (d *Dispatcher) Start(ctx context.Context) {
	slog.Info("Dispatcher starting event processing")

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer slog.Info("Dispatcher stopped event processing")
		for {
			select {
			case ev, ok := <-d.svc.Events():
				if !ok {
					slog.Debug("Dispatcher events channel closed")
					return
				}
				d.route(ctx, ev)
			case <-ctx.Done():
				slog.Debug("Dispatcher stopping due to context cancellation")
				return
			}
		}
	}()
}

// Wait blocks until the event loop and all participant workers have exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// route hands ev to the worker of its participant, starting one if needed.
func (d *Dispatcher) route(ctx context.Context, ev models.InboundEvent) {
	key := ev.ParticipantID
	if canonical, err := d.svc.ValidateAndCanonicalizeRecipient(ev.ParticipantID); err == nil {
		key = canonical
	}

	d.mu.Lock()
	w, ok := d.workers[key]
	if !ok {
		w = &participantWorker{events: make(chan models.InboundEvent, DefaultChannelBufferSize)}
		d.workers[key] = w
		d.wg.Add(1)
		go d.runWorker(ctx, key, w)
	}
	w.pending++
	d.mu.Unlock()

	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}

// runWorker processes events until none are pending, then unregisters itself.
func (d *Dispatcher) runWorker(ctx context.Context, key string, w *participantWorker) {
	defer d.wg.Done()
	for {
		select {
		case ev := <-w.events:
			if err := d.Process(ctx, ev); err != nil {
				slog.Error("Dispatcher failed to process event", "error", err, "from", ev.ParticipantID)
			}
			d.mu.Lock()
			w.pending--
			if w.pending == 0 {
				delete(d.workers, key)
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}
