// Package flow drives the focus ritual: the per-participant session store, the
// phase-bound button dispatch, and the follow-up scheduler whose callbacks
// re-enter the same per-participant path.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/FocusPipe/internal/admission"
	"github.com/BTreeMap/FocusPipe/internal/decision"
	"github.com/BTreeMap/FocusPipe/internal/models"
	"github.com/BTreeMap/FocusPipe/internal/util"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
)

const tracerName = "github.com/BTreeMap/FocusPipe/internal/flow"

// Default follow-up delays.
const (
	DefaultCheckDelay   = 10 * time.Minute
	DefaultSupportDelay = 25 * time.Minute
	DefaultShortDelay   = 10 * time.Minute
	DefaultLongDelay    = 30 * time.Minute
)

// Sender delivers an outbound message and returns the transport message id.
type Sender interface {
	SendMessage(ctx context.Context, msg models.OutboundMessage) (string, error)
}

// EventLog appends to the participant event log.
type EventLog interface {
	AppendEvent(e models.Event) error
}

// Engine is the session state machine. All transitions of one participant,
// including fired callbacks, run under that participant's session lock.
type Engine struct {
	sessions  *SessionStore
	scheduler *FollowUpScheduler
	gate      *admission.Gate
	sender    Sender
	events    EventLog
	motivator Motivator
	tracer    trace.Tracer
	now       func() time.Time

	checkDelay   time.Duration
	supportDelay time.Duration
	shortDelay   time.Duration
	longDelay    time.Duration
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithCheckDelay sets the delay of the progress check after "start".
func WithCheckDelay(d time.Duration) EngineOption {
	return func(e *Engine) { e.checkDelay = d }
}

// WithSupportDelay sets the delay of the support nudge after "start".
func WithSupportDelay(d time.Duration) EngineOption {
	return func(e *Engine) { e.supportDelay = d }
}

// WithShortDelay sets the duration of the short result delay.
func WithShortDelay(d time.Duration) EngineOption {
	return func(e *Engine) { e.shortDelay = d }
}

// WithLongDelay sets the duration of the long result delay.
func WithLongDelay(d time.Duration) EngineOption {
	return func(e *Engine) { e.longDelay = d }
}

// WithMotivator replaces the static motivation pools.
func WithMotivator(m Motivator) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.motivator = m
		}
	}
}

// WithEngineClock overrides the time source.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine wires the state machine and installs itself as the scheduler's fire handler.
func NewEngine(sessions *SessionStore, scheduler *FollowUpScheduler, gate *admission.Gate, sender Sender, events EventLog, opts ...EngineOption) *Engine {
	e := &Engine{
		sessions:     sessions,
		scheduler:    scheduler,
		gate:         gate,
		sender:       sender,
		events:       events,
		motivator:    NewStaticMotivator(),
		tracer:       otel.Tracer(tracerName),
		now:          time.Now,
		checkDelay:   DefaultCheckDelay,
		supportDelay: DefaultSupportDelay,
		shortDelay:   DefaultShortDelay,
		longDelay:    DefaultLongDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	scheduler.SetHandler(e.fireCallback)
	slog.Debug("Engine created", "checkDelay", e.checkDelay, "supportDelay", e.supportDelay,
		"shortDelay", e.shortDelay, "longDelay", e.longDelay)
	return e
}

// HandleEvent routes an inbound transport event.
func (e *Engine) HandleEvent(ctx context.Context, ev models.InboundEvent) (models.Ack, error) {
	ctx, span := e.tracer.Start(ctx, "flow.HandleEvent", trace.WithAttributes(
		attribute.String("participant.id", ev.ParticipantID),
		attribute.String("inbound.kind", string(ev.Kind)),
	))
	defer span.End()

	var ack models.Ack
	var err error
	switch ev.Kind {
	case models.InboundButton:
		ack, err = e.HandleButton(ctx, ev.ParticipantID, ev.SourceMessageID, ev.Payload)
	case models.InboundText:
		err = e.HandleText(ctx, ev.ParticipantID, ev.Text)
	default:
		err = fmt.Errorf("%w: inbound kind %q", models.ErrMalformedInput, ev.Kind)
	}
	recordOutcome(span, err)
	return ack, err
}

func recordOutcome(span trace.Span, err error) {
	switch {
	case err == nil:
		span.SetAttributes(attribute.String("interaction.outcome", "ok"))
	case models.IsRecoverable(err):
		span.SetAttributes(attribute.String("interaction.outcome", err.Error()))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

const (
	cmdStart = "start"
	cmdHelp  = "help"
	cmdStats = "stats"
	cmdPlan  = "plan"
)

func parseCommand(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	switch t {
	case "start", "/start", strings.ToLower(MenuStart):
		return cmdStart
	case "help", "/help", strings.ToLower(MenuHelp):
		return cmdHelp
	case "stats", "/stats", strings.ToLower(MenuStats):
		return cmdStats
	case "plan", "/plan":
		return cmdPlan
	}
	return ""
}

// IsCommand reports whether text is one of the menu commands.
func IsCommand(text string) bool {
	return parseCommand(text) != ""
}

var bulletPrefix = regexp.MustCompile(`^(?:[-*•]\s*|\d{1,2}[.)]\s+)`)

// parseActions splits a free-text list into action names, one per line.
func parseActions(text string) []string {
	lines := strings.Split(norm.NFC.String(text), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(bulletPrefix.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

// HandleText handles free text: menu commands anywhere, the action list in the
// actions step.
func (e *Engine) HandleText(ctx context.Context, participantID, text string) error {
	switch parseCommand(text) {
	case cmdStart:
		return e.Start(ctx, participantID)
	case cmdHelp:
		_, err := e.send(ctx, plainText(participantID, textHelp, true))
		return err
	case cmdStats:
		return e.sendStats(ctx, participantID)
	case cmdPlan:
		return e.sendPlan(ctx, participantID)
	}

	h, err := e.sessions.Lock(participantID)
	if err != nil {
		return err
	}
	defer h.Unlock()

	sess := h.Session()
	if sess == nil {
		_, err := e.send(ctx, plainText(participantID, textMenuHint, true))
		return err
	}
	switch sess.Step {
	case models.StepActions:
		return e.onActions(ctx, h, sess, text)
	case models.StepEnergy, models.StepTyping, models.StepScoring, models.StepResult:
		if _, err := e.send(ctx, plainText(participantID, textUseButtons, false)); err != nil {
			return err
		}
		return fmt.Errorf("%w: text in step %s", models.ErrMalformedInput, sess.Step)
	default:
		_, err := e.send(ctx, plainText(participantID, textMenuHint, true))
		return err
	}
}

func actionsCorrection(err error) string {
	switch {
	case errors.Is(err, models.ErrTooFewActions):
		return fmt.Sprintf("I need at least %d actions. Please send them one per line.", models.MinActions)
	case errors.Is(err, models.ErrTooManyActions):
		return fmt.Sprintf("That's more than %d. Please send at most %d actions, one per line.", models.MaxActions, models.MaxActions)
	case errors.Is(err, models.ErrActionNameShort):
		return fmt.Sprintf("Each action needs at least %d characters. Please send the list again.", models.MinActionNameLen)
	}
	return textActionsPrompt
}

func (e *Engine) onActions(ctx context.Context, h *SessionHandle, sess *models.Session, text string) error {
	pid := sess.ParticipantID
	names := parseActions(text)
	if err := sess.SetActions(names); err != nil {
		slog.Debug("Engine.onActions: rejected list", "participantID", pid, "count", len(names), "error", err)
		if _, sendErr := e.send(ctx, plainText(pid, actionsCorrection(err), false)); sendErr != nil {
			return sendErr
		}
		return fmt.Errorf("%w: %v", models.ErrMalformedInput, err)
	}
	h.MarkDirty()
	e.logEvent(pid, models.EventActionsSet, strconv.Itoa(len(names)))
	return e.sendBound(ctx, sess, models.PhaseType, typePrompt(pid, sess))
}

// Start runs the admission gate and, when allowed, replaces the participant's
// session with a fresh one waiting for the energy answer.
func (e *Engine) Start(ctx context.Context, participantID string) error {
	h, err := e.sessions.Lock(participantID)
	if err != nil {
		return err
	}
	defer h.Unlock()
	return e.startLocked(ctx, h, participantID)
}

func (e *Engine) startLocked(ctx context.Context, h *SessionHandle, participantID string) error {
	d, err := e.gate.TryStart(participantID)
	if err != nil {
		return fmt.Errorf("admission check failed: %w", err)
	}
	if !d.Allowed {
		e.logEvent(participantID, models.EventQuotaDenied, string(d.Tier))
		if _, err := e.send(ctx, plainText(participantID, d.Reason, true)); err != nil {
			return err
		}
		return fmt.Errorf("%w: tier %s used %d", models.ErrQuotaExceeded, d.Tier, d.Used)
	}

	e.scheduler.CancelAll(participantID)
	sess := models.NewSession(util.GenerateSessionID(), participantID, d.Tier, e.now())
	h.Replace(sess)
	e.logEvent(participantID, models.EventStartFlow, string(d.Tier))
	slog.Info("Engine: session started", "participantID", participantID, "sessionID", sess.ID, "tier", d.Tier)
	return e.sendBound(ctx, sess, models.PhaseEnergy, energyPrompt(participantID))
}

// HandleButton validates a press against the live binding of its phase and
// applies it. Stale presses return ErrStaleInteraction with an empty Ack;
// repeated presses return ErrDuplicateInteraction.
func (e *Engine) HandleButton(ctx context.Context, participantID, sourceMessageID, payload string) (models.Ack, error) {
	tok, err := models.ParseToken(payload)
	if err != nil {
		slog.Debug("Engine.HandleButton: unknown token", "participantID", participantID, "payload", payload)
		return models.Ack{Text: textNotAvailable}, err
	}

	h, err := e.sessions.Lock(participantID)
	if err != nil {
		return models.Ack{}, err
	}
	defer h.Unlock()

	sess := h.Session()
	if sess == nil {
		return models.Ack{}, fmt.Errorf("%w: no session for %s", models.ErrStaleInteraction, participantID)
	}
	if err := sess.CheckBinding(tok.Phase, sourceMessageID); err != nil {
		slog.Debug("Engine.HandleButton: press rejected", "participantID", participantID, "token", tok.String(), "step", sess.Step, "error", err)
		if errors.Is(err, models.ErrDuplicateInteraction) {
			return models.Ack{Text: textAlreadyDone}, err
		}
		return models.Ack{}, err
	}

	switch tok.Phase {
	case models.PhaseEnergy:
		return e.onEnergy(ctx, h, sess, tok)
	case models.PhaseType:
		return e.onType(ctx, h, sess, tok)
	case models.PhaseScore:
		return e.onScore(ctx, h, sess, tok)
	case models.PhaseResult:
		return e.onResult(ctx, h, sess, tok)
	case models.PhaseProgress:
		return e.onProgress(ctx, h, sess, tok)
	case models.PhaseQuit:
		return e.onQuit(ctx, h, sess, tok)
	}
	return models.Ack{Text: textNotAvailable}, fmt.Errorf("%w: %s", models.ErrUnknownToken, tok.String())
}

func (e *Engine) onEnergy(ctx context.Context, h *SessionHandle, sess *models.Session, tok models.Token) (models.Ack, error) {
	level := models.EnergyLevel(tok.Value)
	if err := sess.SetEnergy(level); err != nil {
		return models.Ack{Text: textAlreadyDone}, err
	}
	h.MarkDirty()
	e.logEvent(sess.ParticipantID, models.EventEnergy, tok.Value)
	_, err := e.send(ctx, plainText(sess.ParticipantID, textActionsPrompt, false))
	return models.Ack{Text: "✅ Energy: " + energyLabels[level]}, err
}

func (e *Engine) onType(ctx context.Context, h *SessionHandle, sess *models.Session, tok models.Token) (models.Ack, error) {
	t := models.ActionType(tok.Value)
	done, err := sess.Classify(t)
	if err != nil {
		return models.Ack{}, err
	}
	h.MarkDirty()
	e.logEvent(sess.ParticipantID, models.EventType, tok.Value)
	ack := models.Ack{Text: "✅ " + t.Label()}
	if !done {
		return ack, e.sendBound(ctx, sess, models.PhaseType, typePrompt(sess.ParticipantID, sess))
	}
	return ack, e.sendBound(ctx, sess, models.PhaseScore, scorePrompt(sess.ParticipantID, sess))
}

func (e *Engine) onScore(ctx context.Context, h *SessionHandle, sess *models.Session, tok models.Token) (models.Ack, error) {
	v, err := tok.Score()
	if err != nil {
		return models.Ack{}, err
	}
	criterion := sess.CurrentCriterion()
	done, err := sess.Score(v)
	if err != nil {
		return models.Ack{}, err
	}
	h.MarkDirty()
	e.logEvent(sess.ParticipantID, models.EventScore, fmt.Sprintf("%s=%d", criterion, v))
	ack := models.Ack{Text: fmt.Sprintf("✅ %d", v)}
	if !done {
		return ack, e.sendBound(ctx, sess, models.PhaseScore, scorePrompt(sess.ParticipantID, sess))
	}
	return ack, e.presentFocus(ctx, sess)
}

func (e *Engine) presentFocus(ctx context.Context, sess *models.Session) error {
	best, idx := decision.PickBest(sess.Actions, sess.Energy)
	if idx < 0 {
		return fmt.Errorf("%w: no actions to choose from", models.ErrWrongStep)
	}
	if err := sess.SetFocus(best); err != nil {
		return err
	}
	total := decision.Total(best, sess.Energy)
	e.logEvent(sess.ParticipantID, models.EventFocus, best.Name)
	slog.Debug("Engine.presentFocus", "participantID", sess.ParticipantID, "focus", best.Name, "index", idx, "total", total)
	return e.sendBound(ctx, sess, models.PhaseResult,
		resultPrompt(sess.ParticipantID, best, total, e.shortDelay, e.longDelay))
}

func (e *Engine) onResult(ctx context.Context, h *SessionHandle, sess *models.Session, tok models.Token) (models.Ack, error) {
	if err := sess.LockResult(); err != nil {
		return models.Ack{Text: textAlreadyDone}, err
	}
	h.MarkDirty()
	e.scheduler.CancelAll(sess.ParticipantID)

	switch tok.Value {
	case models.ResultStart:
		return e.onStart(ctx, sess)
	case models.ResultDelayShort:
		return e.onDelay(ctx, sess, admission.DelayShort, e.shortDelay)
	case models.ResultDelayLong:
		return e.onDelay(ctx, sess, admission.DelayLong, e.longDelay)
	default:
		sess.Finish(models.StepIdle, models.OutcomeSkipped)
		name, _ := focusInfo(sess)
		e.logEvent(sess.ParticipantID, models.EventSkip, name)
		_, err := e.send(ctx, plainText(sess.ParticipantID, "OK.\nSometimes it's better not to push yourself.", true))
		return models.Ack{Text: "OK"}, err
	}
}

func (e *Engine) onStart(ctx context.Context, sess *models.Session) (models.Ack, error) {
	pid := sess.ParticipantID
	name, t := focusInfo(sess)
	sess.Finish(models.StepStarted, models.OutcomeStarted)
	e.logEvent(pid, models.EventStarted, name)

	motivation := e.motivator.Motivation(ctx, models.MotivationStart, t, name)
	text := fmt.Sprintf("🚀 You started: %s\n\n%s\n\nI won't distract you. I'll check in with you in %s.",
		name, motivation, formatDelay(e.checkDelay))
	_, err := e.send(ctx, plainText(pid, text, false))

	e.arm(pid, models.CallbackCheck, e.checkDelay, sess.ID)
	if e.gate.Plan(sess.Tier).SupportNudge {
		e.arm(pid, models.CallbackSupport, e.supportDelay, sess.ID)
	}
	return models.Ack{Text: "Let's go 🔥"}, err
}

func (e *Engine) onDelay(ctx context.Context, sess *models.Session, name string, d time.Duration) (models.Ack, error) {
	pid := sess.ParticipantID
	plan := e.gate.Plan(sess.Tier)
	if !plan.AllowsDelay(name) {
		sess.Finish(models.StepIdle, models.OutcomeNone)
		e.logEvent(pid, models.EventDelayDenied, shortDelay(d))
		if _, err := e.send(ctx, plainText(pid, delayDeniedText(d, plan, e.allowedDelays(plan)), true)); err != nil {
			return models.Ack{}, err
		}
		return models.Ack{Text: textNotAvailable}, fmt.Errorf("%w: %s delay on %s", models.ErrUnsupportedFeature, name, sess.Tier)
	}

	sess.Finish(models.StepIdle, models.OutcomeDelayed)
	e.logEvent(pid, models.EventDelayed, shortDelay(d))
	_, err := e.send(ctx, plainText(pid, fmt.Sprintf("OK.\nI'll remind you in %s.", formatDelay(d)), true))
	e.arm(pid, models.CallbackRemind, d, sess.ID)
	return models.Ack{Text: "OK ⏸"}, err
}

func (e *Engine) onProgress(ctx context.Context, h *SessionHandle, sess *models.Session, tok models.Token) (models.Ack, error) {
	pid := sess.ParticipantID
	sess.Consume(models.PhaseProgress)
	h.MarkDirty()
	e.logEvent(pid, models.EventProgress, tok.Value)
	name, t := focusInfo(sess)

	switch tok.Value {
	case models.ProgressOK:
		m := e.motivator.Motivation(ctx, models.MotivationOK, t, name)
		_, err := e.send(ctx, plainText(pid, "👍 Got it: going fine.\n\n"+m, false))
		return models.Ack{Text: "✅"}, err
	case models.ProgressHard:
		m := e.motivator.Motivation(ctx, models.MotivationHard, t, name)
		_, err := e.send(ctx, plainText(pid, "😵 Got it: it's hard.\n\n"+HardBase+"\n\n"+m, false))
		return models.Ack{Text: "OK"}, err
	default:
		e.scheduler.CancelAll(pid)
		sess.Finish(models.StepIdle, models.OutcomeQuit)
		m := e.motivator.Motivation(ctx, models.MotivationQuit, t, name)
		err := e.sendBound(ctx, sess, models.PhaseQuit, quitPrompt(pid, "❌ Got it: gave up.\n\n"+m))
		return models.Ack{Text: "OK"}, err
	}
}

func (e *Engine) onQuit(ctx context.Context, h *SessionHandle, sess *models.Session, tok models.Token) (models.Ack, error) {
	pid := sess.ParticipantID
	sess.Consume(models.PhaseQuit)
	h.MarkDirty()
	e.logEvent(pid, models.EventQuitAction, tok.Value)

	switch tok.Value {
	case models.QuitRetry:
		if _, err := e.send(ctx, plainText(pid, textRetry, true)); err != nil {
			return models.Ack{}, err
		}
		return models.Ack{Text: "OK"}, e.startLocked(ctx, h, pid)
	case models.QuitNew:
		return models.Ack{Text: "OK"}, e.startLocked(ctx, h, pid)
	default:
		_, err := e.send(ctx, plainText(pid, textLater, true))
		return models.Ack{Text: "OK"}, err
	}
}

// fireCallback is the scheduler handler. Callbacks armed for an earlier session
// are dropped.
func (e *Engine) fireCallback(ctx context.Context, cb models.Callback) {
	ctx, span := e.tracer.Start(ctx, "flow.FireCallback", trace.WithAttributes(
		attribute.String("participant.id", cb.ParticipantID),
		attribute.String("callback.kind", string(cb.Kind)),
	))
	defer span.End()

	h, err := e.sessions.Lock(cb.ParticipantID)
	if err != nil {
		slog.Error("Engine.fireCallback: session load failed", "error", err, "participantID", cb.ParticipantID, "kind", cb.Kind)
		span.RecordError(err)
		return
	}
	defer h.Unlock()

	sess := h.Session()
	if sess == nil || sess.ID != cb.SessionID {
		slog.Debug("Engine.fireCallback: dropping callback of a replaced session", "participantID", cb.ParticipantID, "kind", cb.Kind)
		span.SetAttributes(attribute.Bool("callback.dropped", true))
		return
	}

	pid := cb.ParticipantID
	name, t := focusInfo(sess)
	var kind models.EventKind
	switch cb.Kind {
	case models.CallbackCheck:
		kind = models.EventCheckSent
		err = e.sendBound(ctx, sess, models.PhaseProgress, progressPrompt(pid, name))
		h.MarkDirty()
	case models.CallbackRemind:
		kind = models.EventReminderSent
		_, err = e.send(ctx, plainText(pid, fmt.Sprintf("⏰ Time to get back to %s. Start with the smallest step.", name), true))
	case models.CallbackSupport:
		kind = models.EventSupportSent
		m := e.motivator.Motivation(ctx, models.MotivationSupport, t, name)
		_, err = e.send(ctx, plainText(pid, "💬 "+m, false))
	default:
		slog.Warn("Engine.fireCallback: unknown kind", "participantID", pid, "kind", cb.Kind)
		return
	}
	if err != nil {
		slog.Error("Engine.fireCallback: send failed, not retrying", "error", err, "participantID", pid, "kind", cb.Kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	e.logEvent(pid, kind, cb.Value)
}

func (e *Engine) arm(participantID string, kind models.CallbackKind, d time.Duration, sessionID string) {
	if _, err := e.scheduler.Arm(participantID, kind, d, sessionID, shortDelay(d)); err != nil {
		slog.Warn("Engine.arm: callback armed in memory only", "error", err, "participantID", participantID, "kind", kind)
	}
}

// send delivers msg, mapping transport errors to ErrTransportFailure.
func (e *Engine) send(ctx context.Context, msg models.OutboundMessage) (string, error) {
	id, err := e.sender.SendMessage(ctx, msg)
	if err != nil {
		slog.Error("Engine.send: transport failure", "error", err, "participantID", msg.To)
		return "", fmt.Errorf("%w: %v", models.ErrTransportFailure, err)
	}
	return id, nil
}

// sendBound delivers a button prompt and binds its id to phase. When the send
// fails the phase is unbound, so the prompt that was just answered cannot be
// pressed again against the advanced cursor.
func (e *Engine) sendBound(ctx context.Context, sess *models.Session, phase models.Phase, msg models.OutboundMessage) error {
	id, err := e.send(ctx, msg)
	if err != nil {
		sess.Bind(phase, "")
		return err
	}
	sess.Bind(phase, id)
	return nil
}

func (e *Engine) logEvent(participantID string, kind models.EventKind, value string) {
	err := e.events.AppendEvent(models.Event{ParticipantID: participantID, Kind: kind, Value: value, CreatedAt: e.now()})
	if err != nil {
		slog.Warn("Engine.logEvent: append failed", "error", err, "participantID", participantID, "kind", kind)
	}
}

func (e *Engine) allowedDelays(plan admission.Plan) []time.Duration {
	var out []time.Duration
	if plan.AllowsDelay(admission.DelayShort) {
		out = append(out, e.shortDelay)
	}
	if plan.AllowsDelay(admission.DelayLong) {
		out = append(out, e.longDelay)
	}
	return out
}

func focusInfo(sess *models.Session) (string, models.ActionType) {
	if sess.Focus == nil {
		return "your action", ""
	}
	return sess.Focus.Name, sess.FocusType()
}

// Stats summarizes a participant's day.
type Stats struct {
	ParticipantID string          `json:"participant_id"`
	Tier          models.TierCode `json:"tier"`
	PlanLabel     string          `json:"plan"`
	DailyCap      int             `json:"daily_cap"`
	Unlimited     bool            `json:"unlimited"`
	Focus         int             `json:"focus"`
	Started       int             `json:"started"`
	Delayed       int             `json:"delayed"`
	Skipped       int             `json:"skipped"`
}

// Stats counts today's ritual outcomes for a participant.
func (e *Engine) Stats(participantID string) (Stats, error) {
	tier, err := e.gate.EffectiveTier(participantID)
	if err != nil {
		return Stats{}, err
	}
	plan := e.gate.Plan(tier)
	st := Stats{
		ParticipantID: participantID,
		Tier:          tier,
		PlanLabel:     plan.Label,
		DailyCap:      plan.DailyCap,
		Unlimited:     plan.Unlimited || tier == models.TierAdmin,
	}
	counts := []struct {
		kind models.EventKind
		dst  *int
	}{
		{models.EventFocus, &st.Focus},
		{models.EventStarted, &st.Started},
		{models.EventDelayed, &st.Delayed},
		{models.EventSkip, &st.Skipped},
	}
	for _, c := range counts {
		n, err := e.gate.CountToday(participantID, c.kind)
		if err != nil {
			return Stats{}, err
		}
		*c.dst = n
	}
	return st, nil
}

func (e *Engine) sendStats(ctx context.Context, participantID string) error {
	st, err := e.Stats(participantID)
	if err != nil {
		return err
	}
	_, err = e.send(ctx, plainText(participantID, statsText(st), true))
	return err
}

func (e *Engine) sendPlan(ctx context.Context, participantID string) error {
	tier, err := e.gate.EffectiveTier(participantID)
	if err != nil {
		return err
	}
	grant, err := e.gate.ActiveGrant(participantID)
	if err != nil {
		return err
	}
	plan := e.gate.Plan(tier)
	_, err = e.send(ctx, plainText(participantID, planText(tier, plan, grant, e.gate.Location(), e.allowedDelays(plan)), true))
	return err
}

// Session returns a copy of the participant's live session, or nil.
func (e *Engine) Session(participantID string) (*models.Session, error) {
	return e.sessions.Get(participantID)
}
