package flow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/FocusPipe/internal/admission"
	"github.com/BTreeMap/FocusPipe/internal/models"
)

func TestEngine_FullRitualPicksBestAction(t *testing.T) {
	h := newHarness(t)
	h.runToResult(t, "alice")

	sess := h.session(t, "alice")
	if sess.Step != models.StepResult {
		t.Fatalf("expected step %s, got %s", models.StepResult, sess.Step)
	}
	if sess.Focus == nil || sess.Focus.Name != "write report" {
		t.Fatalf("expected focus 'write report', got %+v", sess.Focus)
	}
	last := h.sender.last()
	if !strings.Contains(last.Text, "write report") || !strings.Contains(last.Text, "Score: 35") {
		t.Errorf("unexpected result prompt: %q", last.Text)
	}
	if len(last.FlatButtons()) != 4 {
		t.Errorf("expected 4 result buttons, got %d", len(last.FlatButtons()))
	}
	if n := h.countEvents("alice", models.EventFocus); n != 1 {
		t.Errorf("expected 1 focus event, got %d", n)
	}
	if n := h.countEvents("alice", models.EventScore); n != 12 {
		t.Errorf("expected 12 score events, got %d", n)
	}
}

func TestEngine_StalePressIsIgnored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.engine.Start(ctx, "bob"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	sent := h.sender.count()

	ack, err := h.engine.HandleButton(ctx, "bob", "msg-unknown", "energy:low")
	if !errors.Is(err, models.ErrStaleInteraction) {
		t.Fatalf("expected ErrStaleInteraction, got %v", err)
	}
	if ack.Text != "" {
		t.Errorf("expected empty ack for stale press, got %q", ack.Text)
	}
	if h.sender.count() != sent {
		t.Errorf("stale press must not send messages")
	}
	if step := h.session(t, "bob").Step; step != models.StepEnergy {
		t.Errorf("expected step to stay %s, got %s", models.StepEnergy, step)
	}
}

func TestEngine_PressFromReplacedSessionIsStale(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.engine.Start(ctx, "bob"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	oldID := h.sender.idFor("energy:low")
	if err := h.engine.Start(ctx, "bob"); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	if _, err := h.engine.HandleButton(ctx, "bob", oldID, "energy:low"); !errors.Is(err, models.ErrStaleInteraction) {
		t.Fatalf("expected ErrStaleInteraction for old prompt, got %v", err)
	}
	h.mustPress(t, "bob", "energy:low")
}

func TestEngine_DuplicateEnergyPress(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.Start(context.Background(), "carol"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	ack := h.mustPress(t, "carol", "energy:mid")
	if !strings.Contains(ack.Text, "Energy") {
		t.Errorf("unexpected ack: %q", ack.Text)
	}
	sent := h.sender.count()

	ack, err := h.press(t, "carol", "energy:high")
	if !errors.Is(err, models.ErrDuplicateInteraction) {
		t.Fatalf("expected ErrDuplicateInteraction, got %v", err)
	}
	if ack.Text != "Already handled." {
		t.Errorf("expected 'Already handled.' ack, got %q", ack.Text)
	}
	if h.sender.count() != sent {
		t.Errorf("duplicate press must not send messages")
	}
	if e := h.session(t, "carol").Energy; e != models.EnergyMid {
		t.Errorf("expected energy to stay mid, got %s", e)
	}
}

func TestEngine_NoSessionPressIsStale(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.HandleButton(context.Background(), "nobody", "msg-1", "energy:low")
	if !errors.Is(err, models.ErrStaleInteraction) {
		t.Fatalf("expected ErrStaleInteraction, got %v", err)
	}
}

func TestEngine_UnknownToken(t *testing.T) {
	h := newHarness(t)
	ack, err := h.engine.HandleButton(context.Background(), "dave", "msg-1", "bogus")
	if !errors.Is(err, models.ErrUnknownToken) {
		t.Fatalf("expected ErrUnknownToken, got %v", err)
	}
	if ack.Text == "" {
		t.Error("expected a notice for an unknown token")
	}
}

func TestEngine_ActionsValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.engine.Start(ctx, "erin"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	h.mustPress(t, "erin", "energy:high")

	err := h.engine.HandleText(ctx, "erin", "one thing\nanother")
	if !errors.Is(err, models.ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput, got %v", err)
	}
	if !strings.Contains(h.sender.last().Text, "at least 3") {
		t.Errorf("expected correction about the minimum, got %q", h.sender.last().Text)
	}
	if step := h.session(t, "erin").Step; step != models.StepActions {
		t.Fatalf("expected step to stay %s, got %s", models.StepActions, step)
	}

	if err := h.engine.HandleText(ctx, "erin", "- read mail\n2. walk dog\n• cook soup"); err != nil {
		t.Fatalf("bulleted list rejected: %v", err)
	}
	sess := h.session(t, "erin")
	if sess.Step != models.StepTyping || len(sess.Actions) != 3 {
		t.Fatalf("expected typing with 3 actions, got %s with %d", sess.Step, len(sess.Actions))
	}
	if sess.Actions[1].Name != "walk dog" {
		t.Errorf("expected bullet stripped, got %q", sess.Actions[1].Name)
	}
}

func TestEngine_TextDuringButtonStep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.engine.Start(ctx, "fred"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	err := h.engine.HandleText(ctx, "fred", "hello")
	if !errors.Is(err, models.ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput, got %v", err)
	}
	if h.sender.last().Text != textUseButtons {
		t.Errorf("expected button hint, got %q", h.sender.last().Text)
	}
}

func TestEngine_TextWithoutSessionShowsMenuHint(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.HandleText(context.Background(), "gina", "hi there"); err != nil {
		t.Fatalf("HandleText failed: %v", err)
	}
	last := h.sender.last()
	if last.Text != textMenuHint || !last.ShowMenu {
		t.Errorf("expected menu hint with menu, got %+v", last)
	}
}

func TestEngine_ResultIsOneShot(t *testing.T) {
	h := newHarness(t)
	h.runToResult(t, "hank")
	resultID := h.sender.idFor("res:start")

	ack := h.mustPress(t, "hank", "res:start")
	if ack.Text == "" {
		t.Error("expected an ack for start")
	}
	_, err := h.engine.HandleButton(context.Background(), "hank", resultID, "res:skip")
	if !errors.Is(err, models.ErrDuplicateInteraction) {
		t.Fatalf("expected ErrDuplicateInteraction on second result press, got %v", err)
	}
	sess := h.session(t, "hank")
	if sess.Step != models.StepStarted || sess.Outcome != models.OutcomeStarted {
		t.Errorf("expected started/started, got %s/%s", sess.Step, sess.Outcome)
	}
	if n := h.countEvents("hank", models.EventSkip); n != 0 {
		t.Errorf("expected no skip event, got %d", n)
	}
}

func TestEngine_StartArmsCheckOnly(t *testing.T) {
	h := newHarness(t)
	h.runToResult(t, "ivan")
	h.mustPress(t, "ivan", "res:start")

	if !h.scheduler.IsArmed("ivan", models.CallbackCheck) {
		t.Fatal("expected check to be armed")
	}
	if h.scheduler.IsArmed("ivan", models.CallbackSupport) {
		t.Error("free tier must not get a support nudge")
	}
	live := h.timers.live()
	if len(live) != 1 || live[0].d != DefaultCheckDelay {
		t.Fatalf("expected one live timer of %v, got %d", DefaultCheckDelay, len(live))
	}
	if !strings.Contains(h.sender.last().Text, "10 minutes") {
		t.Errorf("expected check-in delay in start text, got %q", h.sender.last().Text)
	}
	cbs, err := h.store.ListCallbacks()
	if err != nil {
		t.Fatalf("ListCallbacks failed: %v", err)
	}
	if len(cbs) != 1 || cbs[0].Kind != models.CallbackCheck {
		t.Errorf("expected persisted check callback, got %+v", cbs)
	}
}

func TestEngine_PremiumStartArmsSupport(t *testing.T) {
	h := newHarness(t)
	h.grant(t, "judy", models.TierPremium)
	h.runToResult(t, "judy")
	h.mustPress(t, "judy", "res:start")

	if !h.scheduler.IsArmed("judy", models.CallbackCheck) || !h.scheduler.IsArmed("judy", models.CallbackSupport) {
		t.Fatal("expected check and support to be armed")
	}
	cb, _ := h.scheduler.Pending("judy", models.CallbackSupport)
	if cb.FireAt.Sub(testNow) != DefaultSupportDelay {
		t.Errorf("expected support at %v, got %v", DefaultSupportDelay, cb.FireAt.Sub(testNow))
	}
}

func TestEngine_LongDelayIsPremiumOnly(t *testing.T) {
	h := newHarness(t)
	h.runToResult(t, "kate")

	ack, err := h.press(t, "kate", "res:delay30")
	if !errors.Is(err, models.ErrUnsupportedFeature) {
		t.Fatalf("expected ErrUnsupportedFeature, got %v", err)
	}
	if ack.Text == "" {
		t.Error("expected a notice for a denied delay")
	}
	last := h.sender.last()
	if !strings.Contains(last.Text, "Premium-only") {
		t.Errorf("expected premium-only explanation, got %q", last.Text)
	}
	if len(h.timers.live()) != 0 {
		t.Errorf("denied delay must not arm a callback")
	}
	sess := h.session(t, "kate")
	if sess.Step != models.StepIdle || sess.Outcome != models.OutcomeNone {
		t.Errorf("expected idle with no outcome, got %s/%q", sess.Step, sess.Outcome)
	}
	if n := h.countEvents("kate", models.EventDelayDenied); n != 1 {
		t.Errorf("expected 1 delay_denied event, got %d", n)
	}
}

func TestEngine_ShortDelayArmsReminder(t *testing.T) {
	h := newHarness(t)
	h.runToResult(t, "liam")
	h.mustPress(t, "liam", "res:delay10")

	sess := h.session(t, "liam")
	if sess.Step != models.StepIdle || sess.Outcome != models.OutcomeDelayed {
		t.Fatalf("expected idle/delayed, got %s/%s", sess.Step, sess.Outcome)
	}
	live := h.timers.live()
	if len(live) != 1 || live[0].d != DefaultShortDelay {
		t.Fatalf("expected one remind timer of %v, got %d", DefaultShortDelay, len(live))
	}

	h.timers.fire(live[0])
	last := h.sender.last()
	if !strings.Contains(last.Text, "write report") || !last.ShowMenu {
		t.Errorf("unexpected reminder: %+v", last)
	}
	if n := h.countEvents("liam", models.EventReminderSent); n != 1 {
		t.Errorf("expected 1 reminder_sent event, got %d", n)
	}
	if h.scheduler.IsArmed("liam", models.CallbackRemind) {
		t.Error("fired reminder must be disarmed")
	}
	cbs, _ := h.store.ListCallbacks()
	if len(cbs) != 0 {
		t.Errorf("fired reminder must be removed from the repo, got %d", len(cbs))
	}
}

func TestEngine_PremiumLongDelay(t *testing.T) {
	h := newHarness(t)
	h.grant(t, "mona", models.TierPremium)
	h.runToResult(t, "mona")
	h.mustPress(t, "mona", "res:delay30")

	cb, ok := h.scheduler.Pending("mona", models.CallbackRemind)
	if !ok {
		t.Fatal("expected remind to be armed")
	}
	if cb.Value != "30m" {
		t.Errorf("expected value 30m, got %q", cb.Value)
	}
}

func TestEngine_Skip(t *testing.T) {
	h := newHarness(t)
	h.runToResult(t, "ned")
	h.mustPress(t, "ned", "res:skip")

	sess := h.session(t, "ned")
	if sess.Step != models.StepIdle || sess.Outcome != models.OutcomeSkipped {
		t.Errorf("expected idle/skipped, got %s/%s", sess.Step, sess.Outcome)
	}
	if len(h.timers.live()) != 0 {
		t.Error("skip must not arm callbacks")
	}
	if n := h.countEvents("ned", models.EventSkip); n != 1 {
		t.Errorf("expected 1 skip event, got %d", n)
	}
}

func TestEngine_QuotaDenied(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		if err := h.store.AppendEvent(models.Event{ParticipantID: "olga", Kind: models.EventFocus, Value: "x", CreatedAt: testNow.Add(-time.Minute)}); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}
	err := h.engine.Start(context.Background(), "olga")
	if !errors.Is(err, models.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if !strings.Contains(h.sender.last().Text, "3") {
		t.Errorf("expected denial to name the cap, got %q", h.sender.last().Text)
	}
	if sess := h.session(t, "olga"); sess != nil {
		t.Errorf("denied start must not create a session, got %+v", sess)
	}
	if n := h.countEvents("olga", models.EventQuotaDenied); n != 1 {
		t.Errorf("expected 1 quota_denied event, got %d", n)
	}
}

func TestEngine_AdminIsNeverCapped(t *testing.T) {
	h := newHarness(t, admission.WithAdmins("root"))
	for i := 0; i < 10; i++ {
		if err := h.store.AppendEvent(models.Event{ParticipantID: "root", Kind: models.EventFocus, CreatedAt: testNow}); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}
	if err := h.engine.Start(context.Background(), "root"); err != nil {
		t.Fatalf("admin start denied: %v", err)
	}
}

func TestEngine_ProgressAnswers(t *testing.T) {
	h := newHarness(t)
	h.grant(t, "pete", models.TierPremium)
	h.runToResult(t, "pete")
	h.mustPress(t, "pete", "res:start")

	var checkTimer *fakeTimer
	for _, ft := range h.timers.live() {
		if ft.d == DefaultCheckDelay {
			checkTimer = ft
		}
	}
	if checkTimer == nil {
		t.Fatal("expected check to be armed")
	}
	h.timers.fire(checkTimer)
	if !strings.Contains(h.sender.last().Text, "write report") {
		t.Fatalf("expected progress prompt, got %q", h.sender.last().Text)
	}
	if n := h.countEvents("pete", models.EventCheckSent); n != 1 {
		t.Errorf("expected 1 check_sent event, got %d", n)
	}

	h.mustPress(t, "pete", "prog:hard")
	if !strings.Contains(h.sender.last().Text, HardBase) {
		t.Errorf("expected hard answer to include base text, got %q", h.sender.last().Text)
	}
	if !h.scheduler.IsArmed("pete", models.CallbackSupport) {
		t.Error("hard answer must leave the support nudge armed")
	}

	if _, err := h.press(t, "pete", "prog:quit"); !errors.Is(err, models.ErrDuplicateInteraction) {
		t.Fatalf("expected ErrDuplicateInteraction on second progress press, got %v", err)
	}
}

func TestEngine_ProgressQuitCancelsFollowUps(t *testing.T) {
	h := newHarness(t)
	h.grant(t, "quinn", models.TierPremium)
	h.runToResult(t, "quinn")
	h.mustPress(t, "quinn", "res:start")
	for _, ft := range h.timers.live() {
		if ft.d == DefaultCheckDelay {
			h.timers.fire(ft)
		}
	}

	h.mustPress(t, "quinn", "prog:quit")
	if len(h.scheduler.Armed("quinn")) != 0 {
		t.Fatal("quit must cancel every follow-up")
	}
	sess := h.session(t, "quinn")
	if sess.Outcome != models.OutcomeQuit {
		t.Errorf("expected outcome quit, got %s", sess.Outcome)
	}
	if len(h.sender.last().FlatButtons()) != 3 {
		t.Errorf("expected quit options, got %+v", h.sender.last())
	}

	h.mustPress(t, "quinn", "quit:later")
	if !strings.Contains(h.sender.last().Text, "start") {
		t.Errorf("unexpected later text: %q", h.sender.last().Text)
	}
	if _, err := h.press(t, "quinn", "quit:new"); !errors.Is(err, models.ErrDuplicateInteraction) {
		t.Errorf("expected quit prompt to be one-shot, got %v", err)
	}
}

func TestEngine_QuitRetryStartsNewSession(t *testing.T) {
	h := newHarness(t)
	h.runToResult(t, "rosa")
	h.mustPress(t, "rosa", "res:start")
	h.timers.fire(h.timers.live()[0])
	h.mustPress(t, "rosa", "prog:quit")
	oldID := h.session(t, "rosa").ID

	h.mustPress(t, "rosa", "quit:retry")
	sess := h.session(t, "rosa")
	if sess.ID == oldID {
		t.Fatal("expected a new session")
	}
	if sess.Step != models.StepEnergy {
		t.Errorf("expected energy step, got %s", sess.Step)
	}
	if !h.sender.anyContains(textRetry) {
		t.Error("expected retry text")
	}
}

func TestEngine_CallbackOfReplacedSessionIsDropped(t *testing.T) {
	h := newHarness(t)
	h.runToResult(t, "sam")
	h.mustPress(t, "sam", "res:delay10")
	cb, ok := h.scheduler.Pending("sam", models.CallbackRemind)
	if !ok {
		t.Fatal("expected remind to be armed")
	}
	if err := h.engine.Start(context.Background(), "sam"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if h.scheduler.IsArmed("sam", models.CallbackRemind) {
		t.Fatal("new session must cancel earlier follow-ups")
	}
	sent := h.sender.count()

	h.engine.fireCallback(context.Background(), cb)
	if h.sender.count() != sent {
		t.Errorf("callback of a replaced session must not send")
	}
	if n := h.countEvents("sam", models.EventReminderSent); n != 0 {
		t.Errorf("expected no reminder_sent event, got %d", n)
	}
}

func TestEngine_FireSendFailureIsNotLogged(t *testing.T) {
	h := newHarness(t)
	h.runToResult(t, "tina")
	h.mustPress(t, "tina", "res:delay10")
	live := h.timers.live()

	h.sender.fail = errors.New("network down")
	h.timers.fire(live[0])
	if n := h.countEvents("tina", models.EventReminderSent); n != 0 {
		t.Errorf("failed send must not be logged as sent, got %d", n)
	}
	if len(h.timers.live()) != 0 {
		t.Error("failed send must not be retried")
	}
}

func TestEngine_SendFailureIsTransportError(t *testing.T) {
	h := newHarness(t)
	h.sender.fail = errors.New("boom")
	err := h.engine.Start(context.Background(), "uma")
	if !errors.Is(err, models.ErrTransportFailure) {
		t.Fatalf("expected ErrTransportFailure, got %v", err)
	}
}

func TestEngine_Commands(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.runToResult(t, "vera")
	h.mustPress(t, "vera", "res:start")

	if err := h.engine.HandleText(ctx, "vera", "stats"); err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	last := h.sender.last()
	if !strings.Contains(last.Text, "1 of 3") || !strings.Contains(last.Text, "Started: 1") {
		t.Errorf("unexpected stats text: %q", last.Text)
	}

	if err := h.engine.HandleText(ctx, "vera", "/help"); err != nil {
		t.Fatalf("help failed: %v", err)
	}
	if h.sender.last().Text != textHelp {
		t.Errorf("expected help text")
	}

	if err := h.engine.HandleText(ctx, "vera", "plan"); err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if !strings.Contains(h.sender.last().Text, "Free") {
		t.Errorf("expected plan label, got %q", h.sender.last().Text)
	}

	if err := h.engine.HandleText(ctx, "vera", MenuStart); err != nil {
		t.Fatalf("menu start failed: %v", err)
	}
	if step := h.session(t, "vera").Step; step != models.StepEnergy {
		t.Errorf("expected menu start to open a session, got %s", step)
	}
}

func TestEngine_Stats(t *testing.T) {
	h := newHarness(t)
	h.grant(t, "walt", models.TierPremium)
	st, err := h.engine.Stats("walt")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.Tier != models.TierPremium || !st.Unlimited || st.Focus != 0 {
		t.Errorf("unexpected stats: %+v", st)
	}
}

func TestEngine_HandleEventRoutesByKind(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.engine.HandleEvent(ctx, models.InboundEvent{ParticipantID: "xena", Kind: models.InboundText, Text: "start"}); err != nil {
		t.Fatalf("text event failed: %v", err)
	}
	ack, err := h.engine.HandleEvent(ctx, models.InboundEvent{
		ParticipantID:   "xena",
		Kind:            models.InboundButton,
		SourceMessageID: h.sender.idFor("energy:low"),
		Payload:         "energy:low",
	})
	if err != nil {
		t.Fatalf("button event failed: %v", err)
	}
	if ack.Text == "" {
		t.Error("expected an ack for the energy press")
	}
	if _, err := h.engine.HandleEvent(ctx, models.InboundEvent{ParticipantID: "xena", Kind: "sticker"}); !errors.Is(err, models.ErrMalformedInput) {
		t.Errorf("expected ErrMalformedInput for unknown kind, got %v", err)
	}
}

func TestParseActions(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"plain", "a1\nb2\nc3", []string{"a1", "b2", "c3"}},
		{"blank lines", "\n  read  \n\n write \n", []string{"read", "write"}},
		{"dashes", "- one\n* two\n• three", []string{"one", "two", "three"}},
		{"numbers", "1. one\n2) two\n10. ten", []string{"one", "two", "ten"}},
		{"number without space kept", "3d print", []string{"3d print"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseActions(tt.in)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("parseActions(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	cases := map[string]string{
		"start":    cmdStart,
		" /START ": cmdStart,
		MenuStart:  cmdStart,
		MenuStats:  cmdStats,
		"help":     cmdHelp,
		"plan":     cmdPlan,
		"starting": "",
	}
	for in, want := range cases {
		if got := parseCommand(in); got != want {
			t.Errorf("parseCommand(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFocusInfo(t *testing.T) {
	name, typ := focusInfo(&models.Session{})
	if name != "your action" || typ != "" {
		t.Errorf("expected placeholder focus, got %q/%q", name, typ)
	}
	name, typ = focusInfo(&models.Session{Focus: &models.Action{Name: "call bank", Type: models.ActionSocial}})
	if name != "call bank" || typ != models.ActionSocial {
		t.Errorf("expected call bank/social, got %q/%q", name, typ)
	}
}
