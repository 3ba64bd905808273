package flow

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/FocusPipe/internal/admission"
	"github.com/BTreeMap/FocusPipe/internal/models"
)

// GenericErrorText is sent by dispatchers when a handler fails unexpectedly.
const GenericErrorText = "Sorry, something went wrong on our side. Please try again."

// Menu command labels.
const (
	MenuStart = "🚀 Start"
	MenuStats = "📊 Stats"
	MenuHelp  = "❓ Help"
)

const (
	textActionsPrompt = "📝 List 3 to 7 things you could do right now, one per line."
	textMenuHint      = "Send \"start\" to begin a focus session."
	textUseButtons    = "Please answer with the buttons above."
	textRetry         = "OK. Pick a smaller action and let's start again 🙂"
	textLater         = "OK. When you're back, send \"start\"."
	textAlreadyDone   = "Already handled."
	textNotAvailable  = "Not available right now."
	textHelp          = "FocusPipe helps you pick one thing to do right now.\n\n" +
		"1. Tell me your energy.\n" +
		"2. List 3 to 7 possible actions, one per line.\n" +
		"3. Classify and score each one.\n" +
		"4. I pick your focus and check in on you later.\n\n" +
		"Commands: start, stats, plan, help."
)

var energyLabels = map[models.EnergyLevel]string{
	models.EnergyLow:  "🪫 Low",
	models.EnergyMid:  "🔋 Medium",
	models.EnergyHigh: "⚡ High",
}

var criterionQuestions = map[models.Criterion]string{
	models.CriterionInfluence: "How much will it move things forward?",
	models.CriterionUrgency:   "How urgent is it?",
	models.CriterionEnergy:    "How much energy does it take?",
	models.CriterionMeaning:   "How meaningful is it to you?",
}

func button(label string, phase models.Phase, value string) models.Button {
	return models.Button{Label: label, Payload: models.NewToken(phase, value).String()}
}

func energyPrompt(to string) models.OutboundMessage {
	row := make([]models.Button, 0, 3)
	for _, lvl := range []models.EnergyLevel{models.EnergyLow, models.EnergyMid, models.EnergyHigh} {
		row = append(row, button(energyLabels[lvl], models.PhaseEnergy, string(lvl)))
	}
	return models.OutboundMessage{
		To:      to,
		Text:    "⚡ How is your energy right now?",
		Buttons: [][]models.Button{row},
	}
}

func typePrompt(to string, sess *models.Session) models.OutboundMessage {
	action, _ := sess.CurrentAction()
	types := models.ActionTypes
	return models.OutboundMessage{
		To: to,
		Text: fmt.Sprintf("Action %d of %d: %s\nWhat kind of action is it?",
			sess.ActionIndex+1, len(sess.Actions), action.Name),
		Buttons: [][]models.Button{
			{button(types[0].Label(), models.PhaseType, string(types[0])), button(types[1].Label(), models.PhaseType, string(types[1]))},
			{button(types[2].Label(), models.PhaseType, string(types[2])), button(types[3].Label(), models.PhaseType, string(types[3]))},
		},
	}
}

func scorePrompt(to string, sess *models.Session) models.OutboundMessage {
	action, _ := sess.CurrentAction()
	c := sess.CurrentCriterion()
	row := make([]models.Button, 0, models.MaxScore)
	for v := models.MinScore; v <= models.MaxScore; v++ {
		row = append(row, button(strconv.Itoa(v), models.PhaseScore, strconv.Itoa(v)))
	}
	return models.OutboundMessage{
		To: to,
		Text: fmt.Sprintf("%s (%d/%d)\n%s\n1 = not at all, 5 = very much.",
			action.Name, sess.CriterionIndex+1, len(models.Criteria), criterionQuestions[c]),
		Buttons: [][]models.Button{row},
	}
}

func resultPrompt(to string, focus models.Action, total float64, short, long time.Duration) models.OutboundMessage {
	return models.OutboundMessage{
		To: to,
		Text: fmt.Sprintf("🎯 Your focus: %s (%s)\nScore: %s\n\nWhat now?",
			focus.Name, focus.Type.Label(), strconv.FormatFloat(total, 'f', -1, 64)),
		Buttons: [][]models.Button{
			{button("🚀 I'm starting", models.PhaseResult, models.ResultStart), button("⏸ In "+formatDelay(short), models.PhaseResult, models.ResultDelayShort)},
			{button("🕒 In "+formatDelay(long), models.PhaseResult, models.ResultDelayLong), button("❌ Not now", models.PhaseResult, models.ResultSkip)},
		},
	}
}

func progressPrompt(to, action string) models.OutboundMessage {
	return models.OutboundMessage{
		To:   to,
		Text: fmt.Sprintf("⏰ How's it going with %s?", action),
		Buttons: [][]models.Button{{
			button("👍 Fine", models.PhaseProgress, models.ProgressOK),
			button("😵 Hard", models.PhaseProgress, models.ProgressHard),
			button("❌ Gave up", models.PhaseProgress, models.ProgressQuit),
		}},
	}
}

func quitPrompt(to, text string) models.OutboundMessage {
	return models.OutboundMessage{
		To:   to,
		Text: text,
		Buttons: [][]models.Button{
			{button("🔁 Try again, smaller", models.PhaseQuit, models.QuitRetry), button("🕒 Come back later", models.PhaseQuit, models.QuitLater)},
			{button("🚀 Start another action", models.PhaseQuit, models.QuitNew)},
		},
	}
}

// plainText builds a message without buttons.
func plainText(to, text string, menu bool) models.OutboundMessage {
	return models.OutboundMessage{To: to, Text: text, ShowMenu: menu}
}

// formatDelay renders a follow-up delay for participants, e.g. "10 minutes".
func formatDelay(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	}
	m := int(d.Round(time.Minute).Minutes())
	if m == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}

// shortDelay renders d as an event value, e.g. "10m".
func shortDelay(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm", int(d.Round(time.Minute).Minutes()))
}

func delayDeniedText(requested time.Duration, plan admission.Plan, allowed []time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⏳ Delaying by %s is Premium-only.", formatDelay(requested))
	if len(allowed) > 0 {
		parts := make([]string, 0, len(allowed))
		for _, d := range allowed {
			parts = append(parts, formatDelay(d))
		}
		fmt.Fprintf(&b, " Your %s plan includes: %s.", plan.Label, strings.Join(parts, ", "))
	}
	b.WriteString("\nSend \"start\" when you're ready.")
	return b.String()
}

func statsText(st Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Today (%s plan)\n", st.PlanLabel)
	if st.Unlimited {
		fmt.Fprintf(&b, "Focus sessions: %d (unlimited)\n", st.Focus)
	} else {
		fmt.Fprintf(&b, "Focus sessions: %d of %d\n", st.Focus, st.DailyCap)
	}
	fmt.Fprintf(&b, "Started: %d\nDelayed: %d\nSkipped: %d", st.Started, st.Delayed, st.Skipped)
	return b.String()
}

func planText(tier models.TierCode, plan admission.Plan, grant *models.Subscription, loc *time.Location, delays []time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your plan: %s", plan.Label)
	if grant != nil && tier == grant.Tier {
		fmt.Fprintf(&b, " (until %s)", grant.ExpiresAt.In(loc).Format("2006-01-02 15:04"))
	}
	b.WriteString("\n")
	if plan.Unlimited {
		b.WriteString("Focus sessions per day: unlimited\n")
	} else {
		fmt.Fprintf(&b, "Focus sessions per day: %d\n", plan.DailyCap)
	}
	parts := make([]string, 0, len(delays))
	for _, d := range delays {
		parts = append(parts, formatDelay(d))
	}
	fmt.Fprintf(&b, "Delays: %s", strings.Join(parts, ", "))
	if plan.SupportNudge {
		b.WriteString("\nMid-session support message: yes")
	}
	return b.String()
}
