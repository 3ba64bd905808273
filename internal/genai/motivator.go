package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/FocusPipe/internal/flow"
	"github.com/BTreeMap/FocusPipe/internal/models"
)

// DefaultMotivationTimeout bounds one generation call.
const DefaultMotivationTimeout = 4 * time.Second

// maxMotivationLen is the longest generated line that is used as is.
const maxMotivationLen = 280

const motivationSystemPrompt = `You write one short motivational line for someone about to work on a task.
Rules: one or two sentences, at most 200 characters, plain text, no emoji, no quotes, no greeting.
Be concrete and kind. Suggest the smallest possible next step.`

// generator is the part of Client the motivator needs.
type generator interface {
	GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Motivator writes motivation lines with the chat model and falls back to
// another flow.Motivator when generation fails or returns nothing usable.
type Motivator struct {
	gen      generator
	fallback flow.Motivator
	timeout  time.Duration
}

// NewMotivator creates a Motivator. A nil fallback uses the static pools.
func NewMotivator(client *Client, fallback flow.Motivator) *Motivator {
	if fallback == nil {
		fallback = flow.NewStaticMotivator()
	}
	return &Motivator{gen: client, fallback: fallback, timeout: DefaultMotivationTimeout}
}

// Motivation implements flow.Motivator.
func (m *Motivator) Motivation(ctx context.Context, kind models.MotivationKind, actionType models.ActionType, action string) string {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	out, err := m.gen.GeneratePromptWithContext(ctx, motivationSystemPrompt, motivationRequest(kind, actionType, action))
	if err != nil {
		slog.Warn("Motivator: generation failed, using fallback", "error", err, "kind", kind)
		return m.fallback.Motivation(ctx, kind, actionType, action)
	}
	out = strings.Trim(strings.TrimSpace(out), `"`)
	if out == "" || len(out) > maxMotivationLen {
		slog.Debug("Motivator: unusable generation, using fallback", "kind", kind, "length", len(out))
		return m.fallback.Motivation(ctx, kind, actionType, action)
	}
	return out
}

func motivationRequest(kind models.MotivationKind, actionType models.ActionType, action string) string {
	var moment string
	switch kind {
	case models.MotivationStart:
		moment = "They are starting the task right now."
	case models.MotivationOK:
		moment = "They are in the middle of it and it is going fine. Encourage them to keep the pace."
	case models.MotivationHard:
		moment = "They are in the middle of it and it feels hard. Suggest making it easier."
	case models.MotivationSupport:
		moment = "They started a while ago. Send a gentle check-in of support."
	case models.MotivationQuit:
		moment = "They gave up on the task. Reassure them without guilt."
	default:
		moment = "They are working on the task."
	}
	return fmt.Sprintf("Task: %s\nTask type: %s\n%s", action, actionType, moment)
}
