package flow

import (
	"context"
	"math/rand/v2"

	"github.com/BTreeMap/FocusPipe/internal/models"
)

// Motivator writes a short motivational line for an action.
type Motivator interface {
	Motivation(ctx context.Context, kind models.MotivationKind, actionType models.ActionType, action string) string
}

// DefaultMotivation is used when no pool matches.
const DefaultMotivation = "Take the smallest step. That's enough."

// HardBase opens every "hard" answer.
const HardBase = "OK, let's make it easier. Do a version half as hard. Even one small step counts."

var startByType = map[models.ActionType][]string{
	models.ActionMental: {
		"The goal right now is to get into flow, not to solve everything. Start with one simple step.",
		"Make a rough draft. We'll improve it later.",
		"Just 10 minutes of focus. No judging the result.",
	},
	models.ActionPhysical: {
		"Start gently. The first minutes are a warm-up, the rest follows.",
		"Consistency matters now, not intensity.",
		"Do one set or one lap. Then decide whether to go on.",
	},
	models.ActionRoutine: {
		"Do one concrete piece and close it.",
		"Start with the tiniest step. It builds momentum.",
		"Not \"perfect\" now. \"Done\" now.",
	},
	models.ActionSocial: {
		"Your goal is to start, not to be perfect.",
		"One short message is enough. It gets easier after that.",
		"Say it simply and to the point. No long explanations.",
	},
}

var okByType = map[models.ActionType][]string{
	models.ActionMental: {
		"Going well. Don't speed up, just hold the pace for another 10 minutes.",
		"Keep going. The main thing is not to switch tasks.",
	},
	models.ActionPhysical: {
		"Great. Keep an even rhythm, no jerks.",
		"Ten more minutes and you'll have that \"I did it\" feeling.",
	},
	models.ActionRoutine: {
		"Nice. Take it to the finish line: done, sent, put away.",
		"Keep going. Routine only breaks through movement.",
	},
	models.ActionSocial: {
		"Great. Keep it simple and clear, that's enough.",
		"Keep going. Don't overcomplicate the wording.",
	},
}

var hardByType = map[models.ActionType][]string{
	models.ActionMental: {
		"Take the difficulty out: do the easiest part or just prepare (open the file, write a plan, three bullet points).",
		"A bad draft is allowed. It beats nothing.",
	},
	models.ActionPhysical: {
		"Halve the load: fewer reps, slower pace, but don't stop completely.",
		"Do two very easy minutes. That keeps the habit alive.",
	},
	models.ActionRoutine: {
		"Narrow it down: one item, one document, one corner, one message.",
		"Set a 3-minute timer and do only that.",
	},
	models.ActionSocial: {
		"Shorten it: one or two sentences. Or ask a single question, that's enough.",
		"Write a draft now and send it in a minute.",
	},
}

var supportPool = []string{
	"Still with it? Whatever you've done so far already counts.",
	"Halfway through is a good moment to breathe and carry on.",
	"You started, that was the hard part. Keep the next step small.",
}

var quitTexts = []string{
	"That's fine. You didn't fail, you checked how you're doing.",
	"Either take a step ten times smaller, or come back later.",
}

// StaticMotivator picks lines from the built-in pools.
type StaticMotivator struct {
	pick func(n int) int
}

// NewStaticMotivator creates a motivator choosing uniformly at random.
func NewStaticMotivator() *StaticMotivator {
	return &StaticMotivator{pick: rand.IntN}
}

// Motivation implements Motivator.
func (m *StaticMotivator) Motivation(ctx context.Context, kind models.MotivationKind, actionType models.ActionType, action string) string {
	var pool []string
	switch kind {
	case models.MotivationStart:
		pool = startByType[actionType]
	case models.MotivationOK:
		pool = okByType[actionType]
	case models.MotivationHard:
		pool = hardByType[actionType]
	case models.MotivationSupport:
		pool = supportPool
	case models.MotivationQuit:
		pool = quitTexts
	}
	if len(pool) == 0 {
		return DefaultMotivation
	}
	pick := m.pick
	if pick == nil {
		pick = rand.IntN
	}
	return pool[pick(len(pool))]
}
