package models

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// Step is the position of a session in the focus ritual.
type Step string

const (
	StepIdle    Step = "idle"
	StepEnergy  Step = "energy"
	StepActions Step = "actions"
	StepTyping  Step = "typing"
	StepScoring Step = "scoring"
	StepResult  Step = "result"
	StepStarted Step = "started"
)

// Phase names a prompt family that renders buttons. Each phase holds at most one
// live binding per session.
type Phase string

const (
	PhaseEnergy   Phase = "energy"
	PhaseType     Phase = "type"
	PhaseScore    Phase = "score"
	PhaseResult   Phase = "res"
	PhaseProgress Phase = "prog"
	PhaseQuit     Phase = "quit"
)

// stepPhases maps the phases that belong to a ritual step to that step.
// Progress and quit prompts are answered after the ritual and are not step-bound.
var stepPhases = map[Phase]Step{
	PhaseEnergy: StepEnergy,
	PhaseType:   StepTyping,
	PhaseScore:  StepScoring,
	PhaseResult: StepResult,
}

// EnergyLevel is the participant's self-reported energy.
type EnergyLevel string

const (
	EnergyLow  EnergyLevel = "low"
	EnergyMid  EnergyLevel = "mid"
	EnergyHigh EnergyLevel = "high"
)

// Valid reports whether e is one of the known levels.
func (e EnergyLevel) Valid() bool {
	return e == EnergyLow || e == EnergyMid || e == EnergyHigh
}

// ActionType classifies an action.
type ActionType string

const (
	ActionMental   ActionType = "mental"
	ActionPhysical ActionType = "physical"
	ActionRoutine  ActionType = "routine"
	ActionSocial   ActionType = "social"
)

// ActionTypes lists the action types in prompt order.
var ActionTypes = []ActionType{ActionMental, ActionPhysical, ActionRoutine, ActionSocial}

// Valid reports whether t is one of the known action types.
func (t ActionType) Valid() bool {
	switch t {
	case ActionMental, ActionPhysical, ActionRoutine, ActionSocial:
		return true
	}
	return false
}

// Label returns the human readable label for t.
func (t ActionType) Label() string {
	switch t {
	case ActionMental:
		return "🧠 Mental"
	case ActionPhysical:
		return "💪 Physical"
	case ActionRoutine:
		return "🧹 Routine"
	case ActionSocial:
		return "💬 Social"
	}
	return "—"
}

// Criterion is one of the four scoring axes.
type Criterion string

const (
	CriterionInfluence Criterion = "influence"
	CriterionUrgency   Criterion = "urgency"
	CriterionEnergy    Criterion = "energy"
	CriterionMeaning   Criterion = "meaning"
)

// Criteria lists the criteria in the order they are asked.
var Criteria = []Criterion{CriterionInfluence, CriterionUrgency, CriterionEnergy, CriterionMeaning}

// Outcome records how a finished session ended.
type Outcome string

const (
	OutcomeNone    Outcome = ""
	OutcomeStarted Outcome = "started"
	OutcomeDelayed Outcome = "delayed"
	OutcomeSkipped Outcome = "skipped"
	OutcomeQuit    Outcome = "quit"
)

// Ritual bounds.
const (
	MinActions       = 3
	MaxActions       = 7
	MinActionNameLen = 2
	MinScore         = 1
	MaxScore         = 5
)

// Action is one candidate the participant listed.
type Action struct {
	Name   string            `json:"name"`
	Type   ActionType        `json:"type,omitempty"`
	Scores map[Criterion]int `json:"scores,omitempty"`
}

// Score returns the score recorded for c, or 0 when unscored.
func (a Action) Score(c Criterion) int {
	return a.Scores[c]
}

// Scored reports whether every criterion has a score.
func (a Action) Scored() bool {
	for _, c := range Criteria {
		if a.Scores[c] == 0 {
			return false
		}
	}
	return true
}

// Binding ties a phase to the message id of its live prompt.
type Binding struct {
	MessageID string `json:"message_id"`
	Consumed  bool   `json:"consumed,omitempty"`
}

// Session is one participant's run through the ritual. Mutations go through its
// methods, which enforce step order and the per-phase bindings.
type Session struct {
	ID             string            `json:"id"`
	ParticipantID  string            `json:"participant_id"`
	Tier           TierCode          `json:"tier"`
	Step           Step              `json:"step"`
	Energy         EnergyLevel       `json:"energy,omitempty"`
	EnergyLocked   bool              `json:"energy_locked"`
	Actions        []Action          `json:"actions,omitempty"`
	ActionIndex    int               `json:"action_index"`
	CriterionIndex int               `json:"criterion_index"`
	Focus          *Action           `json:"focus,omitempty"`
	ResultLocked   bool              `json:"result_locked"`
	Outcome        Outcome           `json:"outcome,omitempty"`
	Bindings       map[Phase]Binding `json:"bindings,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// NewSession returns a session waiting for the energy answer.
func NewSession(id, participantID string, tier TierCode, now time.Time) *Session {
	return &Session{
		ID:            id,
		ParticipantID: participantID,
		Tier:          tier,
		Step:          StepEnergy,
		Bindings:      make(map[Phase]Binding),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Bind records msgID as the live prompt of phase, replacing any earlier binding.
func (s *Session) Bind(phase Phase, msgID string) {
	if s.Bindings == nil {
		s.Bindings = make(map[Phase]Binding)
	}
	s.Bindings[phase] = Binding{MessageID: msgID}
}

// CheckBinding validates a button press from sourceMessageID against phase.
// It returns ErrStaleInteraction when the press does not come from the live
// prompt and ErrDuplicateInteraction when that prompt was already answered.
func (s *Session) CheckBinding(phase Phase, sourceMessageID string) error {
	b, ok := s.Bindings[phase]
	if !ok || b.MessageID == "" || sourceMessageID == "" || b.MessageID != sourceMessageID {
		return fmt.Errorf("%w: phase %s", ErrStaleInteraction, phase)
	}
	if s.consumed(phase) {
		return fmt.Errorf("%w: phase %s", ErrDuplicateInteraction, phase)
	}
	if step, bound := stepPhases[phase]; bound && s.Step != step {
		return fmt.Errorf("%w: phase %s in step %s", ErrDuplicateInteraction, phase, s.Step)
	}
	return nil
}

func (s *Session) consumed(phase Phase) bool {
	switch phase {
	case PhaseEnergy:
		return s.EnergyLocked
	case PhaseResult:
		return s.ResultLocked
	}
	return s.Bindings[phase].Consumed
}

// Consume marks the live prompt of a non-ritual phase (progress, quit) as answered.
func (s *Session) Consume(phase Phase) {
	b := s.Bindings[phase]
	b.Consumed = true
	s.Bindings[phase] = b
}

// SetEnergy records the energy answer and moves to the actions step.
func (s *Session) SetEnergy(level EnergyLevel) error {
	if s.Step != StepEnergy {
		return fmt.Errorf("%w: want %s, have %s", ErrWrongStep, StepEnergy, s.Step)
	}
	if s.EnergyLocked {
		return ErrDuplicateInteraction
	}
	if !level.Valid() {
		return fmt.Errorf("%w: energy %q", ErrUnknownToken, level)
	}
	s.Energy = level
	s.EnergyLocked = true
	s.Step = StepActions
	return nil
}

// SetActions populates the candidate actions and moves to typing.
func (s *Session) SetActions(names []string) error {
	if s.Step != StepActions {
		return fmt.Errorf("%w: want %s, have %s", ErrWrongStep, StepActions, s.Step)
	}
	if len(names) < MinActions {
		return fmt.Errorf("%w: got %d, need at least %d", ErrTooFewActions, len(names), MinActions)
	}
	if len(names) > MaxActions {
		return fmt.Errorf("%w: got %d, at most %d", ErrTooManyActions, len(names), MaxActions)
	}
	actions := make([]Action, 0, len(names))
	for _, name := range names {
		if utf8.RuneCountInString(name) < MinActionNameLen {
			return fmt.Errorf("%w: %q", ErrActionNameShort, name)
		}
		actions = append(actions, Action{Name: name, Scores: make(map[Criterion]int, len(Criteria))})
	}
	s.Actions = actions
	s.ActionIndex = 0
	s.CriterionIndex = 0
	s.Step = StepTyping
	return nil
}

// CurrentAction returns the action under the cursor.
func (s *Session) CurrentAction() (Action, bool) {
	if s.ActionIndex < 0 || s.ActionIndex >= len(s.Actions) {
		return Action{}, false
	}
	return s.Actions[s.ActionIndex], true
}

// CurrentCriterion returns the criterion under the cursor.
func (s *Session) CurrentCriterion() Criterion {
	return Criteria[s.CriterionIndex%len(Criteria)]
}

// Classify sets the type of the current action and advances the cursor. It
// reports true once every action is typed, at which point the session is scoring.
func (s *Session) Classify(t ActionType) (bool, error) {
	if s.Step != StepTyping {
		return false, fmt.Errorf("%w: want %s, have %s", ErrWrongStep, StepTyping, s.Step)
	}
	if !t.Valid() {
		return false, fmt.Errorf("%w: type %q", ErrUnknownToken, t)
	}
	if _, ok := s.CurrentAction(); !ok {
		return false, fmt.Errorf("%w: action cursor %d", ErrWrongStep, s.ActionIndex)
	}
	s.Actions[s.ActionIndex].Type = t
	s.ActionIndex++
	if s.ActionIndex < len(s.Actions) {
		return false, nil
	}
	s.ActionIndex = 0
	s.CriterionIndex = 0
	s.Step = StepScoring
	return true, nil
}

// Score records value under the current criterion of the current action and
// advances the cursors. It reports true once every action is fully scored.
func (s *Session) Score(value int) (bool, error) {
	if s.Step != StepScoring {
		return false, fmt.Errorf("%w: want %s, have %s", ErrWrongStep, StepScoring, s.Step)
	}
	if value < MinScore || value > MaxScore {
		return false, fmt.Errorf("%w: %d", ErrScoreOutOfRange, value)
	}
	action, ok := s.CurrentAction()
	if !ok {
		return false, fmt.Errorf("%w: action cursor %d", ErrWrongStep, s.ActionIndex)
	}
	if action.Type == "" {
		return false, ErrTypeNotSet
	}
	if s.Actions[s.ActionIndex].Scores == nil {
		s.Actions[s.ActionIndex].Scores = make(map[Criterion]int, len(Criteria))
	}
	s.Actions[s.ActionIndex].Scores[s.CurrentCriterion()] = value
	s.CriterionIndex++
	if s.CriterionIndex < len(Criteria) {
		return false, nil
	}
	s.CriterionIndex = 0
	s.ActionIndex++
	return s.ActionIndex >= len(s.Actions), nil
}

// SetFocus stores the chosen action and opens the result step.
func (s *Session) SetFocus(a Action) error {
	if s.Step != StepScoring {
		return fmt.Errorf("%w: want %s, have %s", ErrWrongStep, StepScoring, s.Step)
	}
	focus := a.clone()
	s.Focus = &focus
	s.ResultLocked = false
	s.Step = StepResult
	return nil
}

// LockResult flips the one-shot result flag. It fails when the result was
// already answered.
func (s *Session) LockResult() error {
	if s.Step != StepResult {
		return fmt.Errorf("%w: want %s, have %s", ErrWrongStep, StepResult, s.Step)
	}
	if s.ResultLocked {
		return ErrDuplicateInteraction
	}
	s.ResultLocked = true
	return nil
}

// Finish moves the session to a terminal step with the given outcome.
func (s *Session) Finish(step Step, outcome Outcome) {
	s.Step = step
	s.Outcome = outcome
}

// FocusType returns the type of the focus action, if any.
func (s *Session) FocusType() ActionType {
	if s.Focus == nil {
		return ""
	}
	return s.Focus.Type
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Actions != nil {
		c.Actions = make([]Action, len(s.Actions))
		for i, a := range s.Actions {
			c.Actions[i] = a.clone()
		}
	}
	if s.Focus != nil {
		f := s.Focus.clone()
		c.Focus = &f
	}
	if s.Bindings != nil {
		c.Bindings = make(map[Phase]Binding, len(s.Bindings))
		for k, v := range s.Bindings {
			c.Bindings[k] = v
		}
	}
	return &c
}

func (a Action) clone() Action {
	c := a
	if a.Scores != nil {
		c.Scores = make(map[Criterion]int, len(a.Scores))
		for k, v := range a.Scores {
			c.Scores[k] = v
		}
	}
	return c
}
