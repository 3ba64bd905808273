package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Result options offered on the result prompt.
const (
	ResultStart      = "start"
	ResultDelayShort = "delay10"
	ResultDelayLong  = "delay30"
	ResultSkip       = "skip"
)

// Progress answers offered by the check-in prompt.
const (
	ProgressOK   = "ok"
	ProgressHard = "hard"
	ProgressQuit = "quit"
)

// Quit follow-up options.
const (
	QuitRetry = "retry"
	QuitLater = "later"
	QuitNew   = "new"
)

// Token is a parsed button payload of the form "<phase>:<value>".
type Token struct {
	Phase Phase
	Value string
}

// String renders the token in wire form.
func (t Token) String() string {
	return string(t.Phase) + ":" + t.Value
}

// Score returns the numeric value of a score token.
func (t Token) Score() (int, error) {
	v, err := strconv.Atoi(t.Value)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownToken, t.String())
	}
	return v, nil
}

// NewToken builds a token for phase and value.
func NewToken(phase Phase, value string) Token {
	return Token{Phase: phase, Value: value}
}

// ParseToken parses and validates a button payload.
func ParseToken(payload string) (Token, error) {
	phase, value, ok := strings.Cut(strings.TrimSpace(payload), ":")
	if !ok || value == "" {
		return Token{}, fmt.Errorf("%w: %q", ErrUnknownToken, payload)
	}
	t := Token{Phase: Phase(phase), Value: value}
	if !t.valid() {
		return Token{}, fmt.Errorf("%w: %q", ErrUnknownToken, payload)
	}
	return t, nil
}

func (t Token) valid() bool {
	switch t.Phase {
	case PhaseEnergy:
		return EnergyLevel(t.Value).Valid()
	case PhaseType:
		return ActionType(t.Value).Valid()
	case PhaseScore:
		v, err := strconv.Atoi(t.Value)
		return err == nil && v >= MinScore && v <= MaxScore
	case PhaseResult:
		switch t.Value {
		case ResultStart, ResultDelayShort, ResultDelayLong, ResultSkip:
			return true
		}
	case PhaseProgress:
		switch t.Value {
		case ProgressOK, ProgressHard, ProgressQuit:
			return true
		}
	case PhaseQuit:
		switch t.Value {
		case QuitRetry, QuitLater, QuitNew:
			return true
		}
	}
	return false
}
