package models

import "errors"

// Interaction errors. None of these is fatal; callers classify them with errors.Is.
var (
	// ErrStaleInteraction is returned for a button press whose source message is not
	// the live prompt of its phase. It is answered silently.
	ErrStaleInteraction = errors.New("stale interaction")
	// ErrDuplicateInteraction is returned for a press on a prompt that was already consumed.
	ErrDuplicateInteraction = errors.New("interaction already handled")
	// ErrMalformedInput is returned for text that does not fit the current step.
	ErrMalformedInput = errors.New("malformed input")
	// ErrQuotaExceeded is returned when the daily cap of the participant's tier is reached.
	ErrQuotaExceeded = errors.New("daily quota exceeded")
	// ErrUnsupportedFeature is returned when the participant's tier does not include an option.
	ErrUnsupportedFeature = errors.New("feature not available on tier")
	// ErrTransportFailure wraps failures of the messaging transport.
	ErrTransportFailure = errors.New("transport failure")
	// ErrUnknownToken is returned for a button payload that does not parse.
	ErrUnknownToken = errors.New("unknown button token")
)

// Session invariant errors.
var (
	ErrWrongStep        = errors.New("session is not in the required step")
	ErrTooFewActions    = errors.New("too few actions")
	ErrTooManyActions   = errors.New("too many actions")
	ErrActionNameShort  = errors.New("action name too short")
	ErrTypeNotSet       = errors.New("action type must be set before scoring")
	ErrScoreOutOfRange  = errors.New("score out of range")
	ErrNoSession        = errors.New("no active session")
	ErrUnknownTier      = errors.New("unknown tier")
	ErrInvalidGrantDays = errors.New("grant duration must be positive")
)

// IsRecoverable reports whether err belongs to the interaction taxonomy that the
// dispatch path answers without a generic failure message.
func IsRecoverable(err error) bool {
	switch {
	case errors.Is(err, ErrStaleInteraction),
		errors.Is(err, ErrDuplicateInteraction),
		errors.Is(err, ErrMalformedInput),
		errors.Is(err, ErrQuotaExceeded),
		errors.Is(err, ErrUnsupportedFeature),
		errors.Is(err, ErrTransportFailure),
		errors.Is(err, ErrUnknownToken):
		return true
	}
	return false
}
