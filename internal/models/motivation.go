package models

// MotivationKind selects the moment a motivational line is written for.
type MotivationKind string

const (
	MotivationStart   MotivationKind = "start"
	MotivationOK      MotivationKind = "ok"
	MotivationHard    MotivationKind = "hard"
	MotivationSupport MotivationKind = "support"
	MotivationQuit    MotivationKind = "quit"
)
