// Package decision picks the focus action from a scored list.
//
// The computation is pure: totals depend only on the action scores and the
// participant's reported energy.
package decision

import "github.com/BTreeMap/FocusPipe/internal/models"

// Energy weights. Lower reported energy makes low-effort actions more attractive.
const (
	WeightLow  = 2.0
	WeightMid  = 1.0
	WeightHigh = 0.6
)

// Weight returns the multiplier applied to the inverted energy score.
func Weight(level models.EnergyLevel) float64 {
	switch level {
	case models.EnergyLow:
		return WeightLow
	case models.EnergyHigh:
		return WeightHigh
	default:
		return WeightMid
	}
}

// Total computes influence*2 + urgency*2 + meaning + (6 - energy) * weight.
func Total(a models.Action, level models.EnergyLevel) float64 {
	influence := float64(a.Score(models.CriterionInfluence))
	urgency := float64(a.Score(models.CriterionUrgency))
	energy := float64(a.Score(models.CriterionEnergy))
	meaning := float64(a.Score(models.CriterionMeaning))
	return influence*2 + urgency*2 + meaning + (6-energy)*Weight(level)
}

// Ranked pairs an action with its total.
type Ranked struct {
	Action models.Action
	Total  float64
}

// Rank returns every action with its total, in list order.
func Rank(actions []models.Action, level models.EnergyLevel) []Ranked {
	out := make([]Ranked, len(actions))
	for i, a := range actions {
		out[i] = Ranked{Action: a, Total: Total(a, level)}
	}
	return out
}

// PickBest returns the action with the strictly greatest total and its index.
// Ties go to the earliest action. It returns -1 for an empty list.
func PickBest(actions []models.Action, level models.EnergyLevel) (models.Action, int) {
	ranked := Rank(actions, level)
	if len(ranked) == 0 {
		return models.Action{}, -1
	}
	best := 0
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Total > ranked[best].Total {
			best = i
		}
	}
	return ranked[best].Action, best
}
