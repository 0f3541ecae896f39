package alerts

import "github.com/doodlesbykumbi/clinicguard/pkg/model"

var transitions = map[model.AlertStatus][]model.AlertStatus{
	model.StatusOpen:          {model.StatusInvestigating, model.StatusResolved, model.StatusFalsePositive},
	model.StatusInvestigating: {model.StatusResolved, model.StatusFalsePositive},
}

// CanTransition reports whether from → to is a lifecycle edge.
func CanTransition(from, to model.AlertStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
