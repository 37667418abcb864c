package dose

import (
	"math"

	"github.com/mrcode/mealdose/internal/models"
)

// Tolerance bands for "close enough to zero": half a gram for nutrients,
// one pump step for insulin.
const (
	GramTolerance = 0.5
	UnitTolerance = 0.05
)

// statusGuard is one branch of the classifier. Guards are evaluated
// top-to-bottom and the first match wins; the order is part of the contract
// because the pending and overdose conditions overlap at exact band
// boundaries.
type statusGuard struct {
	status models.TreatmentStatus
	match  func(planned models.PlannedMeal, rem Remaining) bool
}

var statusGuards = []statusGuard{
	{
		// Nothing planned, nothing owed: the meal has not started.
		status: models.StatusAwaitingInput,
		match: func(planned models.PlannedMeal, rem Remaining) bool {
			return remainderSettled(rem) && planned.IsEmpty()
		},
	},
	{
		// Everything owed has been delivered for a non-trivial plan.
		status: models.StatusComplete,
		match: func(_ models.PlannedMeal, rem Remaining) bool {
			return remainderSettled(rem)
		},
	},
	{
		// Something is still owed beyond the tolerance band.
		status: models.StatusPendingDose,
		match: func(_ models.PlannedMeal, rem Remaining) bool {
			return rem.Carbs > GramTolerance ||
				rem.Fat > GramTolerance ||
				rem.Protein > GramTolerance ||
				rem.Bolus > UnitTolerance
		},
	},
	{
		// Catch-all: more was registered than planned.
		status: models.StatusOverdose,
		match: func(models.PlannedMeal, Remaining) bool {
			return true
		},
	},
}

func remainderSettled(rem Remaining) bool {
	return math.Abs(rem.Carbs) <= GramTolerance &&
		math.Abs(rem.Fat) <= GramTolerance &&
		math.Abs(rem.Protein) <= GramTolerance &&
		math.Abs(rem.Bolus) <= UnitTolerance
}

// Classify derives the treatment status from the planned totals, the
// registration state and the effective carb ratio. Pure function; the
// status is never stored.
func Classify(planned models.PlannedMeal, state models.RegistrationState, carbRatio float64) models.TreatmentStatus {
	rem := ComputeRemaining(planned, state, carbRatio)
	for _, g := range statusGuards {
		if g.match(planned, rem) {
			return g.status
		}
	}
	return models.StatusOverdose // unreachable, the last guard always matches
}
