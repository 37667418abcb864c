// Package dose implements the meal-dose accounting: the running accumulator
// of registered nutrients and insulin, the remaining-dose arithmetic and the
// treatment-status classification.
package dose

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/mrcode/mealdose/internal/models"
)

// PumpStep is the smallest insulin increment the delivery device supports.
const PumpStep = 0.05

// FloorToStep rounds x down to the nearest multiple of step. Doses are
// always floored, never rounded to nearest, so a computation error lands on
// the under-dosing side. The tiny slack compensates for binary rounding of
// the quotient (1.2/0.05 must yield 24 steps, not 23).
func FloorToStep(x, step float64) float64 {
	if step <= 0 {
		return x
	}
	return math.Floor(x/step+1e-9) * step
}

// Remaining holds what is still owed for the active meal: planned minus
// registered, with the bolus derived from the planned carbs and the
// effective carb ratio.
type Remaining struct {
	Carbs   float64 `json:"carbs"`
	Fat     float64 `json:"fat"`
	Protein float64 `json:"protein"`
	Bolus   float64 `json:"bolus"`
}

// ComputeRemaining derives the outstanding amounts from the planned totals
// and the registration state. carbRatio must be positive; a non-positive
// ratio leaves the bolus target at zero rather than dividing by it.
func ComputeRemaining(planned models.PlannedMeal, state models.RegistrationState, carbRatio float64) Remaining {
	var bolusTarget float64
	if carbRatio > 0 {
		bolusTarget = FloorToStep(planned.TotalCarbs/carbRatio, PumpStep)
	}
	return Remaining{
		Carbs:   planned.TotalCarbs - state.RegisteredCarbs,
		Fat:     planned.TotalFat - state.RegisteredFat,
		Protein: planned.TotalProtein - state.RegisteredProtein,
		Bolus:   bolusTarget - state.RegisteredBolus,
	}
}

// StartAmounts computes the start-dose payload for a meal. With a fixed
// percentage policy (startDoseFactor > 0) the dose covers that share of the
// planned carbs; otherwise it covers the planned carbs up to the scheduled
// start-dose cap.
func StartAmounts(plannedCarbs, scheduledStartDose, startDoseFactor, carbRatio float64) models.DoseAmounts {
	var carbs float64
	switch {
	case startDoseFactor > 0:
		carbs = plannedCarbs * startDoseFactor
	case plannedCarbs > 0 && plannedCarbs <= scheduledStartDose:
		carbs = plannedCarbs
	default:
		carbs = scheduledStartDose
	}

	var bolus float64
	if carbRatio > 0 {
		bolus = FloorToStep(carbs/carbRatio, PumpStep)
	}
	return models.DoseAmounts{Carbs: carbs, Bolus: bolus}
}

// RemainingAmounts turns a Remaining into a dose payload, dropping negative
// components (nothing can be un-delivered).
func RemainingAmounts(rem Remaining) models.DoseAmounts {
	return models.DoseAmounts{
		Carbs:   math.Max(rem.Carbs, 0),
		Fat:     math.Max(rem.Fat, 0),
		Protein: math.Max(rem.Protein, 0),
		Bolus:   math.Max(rem.Bolus, 0),
	}
}

// Store persists the registration state across restarts.
type Store interface {
	SaveRegistration(models.RegistrationState) error
	LoadRegistration() (models.RegistrationState, error)
}

// Accumulator owns the registration state of the active meal. All mutation
// goes through RegisterDose and Reset; both persist through the injected
// store. Persistence failures are returned to the caller but never roll back
// the in-memory state. The accumulator itself is not safe for concurrent
// use; the engine serializes every caller behind one mutex.
type Accumulator struct {
	store Store
	log   *zap.Logger
	now   func() time.Time

	state models.RegistrationState
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator(store Store, log *zap.Logger) *Accumulator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Accumulator{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// Rehydrate loads the persisted registration state. It must run before the
// accumulator is used after a restart.
func (a *Accumulator) Rehydrate() error {
	if a.store == nil {
		return nil
	}
	state, err := a.store.LoadRegistration()
	if err != nil {
		return err
	}
	a.state = state
	return nil
}

// State returns a copy of the current registration state.
func (a *Accumulator) State() models.RegistrationState {
	return a.state.Clone()
}

// RegisterDose adds a confirmed dose to the running totals. The first
// non-zero registration of a meal stamps the meal date; a non-zero bolus
// updates the resend value. Deltas are trusted as-is, the caps are enforced
// before a request is ever sent.
func (a *Accumulator) RegisterDose(kind models.DoseKind, amounts models.DoseAmounts) error {
	a.state.RegisteredCarbs += amounts.Carbs
	a.state.RegisteredFat += amounts.Fat
	a.state.RegisteredProtein += amounts.Protein
	a.state.RegisteredBolus += amounts.Bolus
	if amounts.Bolus != 0 {
		a.state.LatestBolusSent = amounts.Bolus
	}

	switch kind {
	case models.DoseStart:
		a.state.StartDoseGiven = true
	case models.DoseRemaining:
		a.state.RemainingDoseGiven = true
	}

	if a.state.MealDate == nil && !a.state.IsZero() {
		t := a.now()
		a.state.MealDate = &t
	}

	a.log.Info("dose registered",
		zap.String("kind", string(kind)),
		zap.Float64("carbs", amounts.Carbs),
		zap.Float64("bolus", amounts.Bolus),
		zap.Float64("totalCarbs", a.state.RegisteredCarbs),
		zap.Float64("totalBolus", a.state.RegisteredBolus))

	return a.persist()
}

// Reset ends the meal: all registered totals return to zero and the meal
// date is cleared.
func (a *Accumulator) Reset() error {
	a.state = models.RegistrationState{}
	a.log.Info("registration state reset")
	return a.persist()
}

func (a *Accumulator) persist() error {
	if a.store == nil {
		return nil
	}
	if err := a.store.SaveRegistration(a.state); err != nil {
		a.log.Warn("registration state not persisted", zap.Error(err))
		return err
	}
	return nil
}
