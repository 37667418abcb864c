// Package models contains data structures used throughout the application
package models

// DoseKind identifies which step of the meal a dose request covers.
type DoseKind string

// Dose kinds, in the order they normally occur during a meal.
const (
	DosePreBolus  DoseKind = "pre_bolus"
	DoseStart     DoseKind = "start_dose"
	DoseRemaining DoseKind = "remaining_dose"
)

// Valid reports whether k is one of the known dose kinds.
func (k DoseKind) Valid() bool {
	switch k {
	case DosePreBolus, DoseStart, DoseRemaining:
		return true
	}
	return false
}

// DoseAmounts is the payload of a dose request: the nutrients the dose
// covers and the insulin to deliver.
type DoseAmounts struct {
	Carbs   float64 `json:"carbs"`
	Fat     float64 `json:"fat"`
	Protein float64 `json:"protein"`
	Bolus   float64 `json:"bolus"`
}

// TreatmentStatus is the discrete treatment state of the active meal. It is
// always recomputed from the registration state and planned totals, never
// stored.
type TreatmentStatus string

// Treatment statuses.
const (
	StatusAwaitingInput TreatmentStatus = "awaiting_input"
	StatusPendingDose   TreatmentStatus = "pending_dose"
	StatusComplete      TreatmentStatus = "complete"
	StatusOverdose      TreatmentStatus = "overdose"
)

// SafetyCaps holds the configured hard limits for a single dose request.
// A nil field means the cap is not configured.
type SafetyCaps struct {
	MaxCarbs *float64 `json:"maxCarbs,omitempty" yaml:"max_carbs,omitempty"`
	MaxBolus *float64 `json:"maxBolus,omitempty" yaml:"max_bolus,omitempty"`
}
