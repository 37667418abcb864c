// Package models contains data structures used throughout the application
package models

import "time"

// RegistrationState is the running accounting of the currently active meal:
// how much of each nutrient and how much insulin has been registered so far.
// There is one state per active meal; it survives process restarts through
// the state store.
type RegistrationState struct {
	RegisteredCarbs   float64 `json:"registeredCarbs"`
	RegisteredFat     float64 `json:"registeredFat"`
	RegisteredProtein float64 `json:"registeredProtein"`
	RegisteredBolus   float64 `json:"registeredBolus"`

	// LatestBolusSent is the last non-zero bolus submitted, kept for the
	// resend affordance.
	LatestBolusSent float64 `json:"latestBolusSent"`

	// MealDate is set on the first dose action of a meal and cleared when
	// all registered amounts return to zero. MealDate == nil iff every
	// registered value is zero.
	MealDate *time.Time `json:"mealDate,omitempty"`

	StartDoseGiven     bool `json:"startDoseGiven"`
	RemainingDoseGiven bool `json:"remainingDoseGiven"`
}

// IsZero reports whether nothing has been registered for this meal.
func (s *RegistrationState) IsZero() bool {
	return s.RegisteredCarbs == 0 &&
		s.RegisteredFat == 0 &&
		s.RegisteredProtein == 0 &&
		s.RegisteredBolus == 0
}

// Clone returns a copy of the state.
func (s *RegistrationState) Clone() RegistrationState {
	clone := *s
	if s.MealDate != nil {
		d := *s.MealDate
		clone.MealDate = &d
	}
	return clone
}
