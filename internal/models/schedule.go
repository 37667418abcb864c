// Package models contains data structures used throughout the application
package models

import "time"

// ScheduleSlot is one hour-of-day entry in a dosing schedule. A zero value
// means "not configured for this hour"; the resolver then keeps whatever
// value was already in effect.
type ScheduleSlot struct {
	Hour       int       `json:"hour"` // 0-23
	CarbRatio  float64   `json:"carbRatio"`
	StartDose  float64   `json:"startDose"`
	LastEdited time.Time `json:"lastEdited"`
}

// ScheduleTable holds the 24 hourly slots for carb ratio and start dose.
// Missing hours are simply absent from the map.
type ScheduleTable struct {
	Slots map[int]ScheduleSlot `json:"slots"`
}

// NewScheduleTable returns an empty schedule.
func NewScheduleTable() *ScheduleTable {
	return &ScheduleTable{Slots: make(map[int]ScheduleSlot)}
}

// Slot returns the slot for an hour and whether one is configured.
func (t *ScheduleTable) Slot(hour int) (ScheduleSlot, bool) {
	if t == nil || t.Slots == nil {
		return ScheduleSlot{}, false
	}
	s, ok := t.Slots[hour]
	return s, ok
}

// Set stores a slot for an hour, stamping the edit time.
func (t *ScheduleTable) Set(hour int, carbRatio, startDose float64, now time.Time) {
	if t.Slots == nil {
		t.Slots = make(map[int]ScheduleSlot)
	}
	t.Slots[hour] = ScheduleSlot{
		Hour:       hour,
		CarbRatio:  carbRatio,
		StartDose:  startDose,
		LastEdited: now,
	}
}
