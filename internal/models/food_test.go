package models

import (
	"math"
	"testing"
	"time"
)

func TestFoodItem_Net(t *testing.T) {
	bread := FoodItem{Name: "bread", Carbs: 48, Fat: 1.5, Protein: 9}
	egg := FoodItem{Name: "egg", Carbs: 0.5, Fat: 5, Protein: 6, IsPerUnit: true}

	tests := []struct {
		name      string
		food      FoodItem
		served    float64
		notEaten  float64
		wantCarbs float64
	}{
		{"Per 100g full portion", bread, 100, 0, 48},
		{"Per 100g half left", bread, 100, 50, 24},
		{"Per 100g small portion", bread, 30, 0, 14.4},
		{"Per unit two eggs", egg, 2, 0, 1.0},
		{"Per unit one left", egg, 2, 1, 0.5},
		{"Nothing eaten", bread, 100, 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.food.NetCarbs(tt.served, tt.notEaten)
			if math.Abs(got-tt.wantCarbs) > 1e-9 {
				t.Errorf("NetCarbs(%v, %v) = %v, want %v", tt.served, tt.notEaten, got, tt.wantCarbs)
			}
		})
	}
}

func TestPlannedMealFromRows(t *testing.T) {
	bread := FoodItem{Name: "bread", Carbs: 48, Fat: 1.5, Protein: 9}
	egg := FoodItem{Name: "egg", Carbs: 0.5, Fat: 5, Protein: 6, IsPerUnit: true}

	rows := []MealRow{
		{Food: bread, PortionServed: 100},
		{Food: egg, PortionServed: 2, NotEaten: 1},
	}

	m := PlannedMealFromRows(rows)

	if math.Abs(m.TotalCarbs-48.5) > 1e-9 {
		t.Errorf("TotalCarbs = %v, want 48.5", m.TotalCarbs)
	}
	if math.Abs(m.TotalFat-6.5) > 1e-9 {
		t.Errorf("TotalFat = %v, want 6.5", m.TotalFat)
	}
	if math.Abs(m.TotalProtein-15) > 1e-9 {
		t.Errorf("TotalProtein = %v, want 15", m.TotalProtein)
	}
	if m.IsEmpty() {
		t.Error("IsEmpty() = true for a non-trivial meal")
	}
}

func TestPlannedMeal_Empty(t *testing.T) {
	m := PlannedMealFromRows(nil)
	if !m.IsEmpty() {
		t.Error("IsEmpty() = false for no rows")
	}
}

func TestRegistrationState_Clone(t *testing.T) {
	s := RegistrationState{RegisteredCarbs: 10}
	clone := s.Clone()
	if clone.RegisteredCarbs != 10 {
		t.Errorf("clone carbs = %v, want 10", clone.RegisteredCarbs)
	}

	now := time.Now()
	s.MealDate = &now
	clone = s.Clone()
	if clone.MealDate == s.MealDate {
		t.Error("clone shares the MealDate pointer")
	}
	if !clone.MealDate.Equal(*s.MealDate) {
		t.Error("clone MealDate differs in value")
	}
}

func TestDoseKind_Valid(t *testing.T) {
	for _, k := range []DoseKind{DosePreBolus, DoseStart, DoseRemaining} {
		if !k.Valid() {
			t.Errorf("Valid() = false for %s", k)
		}
	}
	if DoseKind("snack").Valid() {
		t.Error("Valid() = true for unknown kind")
	}
}
