// Package models contains data structures used throughout the application
package models

// FoodItem represents a food from the food store. Nutrient rates are either
// per 100 g or per unit, depending on IsPerUnit.
type FoodItem struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Carbs   float64 `json:"carbsPer100gOrPerUnit"`
	Fat     float64 `json:"fatPer100gOrPerUnit"`
	Protein float64 `json:"proteinPer100gOrPerUnit"`

	// IsPerUnit selects how Carbs/Fat/Protein are scaled: per piece when
	// true, per 100 g otherwise.
	IsPerUnit bool `json:"isPerUnit"`
}

// rate returns the multiplier applied to a nutrient value for a given
// portion size (grams or units).
func (f *FoodItem) rate(portion float64) float64 {
	if f.IsPerUnit {
		return portion
	}
	return portion / 100.0
}

// NetCarbs returns the carbs for a portion minus the part not eaten.
func (f *FoodItem) NetCarbs(portionServed, notEaten float64) float64 {
	return f.Carbs*f.rate(portionServed) - f.Carbs*f.rate(notEaten)
}

// NetFat returns the fat for a portion minus the part not eaten.
func (f *FoodItem) NetFat(portionServed, notEaten float64) float64 {
	return f.Fat*f.rate(portionServed) - f.Fat*f.rate(notEaten)
}

// NetProtein returns the protein for a portion minus the part not eaten.
func (f *FoodItem) NetProtein(portionServed, notEaten float64) float64 {
	return f.Protein*f.rate(portionServed) - f.Protein*f.rate(notEaten)
}

// MealRow is one selected food in the meal being composed, with the served
// portion and the part that ended up not eaten.
type MealRow struct {
	ID            int64    `json:"id"`
	Food          FoodItem `json:"food"`
	PortionServed float64  `json:"portionServed"`
	NotEaten      float64  `json:"notEaten"`
}

// NetCarbs returns the carbs actually eaten from this row.
func (r *MealRow) NetCarbs() float64 {
	return r.Food.NetCarbs(r.PortionServed, r.NotEaten)
}

// NetFat returns the fat actually eaten from this row.
func (r *MealRow) NetFat() float64 {
	return r.Food.NetFat(r.PortionServed, r.NotEaten)
}

// NetProtein returns the protein actually eaten from this row.
func (r *MealRow) NetProtein() float64 {
	return r.Food.NetProtein(r.PortionServed, r.NotEaten)
}

// PlannedMeal holds the nutrient totals of the currently selected meal rows.
// It is always derived from the rows, never stored on its own.
type PlannedMeal struct {
	TotalCarbs   float64 `json:"totalCarbs"`
	TotalFat     float64 `json:"totalFat"`
	TotalProtein float64 `json:"totalProtein"`
}

// PlannedMealFromRows recomputes the planned totals from the current rows.
func PlannedMealFromRows(rows []MealRow) PlannedMeal {
	var m PlannedMeal
	for i := range rows {
		m.TotalCarbs += rows[i].NetCarbs()
		m.TotalFat += rows[i].NetFat()
		m.TotalProtein += rows[i].NetProtein()
	}
	return m
}

// IsEmpty reports whether nothing has been planned yet.
func (m PlannedMeal) IsEmpty() bool {
	return m.TotalCarbs == 0 && m.TotalFat == 0 && m.TotalProtein == 0
}
