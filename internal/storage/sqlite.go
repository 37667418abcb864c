package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mrcode/mealdose/internal/models"
)

// SQLiteStore holds the food catalog, the rows of the meal being composed
// and the two 24-slot dosing schedules.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if necessary initializes) the database at
// dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS foods (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT NOT NULL,
        carbs REAL NOT NULL,
        fat REAL NOT NULL,
        protein REAL NOT NULL,
        is_per_unit INTEGER NOT NULL DEFAULT 0
    );

    CREATE TABLE IF NOT EXISTS meal_rows (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        food_id INTEGER NOT NULL,
        portion_served REAL NOT NULL,
        not_eaten REAL NOT NULL DEFAULT 0,
        FOREIGN KEY (food_id) REFERENCES foods(id) ON DELETE CASCADE
    );

    CREATE TABLE IF NOT EXISTS schedule_slots (
        hour INTEGER PRIMARY KEY CHECK (hour BETWEEN 0 AND 23),
        carb_ratio REAL NOT NULL DEFAULT 0,
        start_dose REAL NOT NULL DEFAULT 0,
        last_edited DATETIME NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_meal_rows_food_id ON meal_rows(food_id);
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// AddFood inserts a food item and returns its id.
func (s *SQLiteStore) AddFood(item models.FoodItem) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO foods (name, carbs, fat, protein, is_per_unit) VALUES (?, ?, ?, ?, ?)`,
		item.Name, item.Carbs, item.Fat, item.Protein, item.IsPerUnit)
	if err != nil {
		return 0, fmt.Errorf("failed to insert food: %w", err)
	}
	return res.LastInsertId()
}

// ListFoods returns the whole food catalog ordered by name.
func (s *SQLiteStore) ListFoods() ([]models.FoodItem, error) {
	rows, err := s.db.Query(
		`SELECT id, name, carbs, fat, protein, is_per_unit FROM foods ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query foods: %w", err)
	}
	defer rows.Close()

	var foods []models.FoodItem
	for rows.Next() {
		var f models.FoodItem
		if err := rows.Scan(&f.ID, &f.Name, &f.Carbs, &f.Fat, &f.Protein, &f.IsPerUnit); err != nil {
			return nil, fmt.Errorf("failed to scan food: %w", err)
		}
		foods = append(foods, f)
	}
	return foods, rows.Err()
}

// GetFood returns one food item by id.
func (s *SQLiteStore) GetFood(id int64) (models.FoodItem, error) {
	var f models.FoodItem
	err := s.db.QueryRow(
		`SELECT id, name, carbs, fat, protein, is_per_unit FROM foods WHERE id = ?`, id).
		Scan(&f.ID, &f.Name, &f.Carbs, &f.Fat, &f.Protein, &f.IsPerUnit)
	if err != nil {
		return models.FoodItem{}, fmt.Errorf("failed to load food %d: %w", id, err)
	}
	return f, nil
}

// AddMealRow adds a food portion to the meal under composition.
func (s *SQLiteStore) AddMealRow(foodID int64, portionServed, notEaten float64) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO meal_rows (food_id, portion_served, not_eaten) VALUES (?, ?, ?)`,
		foodID, portionServed, notEaten)
	if err != nil {
		return 0, fmt.Errorf("failed to insert meal row: %w", err)
	}
	return res.LastInsertId()
}

// SetNotEaten records the part of a row's portion that was not eaten.
func (s *SQLiteStore) SetNotEaten(rowID int64, notEaten float64) error {
	_, err := s.db.Exec(`UPDATE meal_rows SET not_eaten = ? WHERE id = ?`, notEaten, rowID)
	if err != nil {
		return fmt.Errorf("failed to update meal row %d: %w", rowID, err)
	}
	return nil
}

// DeleteMealRow removes one row from the meal.
func (s *SQLiteStore) DeleteMealRow(rowID int64) error {
	_, err := s.db.Exec(`DELETE FROM meal_rows WHERE id = ?`, rowID)
	if err != nil {
		return fmt.Errorf("failed to delete meal row %d: %w", rowID, err)
	}
	return nil
}

// ClearMealRows removes every row of the meal under composition.
func (s *SQLiteStore) ClearMealRows() error {
	if _, err := s.db.Exec(`DELETE FROM meal_rows`); err != nil {
		return fmt.Errorf("failed to clear meal rows: %w", err)
	}
	return nil
}

// MealRows returns the selected meal rows with their foods.
func (s *SQLiteStore) MealRows() ([]models.MealRow, error) {
	rows, err := s.db.Query(`
        SELECT r.id, r.portion_served, r.not_eaten,
               f.id, f.name, f.carbs, f.fat, f.protein, f.is_per_unit
        FROM meal_rows r
        JOIN foods f ON f.id = r.food_id
        ORDER BY r.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query meal rows: %w", err)
	}
	defer rows.Close()

	var result []models.MealRow
	for rows.Next() {
		var r models.MealRow
		if err := rows.Scan(&r.ID, &r.PortionServed, &r.NotEaten,
			&r.Food.ID, &r.Food.Name, &r.Food.Carbs, &r.Food.Fat,
			&r.Food.Protein, &r.Food.IsPerUnit); err != nil {
			return nil, fmt.Errorf("failed to scan meal row: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// SetScheduleSlot stores the carb ratio and start dose for an hour.
func (s *SQLiteStore) SetScheduleSlot(hour int, carbRatio, startDose float64) error {
	if hour < 0 || hour > 23 {
		return fmt.Errorf("hour %d out of range", hour)
	}
	_, err := s.db.Exec(`
        INSERT INTO schedule_slots (hour, carb_ratio, start_dose, last_edited)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(hour) DO UPDATE SET
            carb_ratio = excluded.carb_ratio,
            start_dose = excluded.start_dose,
            last_edited = excluded.last_edited`,
		hour, carbRatio, startDose, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert schedule slot %d: %w", hour, err)
	}
	return nil
}

// Schedule returns the configured hourly table. Hours with no row are
// simply absent.
func (s *SQLiteStore) Schedule() (*models.ScheduleTable, error) {
	rows, err := s.db.Query(
		`SELECT hour, carb_ratio, start_dose, last_edited FROM schedule_slots ORDER BY hour`)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule: %w", err)
	}
	defer rows.Close()

	table := models.NewScheduleTable()
	for rows.Next() {
		var slot models.ScheduleSlot
		var editedStr string
		if err := rows.Scan(&slot.Hour, &slot.CarbRatio, &slot.StartDose, &editedStr); err != nil {
			return nil, fmt.Errorf("failed to scan schedule slot: %w", err)
		}
		if slot.LastEdited, err = time.Parse(time.RFC3339, editedStr); err != nil {
			return nil, fmt.Errorf("failed to parse last_edited: %w", err)
		}
		table.Slots[slot.Hour] = slot
	}
	return table, rows.Err()
}
