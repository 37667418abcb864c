package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrcode/mealdose/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_Foods(t *testing.T) {
	store := newTestStore(t)

	breadID, err := store.AddFood(models.FoodItem{
		Name: "bread", Carbs: 48, Fat: 1.5, Protein: 9,
	})
	require.NoError(t, err)

	eggID, err := store.AddFood(models.FoodItem{
		Name: "egg", Carbs: 0.5, Fat: 5, Protein: 6, IsPerUnit: true,
	})
	require.NoError(t, err)

	foods, err := store.ListFoods()
	require.NoError(t, err)
	require.Len(t, foods, 2)

	bread, err := store.GetFood(breadID)
	require.NoError(t, err)
	assert.Equal(t, "bread", bread.Name)
	assert.Equal(t, 48.0, bread.Carbs)
	assert.False(t, bread.IsPerUnit)

	egg, err := store.GetFood(eggID)
	require.NoError(t, err)
	assert.True(t, egg.IsPerUnit)

	_, err = store.GetFood(999)
	assert.Error(t, err)
}

func TestSQLiteStore_MealRows(t *testing.T) {
	store := newTestStore(t)

	breadID, err := store.AddFood(models.FoodItem{Name: "bread", Carbs: 48, Fat: 1.5, Protein: 9})
	require.NoError(t, err)

	rowID, err := store.AddMealRow(breadID, 100, 0)
	require.NoError(t, err)

	rows, err := store.MealRows()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "bread", rows[0].Food.Name)
	assert.InDelta(t, 48.0, rows[0].NetCarbs(), 1e-9)

	require.NoError(t, store.SetNotEaten(rowID, 50))
	rows, err = store.MealRows()
	require.NoError(t, err)
	assert.InDelta(t, 24.0, rows[0].NetCarbs(), 1e-9)

	require.NoError(t, store.DeleteMealRow(rowID))
	rows, err = store.MealRows()
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSQLiteStore_ClearMealRows(t *testing.T) {
	store := newTestStore(t)

	id, err := store.AddFood(models.FoodItem{Name: "rice", Carbs: 28})
	require.NoError(t, err)
	_, err = store.AddMealRow(id, 150, 0)
	require.NoError(t, err)
	_, err = store.AddMealRow(id, 80, 0)
	require.NoError(t, err)

	require.NoError(t, store.ClearMealRows())
	rows, err := store.MealRows()
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSQLiteStore_Schedule(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SetScheduleSlot(7, 8.0, 25.0))
	require.NoError(t, store.SetScheduleSlot(12, 12.0, 40.0))

	table, err := store.Schedule()
	require.NoError(t, err)

	slot, ok := table.Slot(7)
	require.True(t, ok)
	assert.Equal(t, 8.0, slot.CarbRatio)
	assert.Equal(t, 25.0, slot.StartDose)
	assert.False(t, slot.LastEdited.IsZero())

	_, ok = table.Slot(8)
	assert.False(t, ok, "unconfigured hour must be absent")

	// Upsert replaces the slot.
	require.NoError(t, store.SetScheduleSlot(7, 9.5, 30.0))
	table, err = store.Schedule()
	require.NoError(t, err)
	slot, _ = table.Slot(7)
	assert.Equal(t, 9.5, slot.CarbRatio)

	assert.Error(t, store.SetScheduleSlot(24, 1, 1))
	assert.Error(t, store.SetScheduleSlot(-1, 1, 1))
}
