package schedule

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mealweek/internal/catalog"
	"mealweek/internal/database"
	"mealweek/internal/shared"
)

var testMonday = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func newTestStores(t *testing.T) (*Store, *Registry) {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "schedule.db"))
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	seed := []string{
		"INSERT INTO ingredients (id, name, category) VALUES (1, 'flour', 'baking')",
		"INSERT INTO recipes (id, title, num_servings) VALUES (10, 'Pancakes', 4)",
		"INSERT INTO recipe_ingredients (recipe_id, ingredient_id, amount, measure_type_id) VALUES (10, 1, 2, 7)",
		"INSERT INTO recipes (id, title, num_servings) VALUES (11, 'Cookies', 2)",
		"INSERT INTO recipe_ingredients (recipe_id, ingredient_id, amount, measure_type_id) VALUES (11, 1, 2, 6)",
	}
	for _, stmt := range seed {
		if _, err := db.SQL.Exec(stmt); err != nil {
			t.Fatalf("Failed to seed catalog: %v", err)
		}
	}

	return NewStore(db, 1), NewRegistry(db, catalog.NewRepository(db))
}

func TestGetWeek(t *testing.T) {
	store, _ := newTestStores(t)
	ctx := context.Background()

	t.Run("CreatesSevenDaysFromMonday", func(t *testing.T) {
		thursday := testMonday.AddDate(0, 0, 3)
		days, err := store.GetWeek(ctx, 1, thursday)
		if err != nil {
			t.Fatalf("Failed to get week: %v", err)
		}
		if len(days) != 7 {
			t.Fatalf("Expected 7 days, got %d", len(days))
		}
		for i, day := range days {
			want := testMonday.AddDate(0, 0, i)
			if !shared.SameDate(day.Date, want) {
				t.Errorf("Day %d: expected %s, got %s", i, shared.FormatDate(want), shared.FormatDate(day.Date))
			}
			if day.DietTypeID != 1 {
				t.Errorf("Day %d: expected default diet type, got %d", i, day.DietTypeID)
			}
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		first, err := store.GetWeek(ctx, 1, testMonday)
		if err != nil {
			t.Fatalf("Failed to get week: %v", err)
		}
		second, err := store.GetWeek(ctx, 1, testMonday)
		if err != nil {
			t.Fatalf("Failed to get week again: %v", err)
		}
		for i := range first {
			if first[i].ID != second[i].ID {
				t.Errorf("Day %d recreated: id %d vs %d", i, first[i].ID, second[i].ID)
			}
		}
	})

	t.Run("ConcurrentCreation", func(t *testing.T) {
		nextMonday := testMonday.AddDate(0, 0, 7)
		var wg sync.WaitGroup
		results := make([][]ScheduleDay, 2)
		errs := make([]error, 2)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = store.GetWeek(ctx, 3, nextMonday)
			}(i)
		}
		wg.Wait()
		for i, err := range errs {
			if err != nil {
				t.Fatalf("Concurrent GetWeek %d failed: %v", i, err)
			}
		}
		for i := range results[0] {
			if results[0][i].ID != results[1][i].ID {
				t.Errorf("Day %d diverged: id %d vs %d", i, results[0][i].ID, results[1][i].ID)
			}
		}
	})

	t.Run("UsersAreIsolated", func(t *testing.T) {
		mine, err := store.GetWeek(ctx, 1, testMonday)
		if err != nil {
			t.Fatalf("Failed to get week: %v", err)
		}
		theirs, err := store.GetWeek(ctx, 2, testMonday)
		if err != nil {
			t.Fatalf("Failed to get other user's week: %v", err)
		}
		if mine[0].ID == theirs[0].ID {
			t.Error("Expected distinct day records per user")
		}
	})
}

func TestCreateSlot(t *testing.T) {
	store, registry := newTestStores(t)
	ctx := context.Background()
	days, err := store.GetWeek(ctx, 1, testMonday)
	if err != nil {
		t.Fatalf("Failed to get week: %v", err)
	}
	prep, err := registry.Create(ctx, days[0].ID, 10, MealDinner)
	if err != nil {
		t.Fatalf("Failed to create preparation: %v", err)
	}

	t.Run("InvalidServings", func(t *testing.T) {
		if _, err := store.CreateSlot(ctx, days[0].ID, prep.ID, MealDinner, 0, false); !errors.Is(err, shared.ErrInvalidReference) {
			t.Errorf("Expected ErrInvalidReference, got %v", err)
		}
	})

	t.Run("InvalidMealType", func(t *testing.T) {
		if _, err := store.CreateSlot(ctx, days[0].ID, prep.ID, MealType(9), 2, false); !errors.Is(err, shared.ErrInvalidReference) {
			t.Errorf("Expected ErrInvalidReference, got %v", err)
		}
	})

	t.Run("MissingDay", func(t *testing.T) {
		if _, err := store.CreateSlot(ctx, 9999, prep.ID, MealDinner, 2, false); !errors.Is(err, shared.ErrInvalidReference) {
			t.Errorf("Expected ErrInvalidReference, got %v", err)
		}
	})

	t.Run("ConsumesServings", func(t *testing.T) {
		meal, err := store.CreateSlot(ctx, days[0].ID, prep.ID, MealDinner, 4, false)
		if err != nil {
			t.Fatalf("Failed to create slot: %v", err)
		}
		if meal.IsLeftovers {
			t.Error("Expected same-day slot not to be leftovers")
		}
		if meal.RecipeID != 10 {
			t.Errorf("Expected denormalized recipe 10, got %d", meal.RecipeID)
		}
		got, err := registry.Get(ctx, prep.ID)
		if err != nil {
			t.Fatalf("Failed to get preparation: %v", err)
		}
		if got.NumServings != 4 {
			t.Errorf("Expected 4 servings on preparation, got %d", got.NumServings)
		}
	})

	t.Run("LeftoverWhenEatenAnotherDay", func(t *testing.T) {
		meal, err := store.CreateSlot(ctx, days[1].ID, prep.ID, MealLunch, 2, false)
		if err != nil {
			t.Fatalf("Failed to create slot: %v", err)
		}
		if !meal.IsLeftovers {
			t.Error("Expected cross-day slot to be leftovers")
		}
	})

	t.Run("CrossUserPreparation", func(t *testing.T) {
		otherDays, err := store.GetWeek(ctx, 2, testMonday)
		if err != nil {
			t.Fatalf("Failed to get other user's week: %v", err)
		}
		if _, err := store.CreateSlot(ctx, otherDays[0].ID, prep.ID, MealDinner, 2, false); !errors.Is(err, shared.ErrInvalidReference) {
			t.Errorf("Expected ErrInvalidReference, got %v", err)
		}
	})
}

func TestMoveSlotToDay(t *testing.T) {
	store, registry := newTestStores(t)
	ctx := context.Background()
	days, err := store.GetWeek(ctx, 1, testMonday)
	if err != nil {
		t.Fatalf("Failed to get week: %v", err)
	}
	prep, err := registry.Create(ctx, days[0].ID, 10, MealDinner)
	if err != nil {
		t.Fatalf("Failed to create preparation: %v", err)
	}
	meal, err := store.CreateSlot(ctx, days[0].ID, prep.ID, MealDinner, 4, false)
	if err != nil {
		t.Fatalf("Failed to create slot: %v", err)
	}

	t.Run("RecomputesLeftovers", func(t *testing.T) {
		moved, err := store.MoveSlotToDay(ctx, meal.ID, days[2].ID)
		if err != nil {
			t.Fatalf("Failed to move slot: %v", err)
		}
		if moved.ScheduleDayID != days[2].ID || !moved.IsLeftovers {
			t.Errorf("Expected slot on day %d marked leftovers, got %+v", days[2].ID, moved)
		}

		back, err := store.MoveSlotToDay(ctx, meal.ID, days[0].ID)
		if err != nil {
			t.Fatalf("Failed to move slot back: %v", err)
		}
		if back.IsLeftovers {
			t.Error("Expected leftovers cleared after moving back to the cooking day")
		}
	})

	t.Run("KeepsConfirmation", func(t *testing.T) {
		if _, err := store.SetConfirmStatus(ctx, meal.ID, ConfirmedYes); err != nil {
			t.Fatalf("Failed to confirm: %v", err)
		}
		moved, err := store.MoveSlotToDay(ctx, meal.ID, days[3].ID)
		if err != nil {
			t.Fatalf("Failed to move slot: %v", err)
		}
		if moved.ConfirmStatus != ConfirmedYes {
			t.Errorf("Expected confirmation preserved, got %v", moved.ConfirmStatus)
		}
	})

	t.Run("CrossUserTarget", func(t *testing.T) {
		otherDays, err := store.GetWeek(ctx, 2, testMonday)
		if err != nil {
			t.Fatalf("Failed to get other user's week: %v", err)
		}
		if _, err := store.MoveSlotToDay(ctx, meal.ID, otherDays[0].ID); !errors.Is(err, shared.ErrInvalidReference) {
			t.Errorf("Expected ErrInvalidReference, got %v", err)
		}
	})

	t.Run("MissingMeal", func(t *testing.T) {
		if _, err := store.MoveSlotToDay(ctx, 9999, days[0].ID); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestSetConfirmStatus(t *testing.T) {
	store, registry := newTestStores(t)
	ctx := context.Background()
	days, err := store.GetWeek(ctx, 1, testMonday)
	if err != nil {
		t.Fatalf("Failed to get week: %v", err)
	}
	prep, err := registry.Create(ctx, days[0].ID, 10, MealDinner)
	if err != nil {
		t.Fatalf("Failed to create preparation: %v", err)
	}
	meal, err := store.CreateSlot(ctx, days[0].ID, prep.ID, MealDinner, 4, false)
	if err != nil {
		t.Fatalf("Failed to create slot: %v", err)
	}

	updated, err := store.SetConfirmStatus(ctx, meal.ID, ConfirmedNo)
	if err != nil {
		t.Fatalf("Failed to set confirm status: %v", err)
	}
	if updated.ConfirmStatus != ConfirmedNo {
		t.Errorf("Expected ConfirmedNo, got %v", updated.ConfirmStatus)
	}

	// Confirmed states are terminal.
	if _, err := store.SetConfirmStatus(ctx, meal.ID, ConfirmedYes); !errors.Is(err, shared.ErrInvalidStateTransition) {
		t.Errorf("Expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestWeekView(t *testing.T) {
	store, registry := newTestStores(t)
	ctx := context.Background()
	days, err := store.GetWeek(ctx, 1, testMonday)
	if err != nil {
		t.Fatalf("Failed to get week: %v", err)
	}
	prep, err := registry.Create(ctx, days[0].ID, 10, MealDinner)
	if err != nil {
		t.Fatalf("Failed to create preparation: %v", err)
	}
	if _, err := store.CreateSlot(ctx, days[0].ID, prep.ID, MealDinner, 4, false); err != nil {
		t.Fatalf("Failed to create slot: %v", err)
	}
	leftover, err := store.CreateSlot(ctx, days[1].ID, prep.ID, MealLunch, 2, true)
	if err != nil {
		t.Fatalf("Failed to create slot: %v", err)
	}

	views, err := store.WeekView(ctx, 1, testMonday)
	if err != nil {
		t.Fatalf("Failed to build week view: %v", err)
	}
	if len(views) != 7 {
		t.Fatalf("Expected 7 day views, got %d", len(views))
	}
	if len(views[0].Meals) != 1 || len(views[1].Meals) != 1 {
		t.Fatalf("Expected one meal on Monday and Tuesday, got %d and %d", len(views[0].Meals), len(views[1].Meals))
	}

	tue := views[1].Meals[0]
	if !tue.IsLeftovers || !tue.IsChallenge || tue.MealType != "lunch" {
		t.Errorf("Unexpected Tuesday meal view: %+v", tue)
	}
	if tue.Preparation == nil || tue.Preparation.Date != shared.FormatDate(testMonday) || tue.Preparation.NumServings != 6 {
		t.Errorf("Unexpected embedded preparation: %+v", tue.Preparation)
	}

	// A vacated slot disappears from the view.
	if err := registry.DeclineChallenge(ctx, leftover.ID); err != nil {
		t.Fatalf("Failed to decline challenge: %v", err)
	}
	views, err = store.WeekView(ctx, 1, testMonday)
	if err != nil {
		t.Fatalf("Failed to rebuild week view: %v", err)
	}
	if len(views[1].Meals) != 0 {
		t.Errorf("Expected vacated slot excluded, got %+v", views[1].Meals)
	}
}
