package schedule

import (
	"context"
	"errors"
	"testing"

	"mealweek/internal/shared"
)

func servingsSum(t *testing.T, registry *Registry, prepID int64) int {
	t.Helper()
	consumers, err := registry.Consumers(context.Background(), prepID)
	if err != nil {
		t.Fatalf("Failed to load consumers: %v", err)
	}
	sum := 0
	for _, m := range consumers {
		sum += m.Servings
	}
	return sum
}

func checkServingsInvariant(t *testing.T, registry *Registry, prepID int64) {
	t.Helper()
	prep, err := registry.Get(context.Background(), prepID)
	if err != nil {
		t.Fatalf("Failed to get preparation: %v", err)
	}
	if sum := servingsSum(t, registry, prepID); prep.NumServings != sum {
		t.Errorf("Servings invariant broken: preparation has %d, consumers sum to %d", prep.NumServings, sum)
	}
}

func TestCreateRequiresKnownRecipe(t *testing.T) {
	store, registry := newTestStores(t)
	ctx := context.Background()
	days, err := store.GetWeek(ctx, 1, testMonday)
	if err != nil {
		t.Fatalf("Failed to get week: %v", err)
	}

	if _, err := registry.Create(ctx, days[0].ID, 999, MealDinner); !errors.Is(err, shared.ErrRecipeNotFound) {
		t.Errorf("Expected ErrRecipeNotFound, got %v", err)
	}
	if _, err := registry.Create(ctx, 9999, 10, MealDinner); !errors.Is(err, shared.ErrInvalidReference) {
		t.Errorf("Expected ErrInvalidReference for a missing day, got %v", err)
	}
}

func TestAttachAndDetachConsumers(t *testing.T) {
	store, registry := newTestStores(t)
	ctx := context.Background()
	days, err := store.GetWeek(ctx, 1, testMonday)
	if err != nil {
		t.Fatalf("Failed to get week: %v", err)
	}

	prepA, err := registry.Create(ctx, days[0].ID, 10, MealDinner)
	if err != nil {
		t.Fatalf("Failed to create preparation: %v", err)
	}
	mealOne, err := store.CreateSlot(ctx, days[0].ID, prepA.ID, MealDinner, 4, false)
	if err != nil {
		t.Fatalf("Failed to create slot: %v", err)
	}
	mealTwo, err := store.CreateSlot(ctx, days[1].ID, prepA.ID, MealLunch, 2, false)
	if err != nil {
		t.Fatalf("Failed to create slot: %v", err)
	}
	checkServingsInvariant(t, registry, prepA.ID)

	t.Run("AttachIsIdempotent", func(t *testing.T) {
		if _, err := registry.AttachConsumer(ctx, prepA.ID, mealOne.ID); err != nil {
			t.Fatalf("Failed to re-attach: %v", err)
		}
		checkServingsInvariant(t, registry, prepA.ID)
	})

	t.Run("AttachMovesBetweenPreparations", func(t *testing.T) {
		prepB, err := registry.Create(ctx, days[1].ID, 11, MealLunch)
		if err != nil {
			t.Fatalf("Failed to create second preparation: %v", err)
		}
		moved, err := registry.AttachConsumer(ctx, prepB.ID, mealTwo.ID)
		if err != nil {
			t.Fatalf("Failed to move consumer: %v", err)
		}
		if moved.RecipeID != 11 {
			t.Errorf("Expected denormalized recipe 11, got %d", moved.RecipeID)
		}
		if moved.IsLeftovers {
			t.Error("Expected same-day attachment not to be leftovers")
		}
		checkServingsInvariant(t, registry, prepA.ID)
		checkServingsInvariant(t, registry, prepB.ID)
	})

	t.Run("DetachWrongLink", func(t *testing.T) {
		if err := registry.DetachConsumer(ctx, prepA.ID, mealTwo.ID); !errors.Is(err, shared.ErrInvalidReference) {
			t.Errorf("Expected ErrInvalidReference, got %v", err)
		}
	})

	t.Run("DetachLastConsumerDeletesPreparation", func(t *testing.T) {
		if err := registry.DetachConsumer(ctx, prepA.ID, mealOne.ID); err != nil {
			t.Fatalf("Failed to detach: %v", err)
		}
		if _, err := registry.Get(ctx, prepA.ID); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("Expected orphaned preparation deleted, got %v", err)
		}
		vacated, err := store.GetMeal(ctx, mealOne.ID)
		if err != nil {
			t.Fatalf("Failed to get vacated meal: %v", err)
		}
		if vacated.PreparationID != 0 || vacated.IsLeftovers {
			t.Errorf("Expected vacated slot, got %+v", vacated)
		}
	})
}

func TestSetRecipe(t *testing.T) {
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
	mealOne, err := store.CreateSlot(ctx, days[0].ID, prep.ID, MealDinner, 4, false)
	if err != nil {
		t.Fatalf("Failed to create slot: %v", err)
	}
	mealTwo, err := store.CreateSlot(ctx, days[1].ID, prep.ID, MealLunch, 2, false)
	if err != nil {
		t.Fatalf("Failed to create slot: %v", err)
	}

	t.Run("UnknownRecipe", func(t *testing.T) {
		if _, err := registry.SetRecipe(ctx, prep.ID, 999); !errors.Is(err, shared.ErrRecipeNotFound) {
			t.Errorf("Expected ErrRecipeNotFound, got %v", err)
		}
	})

	t.Run("UpdatesAllConsumers", func(t *testing.T) {
		updated, err := registry.SetRecipe(ctx, prep.ID, 11)
		if err != nil {
			t.Fatalf("Failed to set recipe: %v", err)
		}
		if updated.RecipeID != 11 {
			t.Errorf("Expected recipe 11 on preparation, got %d", updated.RecipeID)
		}
		for _, mealID := range []int64{mealOne.ID, mealTwo.ID} {
			meal, err := store.GetMeal(ctx, mealID)
			if err != nil {
				t.Fatalf("Failed to get meal: %v", err)
			}
			if meal.RecipeID != 11 {
				t.Errorf("Expected consumer %d on recipe 11, got %d", mealID, meal.RecipeID)
			}
		}
	})
}

func TestMovePreparation(t *testing.T) {
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
	mealMon, err := store.CreateSlot(ctx, days[0].ID, prep.ID, MealDinner, 4, false)
	if err != nil {
		t.Fatalf("Failed to create slot: %v", err)
	}
	mealTue, err := store.CreateSlot(ctx, days[1].ID, prep.ID, MealLunch, 2, false)
	if err != nil {
		t.Fatalf("Failed to create slot: %v", err)
	}

	t.Run("CrossUserTarget", func(t *testing.T) {
		otherDays, err := store.GetWeek(ctx, 2, testMonday)
		if err != nil {
			t.Fatalf("Failed to get other user's week: %v", err)
		}
		if _, err := registry.Move(ctx, prep.ID, otherDays[0].ID); !errors.Is(err, shared.ErrInvalidReference) {
			t.Errorf("Expected ErrInvalidReference, got %v", err)
		}
	})

	t.Run("RecomputesConsumerLeftovers", func(t *testing.T) {
		moved, err := registry.Move(ctx, prep.ID, days[1].ID)
		if err != nil {
			t.Fatalf("Failed to move preparation: %v", err)
		}
		if moved.ScheduleDayID != days[1].ID {
			t.Errorf("Expected preparation on day %d, got %d", days[1].ID, moved.ScheduleDayID)
		}
		mon, _ := store.GetMeal(ctx, mealMon.ID)
		tue, _ := store.GetMeal(ctx, mealTue.ID)
		if !mon.IsLeftovers {
			t.Error("Expected Monday slot to become leftovers")
		}
		if tue.IsLeftovers {
			t.Error("Expected Tuesday slot to stop being leftovers")
		}
	})
}

func TestChallengeResolution(t *testing.T) {
	store, registry := newTestStores(t)
	ctx := context.Background()
	days, err := store.GetWeek(ctx, 1, testMonday)
	if err != nil {
		t.Fatalf("Failed to get week: %v", err)
	}

	t.Run("AcceptKeepsSlot", func(t *testing.T) {
		prep, err := registry.Create(ctx, days[0].ID, 10, MealDinner)
		if err != nil {
			t.Fatalf("Failed to create preparation: %v", err)
		}
		meal, err := store.CreateSlot(ctx, days[0].ID, prep.ID, MealDinner, 4, true)
		if err != nil {
			t.Fatalf("Failed to create challenge slot: %v", err)
		}
		accepted, err := registry.AcceptChallenge(ctx, meal.ID)
		if err != nil {
			t.Fatalf("Failed to accept challenge: %v", err)
		}
		if accepted.IsChallenge || accepted.PreparationID != prep.ID || accepted.Servings != 4 {
			t.Errorf("Expected challenge flag cleared with slot intact, got %+v", accepted)
		}
		checkServingsInvariant(t, registry, prep.ID)

		if _, err := registry.AcceptChallenge(ctx, meal.ID); !errors.Is(err, shared.ErrInvalidStateTransition) {
			t.Errorf("Expected ErrInvalidStateTransition on re-accept, got %v", err)
		}
	})

	t.Run("DeclineSparesOtherConsumers", func(t *testing.T) {
		prep, err := registry.Create(ctx, days[2].ID, 10, MealDinner)
		if err != nil {
			t.Fatalf("Failed to create preparation: %v", err)
		}
		if _, err := store.CreateSlot(ctx, days[2].ID, prep.ID, MealDinner, 4, false); err != nil {
			t.Fatalf("Failed to create slot: %v", err)
		}
		challenge, err := store.CreateSlot(ctx, days[3].ID, prep.ID, MealLunch, 2, true)
		if err != nil {
			t.Fatalf("Failed to create challenge slot: %v", err)
		}

		if err := registry.DeclineChallenge(ctx, challenge.ID); err != nil {
			t.Fatalf("Failed to decline challenge: %v", err)
		}
		got, err := registry.Get(ctx, prep.ID)
		if err != nil {
			t.Fatalf("Expected preparation to survive, got %v", err)
		}
		if got.NumServings != 4 {
			t.Errorf("Expected 4 servings left, got %d", got.NumServings)
		}
		checkServingsInvariant(t, registry, prep.ID)
	})

	t.Run("DeclineLastConsumerDeletesPreparation", func(t *testing.T) {
		prep, err := registry.Create(ctx, days[4].ID, 11, MealDinner)
		if err != nil {
			t.Fatalf("Failed to create preparation: %v", err)
		}
		challenge, err := store.CreateSlot(ctx, days[4].ID, prep.ID, MealDinner, 2, true)
		if err != nil {
			t.Fatalf("Failed to create challenge slot: %v", err)
		}
		if err := registry.DeclineChallenge(ctx, challenge.ID); err != nil {
			t.Fatalf("Failed to decline challenge: %v", err)
		}
		if _, err := registry.Get(ctx, prep.ID); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("Expected preparation deleted, got %v", err)
		}
	})

	t.Run("DeclineNonChallenge", func(t *testing.T) {
		prep, err := registry.Create(ctx, days[5].ID, 10, MealDinner)
		if err != nil {
			t.Fatalf("Failed to create preparation: %v", err)
		}
		meal, err := store.CreateSlot(ctx, days[5].ID, prep.ID, MealDinner, 2, false)
		if err != nil {
			t.Fatalf("Failed to create slot: %v", err)
		}
		if err := registry.DeclineChallenge(ctx, meal.ID); !errors.Is(err, shared.ErrInvalidStateTransition) {
			t.Errorf("Expected ErrInvalidStateTransition, got %v", err)
		}
	})
}
