package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"mealweek/internal/database"
	"mealweek/internal/shared"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	seed := []string{
		"INSERT INTO ingredients (id, name, category) VALUES (1, 'flour', 'baking')",
		"INSERT INTO ingredients (id, name, category) VALUES (2, 'milk', 'dairy')",
		"INSERT INTO recipes (id, title, num_servings) VALUES (10, 'Pancakes', 4)",
		"INSERT INTO recipe_ingredients (recipe_id, ingredient_id, amount, measure_type_id) VALUES (10, 1, 2, 7)",
		"INSERT INTO recipe_ingredients (recipe_id, ingredient_id, amount, measure_type_id) VALUES (10, 2, 250, 3)",
	}
	for _, stmt := range seed {
		if _, err := db.SQL.Exec(stmt); err != nil {
			t.Fatalf("Failed to seed catalog: %v", err)
		}
	}

	return NewRepository(db)
}

func TestGetRecipe(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("Found", func(t *testing.T) {
		rec, err := repo.GetRecipe(ctx, 10)
		if err != nil {
			t.Fatalf("Failed to get recipe: %v", err)
		}
		if rec.Title != "Pancakes" {
			t.Errorf("Expected title 'Pancakes', got '%s'", rec.Title)
		}
		if rec.NumServings != 4 {
			t.Errorf("Expected 4 servings, got %d", rec.NumServings)
		}
		if len(rec.Ingredients) != 2 {
			t.Fatalf("Expected 2 ingredients, got %d", len(rec.Ingredients))
		}
		if rec.Ingredients[0].IngredientID != 1 || rec.Ingredients[0].Amount != 2 {
			t.Errorf("Unexpected first ingredient: %+v", rec.Ingredients[0])
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.GetRecipe(ctx, 999)
		if !errors.Is(err, shared.ErrRecipeNotFound) {
			t.Errorf("Expected ErrRecipeNotFound, got %v", err)
		}
	})
}

func TestGetIngredients(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("SubsetWithUnknownID", func(t *testing.T) {
		got, err := repo.GetIngredients(ctx, []int64{1, 2, 999})
		if err != nil {
			t.Fatalf("Failed to get ingredients: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("Expected 2 ingredients, got %d", len(got))
		}
		if got[1].Name != "flour" || got[1].Category != "baking" {
			t.Errorf("Unexpected ingredient 1: %+v", got[1])
		}
	})

	t.Run("Empty", func(t *testing.T) {
		got, err := repo.GetIngredients(ctx, nil)
		if err != nil {
			t.Fatalf("Expected no error for empty id list, got %v", err)
		}
		if len(got) != 0 {
			t.Errorf("Expected empty result, got %d entries", len(got))
		}
	})
}
