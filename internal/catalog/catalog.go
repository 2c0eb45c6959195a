// Package catalog defines the recipe/ingredient collaborator the scheduling
// engine reads from. The engine only depends on the Catalog interface; the
// SQL-backed Repository in this package is the thin data access behind it.
package catalog

import (
	"context"
)

// Ingredient is an immutable catalog record.
type Ingredient struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// RecipeIngredient is one ingredient requirement of a recipe, expressed for
// the recipe's base number of servings.
type RecipeIngredient struct {
	IngredientID  int64   `json:"ingredient_id"`
	Amount        float64 `json:"amount"`
	MeasureTypeID int64   `json:"measure_type_id"`
}

// Recipe is an immutable catalog record.
type Recipe struct {
	ID          int64              `json:"id"`
	Title       string             `json:"title"`
	NumServings int                `json:"num_servings"`
	Ingredients []RecipeIngredient `json:"ingredients"`
}

// Catalog resolves recipes and ingredients for the engine.
type Catalog interface {
	GetRecipe(ctx context.Context, id int64) (*Recipe, error)
	GetIngredients(ctx context.Context, ids []int64) (map[int64]Ingredient, error)
}

// SelectionCriteria describes a slot a recipe is wanted for.
type SelectionCriteria struct {
	UserID     int64
	DietTypeID int64
	MealType   int
}

// RecipeSelector is the pluggable recipe-selection collaborator. How recipes
// are chosen is outside this engine; callers supply an implementation.
type RecipeSelector interface {
	SelectRecipe(ctx context.Context, criteria SelectionCriteria) (int64, error)
}
