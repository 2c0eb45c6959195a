package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"mealweek/internal/database"
	"mealweek/internal/shared"
)

// Repository is a database-backed catalog.
type Repository struct {
	db *database.DB
}

// Compile-time contract assertion.
var _ Catalog = (*Repository)(nil)

// NewRepository creates a new catalog repository.
func NewRepository(d *database.DB) *Repository {
	return &Repository{db: d}
}

// GetRecipe retrieves a recipe with its ingredient requirements.
func (r *Repository) GetRecipe(ctx context.Context, id int64) (*Recipe, error) {
	rec := &Recipe{}
	err := r.db.SQL.QueryRowContext(ctx,
		r.db.Rebind("SELECT id, title, num_servings FROM recipes WHERE id = ?"), id,
	).Scan(&rec.ID, &rec.Title, &rec.NumServings)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("recipe %d: %w", id, shared.ErrRecipeNotFound)
		}
		return nil, fmt.Errorf("failed to get recipe %d: %w", id, err)
	}

	rows, err := r.db.SQL.QueryContext(ctx,
		r.db.Rebind(`SELECT ingredient_id, amount, measure_type_id
			FROM recipe_ingredients WHERE recipe_id = ? ORDER BY ingredient_id`), id)
	if err != nil {
		return nil, fmt.Errorf("failed to get ingredients for recipe %d: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var ing RecipeIngredient
		if err := rows.Scan(&ing.IngredientID, &ing.Amount, &ing.MeasureTypeID); err != nil {
			return nil, fmt.Errorf("failed to scan recipe ingredient: %w", err)
		}
		rec.Ingredients = append(rec.Ingredients, ing)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read recipe ingredients: %w", err)
	}

	return rec, nil
}

// GetIngredients retrieves the named ingredient records keyed by id. Unknown
// ids are simply absent from the result.
func (r *Repository) GetIngredients(ctx context.Context, ids []int64) (map[int64]Ingredient, error) {
	result := make(map[int64]Ingredient, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := r.db.Rebind("SELECT id, name, category FROM ingredients WHERE id IN (" + placeholders + ")")
	rows, err := r.db.SQL.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get ingredients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ing Ingredient
		if err := rows.Scan(&ing.ID, &ing.Name, &ing.Category); err != nil {
			return nil, fmt.Errorf("failed to scan ingredient: %w", err)
		}
		result[ing.ID] = ing
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ingredients: %w", err)
	}

	return result, nil
}
