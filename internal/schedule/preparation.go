package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mealweek/internal/catalog"
	"mealweek/internal/database"
	"mealweek/internal/shared"
)

// Registry owns preparations and the many-to-one link from meal slots to the
// preparation they consume.
type Registry struct {
	db      *database.DB
	catalog catalog.Catalog
}

// NewRegistry creates a new preparation registry. The catalog is consulted
// for recipe existence checks only.
func NewRegistry(d *database.DB, c catalog.Catalog) *Registry {
	return &Registry{db: d, catalog: c}
}

// Get retrieves a preparation.
func (r *Registry) Get(ctx context.Context, id int64) (*Preparation, error) {
	return getPreparation(ctx, r.db, r.db.SQL, id)
}

// Consumers returns the meal slots consuming a preparation.
func (r *Registry) Consumers(ctx context.Context, prepID int64) ([]Meal, error) {
	rows, err := r.db.SQL.QueryContext(ctx, r.db.Rebind(
		`SELECT id, schedule_day_id, preparation_id, recipe_id, meal_type,
			confirm_status, is_challenge, servings, is_leftovers
		FROM meals WHERE preparation_id = ? ORDER BY id`), prepID)
	if err != nil {
		return nil, fmt.Errorf("failed to load consumers of preparation %d: %w", prepID, err)
	}
	defer rows.Close()

	var meals []Meal
	for rows.Next() {
		var m Meal
		var pid sql.NullInt64
		if err := rows.Scan(&m.ID, &m.ScheduleDayID, &pid, &m.RecipeID, &m.Type,
			&m.ConfirmStatus, &m.IsChallenge, &m.Servings, &m.IsLeftovers); err != nil {
			return nil, fmt.Errorf("failed to scan consumer: %w", err)
		}
		m.PreparationID = pid.Int64
		meals = append(meals, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read consumers: %w", err)
	}
	return meals, nil
}

// Create registers a new cooking event on a day. The recipe must resolve in
// the catalog. The preparation starts with zero servings; consumers are
// attached separately.
func (r *Registry) Create(ctx context.Context, dayID, recipeID int64, mealType MealType) (*Preparation, error) {
	if _, err := r.catalog.GetRecipe(ctx, recipeID); err != nil {
		return nil, err
	}

	day, err := getDay(ctx, r.db, r.db.SQL, dayID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("cooking day %d does not exist: %w", dayID, shared.ErrInvalidReference)
		}
		return nil, err
	}

	prep := &Preparation{
		UserID:        day.UserID,
		ScheduleDayID: dayID,
		RecipeID:      recipeID,
		MealType:      mealType,
	}
	err = r.db.SQL.QueryRowContext(ctx, r.db.Rebind(
		`INSERT INTO preparations (user_id, schedule_day_id, recipe_id, meal_type, num_servings)
		VALUES (?, ?, ?, ?, 0) RETURNING id`),
		prep.UserID, prep.ScheduleDayID, prep.RecipeID, prep.MealType,
	).Scan(&prep.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert preparation: %w", err)
	}
	return prep, nil
}

// AttachConsumer points a meal slot at a preparation, detaching it from its
// previous preparation first. Serving counts on both preparations are kept
// consistent in one transaction; an orphaned previous preparation is deleted.
func (r *Registry) AttachConsumer(ctx context.Context, prepID, mealID int64) (*Meal, error) {
	tx, err := r.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	meal, err := getMeal(ctx, r.db, tx, mealID)
	if err != nil {
		return nil, err
	}
	prep, err := getPreparation(ctx, r.db, tx, prepID)
	if err != nil {
		return nil, err
	}
	day, err := getDay(ctx, r.db, tx, meal.ScheduleDayID)
	if err != nil {
		return nil, err
	}
	if prep.UserID != day.UserID {
		return nil, fmt.Errorf("preparation %d belongs to another user: %w", prepID, shared.ErrInvalidReference)
	}

	if meal.PreparationID == prepID {
		return meal, tx.Commit()
	}
	if meal.PreparationID != 0 {
		if err := r.detachTx(ctx, tx, meal); err != nil {
			return nil, err
		}
	}

	meal.PreparationID = prepID
	meal.RecipeID = prep.RecipeID
	meal.IsLeftovers = prep.ScheduleDayID != meal.ScheduleDayID
	_, err = tx.ExecContext(ctx, r.db.Rebind(
		"UPDATE meals SET preparation_id = ?, recipe_id = ?, is_leftovers = ? WHERE id = ?"),
		prepID, meal.RecipeID, meal.IsLeftovers, mealID)
	if err != nil {
		return nil, fmt.Errorf("failed to attach meal %d: %w", mealID, err)
	}
	_, err = tx.ExecContext(ctx, r.db.Rebind(
		"UPDATE preparations SET num_servings = num_servings + ? WHERE id = ?"),
		meal.Servings, prepID)
	if err != nil {
		return nil, fmt.Errorf("failed to update preparation servings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return meal, nil
}

// DetachConsumer removes the link between a meal slot and its preparation,
// vacating the slot. When the last consumer detaches, the preparation is
// deleted and its shopping-list provenance links are removed.
func (r *Registry) DetachConsumer(ctx context.Context, prepID, mealID int64) error {
	tx, err := r.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	meal, err := getMeal(ctx, r.db, tx, mealID)
	if err != nil {
		return err
	}
	if meal.PreparationID != prepID {
		return fmt.Errorf("meal %d does not consume preparation %d: %w", mealID, prepID, shared.ErrInvalidReference)
	}
	if err := r.detachTx(ctx, tx, meal); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// detachTx unlinks meal from its preparation inside tx. The meal keeps its
// denormalized recipe id but is marked vacated (NULL preparation).
func (r *Registry) detachTx(ctx context.Context, tx *sql.Tx, meal *Meal) error {
	prepID := meal.PreparationID

	_, err := tx.ExecContext(ctx, r.db.Rebind(
		"UPDATE meals SET preparation_id = NULL, is_leftovers = 0 WHERE id = ?"), meal.ID)
	if err != nil {
		return fmt.Errorf("failed to detach meal %d: %w", meal.ID, err)
	}
	_, err = tx.ExecContext(ctx, r.db.Rebind(
		"UPDATE preparations SET num_servings = num_servings - ? WHERE id = ?"),
		meal.Servings, prepID)
	if err != nil {
		return fmt.Errorf("failed to update preparation servings: %w", err)
	}
	meal.PreparationID = 0
	meal.IsLeftovers = false

	var remaining int
	err = tx.QueryRowContext(ctx, r.db.Rebind(
		"SELECT COUNT(*) FROM meals WHERE preparation_id = ?"), prepID).Scan(&remaining)
	if err != nil {
		return fmt.Errorf("failed to count consumers of preparation %d: %w", prepID, err)
	}
	if remaining > 0 {
		return nil
	}

	// Orphaned: delete the preparation and cascade into the shopping list
	// provenance. Affected item amounts become the sum of their remaining
	// contributions; the next aggregation re-rounds them.
	if err := r.removeShoppingLinksTx(ctx, tx, prepID, meal.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, r.db.Rebind("DELETE FROM preparations WHERE id = ?"), prepID); err != nil {
		return fmt.Errorf("failed to delete orphaned preparation %d: %w", prepID, err)
	}
	return nil
}

func (r *Registry) removeShoppingLinksTx(ctx context.Context, tx *sql.Tx, prepID, mealID int64) error {
	rows, err := tx.QueryContext(ctx, r.db.Rebind(
		"SELECT item_id FROM shopping_list_item_preparations WHERE preparation_id = ?"), prepID)
	if err != nil {
		return fmt.Errorf("failed to find shopping links for preparation %d: %w", prepID, err)
	}
	var itemIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan shopping link: %w", err)
		}
		itemIDs = append(itemIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read shopping links: %w", err)
	}

	_, err = tx.ExecContext(ctx, r.db.Rebind(
		"DELETE FROM shopping_list_item_preparations WHERE preparation_id = ?"), prepID)
	if err != nil {
		return fmt.Errorf("failed to delete preparation links: %w", err)
	}
	_, err = tx.ExecContext(ctx, r.db.Rebind(
		"DELETE FROM shopping_list_item_slots WHERE meal_id = ?"), mealID)
	if err != nil {
		return fmt.Errorf("failed to delete slot links: %w", err)
	}

	for _, itemID := range itemIDs {
		_, err = tx.ExecContext(ctx, r.db.Rebind(
			`UPDATE shopping_list_items SET amount = (
				SELECT COALESCE(SUM(amount), 0) FROM shopping_list_item_preparations WHERE item_id = ?
			) WHERE id = ? AND manually_added = 0`), itemID, itemID)
		if err != nil {
			return fmt.Errorf("failed to re-aggregate shopping item %d: %w", itemID, err)
		}
	}
	return nil
}

// SetRecipe changes a preparation's recipe and updates the denormalized
// recipe id on every consuming slot, all or nothing.
func (r *Registry) SetRecipe(ctx context.Context, prepID, recipeID int64) (*Preparation, error) {
	if _, err := r.catalog.GetRecipe(ctx, recipeID); err != nil {
		return nil, err
	}

	tx, err := r.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	prep, err := getPreparation(ctx, r.db, tx, prepID)
	if err != nil {
		return nil, err
	}

	prep.RecipeID = recipeID
	_, err = tx.ExecContext(ctx, r.db.Rebind(
		"UPDATE preparations SET recipe_id = ? WHERE id = ?"), recipeID, prepID)
	if err != nil {
		return nil, fmt.Errorf("failed to update preparation recipe: %w", err)
	}
	_, err = tx.ExecContext(ctx, r.db.Rebind(
		"UPDATE meals SET recipe_id = ? WHERE preparation_id = ?"), recipeID, prepID)
	if err != nil {
		return nil, fmt.Errorf("failed to update consumer recipes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return prep, nil
}

// Move reassigns a preparation to another cooking day of the same user and
// recomputes the leftover flag on every consuming slot.
func (r *Registry) Move(ctx context.Context, prepID, targetDayID int64) (*Preparation, error) {
	tx, err := r.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	prep, err := getPreparation(ctx, r.db, tx, prepID)
	if err != nil {
		return nil, err
	}
	targetDay, err := getDay(ctx, r.db, tx, targetDayID)
	if err != nil {
		return nil, err
	}
	if targetDay.UserID != prep.UserID {
		return nil, fmt.Errorf("target day %d belongs to another user: %w", targetDayID, shared.ErrInvalidReference)
	}

	prep.ScheduleDayID = targetDayID
	_, err = tx.ExecContext(ctx, r.db.Rebind(
		"UPDATE preparations SET schedule_day_id = ? WHERE id = ?"), targetDayID, prepID)
	if err != nil {
		return nil, fmt.Errorf("failed to move preparation %d: %w", prepID, err)
	}
	_, err = tx.ExecContext(ctx, r.db.Rebind(
		`UPDATE meals SET is_leftovers = CASE WHEN schedule_day_id = ? THEN 0 ELSE 1 END
		WHERE preparation_id = ?`), targetDayID, prepID)
	if err != nil {
		return nil, fmt.Errorf("failed to recompute leftover flags: %w", err)
	}
	if err := touchDay(ctx, r.db, tx, targetDayID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return prep, nil
}

// AcceptChallenge turns a proposed challenge slot into a normal meal. The
// slot's recipe and servings are unchanged.
func (r *Registry) AcceptChallenge(ctx context.Context, mealID int64) (*Meal, error) {
	tx, err := r.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	meal, err := getMeal(ctx, r.db, tx, mealID)
	if err != nil {
		return nil, err
	}
	if err := r.acceptChallengeTx(ctx, tx, meal); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return meal, nil
}

func (r *Registry) acceptChallengeTx(ctx context.Context, tx *sql.Tx, meal *Meal) error {
	if !meal.IsChallenge {
		return fmt.Errorf("meal %d has no pending challenge: %w", meal.ID, shared.ErrInvalidStateTransition)
	}
	_, err := tx.ExecContext(ctx, r.db.Rebind(
		"UPDATE meals SET is_challenge = 0 WHERE id = ?"), meal.ID)
	if err != nil {
		return fmt.Errorf("failed to accept challenge: %w", err)
	}
	meal.IsChallenge = false
	return nil
}

// DeclineChallenge removes a proposed challenge from the plan: the challenge
// flag clears and the slot's consumer link detaches, deleting the
// preparation if this was its last consumer.
func (r *Registry) DeclineChallenge(ctx context.Context, mealID int64) error {
	tx, err := r.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	meal, err := getMeal(ctx, r.db, tx, mealID)
	if err != nil {
		return err
	}
	if err := r.declineChallengeTx(ctx, tx, meal); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *Registry) declineChallengeTx(ctx context.Context, tx *sql.Tx, meal *Meal) error {
	if !meal.IsChallenge {
		return fmt.Errorf("meal %d has no pending challenge: %w", meal.ID, shared.ErrInvalidStateTransition)
	}
	_, err := tx.ExecContext(ctx, r.db.Rebind(
		"UPDATE meals SET is_challenge = 0 WHERE id = ?"), meal.ID)
	if err != nil {
		return fmt.Errorf("failed to decline challenge: %w", err)
	}
	meal.IsChallenge = false
	if meal.PreparationID != 0 {
		return r.detachTx(ctx, tx, meal)
	}
	return nil
}

// ResolveDayChallenges accepts or declines every proposed challenge slot of a
// day in one transaction. Either every slot resolves or none do; a failure
// partway through leaves the day exactly as it was.
func (r *Registry) ResolveDayChallenges(ctx context.Context, dayID int64, accept bool) error {
	tx, err := r.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	meals, err := loadMealsForDays(ctx, r.db, tx, []int64{dayID})
	if err != nil {
		return err
	}
	resolved := 0
	for _, m := range meals[dayID] {
		if !m.IsChallenge {
			continue
		}
		meal := m
		if accept {
			err = r.acceptChallengeTx(ctx, tx, &meal)
		} else {
			err = r.declineChallengeTx(ctx, tx, &meal)
		}
		if err != nil {
			return err
		}
		resolved++
	}
	if resolved == 0 {
		return fmt.Errorf("day %d has no pending challenge: %w", dayID, shared.ErrInvalidStateTransition)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
