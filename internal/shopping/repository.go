package shopping

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mealweek/internal/database"
	"mealweek/internal/shared"
)

// Repository handles persistence of shopping list items and their provenance
// links.
type Repository struct {
	db *database.DB
}

// NewRepository creates a new shopping list repository.
func NewRepository(d *database.DB) *Repository {
	return &Repository{db: d}
}

// ListWeek retrieves every stored item for a user's week, provenance links
// included.
func (r *Repository) ListWeek(ctx context.Context, userID int64, weekStart time.Time) ([]Item, error) {
	week := shared.FormatDate(shared.WeekStart(weekStart))

	rows, err := r.db.SQL.QueryContext(ctx, r.db.Rebind(
		`SELECT id, user_id, week_start, ingredient_id, ingredient_name, measure_type_id,
			amount, manually_added, checked, unused
		FROM shopping_list_items WHERE user_id = ? AND week_start = ? ORDER BY id`),
		userID, week)
	if err != nil {
		return nil, fmt.Errorf("failed to list shopping items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read shopping items: %w", err)
	}

	for i := range items {
		if err := r.loadLinks(ctx, &items[i]); err != nil {
			return nil, err
		}
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	var item Item
	var week string
	var ingredientID, measureID sql.NullInt64
	if err := row.Scan(&item.ID, &item.UserID, &week, &ingredientID, &item.IngredientName,
		&measureID, &item.Amount, &item.ManuallyAdded, &item.Checked, &item.Unused); err != nil {
		return nil, fmt.Errorf("failed to scan shopping item: %w", err)
	}
	item.IngredientID = ingredientID.Int64
	item.MeasureTypeID = measureID.Int64
	var err error
	if item.WeekStart, err = shared.ParseDate(week); err != nil {
		return nil, fmt.Errorf("failed to parse item week start: %w", err)
	}
	return &item, nil
}

func (r *Repository) loadLinks(ctx context.Context, item *Item) error {
	rows, err := r.db.SQL.QueryContext(ctx, r.db.Rebind(
		"SELECT preparation_id, amount FROM shopping_list_item_preparations WHERE item_id = ?"), item.ID)
	if err != nil {
		return fmt.Errorf("failed to load preparation links: %w", err)
	}
	item.PreparationAmounts = make(map[int64]float64)
	for rows.Next() {
		var prepID int64
		var amount float64
		if err := rows.Scan(&prepID, &amount); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan preparation link: %w", err)
		}
		item.PreparationAmounts[prepID] = amount
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read preparation links: %w", err)
	}

	slotRows, err := r.db.SQL.QueryContext(ctx, r.db.Rebind(
		"SELECT meal_id FROM shopping_list_item_slots WHERE item_id = ? ORDER BY meal_id"), item.ID)
	if err != nil {
		return fmt.Errorf("failed to load slot links: %w", err)
	}
	defer slotRows.Close()
	for slotRows.Next() {
		var mealID int64
		if err := slotRows.Scan(&mealID); err != nil {
			return fmt.Errorf("failed to scan slot link: %w", err)
		}
		item.MealIDs = append(item.MealIDs, mealID)
	}
	return slotRows.Err()
}

// ReplaceWeek swaps out every aggregated item of a week for the freshly
// computed set, in one transaction. Manual lines are left alone. The new
// items receive their assigned ids.
func (r *Repository) ReplaceWeek(ctx context.Context, userID int64, weekStart time.Time, items []*Item) error {
	week := shared.FormatDate(shared.WeekStart(weekStart))

	tx, err := r.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Drop old aggregated rows and their links; link rows for manual items
	// do not exist.
	_, err = tx.ExecContext(ctx, r.db.Rebind(
		`DELETE FROM shopping_list_item_preparations WHERE item_id IN (
			SELECT id FROM shopping_list_items WHERE user_id = ? AND week_start = ? AND manually_added = 0)`),
		userID, week)
	if err != nil {
		return fmt.Errorf("failed to delete preparation links: %w", err)
	}
	_, err = tx.ExecContext(ctx, r.db.Rebind(
		`DELETE FROM shopping_list_item_slots WHERE item_id IN (
			SELECT id FROM shopping_list_items WHERE user_id = ? AND week_start = ? AND manually_added = 0)`),
		userID, week)
	if err != nil {
		return fmt.Errorf("failed to delete slot links: %w", err)
	}
	_, err = tx.ExecContext(ctx, r.db.Rebind(
		"DELETE FROM shopping_list_items WHERE user_id = ? AND week_start = ? AND manually_added = 0"),
		userID, week)
	if err != nil {
		return fmt.Errorf("failed to delete aggregated items: %w", err)
	}

	for _, item := range items {
		var ingredientID, measureID any
		if item.IngredientID != 0 {
			ingredientID = item.IngredientID
		}
		if item.MeasureTypeID != 0 {
			measureID = item.MeasureTypeID
		}
		err = tx.QueryRowContext(ctx, r.db.Rebind(
			`INSERT INTO shopping_list_items (user_id, week_start, ingredient_id, ingredient_name,
				measure_type_id, amount, manually_added, checked, unused)
			VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?) RETURNING id`),
			userID, week, ingredientID, item.IngredientName, measureID,
			item.Amount, item.Checked, item.Unused,
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("failed to insert shopping item: %w", err)
		}

		for prepID, amount := range item.PreparationAmounts {
			_, err = tx.ExecContext(ctx, r.db.Rebind(
				"INSERT INTO shopping_list_item_preparations (item_id, preparation_id, amount) VALUES (?, ?, ?)"),
				item.ID, prepID, amount)
			if err != nil {
				return fmt.Errorf("failed to insert preparation link: %w", err)
			}
		}
		for _, mealID := range item.MealIDs {
			_, err = tx.ExecContext(ctx, r.db.Rebind(
				"INSERT INTO shopping_list_item_slots (item_id, meal_id) VALUES (?, ?)"),
				item.ID, mealID)
			if err != nil {
				return fmt.Errorf("failed to insert slot link: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AddManualItem appends a free-text line to a week's list. Manual lines are
// never touched by aggregation.
func (r *Repository) AddManualItem(ctx context.Context, userID int64, weekStart time.Time, name string, amount float64, measureTypeID int64) (*Item, error) {
	if name == "" {
		return nil, fmt.Errorf("manual item needs a name: %w", shared.ErrInvalidReference)
	}
	week := shared.WeekStart(weekStart)

	item := &Item{
		UserID:         userID,
		WeekStart:      week,
		IngredientName: name,
		MeasureTypeID:  measureTypeID,
		Amount:         amount,
		ManuallyAdded:  true,
	}
	var measureID any
	if measureTypeID != 0 {
		measureID = measureTypeID
	}
	err := r.db.SQL.QueryRowContext(ctx, r.db.Rebind(
		`INSERT INTO shopping_list_items (user_id, week_start, ingredient_id, ingredient_name,
			measure_type_id, amount, manually_added, checked, unused)
		VALUES (?, ?, NULL, ?, ?, ?, 1, 0, 0) RETURNING id`),
		userID, shared.FormatDate(week), name, measureID, amount,
	).Scan(&item.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert manual item: %w", err)
	}
	return item, nil
}

// SetChecked flips the checked flag on an item owned by userID.
func (r *Repository) SetChecked(ctx context.Context, userID, itemID int64, checked bool) error {
	return r.setFlag(ctx, userID, itemID, "checked", checked)
}

// SetUnused flips the unused flag on an item owned by userID.
func (r *Repository) SetUnused(ctx context.Context, userID, itemID int64, unused bool) error {
	return r.setFlag(ctx, userID, itemID, "unused", unused)
}

func (r *Repository) setFlag(ctx context.Context, userID, itemID int64, column string, value bool) error {
	var owner int64
	err := r.db.SQL.QueryRowContext(ctx, r.db.Rebind(
		"SELECT user_id FROM shopping_list_items WHERE id = ?"), itemID).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("shopping item %d: %w", itemID, shared.ErrNotFound)
		}
		return fmt.Errorf("failed to look up shopping item %d: %w", itemID, err)
	}
	if owner != userID {
		return fmt.Errorf("shopping item %d is not owned by user %d: %w", itemID, userID, shared.ErrForbidden)
	}

	_, err = r.db.SQL.ExecContext(ctx, r.db.Rebind(
		"UPDATE shopping_list_items SET "+column+" = ? WHERE id = ?"), value, itemID)
	if err != nil {
		return fmt.Errorf("failed to update shopping item %d: %w", itemID, err)
	}
	return nil
}
