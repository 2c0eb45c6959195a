package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mealweek/internal/database"
	"mealweek/internal/shared"
)

// querier is satisfied by both *sql.DB and *sql.Tx so row helpers can run
// inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDay(ctx context.Context, d *database.DB, q querier, id int64) (*ScheduleDay, error) {
	day := &ScheduleDay{}
	var date string
	err := q.QueryRowContext(ctx, d.Rebind(
		"SELECT id, user_id, date, diet_type_id, created, modified FROM schedule_days WHERE id = ?"), id,
	).Scan(&day.ID, &day.UserID, &date, &day.DietTypeID, &day.Created, &day.Modified)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("schedule day %d: %w", id, shared.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get schedule day %d: %w", id, err)
	}
	if day.Date, err = shared.ParseDate(date); err != nil {
		return nil, fmt.Errorf("failed to parse date of schedule day %d: %w", id, err)
	}
	return day, nil
}

func getMeal(ctx context.Context, d *database.DB, q querier, id int64) (*Meal, error) {
	m := &Meal{}
	var prepID sql.NullInt64
	err := q.QueryRowContext(ctx, d.Rebind(
		`SELECT id, schedule_day_id, preparation_id, recipe_id, meal_type,
			confirm_status, is_challenge, servings, is_leftovers
		FROM meals WHERE id = ?`), id,
	).Scan(&m.ID, &m.ScheduleDayID, &prepID, &m.RecipeID, &m.Type,
		&m.ConfirmStatus, &m.IsChallenge, &m.Servings, &m.IsLeftovers)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("meal %d: %w", id, shared.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get meal %d: %w", id, err)
	}
	m.PreparationID = prepID.Int64
	return m, nil
}

func getPreparation(ctx context.Context, d *database.DB, q querier, id int64) (*Preparation, error) {
	p := &Preparation{}
	err := q.QueryRowContext(ctx, d.Rebind(
		`SELECT id, user_id, schedule_day_id, recipe_id, meal_type, num_servings
		FROM preparations WHERE id = ?`), id,
	).Scan(&p.ID, &p.UserID, &p.ScheduleDayID, &p.RecipeID, &p.MealType, &p.NumServings)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("preparation %d: %w", id, shared.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get preparation %d: %w", id, err)
	}
	return p, nil
}

func touchDay(ctx context.Context, d *database.DB, q querier, dayID int64) error {
	_, err := q.ExecContext(ctx, d.Rebind("UPDATE schedule_days SET modified = ? WHERE id = ?"),
		time.Now().UTC(), dayID)
	if err != nil {
		return fmt.Errorf("failed to touch schedule day %d: %w", dayID, err)
	}
	return nil
}

func loadMealsForDays(ctx context.Context, d *database.DB, q querier, dayIDs []int64) (map[int64][]Meal, error) {
	result := make(map[int64][]Meal, len(dayIDs))
	if len(dayIDs) == 0 {
		return result, nil
	}

	query := "SELECT id, schedule_day_id, preparation_id, recipe_id, meal_type, confirm_status, is_challenge, servings, is_leftovers FROM meals WHERE schedule_day_id IN ("
	args := make([]any, len(dayIDs))
	for i, id := range dayIDs {
		if i > 0 {
			query += ","
		}
		query += "?"
		args[i] = id
	}
	query += ") ORDER BY schedule_day_id, meal_type, id"

	rows, err := q.QueryContext(ctx, d.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load meals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m Meal
		var prepID sql.NullInt64
		if err := rows.Scan(&m.ID, &m.ScheduleDayID, &prepID, &m.RecipeID, &m.Type,
			&m.ConfirmStatus, &m.IsChallenge, &m.Servings, &m.IsLeftovers); err != nil {
			return nil, fmt.Errorf("failed to scan meal: %w", err)
		}
		m.PreparationID = prepID.Int64
		result[m.ScheduleDayID] = append(result[m.ScheduleDayID], m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read meals: %w", err)
	}
	return result, nil
}
