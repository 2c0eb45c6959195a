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

// Store owns schedule days and the meal slots within them.
type Store struct {
	db                *database.DB
	defaultDietTypeID int64
}

// NewStore creates a new schedule day store. Lazily created days receive
// defaultDietTypeID.
func NewStore(d *database.DB, defaultDietTypeID int64) *Store {
	return &Store{db: d, defaultDietTypeID: defaultDietTypeID}
}

// GetDay retrieves a schedule day without its meals.
func (s *Store) GetDay(ctx context.Context, id int64) (*ScheduleDay, error) {
	return getDay(ctx, s.db, s.db.SQL, id)
}

// GetMeal retrieves a single meal slot.
func (s *Store) GetMeal(ctx context.Context, id int64) (*Meal, error) {
	return getMeal(ctx, s.db, s.db.SQL, id)
}

// GetWeek returns exactly 7 consecutive days starting at the Monday of
// weekStart's week, creating any missing day lazily with the default diet
// type. Meals are populated on each returned day.
func (s *Store) GetWeek(ctx context.Context, userID int64, weekStart time.Time) ([]ScheduleDay, error) {
	start := shared.WeekStart(weekStart)

	tx, err := s.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	days := make([]ScheduleDay, 0, 7)
	dayIDs := make([]int64, 0, 7)
	for i := 0; i < 7; i++ {
		date := start.AddDate(0, 0, i)
		day, err := s.getOrCreateDay(ctx, tx, userID, date)
		if err != nil {
			return nil, err
		}
		days = append(days, *day)
		dayIDs = append(dayIDs, day.ID)
	}

	meals, err := loadMealsForDays(ctx, s.db, tx, dayIDs)
	if err != nil {
		return nil, err
	}
	for i := range days {
		days[i].Meals = meals[days[i].ID]
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return days, nil
}

func (s *Store) getOrCreateDay(ctx context.Context, tx *sql.Tx, userID int64, date time.Time) (*ScheduleDay, error) {
	day, err := s.findDay(ctx, tx, userID, date)
	if err == nil {
		return day, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up schedule day: %w", err)
	}

	// ON CONFLICT DO NOTHING tolerates a concurrent writer creating the same
	// (user, date) row between the lookup and the insert. The re-select then
	// returns whichever row won.
	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO schedule_days (user_id, date, diet_type_id, created, modified)
		VALUES (?, ?, ?, ?, ?) ON CONFLICT (user_id, date) DO NOTHING`),
		userID, shared.FormatDate(date), s.defaultDietTypeID, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create schedule day for %s: %w", shared.FormatDate(date), err)
	}

	day, err = s.findDay(ctx, tx, userID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule day for %s: %w", shared.FormatDate(date), err)
	}
	return day, nil
}

func (s *Store) findDay(ctx context.Context, tx *sql.Tx, userID int64, date time.Time) (*ScheduleDay, error) {
	day := &ScheduleDay{UserID: userID, Date: shared.Date(date)}
	var stored string
	err := tx.QueryRowContext(ctx, s.db.Rebind(
		"SELECT id, diet_type_id, created, modified, date FROM schedule_days WHERE user_id = ? AND date = ?"),
		userID, shared.FormatDate(date),
	).Scan(&day.ID, &day.DietTypeID, &day.Created, &day.Modified, &stored)
	if err != nil {
		return nil, err
	}
	return day, nil
}

// CreateSlot appends a meal slot to a day, consuming servings from the given
// preparation. The preparation's NumServings is incremented in the same
// transaction.
func (s *Store) CreateSlot(ctx context.Context, dayID, prepID int64, mealType MealType, servings int, isChallenge bool) (*Meal, error) {
	if servings < 1 {
		return nil, fmt.Errorf("servings must be at least 1: %w", shared.ErrInvalidReference)
	}
	if !mealType.Valid() {
		return nil, fmt.Errorf("unknown meal type %d: %w", mealType, shared.ErrInvalidReference)
	}

	tx, err := s.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	day, err := getDay(ctx, s.db, tx, dayID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("slot target day %d does not exist: %w", dayID, shared.ErrInvalidReference)
		}
		return nil, err
	}
	prep, err := getPreparation(ctx, s.db, tx, prepID)
	if err != nil {
		return nil, err
	}
	if prep.UserID != day.UserID {
		return nil, fmt.Errorf("preparation %d belongs to another user: %w", prepID, shared.ErrInvalidReference)
	}

	meal := &Meal{
		ScheduleDayID: dayID,
		PreparationID: prepID,
		RecipeID:      prep.RecipeID,
		Type:          mealType,
		ConfirmStatus: ConfirmUnset,
		IsChallenge:   isChallenge,
		Servings:      servings,
		IsLeftovers:   prep.ScheduleDayID != dayID,
	}
	err = tx.QueryRowContext(ctx, s.db.Rebind(
		`INSERT INTO meals (schedule_day_id, preparation_id, recipe_id, meal_type,
			confirm_status, is_challenge, servings, is_leftovers)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		meal.ScheduleDayID, meal.PreparationID, meal.RecipeID, meal.Type,
		meal.ConfirmStatus, meal.IsChallenge, meal.Servings, meal.IsLeftovers,
	).Scan(&meal.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert meal: %w", err)
	}

	_, err = tx.ExecContext(ctx, s.db.Rebind(
		"UPDATE preparations SET num_servings = num_servings + ? WHERE id = ?"), servings, prepID)
	if err != nil {
		return nil, fmt.Errorf("failed to update preparation servings: %w", err)
	}
	if err := touchDay(ctx, s.db, tx, dayID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return meal, nil
}

// MoveSlotToDay reassigns a meal slot to another day of the same user and
// recomputes its leftover flag against the preparation's cooking day.
// Confirmation state is untouched.
func (s *Store) MoveSlotToDay(ctx context.Context, mealID, targetDayID int64) (*Meal, error) {
	tx, err := s.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	meal, err := getMeal(ctx, s.db, tx, mealID)
	if err != nil {
		return nil, err
	}
	currentDay, err := getDay(ctx, s.db, tx, meal.ScheduleDayID)
	if err != nil {
		return nil, err
	}
	targetDay, err := getDay(ctx, s.db, tx, targetDayID)
	if err != nil {
		return nil, err
	}
	if targetDay.UserID != currentDay.UserID {
		return nil, fmt.Errorf("target day %d belongs to another user: %w", targetDayID, shared.ErrInvalidReference)
	}

	meal.ScheduleDayID = targetDayID
	meal.IsLeftovers = false
	if meal.PreparationID != 0 {
		prep, err := getPreparation(ctx, s.db, tx, meal.PreparationID)
		if err != nil {
			return nil, err
		}
		meal.IsLeftovers = prep.ScheduleDayID != targetDayID
	}

	_, err = tx.ExecContext(ctx, s.db.Rebind(
		"UPDATE meals SET schedule_day_id = ?, is_leftovers = ? WHERE id = ?"),
		meal.ScheduleDayID, meal.IsLeftovers, mealID)
	if err != nil {
		return nil, fmt.Errorf("failed to move meal %d: %w", mealID, err)
	}
	if err := touchDay(ctx, s.db, tx, currentDay.ID); err != nil {
		return nil, err
	}
	if err := touchDay(ctx, s.db, tx, targetDayID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return meal, nil
}

// SetConfirmStatus applies a confirm transition to a meal slot, revalidating
// the current state inside the transaction.
func (s *Store) SetConfirmStatus(ctx context.Context, mealID int64, to ConfirmStatus) (*Meal, error) {
	tx, err := s.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	meal, err := getMeal(ctx, s.db, tx, mealID)
	if err != nil {
		return nil, err
	}
	if err := ValidateConfirmTransition(meal.ConfirmStatus, to); err != nil {
		return nil, err
	}

	meal.ConfirmStatus = to
	_, err = tx.ExecContext(ctx, s.db.Rebind(
		"UPDATE meals SET confirm_status = ? WHERE id = ?"), to, mealID)
	if err != nil {
		return nil, fmt.Errorf("failed to update confirm status: %w", err)
	}
	if err := touchDay(ctx, s.db, tx, meal.ScheduleDayID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return meal, nil
}
