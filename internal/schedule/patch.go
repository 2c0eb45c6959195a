package schedule

import (
	"context"
	"fmt"

	"mealweek/internal/metrics"
	"mealweek/internal/shared"
)

// Op identifies a patch operation.
type Op string

const (
	OpMoveMeal           Op = "move_meal"
	OpUpdateConfirmState Op = "update_confirm_state"
	OpAcceptChallenge    Op = "accept_challenge"
	OpDeclineChallenge   Op = "decline_challenge"
	OpMovePreparation    Op = "move_preparation"
	OpSetRecipe          Op = "set_recipe"
)

// Patch is one mutation request. Exactly one target id field is consulted
// per operation; the others are ignored.
type Patch struct {
	Op Op `json:"op"`

	MealID        int64 `json:"meal_id,omitempty"`
	PreparationID int64 `json:"preparation_id,omitempty"`
	// ScheduleDayID is the move target for MoveMeal/MovePreparation, or the
	// day whose challenge slots Accept/DeclineChallenge act on when MealID
	// is zero.
	ScheduleDayID int64 `json:"schedule_day_id,omitempty"`

	Confirm  *ConfirmStatus `json:"confirm,omitempty"`
	RecipeID int64          `json:"recipe_id,omitempty"`
}

// Processor applies patches as atomic transitions over the day store and the
// preparation registry, enforcing ownership and serializing against other
// work on the same (user, week).
type Processor struct {
	store    *Store
	registry *Registry
	locks    *WeekLocks
}

// NewProcessor creates a mutation processor.
func NewProcessor(store *Store, registry *Registry, locks *WeekLocks) *Processor {
	return &Processor{store: store, registry: registry, locks: locks}
}

// Apply executes one patch on behalf of userID. Entities owned by other
// users fail with Forbidden; missing ids fail with NotFound. Each operation
// either fully persists or leaves the week untouched.
func (p *Processor) Apply(ctx context.Context, userID int64, patch Patch) (err error) {
	defer func() { metrics.PatchApplied(string(patch.Op), err) }()

	switch patch.Op {
	case OpMoveMeal:
		return p.moveMeal(ctx, userID, patch)
	case OpUpdateConfirmState:
		return p.updateConfirmState(ctx, userID, patch)
	case OpAcceptChallenge, OpDeclineChallenge:
		return p.resolveChallenge(ctx, userID, patch)
	case OpMovePreparation:
		return p.movePreparation(ctx, userID, patch)
	case OpSetRecipe:
		return p.setRecipe(ctx, userID, patch)
	default:
		return fmt.Errorf("unknown patch operation %q: %w", patch.Op, shared.ErrInvalidReference)
	}
}

// ownedMeal loads a meal and its day, enforcing ownership.
func (p *Processor) ownedMeal(ctx context.Context, userID, mealID int64) (*Meal, *ScheduleDay, error) {
	meal, err := p.store.GetMeal(ctx, mealID)
	if err != nil {
		return nil, nil, err
	}
	day, err := p.store.GetDay(ctx, meal.ScheduleDayID)
	if err != nil {
		return nil, nil, err
	}
	if day.UserID != userID {
		return nil, nil, fmt.Errorf("meal %d is not owned by user %d: %w", mealID, userID, shared.ErrForbidden)
	}
	return meal, day, nil
}

func (p *Processor) ownedDay(ctx context.Context, userID, dayID int64) (*ScheduleDay, error) {
	day, err := p.store.GetDay(ctx, dayID)
	if err != nil {
		return nil, err
	}
	if day.UserID != userID {
		return nil, fmt.Errorf("schedule day %d is not owned by user %d: %w", dayID, userID, shared.ErrForbidden)
	}
	return day, nil
}

func (p *Processor) ownedPreparation(ctx context.Context, userID, prepID int64) (*Preparation, error) {
	prep, err := p.registry.Get(ctx, prepID)
	if err != nil {
		return nil, err
	}
	if prep.UserID != userID {
		return nil, fmt.Errorf("preparation %d is not owned by user %d: %w", prepID, userID, shared.ErrForbidden)
	}
	return prep, nil
}

// lockMealWeek acquires the week lock covering a meal's current day plus any
// extra days, then re-reads the meal so validation that follows runs against
// state no concurrent patch can change. The slot may move weeks between the
// first read and the lock; in that case the stale lock is released and the
// acquisition retried.
func (p *Processor) lockMealWeek(ctx context.Context, userID, mealID int64, extraDays ...*ScheduleDay) (*Meal, *ScheduleDay, func(), error) {
	for {
		_, day, err := p.ownedMeal(ctx, userID, mealID)
		if err != nil {
			return nil, nil, nil, err
		}
		keys := []string{WeekKey(userID, day.Date)}
		for _, d := range extraDays {
			keys = append(keys, WeekKey(userID, d.Date))
		}
		unlock := p.locks.Lock(keys...)

		current, currentDay, err := p.ownedMeal(ctx, userID, mealID)
		if err != nil {
			unlock()
			return nil, nil, nil, err
		}
		if WeekKey(userID, currentDay.Date) == WeekKey(userID, day.Date) {
			return current, currentDay, unlock, nil
		}
		unlock()
	}
}

// lockPreparationWeek is lockMealWeek for preparations, keyed on the
// preparation's cooking day.
func (p *Processor) lockPreparationWeek(ctx context.Context, userID, prepID int64, extraDays ...*ScheduleDay) (*Preparation, func(), error) {
	for {
		prep, err := p.ownedPreparation(ctx, userID, prepID)
		if err != nil {
			return nil, nil, err
		}
		day, err := p.store.GetDay(ctx, prep.ScheduleDayID)
		if err != nil {
			return nil, nil, err
		}
		keys := []string{WeekKey(userID, day.Date)}
		for _, d := range extraDays {
			keys = append(keys, WeekKey(userID, d.Date))
		}
		unlock := p.locks.Lock(keys...)

		current, err := p.ownedPreparation(ctx, userID, prepID)
		if err != nil {
			unlock()
			return nil, nil, err
		}
		currentDay, err := p.store.GetDay(ctx, current.ScheduleDayID)
		if err != nil {
			unlock()
			return nil, nil, err
		}
		if WeekKey(userID, currentDay.Date) == WeekKey(userID, day.Date) {
			return current, unlock, nil
		}
		unlock()
	}
}

func (p *Processor) moveMeal(ctx context.Context, userID int64, patch Patch) error {
	targetDay, err := p.store.GetDay(ctx, patch.ScheduleDayID)
	if err != nil {
		return err
	}
	_, _, unlock, err := p.lockMealWeek(ctx, userID, patch.MealID, targetDay)
	if err != nil {
		return err
	}
	defer unlock()

	_, err = p.store.MoveSlotToDay(ctx, patch.MealID, patch.ScheduleDayID)
	return err
}

func (p *Processor) updateConfirmState(ctx context.Context, userID int64, patch Patch) error {
	if patch.Confirm == nil {
		return fmt.Errorf("confirm state missing: %w", shared.ErrInvalidReference)
	}
	meal, _, unlock, err := p.lockMealWeek(ctx, userID, patch.MealID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := ValidateConfirmTransition(meal.ConfirmStatus, *patch.Confirm); err != nil {
		return err
	}
	_, err = p.store.SetConfirmStatus(ctx, patch.MealID, *patch.Confirm)
	return err
}

// resolveChallenge accepts or declines a challenge, either on one slot
// (MealID set) or on every proposed challenge slot of a day. The day form
// resolves all slots in one transaction.
func (p *Processor) resolveChallenge(ctx context.Context, userID int64, patch Patch) error {
	accept := patch.Op == OpAcceptChallenge

	if patch.MealID != 0 {
		_, _, unlock, err := p.lockMealWeek(ctx, userID, patch.MealID)
		if err != nil {
			return err
		}
		defer unlock()
		if accept {
			_, err := p.registry.AcceptChallenge(ctx, patch.MealID)
			return err
		}
		return p.registry.DeclineChallenge(ctx, patch.MealID)
	}

	// A day's (user, date) pair never changes, so its week key is stable and
	// ownership can be checked before the lock.
	day, err := p.ownedDay(ctx, userID, patch.ScheduleDayID)
	if err != nil {
		return err
	}
	unlock := p.locks.Lock(WeekKey(userID, day.Date))
	defer unlock()

	return p.registry.ResolveDayChallenges(ctx, day.ID, accept)
}

func (p *Processor) movePreparation(ctx context.Context, userID int64, patch Patch) error {
	targetDay, err := p.store.GetDay(ctx, patch.ScheduleDayID)
	if err != nil {
		return err
	}
	_, unlock, err := p.lockPreparationWeek(ctx, userID, patch.PreparationID, targetDay)
	if err != nil {
		return err
	}
	defer unlock()

	_, err = p.registry.Move(ctx, patch.PreparationID, patch.ScheduleDayID)
	return err
}

func (p *Processor) setRecipe(ctx context.Context, userID int64, patch Patch) error {
	_, unlock, err := p.lockPreparationWeek(ctx, userID, patch.PreparationID)
	if err != nil {
		return err
	}
	defer unlock()

	_, err = p.registry.SetRecipe(ctx, patch.PreparationID, patch.RecipeID)
	return err
}
