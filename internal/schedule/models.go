// Package schedule owns the weekly schedule data model: days, meal slots,
// preparations and their leftover linkage, the confirm/challenge state
// machine, and the patch processor that mutates them atomically.
package schedule

import "time"

// ConfirmStatus is the confirmation state of a meal slot.
type ConfirmStatus int

const (
	ConfirmUnset ConfirmStatus = iota
	ConfirmedYes
	ConfirmedNo
)

func (s ConfirmStatus) String() string {
	switch s {
	case ConfirmUnset:
		return "unset"
	case ConfirmedYes:
		return "confirmed_yes"
	case ConfirmedNo:
		return "confirmed_no"
	default:
		return "invalid"
	}
}

// Valid reports whether s is a known confirmation state.
func (s ConfirmStatus) Valid() bool {
	return s >= ConfirmUnset && s <= ConfirmedNo
}

// MealType is the slot category within a day.
type MealType int

const (
	MealAny MealType = iota
	MealBreakfast
	MealLunch
	MealDinner
	MealSnack
)

func (m MealType) String() string {
	switch m {
	case MealAny:
		return "any"
	case MealBreakfast:
		return "breakfast"
	case MealLunch:
		return "lunch"
	case MealDinner:
		return "dinner"
	case MealSnack:
		return "snack"
	default:
		return "invalid"
	}
}

// Valid reports whether m is a known meal type.
func (m MealType) Valid() bool {
	return m >= MealAny && m <= MealSnack
}

// ScheduleDay is one calendar day of a user's plan. At most one exists per
// (user, date).
type ScheduleDay struct {
	ID         int64
	UserID     int64
	Date       time.Time
	DietTypeID int64
	Created    time.Time
	Modified   time.Time
	Meals      []Meal
}

// Meal is one slot a user eats: assigned to a day and meal type, consuming
// servings from exactly one preparation. A slot whose PreparationID is zero
// has been vacated (a declined challenge) and is excluded from views.
type Meal struct {
	ID            int64
	ScheduleDayID int64
	PreparationID int64
	// RecipeID is a denormalized copy of the preparation's recipe, kept in
	// sync by SetRecipe.
	RecipeID      int64
	Type          MealType
	ConfirmStatus ConfirmStatus
	IsChallenge   bool
	Servings      int
	// IsLeftovers is true iff the slot's day differs from the preparation's
	// cooking day.
	IsLeftovers bool
}

// Preparation is one cooking event. NumServings always equals the sum of
// servings over its consuming meals; a preparation with zero consumers is
// deleted.
type Preparation struct {
	ID            int64
	UserID        int64
	ScheduleDayID int64
	RecipeID      int64
	MealType      MealType
	NumServings   int
}
