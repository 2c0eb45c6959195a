// Package shopping derives a unit-consistent weekly shopping list from the
// week's preparations and keeps its provenance queryable.
package shopping

import "time"

// Item is one shopping list line: either a (ingredient, measure) aggregate
// recomputed from the week's preparations, or a manually added free-text
// line that survives recomputation untouched.
type Item struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	WeekStart time.Time `json:"week_start"`
	// IngredientID is zero for manual lines.
	IngredientID   int64   `json:"ingredient_id,omitempty"`
	IngredientName string  `json:"ingredient_name"`
	MeasureTypeID  int64   `json:"measure_type_id,omitempty"`
	Amount         float64 `json:"amount"`
	ManuallyAdded  bool    `json:"manually_added"`
	Checked        bool    `json:"checked"`
	// Unused marks a line the aggregator includes but the user suppressed.
	Unused bool `json:"unused"`

	// PreparationAmounts maps contributing preparation ids to the converted
	// amount each one added. MealIDs lists every slot that contributed.
	PreparationAmounts map[int64]float64 `json:"-"`
	MealIDs            []int64           `json:"-"`

	category string
}

// Warning reports an ingredient/measure pair the aggregator could not bring
// into the group's target measure. The quantity stays on the list in its
// native measure.
type Warning struct {
	IngredientID  int64  `json:"ingredient_id"`
	MeasureTypeID int64  `json:"measure_type_id"`
	Reason        string `json:"reason"`
}

// Result is a fully built weekly list.
type Result struct {
	Items    []Item    `json:"items"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// IngredientRef identifies an ingredient on a view line.
type IngredientRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ItemView is the read shape of one list line.
type ItemView struct {
	ID             int64          `json:"id"`
	Ingredient     *IngredientRef `json:"ingredient,omitempty"`
	IngredientName string         `json:"ingredient_name"`
	Amount         float64        `json:"amount"`
	Measure        string         `json:"measure,omitempty"`
	ManuallyAdded  bool           `json:"manually_added"`
	Checked        bool           `json:"checked"`
	Unused         bool           `json:"unused"`
	PreparationIDs []int64        `json:"preparation_ids,omitempty"`
}
