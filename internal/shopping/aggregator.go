package shopping

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"mealweek/internal/catalog"
	"mealweek/internal/database"
	"mealweek/internal/measure"
	"mealweek/internal/metrics"
	"mealweek/internal/schedule"
	"mealweek/internal/shared"
)

// Aggregator turns a week's preparations into a deduplicated, unit-consistent
// shopping list.
type Aggregator struct {
	db      *database.DB
	catalog catalog.Catalog
	engine  *measure.Engine
	repo    *Repository
	locks   *schedule.WeekLocks
}

// NewAggregator creates a shopping list aggregator.
func NewAggregator(d *database.DB, c catalog.Catalog, e *measure.Engine, repo *Repository, locks *schedule.WeekLocks) *Aggregator {
	return &Aggregator{db: d, catalog: c, engine: e, repo: repo, locks: locks}
}

// weekPrep is one preparation cooked within the target week, with its
// consuming slot ids.
type weekPrep struct {
	id          int64
	recipeID    int64
	numServings int
	mealIDs     []int64
}

// contribution is one scaled ingredient quantity from one preparation, prior
// to conversion.
type contribution struct {
	prepID    int64
	amount    float64
	measureID int64
	mealIDs   []int64
}

type itemKey struct {
	ingredientID int64
	measureID    int64
}

// BuildList recomputes the shopping list for a user's week, persists it, and
// returns the full list with manual lines included. The pass holds the
// (user, week) lock so it never observes a half-applied patch. A quantity the
// conversion engine cannot bring into its group's target measure stays on the
// list in its native measure and is reported as a warning rather than
// aborting the list.
func (a *Aggregator) BuildList(ctx context.Context, userID int64, weekStart time.Time) (*Result, error) {
	start := shared.WeekStart(weekStart)

	unlock := a.locks.Lock(schedule.WeekKey(userID, start))
	defer unlock()

	began := time.Now()
	defer func() { metrics.ObserveAggregation(time.Since(began)) }()

	preps, err := a.weekPreparations(ctx, userID, start)
	if err != nil {
		return nil, err
	}

	groups := make(map[int64][]contribution)
	for _, p := range preps {
		recipe, err := a.catalog.GetRecipe(ctx, p.recipeID)
		if err != nil {
			return nil, err
		}
		base := recipe.NumServings
		if base < 1 {
			base = 1
		}
		scale := float64(p.numServings) / float64(base)
		for _, ri := range recipe.Ingredients {
			groups[ri.IngredientID] = append(groups[ri.IngredientID], contribution{
				prepID:    p.id,
				amount:    ri.Amount * scale,
				measureID: ri.MeasureTypeID,
				mealIDs:   p.mealIDs,
			})
		}
	}

	prior, err := a.repo.ListWeek(ctx, userID, start)
	if err != nil {
		return nil, err
	}
	priorFlags := make(map[itemKey]Item)
	var manual []Item
	for _, it := range prior {
		if it.ManuallyAdded {
			manual = append(manual, it)
			continue
		}
		priorFlags[itemKey{it.IngredientID, it.MeasureTypeID}] = it
	}

	items, warnings := a.aggregate(groups)

	ingredientIDs := make([]int64, 0, len(groups))
	for id := range groups {
		ingredientIDs = append(ingredientIDs, id)
	}
	ingredients, err := a.catalog.GetIngredients(ctx, ingredientIDs)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		item.UserID = userID
		item.WeekStart = start
		if ing, ok := ingredients[item.IngredientID]; ok {
			item.IngredientName = ing.Name
			item.category = ing.Category
		}
		item.Amount = a.engine.Round(item.Amount, item.MeasureTypeID)
		if old, ok := priorFlags[itemKey{item.IngredientID, item.MeasureTypeID}]; ok {
			item.Checked = old.Checked
			item.Unused = old.Unused
		}
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].category != items[j].category {
			return items[i].category < items[j].category
		}
		if items[i].IngredientName != items[j].IngredientName {
			return items[i].IngredientName < items[j].IngredientName
		}
		return items[i].MeasureTypeID < items[j].MeasureTypeID
	})

	if err := a.repo.ReplaceWeek(ctx, userID, start, items); err != nil {
		return nil, err
	}

	result := &Result{Warnings: warnings}
	for _, item := range items {
		result.Items = append(result.Items, *item)
	}
	sort.Slice(manual, func(i, j int) bool { return manual[i].IngredientName < manual[j].IngredientName })
	result.Items = append(result.Items, manual...)
	return result, nil
}

// weekPreparations collects every preparation cooked within the 7 days
// starting at start, skipping any whose every consumer declined the slot.
func (a *Aggregator) weekPreparations(ctx context.Context, userID int64, start time.Time) ([]weekPrep, error) {
	from := shared.FormatDate(start)
	to := shared.FormatDate(start.AddDate(0, 0, 6))

	rows, err := a.db.SQL.QueryContext(ctx, a.db.Rebind(
		`SELECT p.id, p.recipe_id, p.num_servings
		FROM preparations p
		JOIN schedule_days d ON d.id = p.schedule_day_id
		WHERE d.user_id = ? AND d.date >= ? AND d.date <= ?
		ORDER BY p.id`),
		userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list week preparations: %w", err)
	}
	defer rows.Close()

	var preps []weekPrep
	for rows.Next() {
		var p weekPrep
		if err := rows.Scan(&p.id, &p.recipeID, &p.numServings); err != nil {
			return nil, fmt.Errorf("failed to scan preparation: %w", err)
		}
		preps = append(preps, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read week preparations: %w", err)
	}

	kept := preps[:0]
	for _, p := range preps {
		include, mealIDs, err := a.prepConsumers(ctx, p.id)
		if err != nil {
			return nil, err
		}
		if !include {
			continue
		}
		p.mealIDs = mealIDs
		kept = append(kept, p)
	}
	return kept, nil
}

// prepConsumers loads the consuming slot ids of a preparation and reports
// whether at least one consumer has not been confirmed away.
func (a *Aggregator) prepConsumers(ctx context.Context, prepID int64) (bool, []int64, error) {
	rows, err := a.db.SQL.QueryContext(ctx, a.db.Rebind(
		"SELECT id, confirm_status FROM meals WHERE preparation_id = ? ORDER BY id"), prepID)
	if err != nil {
		return false, nil, fmt.Errorf("failed to list preparation consumers: %w", err)
	}
	defer rows.Close()

	var mealIDs []int64
	anyEaten := false
	for rows.Next() {
		var id int64
		var status schedule.ConfirmStatus
		if err := rows.Scan(&id, &status); err != nil {
			return false, nil, fmt.Errorf("failed to scan consumer: %w", err)
		}
		mealIDs = append(mealIDs, id)
		if status != schedule.ConfirmedNo {
			anyEaten = true
		}
	}
	if err := rows.Err(); err != nil {
		return false, nil, fmt.Errorf("failed to read consumers: %w", err)
	}
	return anyEaten && len(mealIDs) > 0, mealIDs, nil
}

// aggregate normalizes each ingredient group to its most common measure and
// sums. Contributions without a conversion path, and upscales below one
// target unit, land on their own (ingredient, measure) line.
func (a *Aggregator) aggregate(groups map[int64][]contribution) ([]*Item, []Warning) {
	var warnings []Warning
	items := make(map[itemKey]*Item)
	mealSets := make(map[itemKey]map[int64]bool)

	for ingredientID, contribs := range groups {
		target := targetMeasure(contribs)
		for _, c := range contribs {
			amount, measureID := c.amount, c.measureID
			conv, err := a.engine.Convert(c.amount, c.measureID, target)
			switch {
			case err == nil:
				amount, measureID = conv.Amount, conv.MeasureID
			case errors.Is(err, shared.ErrNoConversionPath):
				metrics.ConversionFallback()
				warnings = append(warnings, Warning{
					IngredientID:  ingredientID,
					MeasureTypeID: c.measureID,
					Reason:        fmt.Sprintf("no conversion path from measure %d to %d", c.measureID, target),
				})
			}

			key := itemKey{ingredientID, measureID}
			item, ok := items[key]
			if !ok {
				item = &Item{
					IngredientID:       ingredientID,
					MeasureTypeID:      measureID,
					PreparationAmounts: make(map[int64]float64),
				}
				items[key] = item
				mealSets[key] = make(map[int64]bool)
			}
			item.Amount += amount
			item.PreparationAmounts[c.prepID] += amount
			for _, mealID := range c.mealIDs {
				mealSets[key][mealID] = true
			}
		}
	}

	out := make([]*Item, 0, len(items))
	for key, item := range items {
		for mealID := range mealSets[key] {
			item.MealIDs = append(item.MealIDs, mealID)
		}
		sort.Slice(item.MealIDs, func(i, j int) bool { return item.MealIDs[i] < item.MealIDs[j] })
		out = append(out, item)
	}
	return out, warnings
}

// targetMeasure picks the most common measure among a group's contributions,
// breaking ties by lowest measure id.
func targetMeasure(contribs []contribution) int64 {
	counts := make(map[int64]int)
	for _, c := range contribs {
		counts[c.measureID]++
	}
	var target int64
	best := 0
	for id, n := range counts {
		if n > best || (n == best && id < target) {
			target = id
			best = n
		}
	}
	return target
}

// View shapes stored items for read-side consumers.
func (a *Aggregator) View(items []Item) []ItemView {
	views := make([]ItemView, 0, len(items))
	for _, item := range items {
		v := ItemView{
			ID:             item.ID,
			IngredientName: item.IngredientName,
			Amount:         item.Amount,
			Measure:        a.engine.Label(item.MeasureTypeID),
			ManuallyAdded:  item.ManuallyAdded,
			Checked:        item.Checked,
			Unused:         item.Unused,
		}
		if item.IngredientID != 0 {
			v.Ingredient = &IngredientRef{ID: item.IngredientID, Name: item.IngredientName}
		}
		for prepID := range item.PreparationAmounts {
			v.PreparationIDs = append(v.PreparationIDs, prepID)
		}
		sort.Slice(v.PreparationIDs, func(i, j int) bool { return v.PreparationIDs[i] < v.PreparationIDs[j] })
		views = append(views, v)
	}
	return views
}
