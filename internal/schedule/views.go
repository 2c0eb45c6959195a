package schedule

import (
	"context"
	"time"

	"mealweek/internal/shared"
)

// PreparationView is the read shape of a cooking event.
type PreparationView struct {
	ID          int64  `json:"id"`
	Date        string `json:"date"`
	RecipeID    int64  `json:"recipe_id"`
	NumServings int    `json:"num_servings"`
}

// MealView is the read shape of a slot, with its preparation embedded.
type MealView struct {
	ID            int64            `json:"id"`
	MealType      string           `json:"meal_type"`
	RecipeID      int64            `json:"recipe_id"`
	Preparation   *PreparationView `json:"preparation,omitempty"`
	Confirmed     string           `json:"confirmed"`
	ScheduleDayID int64            `json:"schedule_day_id"`
	IsChallenge   bool             `json:"is_challenge"`
	IsLeftovers   bool             `json:"is_leftovers"`
	Servings      int              `json:"servings"`
}

// ScheduleDayView is the read shape of one day of the plan.
type ScheduleDayView struct {
	ID       int64      `json:"id"`
	Date     string     `json:"date"`
	DietType int64      `json:"diet_type"`
	Meals    []MealView `json:"meals"`
}

// WeekView returns the 7-day read view for a user's week. Vacated slots
// (declined challenges) are excluded.
func (s *Store) WeekView(ctx context.Context, userID int64, weekStart time.Time) ([]ScheduleDayView, error) {
	days, err := s.GetWeek(ctx, userID, weekStart)
	if err != nil {
		return nil, err
	}

	// One lookup per distinct preparation across the week.
	preps := make(map[int64]*Preparation)
	for _, day := range days {
		for _, m := range day.Meals {
			if m.PreparationID != 0 {
				preps[m.PreparationID] = nil
			}
		}
	}
	prepDays := make(map[int64]string)
	for id := range preps {
		prep, err := getPreparation(ctx, s.db, s.db.SQL, id)
		if err != nil {
			return nil, err
		}
		preps[id] = prep
		day, err := getDay(ctx, s.db, s.db.SQL, prep.ScheduleDayID)
		if err != nil {
			return nil, err
		}
		prepDays[id] = shared.FormatDate(day.Date)
	}

	views := make([]ScheduleDayView, 0, len(days))
	for _, day := range days {
		dv := ScheduleDayView{
			ID:       day.ID,
			Date:     shared.FormatDate(day.Date),
			DietType: day.DietTypeID,
		}
		for _, m := range day.Meals {
			if m.PreparationID == 0 {
				continue
			}
			prep := preps[m.PreparationID]
			dv.Meals = append(dv.Meals, MealView{
				ID:       m.ID,
				MealType: m.Type.String(),
				RecipeID: m.RecipeID,
				Preparation: &PreparationView{
					ID:          prep.ID,
					Date:        prepDays[prep.ID],
					RecipeID:    prep.RecipeID,
					NumServings: prep.NumServings,
				},
				Confirmed:     m.ConfirmStatus.String(),
				ScheduleDayID: m.ScheduleDayID,
				IsChallenge:   m.IsChallenge,
				IsLeftovers:   m.IsLeftovers,
				Servings:      m.Servings,
			})
		}
		views = append(views, dv)
	}
	return views, nil
}
