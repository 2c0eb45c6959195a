// Package app wires the engine's components together and exposes the
// CLI-facing operations.
package app

import (
	"context"
	"fmt"
	"time"

	"mealweek/internal/batch"
	"mealweek/internal/catalog"
	"mealweek/internal/config"
	"mealweek/internal/database"
	"mealweek/internal/measure"
	"mealweek/internal/profile"
	"mealweek/internal/schedule"
	"mealweek/internal/shopping"
)

// App holds the application's dependencies.
type App struct {
	cfg    *config.Config
	db     *database.DB
	engine *measure.Engine

	catalog      *catalog.Repository
	store        *schedule.Store
	registry     *schedule.Registry
	processor    *schedule.Processor
	shoppingRepo *shopping.Repository
	aggregator   *shopping.Aggregator
	profiles     *profile.Repository
	runner       *batch.Runner
}

// NewApp creates and initializes a new App instance.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.Open(cfg.DatabasePath, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	engine, err := measure.LoadEngine(ctx, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load measure engine: %w", err)
	}

	cat := catalog.NewRepository(db)
	locks := schedule.NewWeekLocks()
	store := schedule.NewStore(db, cfg.DefaultDietTypeID)
	registry := schedule.NewRegistry(db, cat)
	shoppingRepo := shopping.NewRepository(db)
	aggregator := shopping.NewAggregator(db, cat, engine, shoppingRepo, locks)
	profiles := profile.NewRepository(db)

	return &App{
		cfg:          cfg,
		db:           db,
		engine:       engine,
		catalog:      cat,
		store:        store,
		registry:     registry,
		processor:    schedule.NewProcessor(store, registry, locks),
		shoppingRepo: shoppingRepo,
		aggregator:   aggregator,
		profiles:     profiles,
		runner:       batch.NewRunner(db, profiles, aggregator, batch.LogNotifier{}, cfg.BatchPageSize),
	}, nil
}

// Close releases the database.
func (a *App) Close() error {
	return a.db.Close()
}

// ShowWeek prints a user's 7-day plan.
func (a *App) ShowWeek(ctx context.Context, userID int64, weekStart time.Time) error {
	days, err := a.store.WeekView(ctx, userID, weekStart)
	if err != nil {
		return fmt.Errorf("failed to load week: %w", err)
	}

	for _, day := range days {
		fmt.Printf("%s (diet %d)\n", day.Date, day.DietType)
		if len(day.Meals) == 0 {
			fmt.Println("  (no meals)")
			continue
		}
		for _, m := range day.Meals {
			line := fmt.Sprintf("  %-10s recipe %d, %d servings, %s", m.MealType, m.RecipeID, m.Servings, m.Confirmed)
			if m.IsLeftovers {
				line += fmt.Sprintf(" (leftovers, cooked %s)", m.Preparation.Date)
			}
			if m.IsChallenge {
				line += " [challenge]"
			}
			fmt.Println(line)
		}
	}
	return nil
}

// ApplyPatch runs one mutation on a user's schedule.
func (a *App) ApplyPatch(ctx context.Context, userID int64, patch schedule.Patch) error {
	if err := a.processor.Apply(ctx, userID, patch); err != nil {
		return err
	}
	fmt.Printf("Applied %s.\n", patch.Op)
	return nil
}

// BuildShoppingList recomputes and prints a user's weekly shopping list.
func (a *App) BuildShoppingList(ctx context.Context, userID int64, weekStart time.Time) error {
	result, err := a.aggregator.BuildList(ctx, userID, weekStart)
	if err != nil {
		return fmt.Errorf("failed to build shopping list: %w", err)
	}

	fmt.Println("=== SHOPPING LIST ===")
	for _, v := range a.aggregator.View(result.Items) {
		mark := " "
		if v.Checked {
			mark = "x"
		}
		line := fmt.Sprintf("[%s] %g %s %s", mark, v.Amount, v.Measure, v.IngredientName)
		if v.ManuallyAdded {
			line += " (manual)"
		}
		if v.Unused {
			line += " (unused)"
		}
		fmt.Println(line)
	}
	for _, w := range result.Warnings {
		fmt.Printf("Warning: ingredient %d left in measure %d: %s\n", w.IngredientID, w.MeasureTypeID, w.Reason)
	}
	return nil
}

// AddManualItem appends a free-text line to a user's weekly list.
func (a *App) AddManualItem(ctx context.Context, userID int64, weekStart time.Time, name string, amount float64, measureTypeID int64) error {
	item, err := a.shoppingRepo.AddManualItem(ctx, userID, weekStart, name, amount, measureTypeID)
	if err != nil {
		return err
	}
	fmt.Printf("Added item %d: %s\n", item.ID, item.IngredientName)
	return nil
}

// RunBatch rebuilds and delivers lists for every active user.
func (a *App) RunBatch(ctx context.Context, weekStart time.Time) error {
	run, err := a.runner.Run(ctx, weekStart)
	if err != nil {
		return err
	}
	fmt.Printf("Batch %s finished: %d users processed, %d failures.\n", run.ID, run.UsersProcessed, run.Failures)
	return nil
}
