package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"mealweek/internal/config"
)

func TestNewApp(t *testing.T) {
	cfg := &config.Config{
		DatabasePath:      filepath.Join(t.TempDir(), "app.db"),
		BatchPageSize:     10,
		DefaultDietTypeID: 1,
	}
	ctx := context.Background()

	a, err := NewApp(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to initialize app: %v", err)
	}
	defer a.Close()

	week := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	if err := a.ShowWeek(ctx, 1, week); err != nil {
		t.Errorf("Failed to show empty week: %v", err)
	}
	if err := a.BuildShoppingList(ctx, 1, week); err != nil {
		t.Errorf("Failed to build empty shopping list: %v", err)
	}
}
