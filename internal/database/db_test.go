package database

import (
	"path/filepath"
	"testing"
)

func TestNewDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "test.db")

	db, err := NewDB(path)
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	t.Run("MigrationsApplied", func(t *testing.T) {
		var count int
		if err := db.SQL.QueryRow("SELECT COUNT(*) FROM measure_types").Scan(&count); err != nil {
			t.Fatalf("Failed to query measure_types: %v", err)
		}
		if count == 0 {
			t.Error("Expected seeded measure types, got none")
		}
	})

	t.Run("ReopenIsIdempotent", func(t *testing.T) {
		db2, err := NewDB(path)
		if err != nil {
			t.Fatalf("Failed to reopen database: %v", err)
		}
		db2.Close()
	})
}

func TestRebind(t *testing.T) {
	sqlite := &DB{Engine: EngineSQLite}
	postgres := &DB{Engine: EnginePostgres}

	query := "SELECT id FROM meals WHERE schedule_day_id = ? AND servings >= ?"

	if got := sqlite.Rebind(query); got != query {
		t.Errorf("Expected sqlite query unchanged, got '%s'", got)
	}

	want := "SELECT id FROM meals WHERE schedule_day_id = $1 AND servings >= $2"
	if got := postgres.Rebind(query); got != want {
		t.Errorf("Expected '%s', got '%s'", want, got)
	}
}
