package database

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // Postgres migrate driver
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"   // Pure Go sqlite migrate driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // register the pure Go sqlite driver
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Engine identifies the storage engine behind a DB handle.
type Engine string

const (
	EngineSQLite   Engine = "sqlite"
	EnginePostgres Engine = "postgres"
)

// DB provides a centralized database connection.
type DB struct {
	SQL    *sql.DB
	Engine Engine
}

// NewDB initializes the SQLite database at path and runs migrations.
func NewDB(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Run migrations before opening the connection for the app so the schema
	// is always up to date.
	if err := runMigrations(EngineSQLite, "sqlite://"+dbPath); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{SQL: db, Engine: EngineSQLite}, nil
}

// NewPostgres connects to Postgres via the pgx stdlib driver and runs
// migrations.
func NewPostgres(databaseURL string) (*DB, error) {
	if err := runMigrations(EnginePostgres, databaseURL); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{SQL: db, Engine: EnginePostgres}, nil
}

// Open picks the engine from the configuration: a non-empty databaseURL means
// Postgres, otherwise the SQLite file at databasePath is used.
func Open(databasePath, databaseURL string) (*DB, error) {
	if databaseURL != "" {
		return NewPostgres(databaseURL)
	}
	return NewDB(databasePath)
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.SQL.Close()
}

// Rebind rewrites ? placeholders to the $N form Postgres expects. SQLite
// queries pass through unchanged.
func (d *DB) Rebind(query string) string {
	if d.Engine != EnginePostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// runMigrations applies the engine's migration set using golang-migrate.
func runMigrations(engine Engine, databaseURL string) error {
	sub, err := fs.Sub(migrationsFS, "migrations/"+string(engine))
	if err != nil {
		return fmt.Errorf("failed to open migration set for %s: %w", engine, err)
	}
	d, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("failed to create iofs driver: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	log.Println("Database migrations applied successfully")
	return nil
}
