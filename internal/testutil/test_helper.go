// Package testutil prepares a throwaway PostgreSQL schema for tests that
// run against a real database.
package testutil

import (
	"context"
	"database/sql"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/johndosdos/skillxchange/internal/store/migrations"
)

func ProjectRoot() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "../../")
}

// DbInit connects to TEST_DB_URL and resets the schema to a clean, fully
// migrated state. The test is skipped when TEST_DB_URL is not set.
func DbInit(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if err := godotenv.Load(filepath.Join(ProjectRoot(), ".env")); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to load .env file: %+v", err)
	}

	testURL := os.Getenv("TEST_DB_URL")
	if testURL == "" {
		t.Skip("TEST_DB_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbPool, err := pgxpool.New(ctx, testURL)
	if err != nil {
		t.Fatalf("could not connect to the postgresql database: %v", err)
	}

	dbForGoose := stdlib.OpenDBFromPool(dbPool)
	DbGooseReset(t, dbForGoose)
	DbGooseUp(t, dbForGoose)

	t.Cleanup(func() {
		DbGooseReset(t, dbForGoose)
		if err := dbForGoose.Close(); err != nil {
			t.Errorf("db.Close() error = %+v", err)
		}
		dbPool.Close()
	})

	return dbPool
}

func setupGoose(t *testing.T) {
	t.Helper()
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		t.Fatalf("goose.SetDialect() error = %+v", err)
	}
}

func DbGooseUp(t *testing.T, db *sql.DB) {
	t.Helper()
	setupGoose(t)
	if err := goose.Up(db, "."); err != nil {
		t.Fatalf("goose.Up() error = %+v", err)
	}
}

func DbGooseReset(t *testing.T, db *sql.DB) {
	t.Helper()
	setupGoose(t)
	if err := goose.Reset(db, "."); err != nil {
		t.Fatalf("goose.Reset() error = %+v", err)
	}
}
