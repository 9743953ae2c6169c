// Package testutil provides testing utilities for integration tests.
package testutil

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/plexbot/plexbot/internal/database"
)

// TestDB wraps a test database connection.
type TestDB struct {
	DB     *database.DB
	Conn   *sql.DB
	Path   string
	Logger zerolog.Logger
}

// NewTestDB creates a new test database in a temp directory.
// It runs migrations and returns a ready-to-use database.
// The caller should defer Close() to clean up.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "plexbot_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	logger := zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)

	db, err := database.New(dbPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create database: %v", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return &TestDB{
		DB:     db,
		Conn:   db.Conn(),
		Path:   tmpDir,
		Logger: logger,
	}
}

// Close closes the database and removes the temp directory.
func (tdb *TestDB) Close() {
	if tdb.DB != nil {
		tdb.DB.Close()
	}
	if tdb.Path != "" {
		os.RemoveAll(tdb.Path)
	}
}

// NewTestLogger creates a test logger that outputs to t.Log.
func NewTestLogger(t *testing.T) zerolog.Logger {
	t.Helper()
	return zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)
}

// NopLogger returns a no-op logger for tests that don't need output.
func NopLogger() zerolog.Logger {
	return zerolog.Nop()
}
