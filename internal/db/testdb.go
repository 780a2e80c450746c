package db

import (
	"database/sql"
	"testing"
)

// NewTestDB opens an in-memory SQLite database, runs the full migration
// path and closes it when the test finishes.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := Migrate(database); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	return database
}
