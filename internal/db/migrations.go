package db

import (
	"database/sql"
	"fmt"
)

// migrations is a list of SQL statements applied in order after schema
// creation. Each migration must be idempotent. Append new migrations at
// the end.
var migrations = []string{
	// Migration 1: reservations created before extension tracking
	// existed default to no extension state.
	`UPDATE reservations SET extension_requested = 0 WHERE extension_requested IS NULL`,
	`UPDATE reservations SET extension_approved = 0 WHERE extension_approved IS NULL`,
}

// Migrate runs the schema and the migration list.
func Migrate(db *sql.DB) error {
	if err := EnsureSchema(db); err != nil {
		return err
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
