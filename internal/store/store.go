package store

import (
	"database/sql"
	"time"

	"github.com/flokr/lendhub/internal/model"
)

// Nullable TEXT timestamps are stored as RFC 3339 strings.

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

// FormatTime renders a timestamp for storage in a nullable TEXT column.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseNullDate(ns sql.NullString) *model.Date {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	d := model.Date(ns.String)
	return &d
}
