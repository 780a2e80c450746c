package ledger

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/flokr/lendhub/internal/db"
	"github.com/flokr/lendhub/internal/model"
)

func seedItem(t *testing.T, database *sql.DB, total, available int) int64 {
	t.Helper()
	ctx := context.Background()

	res, err := database.ExecContext(ctx, `INSERT INTO hubs (name) VALUES ('North Hub')`)
	if err != nil {
		t.Fatalf("seeding hub: %v", err)
	}
	hubID, _ := res.LastInsertId()

	res, err = database.ExecContext(ctx,
		`INSERT INTO items (hub_id, name, quantity_total, quantity_available) VALUES (?, 'Drill', ?, ?)`,
		hubID, total, available)
	if err != nil {
		t.Fatalf("seeding item: %v", err)
	}
	itemID, _ := res.LastInsertId()
	return itemID
}

func itemCounts(t *testing.T, database *sql.DB, itemID int64) (total, available int) {
	t.Helper()
	err := database.QueryRow(
		`SELECT quantity_total, quantity_available FROM items WHERE id = ?`, itemID,
	).Scan(&total, &available)
	if err != nil {
		t.Fatalf("reading counts: %v", err)
	}
	return total, available
}

func inTx(t *testing.T, database *sql.DB, fn func(tx *sql.Tx) error) error {
	t.Helper()
	tx, err := database.Begin()
	if err != nil {
		t.Fatalf("beginning transaction: %v", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("committing: %v", err)
	}
	return nil
}

func TestReserveAndRelease(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	itemID := seedItem(t, database, 5, 5)

	if err := inTx(t, database, func(tx *sql.Tx) error {
		return Reserve(ctx, tx, itemID, 2)
	}); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	total, available := itemCounts(t, database, itemID)
	if total != 5 || available != 3 {
		t.Errorf("after reserve: total=%d available=%d, want 5/3", total, available)
	}

	if err := inTx(t, database, func(tx *sql.Tx) error {
		return Release(ctx, tx, itemID, 2)
	}); err != nil {
		t.Fatalf("Release: %v", err)
	}

	total, available = itemCounts(t, database, itemID)
	if total != 5 || available != 5 {
		t.Errorf("after release: total=%d available=%d, want 5/5", total, available)
	}
}

func TestReserveInsufficientStock(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	itemID := seedItem(t, database, 5, 3)

	err := inTx(t, database, func(tx *sql.Tx) error {
		return Reserve(ctx, tx, itemID, 4)
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Errorf("expected ErrInsufficientStock, got %v", err)
	}

	// Nothing changed.
	total, available := itemCounts(t, database, itemID)
	if total != 5 || available != 3 {
		t.Errorf("counts mutated by failed reserve: total=%d available=%d", total, available)
	}
}

func TestReleaseClampsToTotal(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	itemID := seedItem(t, database, 5, 4)

	if err := inTx(t, database, func(tx *sql.Tx) error {
		return Release(ctx, tx, itemID, 10)
	}); err != nil {
		t.Fatalf("Release: %v", err)
	}

	total, available := itemCounts(t, database, itemID)
	if total != 5 || available != 5 {
		t.Errorf("after clamped release: total=%d available=%d, want 5/5", total, available)
	}
}

func TestRelocateTotal(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	itemID := seedItem(t, database, 10, 6)

	if err := inTx(t, database, func(tx *sql.Tx) error {
		return RelocateTotal(ctx, tx, itemID, -4)
	}); err != nil {
		t.Fatalf("RelocateTotal: %v", err)
	}

	total, available := itemCounts(t, database, itemID)
	if total != 6 || available != 6 {
		t.Errorf("after relocate: total=%d available=%d, want 6/6", total, available)
	}

	// Shrinking below the available stock breaks the bounds.
	err := inTx(t, database, func(tx *sql.Tx) error {
		return RelocateTotal(ctx, tx, itemID, -1)
	})
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestAddStock(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	itemID := seedItem(t, database, 2, 1)

	if err := inTx(t, database, func(tx *sql.Tx) error {
		return AddStock(ctx, tx, itemID, 4)
	}); err != nil {
		t.Fatalf("AddStock: %v", err)
	}

	total, available := itemCounts(t, database, itemID)
	if total != 6 || available != 5 {
		t.Errorf("after add: total=%d available=%d, want 6/5", total, available)
	}
}

func TestFlagUnflag(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	itemID := seedItem(t, database, 1, 1)

	if err := inTx(t, database, func(tx *sql.Tx) error {
		return Flag(ctx, tx, itemID, time.Now())
	}); err != nil {
		t.Fatalf("Flag: %v", err)
	}

	var flagged bool
	var status string
	if err := database.QueryRow(
		`SELECT is_flagged, status FROM items WHERE id = ?`, itemID).Scan(&flagged, &status); err != nil {
		t.Fatalf("reading item: %v", err)
	}
	if !flagged || status != model.ItemStatusDamaged {
		t.Errorf("after flag: flagged=%v status=%s", flagged, status)
	}

	if err := inTx(t, database, func(tx *sql.Tx) error {
		return Unflag(ctx, tx, itemID)
	}); err != nil {
		t.Fatalf("Unflag: %v", err)
	}

	if err := database.QueryRow(
		`SELECT is_flagged, status FROM items WHERE id = ?`, itemID).Scan(&flagged, &status); err != nil {
		t.Fatalf("reading item: %v", err)
	}
	if flagged || status != model.ItemStatusActive {
		t.Errorf("after unflag: flagged=%v status=%s", flagged, status)
	}
}

func TestUnflagKeepsManualStatus(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	itemID := seedItem(t, database, 1, 1)

	// An item a steward set inactive stays inactive after unflagging.
	if _, err := database.Exec(
		`UPDATE items SET is_flagged = 1, status = 'inactive' WHERE id = ?`, itemID); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := inTx(t, database, func(tx *sql.Tx) error {
		return Unflag(ctx, tx, itemID)
	}); err != nil {
		t.Fatalf("Unflag: %v", err)
	}

	var status string
	if err := database.QueryRow(`SELECT status FROM items WHERE id = ?`, itemID).Scan(&status); err != nil {
		t.Fatalf("reading item: %v", err)
	}
	if status != model.ItemStatusInactive {
		t.Errorf("status = %s, want inactive", status)
	}
}

func TestRecordIncident(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	itemID := seedItem(t, database, 1, 1)

	for want := 1; want <= 3; want++ {
		var got int
		if err := inTx(t, database, func(tx *sql.Tx) error {
			n, err := RecordIncident(ctx, tx, itemID)
			got = n
			return err
		}); err != nil {
			t.Fatalf("RecordIncident: %v", err)
		}
		if got != want {
			t.Errorf("incident count = %d, want %d", got, want)
		}
	}
}

func TestMissingItem(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	err := inTx(t, database, func(tx *sql.Tx) error {
		return Reserve(ctx, tx, 999, 1)
	})
	if !errors.Is(err, ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}
}
