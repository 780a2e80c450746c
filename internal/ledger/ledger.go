// Package ledger owns per-item stock counts. Every component that moves
// stock does so through these functions, inside a write transaction that
// the caller opens, so the read-modify-write on the counts and the
// caller's own status writes commit or roll back together.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flokr/lendhub/internal/model"
)

// ErrInsufficientStock is returned when a reservation or transfer asks
// for more units than are currently available.
var ErrInsufficientStock = errors.New("insufficient stock")

// ErrInvalidState is returned when an adjustment would break the stock
// bounds (0 <= available <= total).
var ErrInvalidState = errors.New("invalid stock state")

// ErrItemNotFound is returned when the item does not exist or is deleted.
var ErrItemNotFound = errors.New("item not found")

// FlagThreshold is the number of incident reports at which an item is
// flagged and marked damaged.
const FlagThreshold = 3

type counts struct {
	total     int
	available int
}

func getCounts(ctx context.Context, tx *sql.Tx, itemID int64) (counts, error) {
	var c counts
	err := tx.QueryRowContext(ctx,
		`SELECT quantity_total, quantity_available FROM items
		 WHERE id = ? AND deleted_at IS NULL`, itemID,
	).Scan(&c.total, &c.available)
	if err == sql.ErrNoRows {
		return c, ErrItemNotFound
	}
	if err != nil {
		return c, fmt.Errorf("reading stock counts: %w", err)
	}
	return c, nil
}

func writeCounts(ctx context.Context, tx *sql.Tx, itemID int64, c counts) error {
	// Stock bounds must hold after every mutation. A violation here
	// means a caller bug, not a user error: abort loudly.
	if c.available < 0 || c.available > c.total {
		slog.Error("stock invariant violation aborted",
			"item", itemID, "total", c.total, "available", c.available)
		return fmt.Errorf("%w: total=%d available=%d", ErrInvalidState, c.total, c.available)
	}

	_, err := tx.ExecContext(ctx,
		`UPDATE items SET quantity_total = ?, quantity_available = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`, c.total, c.available, itemID)
	if err != nil {
		return fmt.Errorf("writing stock counts: %w", err)
	}
	return nil
}

// Reserve holds qty units of the item, decrementing availability.
// Fails with ErrInsufficientStock if fewer than qty units are available.
func Reserve(ctx context.Context, tx *sql.Tx, itemID int64, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidState)
	}

	c, err := getCounts(ctx, tx, itemID)
	if err != nil {
		return err
	}
	if qty > c.available {
		return fmt.Errorf("%w: only %d of item %d available", ErrInsufficientStock, c.available, itemID)
	}

	c.available -= qty
	return writeCounts(ctx, tx, itemID, c)
}

// Release returns qty held units to availability. The result is clamped
// to the total so a caller error can never push availability past it,
// but callers are expected to release only what they reserved.
func Release(ctx context.Context, tx *sql.Tx, itemID int64, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidState)
	}

	c, err := getCounts(ctx, tx, itemID)
	if err != nil {
		return err
	}

	c.available += qty
	if c.available > c.total {
		slog.Warn("release overshoot clamped",
			"item", itemID, "total", c.total, "requested_available", c.available)
		c.available = c.total
	}
	return writeCounts(ctx, tx, itemID, c)
}

// RelocateTotal adjusts the item's total quantity by delta, used by
// transfer completion. Held stock is unaffected: the gap between total
// and available must still fit after the adjustment.
func RelocateTotal(ctx context.Context, tx *sql.Tx, itemID int64, delta int) error {
	c, err := getCounts(ctx, tx, itemID)
	if err != nil {
		return err
	}

	c.total += delta
	if c.total < 0 || c.available > c.total {
		return fmt.Errorf("%w: total %d would not cover available %d on item %d",
			ErrInvalidState, c.total, c.available, itemID)
	}
	return writeCounts(ctx, tx, itemID, c)
}

// AddStock raises both total and available by qty, used when a transfer
// delivers units to the destination item.
func AddStock(ctx context.Context, tx *sql.Tx, itemID int64, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidState)
	}

	c, err := getCounts(ctx, tx, itemID)
	if err != nil {
		return err
	}

	c.total += qty
	c.available += qty
	return writeCounts(ctx, tx, itemID, c)
}

// Flag marks the item as flagged and damaged, recording when.
func Flag(ctx context.Context, tx *sql.Tx, itemID int64, now time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE items SET is_flagged = 1, flagged_at = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		now.UTC().Format(time.RFC3339), model.ItemStatusDamaged, itemID)
	if err != nil {
		return fmt.Errorf("flagging item: %w", err)
	}
	return requireRow(res)
}

// Unflag clears the flag and, if the item was only damaged by the flag,
// restores it to active.
func Unflag(ctx context.Context, tx *sql.Tx, itemID int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE items SET is_flagged = 0, flagged_at = NULL,
		        status = CASE WHEN status = ? THEN ? ELSE status END,
		        updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		model.ItemStatusDamaged, model.ItemStatusActive, itemID)
	if err != nil {
		return fmt.Errorf("unflagging item: %w", err)
	}
	return requireRow(res)
}

// RecordIncident increments the item's incident counter and returns the
// new count so the caller can decide whether to flag.
func RecordIncident(ctx context.Context, tx *sql.Tx, itemID int64) (int, error) {
	_, err := tx.ExecContext(ctx,
		`UPDATE items SET incident_report_count = incident_report_count + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`, itemID)
	if err != nil {
		return 0, fmt.Errorf("recording incident: %w", err)
	}

	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT incident_report_count FROM items WHERE id = ?`, itemID).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, ErrItemNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("reading incident count: %w", err)
	}
	return count, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}
