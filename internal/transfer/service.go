// Package transfer coordinates stock movement between hubs. A transfer
// holds stock at the source on initiation and only moves totals on
// completion, so the unit count across both hubs is conserved at every
// step.
package transfer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flokr/lendhub/internal/ledger"
	"github.com/flokr/lendhub/internal/model"
	"github.com/flokr/lendhub/internal/notify"
	"github.com/flokr/lendhub/internal/store"
)

// ErrInvalidTransition is returned when the transfer is not in a state
// the requested operation accepts.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrNotFound is returned when the transfer or item does not exist.
var ErrNotFound = errors.New("not found")

// Service drives the transfer state machine.
type Service struct {
	DB       *sql.DB
	Notifier notify.Notifier
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Initiate validates and creates a pending transfer, holding the
// quantity at the source hub without touching its total.
func (s *Service) Initiate(ctx context.Context, itemID, fromHubID, toHubID int64, quantity int, actorID int64, reason string) (*model.Transfer, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}
	if fromHubID == toHubID {
		return nil, fmt.Errorf("cannot transfer to the same hub")
	}

	item, err := store.GetItem(ctx, s.DB, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil || item.DeletedAt != nil {
		return nil, fmt.Errorf("%w: item %d", ErrNotFound, itemID)
	}
	if item.HubID != fromHubID {
		return nil, fmt.Errorf("item does not belong to the source hub")
	}

	toHub, err := store.GetHub(ctx, s.DB, toHubID)
	if err != nil {
		return nil, err
	}
	if toHub == nil {
		return nil, fmt.Errorf("%w: hub %d", ErrNotFound, toHubID)
	}

	if quantity > item.QuantityAvailable {
		return nil, fmt.Errorf("%w: only %d items available for transfer",
			ledger.ErrInsufficientStock, item.QuantityAvailable)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := ledger.Reserve(ctx, tx, itemID, quantity); err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO transfers (item_id, from_hub_id, to_hub_id, quantity, status, initiated_by, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		itemID, fromHubID, toHubID, quantity, model.TransferPending, actorID, reason)
	if err != nil {
		return nil, fmt.Errorf("creating transfer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transfer: %w", err)
	}

	id, _ := result.LastInsertId()
	t, err := store.GetTransfer(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}

	slog.Info("transfer initiated", "transfer", id, "item", itemID,
		"from", fromHubID, "to", toHubID, "quantity", quantity)
	s.notifyInitiated(ctx, t, actorID)
	return t, nil
}

// Approve moves a pending transfer to in transit. No stock change.
func (s *Service) Approve(ctx context.Context, id, actorID int64) (*model.Transfer, error) {
	t, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != model.TransferPending {
		return nil, fmt.Errorf("%w: cannot approve transfer with status %s", ErrInvalidTransition, t.Status)
	}

	_, err = s.DB.ExecContext(ctx,
		`UPDATE transfers SET status = ?, approved_by = ?, approved_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		model.TransferInTransit, actorID, store.FormatTime(s.now()), id)
	if err != nil {
		return nil, fmt.Errorf("updating transfer: %w", err)
	}

	t, err = s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	slog.Info("transfer approved", "transfer", id, "actor", actorID)
	s.Notifier.Notify(ctx, t.InitiatedBy, notify.Notification{
		Kind:  notify.KindTransferApproved,
		Title: "Transfer approved",
		Message: fmt.Sprintf("Transfer of %dx %s from %s to %s has been approved.",
			t.Quantity, t.ItemName, t.FromHubName, t.ToHubName),
		Data: transferData(t),
	})
	return t, nil
}

// Complete finishes an in-transit transfer: the source total drops by
// the transferred quantity (availability was already held at
// initiation) and the matching destination item, found or created by
// hub+name+category, gains it. Both rows mutate in one transaction so
// units are conserved even if the process dies mid-way.
func (s *Service) Complete(ctx context.Context, id, actorID int64, notes string) (*model.Transfer, error) {
	t, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != model.TransferInTransit {
		return nil, fmt.Errorf("%w: cannot complete transfer with status %s", ErrInvalidTransition, t.Status)
	}

	srcItem, err := store.GetItem(ctx, s.DB, t.ItemID)
	if err != nil {
		return nil, err
	}
	if srcItem == nil {
		return nil, fmt.Errorf("%w: item %d", ErrNotFound, t.ItemID)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Destination match is a heuristic merge key, not an identifier:
	// same hub, name, and category.
	var destID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM items WHERE hub_id = ? AND name = ? AND category = ? AND deleted_at IS NULL`,
		t.ToHubID, srcItem.Name, srcItem.Category).Scan(&destID)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("finding destination item: %w", err)
	}

	if destID == 0 {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO items (hub_id, name, description, category, condition, status, quantity_total, quantity_available)
			 VALUES (?, ?, ?, ?, ?, ?, 0, 0)`,
			t.ToHubID, srcItem.Name, srcItem.Description, srcItem.Category, srcItem.Condition,
			model.ItemStatusActive)
		if err != nil {
			return nil, fmt.Errorf("creating destination item: %w", err)
		}
		destID, _ = result.LastInsertId()
	}

	// Both rows mutate under this transaction; updates run in item-id
	// order so the lock discipline holds on engines with row locks.
	first, second := srcItem.ID, destID
	if destID < srcItem.ID {
		first, second = destID, srcItem.ID
	}
	for _, itemID := range []int64{first, second} {
		if itemID == srcItem.ID {
			err = ledger.RelocateTotal(ctx, tx, srcItem.ID, -t.Quantity)
		} else {
			err = ledger.AddStock(ctx, tx, destID, t.Quantity)
		}
		if err != nil {
			return nil, err
		}
	}

	// Guard the status again inside the transaction; a concurrent
	// completion between read and write must not move stock twice.
	result, err := tx.ExecContext(ctx,
		`UPDATE transfers SET status = ?, completed_by = ?, completed_at = ?, notes = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		model.TransferCompleted, actorID, store.FormatTime(s.now()), notes, id,
		model.TransferInTransit)
	if err != nil {
		return nil, fmt.Errorf("updating transfer: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: transfer already transitioned", ErrInvalidTransition)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing completion: %w", err)
	}

	t, err = s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	slog.Info("transfer completed", "transfer", id, "actor", actorID, "destination_item", destID)
	s.notifyCompleted(ctx, t)
	return t, nil
}

// Cancel aborts a pending or in-transit transfer and restores the held
// quantity to the source. Completed transfers cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, id, actorID int64, reason string) (*model.Transfer, error) {
	t, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status == model.TransferCompleted {
		return nil, fmt.Errorf("%w: cannot cancel a completed transfer", ErrInvalidTransition)
	}
	if t.Status == model.TransferCancelled {
		return nil, fmt.Errorf("%w: transfer already cancelled", ErrInvalidTransition)
	}

	actor, err := store.GetUser(ctx, s.DB, actorID)
	if err != nil {
		return nil, err
	}
	actorName := "System"
	if actor != nil {
		actorName = actor.Name
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := ledger.Release(ctx, tx, t.ItemID, t.Quantity); err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE transfers SET status = ?, notes = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status IN (?, ?)`,
		model.TransferCancelled, fmt.Sprintf("Cancelled by %s: %s", actorName, reason),
		id, model.TransferPending, model.TransferInTransit)
	if err != nil {
		return nil, fmt.Errorf("updating transfer: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: transfer already transitioned", ErrInvalidTransition)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing cancellation: %w", err)
	}

	t, err = s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	slog.Info("transfer cancelled", "transfer", id, "actor", actorID, "reason", reason)
	s.Notifier.Notify(ctx, t.InitiatedBy, notify.Notification{
		Kind:    notify.KindTransferCancelled,
		Title:   "Transfer cancelled",
		Message: fmt.Sprintf("Transfer of %dx %s has been cancelled.", t.Quantity, t.ItemName),
		Data:    transferData(t),
	})
	return t, nil
}

func (s *Service) get(ctx context.Context, id int64) (*model.Transfer, error) {
	t, err := store.GetTransfer(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: transfer %d", ErrNotFound, id)
	}
	return t, nil
}

func transferData(t *model.Transfer) notify.TransferData {
	return notify.TransferData{
		TransferID:  t.ID,
		ItemName:    t.ItemName,
		Quantity:    t.Quantity,
		FromHubName: t.FromHubName,
		ToHubName:   t.ToHubName,
		Reason:      t.Reason,
	}
}

func (s *Service) notifyInitiated(ctx context.Context, t *model.Transfer, actorID int64) {
	actor, err := store.GetUser(ctx, s.DB, actorID)
	actorName := "A steward"
	if err == nil && actor != nil {
		actorName = actor.Name
	}

	s.notifyStewards(ctx, t.FromHubID, notify.Notification{
		Kind:  notify.KindTransferInitiated,
		Title: "Transfer request",
		Message: fmt.Sprintf("%s initiated transfer of %dx %s to %s.",
			actorName, t.Quantity, t.ItemName, t.ToHubName),
		Data: transferData(t),
	})
	s.notifyStewards(ctx, t.ToHubID, notify.Notification{
		Kind:  notify.KindTransferIncoming,
		Title: "Incoming transfer",
		Message: fmt.Sprintf("Incoming transfer of %dx %s from %s.",
			t.Quantity, t.ItemName, t.FromHubName),
		Data: transferData(t),
	})
}

func (s *Service) notifyCompleted(ctx context.Context, t *model.Transfer) {
	s.Notifier.Notify(ctx, t.InitiatedBy, notify.Notification{
		Kind:  notify.KindTransferCompleted,
		Title: "Transfer completed",
		Message: fmt.Sprintf("Transfer of %dx %s to %s has been completed.",
			t.Quantity, t.ItemName, t.ToHubName),
		Data: transferData(t),
	})
	s.notifyStewards(ctx, t.ToHubID, notify.Notification{
		Kind:  notify.KindTransferReceived,
		Title: "Transfer received",
		Message: fmt.Sprintf("Received %dx %s from %s.",
			t.Quantity, t.ItemName, t.FromHubName),
		Data: transferData(t),
	})
}

func (s *Service) notifyStewards(ctx context.Context, hubID int64, n notify.Notification) {
	ids, err := store.ListStewardIDs(ctx, s.DB, hubID)
	if err != nil {
		slog.Error("listing stewards for notification", "hub", hubID, "error", err)
		return
	}
	for _, id := range ids {
		s.Notifier.Notify(ctx, id, n)
	}
}
