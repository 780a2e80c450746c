// Package reservation implements the borrow-request state machine, from
// creation through pickup, return, cancellation, and scheduled expiry.
package reservation

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
	"github.com/flokr/lendhub/internal/restriction"
	"github.com/flokr/lendhub/internal/store"
)

// ErrInvalidTransition is returned when the reservation is not in a
// state the requested operation accepts.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrForbidden is returned when the actor may not perform the operation.
var ErrForbidden = errors.New("not allowed")

// ErrRestricted is returned when a restricted user tries to reserve.
var ErrRestricted = errors.New("borrowing restricted")

// ErrNotFound is returned when the reservation or item does not exist.
var ErrNotFound = errors.New("not found")

// ConsecutiveReturnStreak is the number of on-time returns in a row
// that earns the bonus acknowledgment.
const ConsecutiveReturnStreak = 5

// Service drives the reservation lifecycle. Collaborators are explicit
// fields so tests can substitute the gateways and the clock.
type Service struct {
	DB           *sql.DB
	Notifier     notify.Notifier
	Reputation   notify.Reputation
	Restrictions *restriction.Service
	Now          func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) today() model.Date {
	return model.DateOf(s.now())
}

// Create validates and creates a reservation, holding stock from this
// point. Reservations auto-confirm on creation; there is no separate
// steward approval step.
func (s *Service) Create(ctx context.Context, userID, itemID int64, quantity int, pickup, expectedReturn model.Date) (*model.Reservation, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("quantity must be at least 1")
	}
	today := s.today()
	if pickup.Before(today) {
		return nil, fmt.Errorf("pickup date must not be in the past")
	}
	if !expectedReturn.After(pickup) {
		return nil, fmt.Errorf("expected return date must be after pickup date")
	}

	user, err := store.GetUser(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	if user.RestrictedAt(s.now()) {
		return nil, fmt.Errorf("%w: your borrowing privileges are restricted until %s",
			ErrRestricted, user.BorrowingRestrictedUntil.Format("January 2, 2006"))
	}

	item, err := store.GetItem(ctx, s.DB, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil || item.DeletedAt != nil {
		return nil, fmt.Errorf("%w: item %d", ErrNotFound, itemID)
	}
	if quantity > item.QuantityAvailable {
		return nil, fmt.Errorf("%w: only %d items available",
			ledger.ErrInsufficientStock, item.QuantityAvailable)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Re-checked under the write transaction so concurrent reservers
	// cannot both take the last units.
	if err := ledger.Reserve(ctx, tx, itemID, quantity); err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO reservations (user_id, item_id, hub_id, quantity, status, pickup_date, expected_return_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, itemID, item.HubID, quantity, model.ReservationConfirmed,
		string(pickup), string(expectedReturn))
	if err != nil {
		return nil, fmt.Errorf("creating reservation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing reservation: %w", err)
	}

	id, _ := result.LastInsertId()
	slog.Info("reservation created", "reservation", id, "user", userID, "item", itemID, "quantity", quantity)
	return store.GetReservation(ctx, s.DB, id)
}

func (s *Service) get(ctx context.Context, id int64) (*model.Reservation, error) {
	res, err := store.GetReservation(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("%w: reservation %d", ErrNotFound, id)
	}
	return res, nil
}

func canAct(res *model.Reservation, actorID int64, actorRole string) bool {
	return res.UserID == actorID || model.RoleAtLeast(actorRole, model.RoleSteward)
}

// Pickup marks a confirmed reservation as picked up. No stock change:
// the quantity was already held at creation.
func (s *Service) Pickup(ctx context.Context, id, actorID int64, actorRole string) (*model.Reservation, error) {
	res, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canAct(res, actorID, actorRole) {
		return nil, fmt.Errorf("%w: only the borrower or a steward can confirm pickup", ErrForbidden)
	}
	if res.Status != model.ReservationConfirmed {
		return nil, fmt.Errorf("%w: only confirmed reservations can be picked up (status %s)",
			ErrInvalidTransition, res.Status)
	}

	_, err = s.DB.ExecContext(ctx,
		`UPDATE reservations SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		model.ReservationPickedUp, id)
	if err != nil {
		return nil, fmt.Errorf("updating reservation: %w", err)
	}

	slog.Info("reservation picked up", "reservation", id, "actor", actorID)
	return s.get(ctx, id)
}

// Return marks a picked-up (or escalated overdue) reservation as
// returned and releases its stock. A return past the expected date is a
// late return and feeds the restriction automaton; an on-time return
// earns reputation.
func (s *Service) Return(ctx context.Context, id, actorID int64, actorRole string) (*model.Reservation, error) {
	res, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canAct(res, actorID, actorRole) {
		return nil, fmt.Errorf("%w: only the borrower or a steward can record a return", ErrForbidden)
	}
	if res.Status != model.ReservationPickedUp && res.Status != model.ReservationOverdue {
		return nil, fmt.Errorf("%w: only picked up items can be returned (status %s)",
			ErrInvalidTransition, res.Status)
	}

	today := s.today()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := ledger.Release(ctx, tx, res.ItemID, res.Quantity); err != nil {
		return nil, err
	}

	// Guard the status again inside the transaction; a concurrent
	// return between read and write must not double-release.
	result, err := tx.ExecContext(ctx,
		`UPDATE reservations SET status = ?, actual_return_date = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status IN (?, ?)`,
		model.ReservationReturned, string(today), id,
		model.ReservationPickedUp, model.ReservationOverdue)
	if err != nil {
		return nil, fmt.Errorf("updating reservation: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: reservation already transitioned", ErrInvalidTransition)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing return: %w", err)
	}

	res, err = s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	// The return itself is committed; penalty and reputation are
	// follow-on effects that must not undo it.
	if today.After(res.ExpectedReturnDate) {
		if err := s.Restrictions.ApplyLateReturnPenalty(ctx, res.UserID, res); err != nil {
			slog.Error("applying late return penalty", "reservation", id, "error", err)
		}
	} else {
		s.Reputation.Award(ctx, res.UserID, notify.ActionOnTimeReturn, "Returned on time")
		if s.hasOnTimeStreak(ctx, res.UserID) {
			s.Reputation.Award(ctx, res.UserID, notify.ActionConsecutiveReturns,
				fmt.Sprintf("%d consecutive on-time returns", ConsecutiveReturnStreak))
		}
	}

	slog.Info("reservation returned", "reservation", id, "actor", actorID, "late", today.After(res.ExpectedReturnDate))
	return res, nil
}

func (s *Service) hasOnTimeStreak(ctx context.Context, userID int64) bool {
	returns, err := store.LastReturns(ctx, s.DB, userID, ConsecutiveReturnStreak)
	if err != nil {
		slog.Error("checking return streak", "user", userID, "error", err)
		return false
	}
	if len(returns) < ConsecutiveReturnStreak {
		return false
	}
	for _, r := range returns {
		if r.ActualReturnDate == nil || r.ActualReturnDate.After(r.ExpectedReturnDate) {
			return false
		}
	}
	return true
}

// Cancel cancels a pending or confirmed reservation and releases its
// stock. Only the reserving user or a steward may cancel.
func (s *Service) Cancel(ctx context.Context, id, actorID int64, actorRole string) (*model.Reservation, error) {
	res, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canAct(res, actorID, actorRole) {
		return nil, fmt.Errorf("%w: only the borrower or a steward can cancel", ErrForbidden)
	}
	if res.Status != model.ReservationPending && res.Status != model.ReservationConfirmed {
		return nil, fmt.Errorf("%w: only pending or confirmed reservations can be cancelled (status %s)",
			ErrInvalidTransition, res.Status)
	}

	if err := s.cancelAndRelease(ctx, res); err != nil {
		return nil, err
	}

	slog.Info("reservation cancelled", "reservation", id, "actor", actorID)
	return s.get(ctx, id)
}

func (s *Service) cancelAndRelease(ctx context.Context, res *model.Reservation) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := ledger.Release(ctx, tx, res.ItemID, res.Quantity); err != nil {
		return err
	}

	// Guard the status again inside the transaction; a concurrent
	// transition between read and write must not double-release.
	result, err := tx.ExecContext(ctx,
		`UPDATE reservations SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status IN (?, ?)`,
		model.ReservationCancelled, res.ID, model.ReservationPending, model.ReservationConfirmed)
	if err != nil {
		return fmt.Errorf("updating reservation: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: reservation already transitioned", ErrInvalidTransition)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing cancellation: %w", err)
	}
	return nil
}

// RequestExtension flags a picked-up reservation for extension. Only
// the reserving user may request.
func (s *Service) RequestExtension(ctx context.Context, id, actorID int64) (*model.Reservation, error) {
	res, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.UserID != actorID {
		return nil, fmt.Errorf("%w: only the borrower can request an extension", ErrForbidden)
	}
	if res.Status != model.ReservationPickedUp && res.Status != model.ReservationOverdue {
		return nil, fmt.Errorf("%w: only picked up items can request an extension (status %s)",
			ErrInvalidTransition, res.Status)
	}

	_, err = s.DB.ExecContext(ctx,
		`UPDATE reservations SET extension_requested = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("updating reservation: %w", err)
	}

	return s.get(ctx, id)
}

// ApproveExtension approves a requested extension and moves the
// expected return date. No stock change.
func (s *Service) ApproveExtension(ctx context.Context, id int64, newReturnDate model.Date) (*model.Reservation, error) {
	res, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !res.ExtensionRequested {
		return nil, fmt.Errorf("%w: no extension request found", ErrInvalidTransition)
	}
	if !newReturnDate.After(res.PickupDate) {
		return nil, fmt.Errorf("new return date must be after the pickup date")
	}

	_, err = s.DB.ExecContext(ctx,
		`UPDATE reservations SET extension_approved = 1, expected_return_date = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`, string(newReturnDate), id)
	if err != nil {
		return nil, fmt.Errorf("updating reservation: %w", err)
	}

	slog.Info("extension approved", "reservation", id, "new_return_date", newReturnDate)
	return s.get(ctx, id)
}

// Expire cancels a reservation whose pickup date passed without pickup,
// releasing stock exactly like Cancel, and notifies the user. Called by
// the scheduled expiry job.
func (s *Service) Expire(ctx context.Context, res *model.Reservation) error {
	if res.Status != model.ReservationPending && res.Status != model.ReservationConfirmed {
		return fmt.Errorf("%w: reservation %d is %s", ErrInvalidTransition, res.ID, res.Status)
	}

	if err := s.cancelAndRelease(ctx, res); err != nil {
		return err
	}

	s.Notifier.Notify(ctx, res.UserID, notify.Notification{
		Kind:  notify.KindReservationExpired,
		Title: "Reservation expired",
		Message: fmt.Sprintf("Your reservation for '%s' has expired. The pickup date (%s) has passed.",
			res.ItemName, res.PickupDate),
		Data: notify.ReservationData{
			ReservationID: res.ID,
			ItemName:      res.ItemName,
			HubName:       res.HubName,
			PickupDate:    res.PickupDate,
		},
	})

	slog.Info("reservation expired", "reservation", res.ID)
	return nil
}

// MarkOverdue escalates a picked-up reservation to overdue. Idempotent:
// an already-overdue reservation is left alone and reported as such.
func (s *Service) MarkOverdue(ctx context.Context, id int64) (escalated bool, err error) {
	result, err := s.DB.ExecContext(ctx,
		`UPDATE reservations SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		model.ReservationOverdue, id, model.ReservationPickedUp)
	if err != nil {
		return false, fmt.Errorf("marking overdue: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking affected rows: %w", err)
	}
	return n > 0, nil
}
