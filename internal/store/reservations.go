package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/flokr/lendhub/internal/model"
)

const reservationColumns = `r.id, r.user_id, r.item_id, r.hub_id, r.quantity, r.status,
	r.pickup_date, r.expected_return_date, r.actual_return_date,
	r.extension_requested, r.extension_approved, r.created_at, r.updated_at,
	u.name AS user_name, i.name AS item_name, h.name AS hub_name`

const reservationJoins = ` FROM reservations r
	JOIN users u ON u.id = r.user_id
	JOIN items i ON i.id = r.item_id
	JOIN hubs h ON h.id = r.hub_id`

func scanReservation(row interface{ Scan(...any) error }) (*model.Reservation, error) {
	res := &model.Reservation{}
	var pickup, expected string
	var actual sql.NullString
	err := row.Scan(&res.ID, &res.UserID, &res.ItemID, &res.HubID, &res.Quantity, &res.Status,
		&pickup, &expected, &actual,
		&res.ExtensionRequested, &res.ExtensionApproved, &res.CreatedAt, &res.UpdatedAt,
		&res.UserName, &res.ItemName, &res.HubName)
	if err != nil {
		return nil, err
	}
	res.PickupDate = model.Date(pickup)
	res.ExpectedReturnDate = model.Date(expected)
	res.ActualReturnDate = parseNullDate(actual)
	return res, nil
}

// GetReservation returns a reservation by ID with joined names.
func GetReservation(ctx context.Context, db *sql.DB, id int64) (*model.Reservation, error) {
	res, err := scanReservation(db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+reservationJoins+` WHERE r.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting reservation: %w", err)
	}
	return res, nil
}

// ListReservations returns reservations, optionally filtered by user,
// hub, or status, newest first.
func ListReservations(ctx context.Context, db *sql.DB, userID, hubID int64, status string) ([]model.Reservation, error) {
	query := `SELECT ` + reservationColumns + reservationJoins + ` WHERE 1=1`
	var args []any

	if userID > 0 {
		query += ` AND r.user_id = ?`
		args = append(args, userID)
	}
	if hubID > 0 {
		query += ` AND r.hub_id = ?`
		args = append(args, hubID)
	}
	if status != "" {
		query += ` AND r.status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY r.created_at DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing reservations: %w", err)
	}
	defer rows.Close()

	return collectReservations(rows)
}

// ListExpiredPending returns non-picked-up reservations whose pickup
// date is already past, candidates for automatic expiry.
func ListExpiredPending(ctx context.Context, db *sql.DB, today model.Date) ([]model.Reservation, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+reservationColumns+reservationJoins+`
		 WHERE r.status IN (?, ?) AND r.pickup_date < ?`,
		model.ReservationPending, model.ReservationConfirmed, string(today))
	if err != nil {
		return nil, fmt.Errorf("listing expired reservations: %w", err)
	}
	defer rows.Close()

	return collectReservations(rows)
}

// ListPickupsDueOn returns confirmed reservations picked up on the given date.
func ListPickupsDueOn(ctx context.Context, db *sql.DB, date model.Date) ([]model.Reservation, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+reservationColumns+reservationJoins+`
		 WHERE r.status = ? AND r.pickup_date = ?`,
		model.ReservationConfirmed, string(date))
	if err != nil {
		return nil, fmt.Errorf("listing due pickups: %w", err)
	}
	defer rows.Close()

	return collectReservations(rows)
}

// ListReturnsDueOn returns picked-up reservations due back on the given date.
func ListReturnsDueOn(ctx context.Context, db *sql.DB, date model.Date) ([]model.Reservation, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+reservationColumns+reservationJoins+`
		 WHERE r.status = ? AND r.expected_return_date = ?`,
		model.ReservationPickedUp, string(date))
	if err != nil {
		return nil, fmt.Errorf("listing due returns: %w", err)
	}
	defer rows.Close()

	return collectReservations(rows)
}

// ListOverdue returns reservations past their expected return date that
// have not come back, including those already escalated to overdue.
func ListOverdue(ctx context.Context, db *sql.DB, today model.Date) ([]model.Reservation, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+reservationColumns+reservationJoins+`
		 WHERE r.status IN (?, ?) AND r.expected_return_date < ? AND r.actual_return_date IS NULL`,
		model.ReservationPickedUp, model.ReservationOverdue, string(today))
	if err != nil {
		return nil, fmt.Errorf("listing overdue reservations: %w", err)
	}
	defer rows.Close()

	return collectReservations(rows)
}

// LastReturns returns the user's most recent returned reservations,
// newest first, up to limit.
func LastReturns(ctx context.Context, db *sql.DB, userID int64, limit int) ([]model.Reservation, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+reservationColumns+reservationJoins+`
		 WHERE r.user_id = ? AND r.status = ?
		 ORDER BY r.actual_return_date DESC, r.id DESC LIMIT ?`,
		userID, model.ReservationReturned, limit)
	if err != nil {
		return nil, fmt.Errorf("listing returns: %w", err)
	}
	defer rows.Close()

	return collectReservations(rows)
}

// CountOldTerminal counts returned or cancelled reservations last
// touched before the cutoff, candidates for archival.
func CountOldTerminal(ctx context.Context, db *sql.DB, cutoff string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations
		 WHERE status IN (?, ?) AND updated_at < ?`,
		model.ReservationReturned, model.ReservationCancelled, cutoff).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting old reservations: %w", err)
	}
	return n, nil
}

// Stats is a daily snapshot of reservation activity.
type Stats struct {
	Date          model.Date `json:"date"`
	TotalActive   int        `json:"total_active"`
	CreatedToday  int        `json:"created_today"`
	ReturnedToday int        `json:"returned_today"`
	Overdue       int        `json:"overdue"`
}

// ReservationStats builds the daily report snapshot.
func ReservationStats(ctx context.Context, db *sql.DB, today model.Date) (*Stats, error) {
	s := &Stats{Date: today}

	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE status IN (?, ?, ?)`,
		model.ReservationPending, model.ReservationConfirmed, model.ReservationPickedUp,
	).Scan(&s.TotalActive)
	if err != nil {
		return nil, fmt.Errorf("counting active reservations: %w", err)
	}

	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE DATE(created_at) = ?`, string(today),
	).Scan(&s.CreatedToday)
	if err != nil {
		return nil, fmt.Errorf("counting created reservations: %w", err)
	}

	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE status = ? AND actual_return_date = ?`,
		model.ReservationReturned, string(today)).Scan(&s.ReturnedToday)
	if err != nil {
		return nil, fmt.Errorf("counting returns: %w", err)
	}

	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE status = ?`, model.ReservationOverdue,
	).Scan(&s.Overdue)
	if err != nil {
		return nil, fmt.Errorf("counting overdue: %w", err)
	}

	return s, nil
}

func collectReservations(rows *sql.Rows) ([]model.Reservation, error) {
	var reservations []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning reservation: %w", err)
		}
		reservations = append(reservations, *res)
	}
	return reservations, rows.Err()
}
