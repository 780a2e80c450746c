package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/flokr/lendhub/internal/model"
)

const transferColumns = `t.id, t.item_id, t.from_hub_id, t.to_hub_id, t.quantity, t.status,
	t.initiated_by, t.approved_by, t.completed_by, t.reason, t.notes,
	t.created_at, t.approved_at, t.completed_at, t.updated_at,
	i.name AS item_name, fh.name AS from_hub_name, th.name AS to_hub_name`

const transferJoins = ` FROM transfers t
	JOIN items i ON i.id = t.item_id
	JOIN hubs fh ON fh.id = t.from_hub_id
	JOIN hubs th ON th.id = t.to_hub_id`

func scanTransfer(row interface{ Scan(...any) error }) (*model.Transfer, error) {
	t := &model.Transfer{}
	var approvedAt, completedAt sql.NullString
	err := row.Scan(&t.ID, &t.ItemID, &t.FromHubID, &t.ToHubID, &t.Quantity, &t.Status,
		&t.InitiatedBy, &t.ApprovedBy, &t.CompletedBy, &t.Reason, &t.Notes,
		&t.CreatedAt, &approvedAt, &completedAt, &t.UpdatedAt,
		&t.ItemName, &t.FromHubName, &t.ToHubName)
	if err != nil {
		return nil, err
	}
	t.ApprovedAt = parseNullTime(approvedAt)
	t.CompletedAt = parseNullTime(completedAt)
	return t, nil
}

// GetTransfer returns a transfer by ID with joined names.
func GetTransfer(ctx context.Context, db *sql.DB, id int64) (*model.Transfer, error) {
	t, err := scanTransfer(db.QueryRowContext(ctx,
		`SELECT `+transferColumns+transferJoins+` WHERE t.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting transfer: %w", err)
	}
	return t, nil
}

// ListTransfers returns transfers touching a hub (as source or
// destination), optionally filtered by status, newest first. A zero
// hubID returns all transfers.
func ListTransfers(ctx context.Context, db *sql.DB, hubID int64, status string) ([]model.Transfer, error) {
	query := `SELECT ` + transferColumns + transferJoins + ` WHERE 1=1`
	var args []any

	if hubID > 0 {
		query += ` AND (t.from_hub_id = ? OR t.to_hub_id = ?)`
		args = append(args, hubID, hubID)
	}
	if status != "" {
		query += ` AND t.status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY t.created_at DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transfers: %w", err)
	}
	defer rows.Close()

	var transfers []model.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transfer: %w", err)
		}
		transfers = append(transfers, *t)
	}
	return transfers, rows.Err()
}
