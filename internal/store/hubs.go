package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/flokr/lendhub/internal/model"
)

// CreateHub creates a new hub.
func CreateHub(ctx context.Context, db *sql.DB, name, address string) (*model.Hub, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO hubs (name, address) VALUES (?, ?)`, name, address)
	if err != nil {
		return nil, fmt.Errorf("creating hub: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting hub id: %w", err)
	}

	return GetHub(ctx, db, id)
}

// GetHub returns a hub by ID.
func GetHub(ctx context.Context, db *sql.DB, id int64) (*model.Hub, error) {
	hub := &model.Hub{}
	err := db.QueryRowContext(ctx,
		`SELECT id, name, address, created_at, deleted_at FROM hubs WHERE id = ?`, id,
	).Scan(&hub.ID, &hub.Name, &hub.Address, &hub.CreatedAt, &hub.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting hub: %w", err)
	}
	return hub, nil
}

// ListHubs returns all active hubs.
func ListHubs(ctx context.Context, db *sql.DB) ([]model.Hub, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, address, created_at, deleted_at FROM hubs
		 WHERE deleted_at IS NULL ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing hubs: %w", err)
	}
	defer rows.Close()

	var hubs []model.Hub
	for rows.Next() {
		var hub model.Hub
		if err := rows.Scan(&hub.ID, &hub.Name, &hub.Address, &hub.CreatedAt, &hub.DeletedAt); err != nil {
			return nil, fmt.Errorf("scanning hub: %w", err)
		}
		hubs = append(hubs, hub)
	}
	return hubs, rows.Err()
}

// AddSteward assigns a user as steward of a hub.
func AddSteward(ctx context.Context, db *sql.DB, hubID, userID int64) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO hub_stewards (hub_id, user_id) VALUES (?, ?)
		 ON CONFLICT (hub_id, user_id) DO NOTHING`, hubID, userID)
	if err != nil {
		return fmt.Errorf("adding steward: %w", err)
	}
	return nil
}

// ListStewardIDs returns the user IDs stewarding a hub.
func ListStewardIDs(ctx context.Context, db *sql.DB, hubID int64) ([]int64, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT user_id FROM hub_stewards WHERE hub_id = ? ORDER BY user_id`, hubID)
	if err != nil {
		return nil, fmt.Errorf("listing stewards: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning steward id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// StewardsHub reports whether the user stewards the given hub.
func StewardsHub(ctx context.Context, db *sql.DB, userID, hubID int64) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM hub_stewards WHERE hub_id = ? AND user_id = ?`,
		hubID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking steward: %w", err)
	}
	return n > 0, nil
}
