package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/flokr/lendhub/internal/model"
)

const itemColumns = `i.id, i.hub_id, i.name, i.description, i.category, i.condition,
	i.image_mime, i.status, i.quantity_total, i.quantity_available,
	i.incident_report_count, i.is_flagged, i.flagged_at,
	i.created_at, i.updated_at, i.deleted_at`

func scanItem(row interface{ Scan(...any) error }) (*model.Item, error) {
	item := &model.Item{}
	var description, category, condition, imageMime, flaggedAt sql.NullString
	err := row.Scan(&item.ID, &item.HubID, &item.Name, &description, &category, &condition,
		&imageMime, &item.Status, &item.QuantityTotal, &item.QuantityAvailable,
		&item.IncidentReportCount, &item.IsFlagged, &flaggedAt,
		&item.CreatedAt, &item.UpdatedAt, &item.DeletedAt)
	if err != nil {
		return nil, err
	}
	item.Description = description.String
	item.Category = category.String
	item.Condition = condition.String
	item.ImageMime = imageMime.String
	item.FlaggedAt = parseNullTime(flaggedAt)
	return item, nil
}

// CreateItem creates a new item at a hub with initial stock.
func CreateItem(ctx context.Context, db *sql.DB, hubID int64, name, description, category string, quantity int) (*model.Item, error) {
	if quantity < 0 {
		return nil, fmt.Errorf("quantity must not be negative")
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO items (hub_id, name, description, category, quantity_total, quantity_available)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		hubID, name, description, category, quantity, quantity)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting item id: %w", err)
	}

	return GetItem(ctx, db, id)
}

// GetItem returns an item by ID.
func GetItem(ctx context.Context, db *sql.DB, id int64) (*model.Item, error) {
	item, err := scanItem(db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items i WHERE i.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// ListItems returns non-deleted items, optionally filtered by hub and status.
func ListItems(ctx context.Context, db *sql.DB, hubID int64, status string) ([]model.Item, error) {
	query := `SELECT ` + itemColumns + `, h.name AS hub_name
	          FROM items i JOIN hubs h ON h.id = i.hub_id
	          WHERE i.deleted_at IS NULL`
	var args []any

	if hubID > 0 {
		query += ` AND i.hub_id = ?`
		args = append(args, hubID)
	}
	if status != "" {
		query += ` AND i.status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY i.name`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item := &model.Item{}
		var description, category, condition, imageMime, flaggedAt sql.NullString
		if err := rows.Scan(&item.ID, &item.HubID, &item.Name, &description, &category, &condition,
			&imageMime, &item.Status, &item.QuantityTotal, &item.QuantityAvailable,
			&item.IncidentReportCount, &item.IsFlagged, &flaggedAt,
			&item.CreatedAt, &item.UpdatedAt, &item.DeletedAt, &item.HubName); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		item.Description = description.String
		item.Category = category.String
		item.Condition = condition.String
		item.ImageMime = imageMime.String
		item.FlaggedAt = parseNullTime(flaggedAt)
		items = append(items, *item)
	}
	return items, rows.Err()
}

// ListFlaggedItems returns flagged items, optionally for one hub.
func ListFlaggedItems(ctx context.Context, db *sql.DB, hubID int64) ([]model.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items i
	          WHERE i.is_flagged = 1 AND i.deleted_at IS NULL`
	var args []any
	if hubID > 0 {
		query += ` AND i.hub_id = ?`
		args = append(args, hubID)
	}
	query += ` ORDER BY i.flagged_at`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing flagged items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// SetItemImage stores a processed item photo.
func SetItemImage(ctx context.Context, db *sql.DB, id int64, data []byte, mime string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE items SET image = ?, image_mime = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`, data, mime, id)
	if err != nil {
		return fmt.Errorf("setting item image: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("item not found")
	}
	return nil
}

// GetItemImage returns an item's photo bytes and MIME type.
func GetItemImage(ctx context.Context, db *sql.DB, id int64) ([]byte, string, error) {
	var data []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT image, image_mime FROM items WHERE id = ? AND deleted_at IS NULL`, id,
	).Scan(&data, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting item image: %w", err)
	}
	return data, mime.String, nil
}
