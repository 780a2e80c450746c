package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/flokr/lendhub/internal/model"
)

const userColumns = `id, email, name, password_hash, role, late_return_count,
	borrowing_restricted_until, created_at, deleted_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	u := &model.User{}
	var restrictedUntil sql.NullString
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role,
		&u.LateReturnCount, &restrictedUntil, &u.CreatedAt, &u.DeletedAt)
	if err != nil {
		return nil, err
	}
	u.BorrowingRestrictedUntil = parseNullTime(restrictedUntil)
	return u, nil
}

// CreateUser creates a new user.
func CreateUser(ctx context.Context, db *sql.DB, email, name, passwordHash, role string) (*model.User, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO users (email, name, password_hash, role) VALUES (?, ?, ?, ?)`,
		email, name, passwordHash, role,
	)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	return GetUser(ctx, db, id)
}

// GetUser returns a user by ID.
func GetUser(ctx context.Context, db *sql.DB, id int64) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns an active user by email.
func GetUserByEmail(ctx context.Context, db *sql.DB, email string) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? AND deleted_at IS NULL`, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return u, nil
}

// ListRestrictedBefore returns users whose borrowing restriction has
// expired as of the given instant.
func ListRestrictedBefore(ctx context.Context, db *sql.DB, now string) ([]model.User, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE borrowing_restricted_until IS NOT NULL AND borrowing_restricted_until <= ?
		   AND deleted_at IS NULL`, now)
	if err != nil {
		return nil, fmt.Errorf("listing expired restrictions: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

// ListRestrictionEndingBetween returns users whose restriction ends in
// the window (now, end].
func ListRestrictionEndingBetween(ctx context.Context, db *sql.DB, now, end string) ([]model.User, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE borrowing_restricted_until > ? AND borrowing_restricted_until <= ?
		   AND deleted_at IS NULL`, now, end)
	if err != nil {
		return nil, fmt.Errorf("listing ending restrictions: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

func collectUsers(rows *sql.Rows) ([]model.User, error) {
	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}
