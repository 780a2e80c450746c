package model

import (
	"fmt"
	"time"
)

// User represents an account that can borrow items or steward hubs.
type User struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`

	// Late-return bookkeeping. LateReturnCount only decreases on a
	// manual reset; BorrowingRestrictedUntil is nil when unrestricted.
	LateReturnCount          int        `json:"late_return_count"`
	BorrowingRestrictedUntil *time.Time `json:"borrowing_restricted_until,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Roles.
const (
	RoleAdmin    = "admin"
	RoleSteward  = "steward"
	RoleBorrower = "borrower"
)

// RoleAtLeast checks if role meets or exceeds the minimum required
// role. Unknown roles fail closed on either side.
func RoleAtLeast(role, minimum string) bool {
	levels := map[string]int{
		RoleAdmin:    3,
		RoleSteward:  2,
		RoleBorrower: 1,
	}
	r, ok := levels[role]
	if !ok {
		return false
	}
	m, ok := levels[minimum]
	if !ok {
		return false
	}
	return r >= m
}

// RestrictedAt reports whether the user is barred from creating new
// reservations at the given instant.
func (u *User) RestrictedAt(now time.Time) bool {
	return u.BorrowingRestrictedUntil != nil && u.BorrowingRestrictedUntil.After(now)
}

// ValidatePassword checks password requirements.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	return nil
}
