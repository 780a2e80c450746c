package model

import "time"

// Reservation is a borrower's claim on a quantity of one item for a
// date range. Stock is held from creation until a terminal state.
type Reservation struct {
	ID       int64  `json:"id"`
	UserID   int64  `json:"user_id"`
	ItemID   int64  `json:"item_id"`
	HubID    int64  `json:"hub_id"`
	Quantity int    `json:"quantity"`
	Status   string `json:"status"`

	// Calendar dates (no time component). ActualReturnDate is nil
	// until the item comes back.
	PickupDate         Date  `json:"pickup_date"`
	ExpectedReturnDate Date  `json:"expected_return_date"`
	ActualReturnDate   *Date `json:"actual_return_date,omitempty"`

	ExtensionRequested bool `json:"extension_requested"`
	ExtensionApproved  bool `json:"extension_approved"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Joined fields (not always populated).
	UserName string `json:"user_name,omitempty"`
	ItemName string `json:"item_name,omitempty"`
	HubName  string `json:"hub_name,omitempty"`
}

// Reservation statuses. Returned and cancelled are terminal.
const (
	ReservationPending   = "pending"
	ReservationConfirmed = "confirmed"
	ReservationPickedUp  = "picked_up"
	ReservationReturned  = "returned"
	ReservationCancelled = "cancelled"
	ReservationOverdue   = "overdue"
)

// Terminal reports whether the reservation can no longer transition.
func (r *Reservation) Terminal() bool {
	return r.Status == ReservationReturned || r.Status == ReservationCancelled
}
