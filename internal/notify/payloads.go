package notify

import "github.com/flokr/lendhub/internal/model"

// One payload struct per notification kind, constructed at the call
// site, so downstream consumers get typed fields instead of a blob.

// ReservationData accompanies expiry and pickup/return reminders.
type ReservationData struct {
	ReservationID int64      `json:"reservation_id"`
	ItemName      string     `json:"item_name"`
	HubName       string     `json:"hub_name"`
	PickupDate    model.Date `json:"pickup_date,omitempty"`
	ReturnDate    model.Date `json:"return_date,omitempty"`
}

// OverdueData accompanies overdue escalations, for borrowers and stewards.
type OverdueData struct {
	ReservationID      int64      `json:"reservation_id"`
	ItemName           string     `json:"item_name"`
	HubName            string     `json:"hub_name"`
	BorrowerName       string     `json:"borrower_name,omitempty"`
	DaysOverdue        int        `json:"days_overdue"`
	ExpectedReturnDate model.Date `json:"expected_return_date"`
	Urgent             bool       `json:"urgent"`
}

// LateReturnData accompanies late-return notices and warnings.
type LateReturnData struct {
	ReservationID   int64 `json:"reservation_id,omitempty"`
	DaysLate        int   `json:"days_late,omitempty"`
	LateReturnCount int   `json:"late_return_count"`
	Threshold       int   `json:"threshold"`
}

// RestrictionData accompanies restriction lifecycle notifications.
type RestrictionData struct {
	LateReturnCount int    `json:"late_return_count,omitempty"`
	RestrictionEnd  string `json:"restriction_end,omitempty"`
	RestrictionDays int    `json:"restriction_days,omitempty"`
	DaysRemaining   int    `json:"days_remaining,omitempty"`
	LiftedBy        string `json:"lifted_by,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// TransferData accompanies every transfer transition notification.
type TransferData struct {
	TransferID  int64  `json:"transfer_id"`
	ItemName    string `json:"item_name"`
	Quantity    int    `json:"quantity"`
	FromHubName string `json:"from_hub_name"`
	ToHubName   string `json:"to_hub_name"`
	Reason      string `json:"reason,omitempty"`
}

// ItemFlagData accompanies flagging and flag-resolution notifications.
type ItemFlagData struct {
	ItemID        int64  `json:"item_id"`
	ItemName      string `json:"item_name"`
	IncidentCount int    `json:"incident_count,omitempty"`
	Notes         string `json:"notes,omitempty"`
}
