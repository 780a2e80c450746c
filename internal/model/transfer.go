package model

import "time"

// Transfer represents a steward-initiated relocation of item quantity
// between two hubs. Completed and cancelled are terminal.
type Transfer struct {
	ID        int64  `json:"id"`
	ItemID    int64  `json:"item_id"`
	FromHubID int64  `json:"from_hub_id"`
	ToHubID   int64  `json:"to_hub_id"`
	Quantity  int    `json:"quantity"`
	Status    string `json:"status"`

	InitiatedBy int64  `json:"initiated_by"`
	ApprovedBy  *int64 `json:"approved_by,omitempty"`
	CompletedBy *int64 `json:"completed_by,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Notes       string `json:"notes,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Joined fields (not always populated).
	ItemName    string `json:"item_name,omitempty"`
	FromHubName string `json:"from_hub_name,omitempty"`
	ToHubName   string `json:"to_hub_name,omitempty"`
}

// Transfer statuses.
const (
	TransferPending   = "pending"
	TransferInTransit = "in_transit"
	TransferCompleted = "completed"
	TransferCancelled = "cancelled"
)
