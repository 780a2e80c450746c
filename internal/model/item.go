package model

import "time"

// Item represents a borrowable item type held at a single hub
// (quantity-based, not individual tracking).
type Item struct {
	ID          int64  `json:"id"`
	HubID       int64  `json:"hub_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Condition   string `json:"condition,omitempty"`
	ImageMime   string `json:"image_mime,omitempty"`
	Status      string `json:"status"`

	// Stock counts. QuantityAvailable never exceeds QuantityTotal and
	// never goes negative; reserved stock stays inside the gap between
	// the two until it is released or relocated.
	QuantityTotal     int `json:"quantity_total"`
	QuantityAvailable int `json:"quantity_available"`

	// Incident reporting.
	IncidentReportCount int        `json:"incident_report_count"`
	IsFlagged           bool       `json:"is_flagged"`
	FlaggedAt           *time.Time `json:"flagged_at,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	// Joined fields (not always populated).
	HubName string `json:"hub_name,omitempty"`
}

// Item statuses.
const (
	ItemStatusActive   = "active"
	ItemStatusInactive = "inactive"
	ItemStatusDamaged  = "damaged"
	ItemStatusReserved = "reserved"
)
