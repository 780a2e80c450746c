package model

import "time"

// Hub is a physical location that holds inventory and is staffed by stewards.
type Hub struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Address   string     `json:"address,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}
