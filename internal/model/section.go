package model

import "time"

// Section is a named grouping of tasks with its own collapse state.
// Task order indexes are scoped per section: reordering one section's
// tasks never perturbs another's.
type Section struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	Order     int64     `json:"order" db:"sort_order"`
	Collapsed bool      `json:"collapsed" db:"collapsed"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
