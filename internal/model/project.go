package model

import "time"

// Project is a grouping container for related tasks. Tasks reference a
// project by ID; deleting a project does not cascade, so a task may hold
// an orphaned project reference and is treated as inbox when rendered.
type Project struct {
	ID         string    `json:"id" db:"id"`
	UserID     string    `json:"user_id" db:"user_id"`
	Name       string    `json:"name" db:"name"`
	Color      string    `json:"color" db:"color"`
	OrderIndex int64     `json:"order_index" db:"order_index"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
