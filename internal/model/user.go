package model

import "time"

// User identifies the signed-in account. A nil *User anywhere in the
// application means signed out.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
