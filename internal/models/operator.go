package models

import (
	"time"

	"github.com/google/uuid"
)

// Operator is an authenticated staff user of the admin console.
type Operator struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
