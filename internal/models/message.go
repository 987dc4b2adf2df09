package models

import (
	"time"

	"github.com/google/uuid"
)

// Sender identifies which side of a conversation produced a message.
type Sender string

const (
	SenderCitizen  Sender = "citizen"
	SenderOperator Sender = "operator"
	SenderSystem   Sender = "system"
)

// Message is one turn in a conversation. Messages are append-only: they are
// never edited or deleted after insertion.
type Message struct {
	ID        string    `json:"id"` // ULID, lexically ordered by creation time
	SessionID uuid.UUID `json:"session_id"`
	Sender    Sender    `json:"sender"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
