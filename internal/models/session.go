package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionState is the lifecycle state of a citizen conversation.
type SessionState string

const (
	// StateBot means no operator is involved; the automated assistant answers.
	StateBot SessionState = "bot"
	// StateLiveUnclaimed means the citizen is waiting for a human operator.
	StateLiveUnclaimed SessionState = "live_unclaimed"
	// StateLiveClaimed means exactly one operator owns the conversation.
	StateLiveClaimed SessionState = "live_claimed"
)

// Session represents one ongoing citizen conversation thread.
// Owner is non-nil if and only if State is StateLiveClaimed.
type Session struct {
	ID             uuid.UUID    `json:"id"`
	CitizenName    string       `json:"citizen_name"`
	State          SessionState `json:"state"`
	Owner          *string      `json:"owner,omitempty"` // operator email
	Topic          string       `json:"topic,omitempty"` // derived, never persisted
	CreatedAt      time.Time    `json:"created_at"`
	LastActivityAt time.Time    `json:"last_activity_at"`
}

// Claimed reports whether the session is owned by an operator.
func (s *Session) Claimed() bool {
	return s.State == StateLiveClaimed && s.Owner != nil
}

// OwnedBy reports whether the session is claimed by the given operator.
func (s *Session) OwnedBy(operator string) bool {
	return s.Claimed() && *s.Owner == operator
}
