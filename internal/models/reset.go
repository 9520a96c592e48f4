package models

import (
	"time"

	"github.com/google/uuid"
)

// ResetToken backs a single password reset link
// The raw secret is sent by email only, the record keeps its hash
type ResetToken struct {
	ID        string
	UserID    uuid.UUID
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (t ResetToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
