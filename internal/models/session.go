package models

import (
	"time"

	"github.com/google/uuid"
)

// Session binds the hash of the currently valid refresh token to its owner
// One user may hold many sessions: one per device
type Session struct {
	ID          string
	UserID      uuid.UUID
	RefreshHash string // empty until the refresh token is signed; never matches anything
	Device      string
	CreatedAt   time.Time
}
