package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/accounts/internal/models"
)

type CreateUserParams struct {
	Email          string
	FullName       string
	HashedPassword string // empty for accounts provisioned without credentials
	Role           models.Role
	PhoneNumber    string
	JobTitle       string
	DocumentKey    string
}

// Nil fields are left unchanged
type UpdateProfileParams struct {
	Email       *string
	FullName    *string
	PhoneNumber *string
	JobTitle    *string
}

// User repository interface
type UserRepo interface {
	// Create user
	// If user with the email exists already has to return apperrors.ErrDuplicateEmail
	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)

	// Get user by it's id or email
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	// Must return apperrors.ErrUserNotFound if nothing was updated
	UpdatePassword(ctx context.Context, userID uuid.UUID, hashedPassword string) error
	UpdateProfile(ctx context.Context, userID uuid.UUID, params UpdateProfileParams) (models.User, error)

	// Delete user with all its sessions and reset tokens
	DeleteUser(ctx context.Context, userID uuid.UUID) error
}

// Session repository interface
// Session id is the only lookup key for a refresh token: user may have many sessions
type SessionRepo interface {
	// Create session with empty refresh hash
	Create(ctx context.Context, userID uuid.UUID, device string, createdAt time.Time) (models.Session, error)

	// Set hash of the refresh token issued for the session
	// Must return apperrors.ErrSessionNotFound if session not exists
	SetRefreshHash(ctx context.Context, sessionID string, refreshHash string) error

	// Get session and lock it until transaction ends
	// Must be called in transaction, otherwise the lock is released immediately
	GetForUpdate(ctx context.Context, sessionID string) (models.Session, error)
	Get(ctx context.Context, sessionID string) (models.Session, error)

	// Must return apperrors.ErrSessionNotFound if nothing was deleted
	Delete(ctx context.Context, sessionID string) error

	// Delete all user sessions, return how many were deleted
	DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	CountByUser(ctx context.Context, userID uuid.UUID) (int64, error)

	// Housekeeping: sessions created before the time can't hold a valid refresh token
	DeleteCreatedBefore(ctx context.Context, before time.Time) (int64, error)
}

// Password reset tokens repository interface
type ResetRepo interface {
	Create(ctx context.Context, token models.ResetToken) error

	// Must return apperrors.ErrResetTokenNotFound if token not exists
	Get(ctx context.Context, tokenID string) (models.ResetToken, error)
	GetForUpdate(ctx context.Context, tokenID string) (models.ResetToken, error)

	// Must return apperrors.ErrResetTokenNotFound if nothing was deleted
	// So only one of concurrent callers may consume a token
	Delete(ctx context.Context, tokenID string) error

	CountByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	DeleteExpiredBefore(ctx context.Context, before time.Time) (int64, error)
}

// Storage gives access to all repositories
// InTx runs fn with storage bound to one transaction: commit if fn returns nil, rollback otherwise
type Storage interface {
	User() UserRepo
	Session() SessionRepo
	Reset() ResetRepo

	InTx(ctx context.Context, fn func(Storage) error) error
}
