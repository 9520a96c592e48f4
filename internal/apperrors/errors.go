package apperrors

import (
	"errors"
)

// Domain errors returned to callers with a stable message
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrDuplicateEmail     = errors.New("user with such email already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrNoActiveSessions   = errors.New("user already logged out")
	ErrForbidden          = errors.New("not allowed to access another user's account")

	// Catch-all for every refresh path failure
	// Bad signature, missing session and hash mismatch are indistinguishable for the caller
	ErrSessionExpired = errors.New("session expired")

	ErrResetTokenInvalid = errors.New("invalid or expired reset token")
	ErrResetTokenExpired = errors.New("reset token expired")
)

// Infrastructure errors
// Logged with details, surfaced to the caller as generic internal failure
var (
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Repository level errors
// Services translate them to the domain errors above and never return them as is
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrResetTokenNotFound = errors.New("reset token not found")
)
