package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/accounts/internal/apperrors"
	"github.com/nkiryanov/accounts/internal/handlers/render"
	"github.com/nkiryanov/accounts/internal/logger"
)

// Status for every error a caller may see
// Messages are the sentinel texts, they never carry internal details
var statusByError = []struct {
	err  error
	code int
}{
	{apperrors.ErrInvalidCredentials, http.StatusUnauthorized},
	{apperrors.ErrSessionExpired, http.StatusUnauthorized},
	{apperrors.ErrDuplicateEmail, http.StatusConflict},
	{apperrors.ErrForbidden, http.StatusForbidden},
	{apperrors.ErrUserNotFound, http.StatusNotFound},
	{apperrors.ErrNoActiveSessions, http.StatusBadRequest},
	{apperrors.ErrResetTokenInvalid, http.StatusBadRequest},
	{apperrors.ErrResetTokenExpired, http.StatusBadRequest},
}

// Render known errors with their status
// Anything else is logged and rendered as generic 500
func renderError(w http.ResponseWriter, l logger.Logger, err error) {
	for _, known := range statusByError {
		if errors.Is(err, known.err) {
			render.ServiceError(w, known.err.Error(), known.code)
			return
		}
	}

	l.Error("request failed", "error", err)
	render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
}
