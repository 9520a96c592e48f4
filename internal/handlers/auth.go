package handlers

import (
	"net/http"

	"github.com/nkiryanov/accounts/internal/apperrors"
	"github.com/nkiryanov/accounts/internal/authz"
	"github.com/nkiryanov/accounts/internal/handlers/render"
	"github.com/nkiryanov/accounts/internal/logger"
	"github.com/nkiryanov/accounts/internal/models"
	"github.com/nkiryanov/accounts/internal/service/auth"
)

type authResponse struct {
	User        models.SafeUser `json:"user"`
	AccessToken string          `json:"accessToken"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Set refresh cookie and access header, render user with access token
func renderAuthResult(w http.ResponseWriter, cookies refreshCookies, result models.AuthResult, code int) {
	cookies.set(w, result.Pair.Refresh)
	w.Header().Set("Authorization", "Bearer "+result.Pair.Access.Value)
	render.JSONStatus(w, authResponse{User: result.User, AccessToken: result.Pair.Access.Value}, code)
}

func handleRegister(authService authService, cookies refreshCookies, l logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		FullName string `json:"fullName" validate:"required,min=2,max=30"`
		Password string `json:"password" validate:"required,min=4"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		result, err := authService.Register(r.Context(), auth.RegisterParams{
			Email:    data.Email,
			FullName: data.FullName,
			Password: data.Password,
			Device:   r.UserAgent(),
		})
		if err != nil {
			renderError(w, l, err)
			return
		}

		renderAuthResult(w, cookies, result, http.StatusCreated)
	})
}

func handleLogin(authService authService, cookies refreshCookies, l logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=4"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		result, err := authService.Login(r.Context(), data.Email, data.Password, r.UserAgent())
		if err != nil {
			renderError(w, l, err)
			return
		}

		renderAuthResult(w, cookies, result, http.StatusOK)
	})
}

func handleRefresh(authService authService, cookies refreshCookies, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, ok := cookies.get(r)
		if !ok {
			renderError(w, l, apperrors.ErrSessionExpired)
			return
		}

		result, err := authService.RotateSession(r.Context(), refresh)
		if err != nil {
			renderError(w, l, err)
			return
		}

		renderAuthResult(w, cookies, result, http.StatusOK)
	})
}

func handlePasswordReset(resetService resetService, l logger.Logger) http.Handler {
	type request struct {
		Email string `json:"email" validate:"required,email"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		if err := resetService.RequestReset(r.Context(), data.Email); err != nil {
			renderError(w, l, err)
			return
		}

		// Same answer for registered and unknown emails
		render.JSONStatus(w, messageResponse{Message: "If the email is registered, a reset link has been sent"}, http.StatusAccepted)
	})
}

func handleSetNewPassword(resetService resetService, l logger.Logger) http.Handler {
	type request struct {
		TokenID     string `json:"tid" validate:"required"`
		Token       string `json:"token" validate:"required"`
		NewPassword string `json:"newPassword" validate:"required,min=4"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		if err := resetService.ConsumeReset(r.Context(), data.TokenID, data.Token, data.NewPassword); err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, messageResponse{Message: "Password reset successful"})
	})
}

// Logout everywhere: drop every session of the user
func handleLogout(authService authService, cookies refreshCookies, l logger.Logger) http.Handler {
	type response struct {
		Message string `json:"message"`
		Revoked int64  `json:"revoked"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target, ok := authorize(w, r, l, authz.SelfOrAdmin)
		if !ok {
			return
		}

		n, err := authService.RevokeAllSessions(r.Context(), target)
		if err != nil {
			renderError(w, l, err)
			return
		}

		cookies.clear(w)
		render.JSON(w, response{Message: "Logged out successfully", Revoked: n})
	})
}
