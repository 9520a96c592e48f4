package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/accounts/internal/apperrors"
	"github.com/nkiryanov/accounts/internal/authz"
	"github.com/nkiryanov/accounts/internal/handlers/render"
	"github.com/nkiryanov/accounts/internal/handlers/userctx"
	"github.com/nkiryanov/accounts/internal/logger"
	"github.com/nkiryanov/accounts/internal/models"
	"github.com/nkiryanov/accounts/internal/service/user"
)

// Account as its owner or admin sees it, never with password hash
type userResponse struct {
	ID          uuid.UUID   `json:"id"`
	Email       string      `json:"email"`
	FullName    string      `json:"fullName"`
	Role        models.Role `json:"role"`
	PhoneNumber string      `json:"phoneNumber,omitempty"`
	JobTitle    string      `json:"jobTitle,omitempty"`
	DocumentKey string      `json:"documentKey,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

func newUserResponse(u models.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		FullName:    u.FullName,
		Role:        u.Role,
		PhoneNumber: u.PhoneNumber,
		JobTitle:    u.JobTitle,
		DocumentKey: u.DocumentKey,
		CreatedAt:   u.CreatedAt,
	}
}

// Check the caller may act on user from {id} path value
// Writes error response and returns false if not
func authorize(w http.ResponseWriter, r *http.Request, l logger.Logger, pred authz.Predicate) (uuid.UUID, bool) {
	target, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		render.ServiceError(w, "Invalid user id", http.StatusBadRequest)
		return uuid.Nil, false
	}

	caller, ok := userctx.FromContext(r.Context())
	if !ok {
		renderError(w, l, apperrors.ErrSessionExpired)
		return uuid.Nil, false
	}

	if err := pred(authz.FromUser(caller), target); err != nil {
		renderError(w, l, err)
		return uuid.Nil, false
	}

	return target, true
}

func handleGetUser(userService userService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target, ok := authorize(w, r, l, authz.SelfOrAdmin)
		if !ok {
			return
		}

		u, err := userService.GetUser(r.Context(), target)
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, newUserResponse(u))
	})
}

func handleUpdateUser(userService userService, l logger.Logger) http.Handler {
	type request struct {
		Email       *string `json:"email" validate:"omitempty,email"`
		FullName    *string `json:"fullName" validate:"omitempty,min=2,max=30"`
		// Empty string clears the field
		PhoneNumber *string `json:"phoneNumber" validate:"omitempty,max=0|min=2"`
		JobTitle    *string `json:"jobTitle" validate:"omitempty,max=0|min=2"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target, ok := authorize(w, r, l, authz.SelfOrAdmin)
		if !ok {
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		u, err := userService.UpdateProfile(r.Context(), target, user.ProfileUpdate{
			Email:       data.Email,
			FullName:    data.FullName,
			PhoneNumber: data.PhoneNumber,
			JobTitle:    data.JobTitle,
		})
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, newUserResponse(u))
	})
}

func handleDeleteUser(userService userService, cookies refreshCookies, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target, ok := authorize(w, r, l, authz.SelfOrAdmin)
		if !ok {
			return
		}

		if err := userService.DeleteUser(r.Context(), target); err != nil {
			renderError(w, l, err)
			return
		}

		// Sessions are gone with the user
		if caller, _ := userctx.FromContext(r.Context()); caller.ID == target {
			cookies.clear(w)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// Admin creates account without password, the owner activates it with password reset
func handleProvisionUser(userService userService, l logger.Logger) http.Handler {
	type request struct {
		Email       string      `json:"email" validate:"required,email"`
		FullName    string      `json:"fullName" validate:"required,min=2,max=30"`
		Role        models.Role `json:"role" validate:"omitempty,oneof=user admin"`
		PhoneNumber string      `json:"phoneNumber" validate:"omitempty,min=2"`
		JobTitle    string      `json:"jobTitle" validate:"omitempty,min=2"`
		DocumentKey string      `json:"documentKey"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := userctx.FromContext(r.Context())
		if !ok {
			renderError(w, l, apperrors.ErrSessionExpired)
			return
		}
		if err := authz.Admin()(authz.FromUser(caller), uuid.Nil); err != nil {
			renderError(w, l, err)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		u, err := userService.Provision(r.Context(), user.ProvisionParams{
			Email:       data.Email,
			FullName:    data.FullName,
			Role:        data.Role,
			PhoneNumber: data.PhoneNumber,
			JobTitle:    data.JobTitle,
			DocumentKey: data.DocumentKey,
		})
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSONStatus(w, newUserResponse(u), http.StatusCreated)
	})
}
