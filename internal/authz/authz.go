package authz

import (
	"github.com/google/uuid"

	"github.com/nkiryanov/accounts/internal/apperrors"
	"github.com/nkiryanov/accounts/internal/models"
)

// Principal is the authenticated caller
type Principal struct {
	UserID uuid.UUID
	Role   models.Role
}

func FromUser(u models.User) Principal {
	return Principal{UserID: u.ID, Role: u.Role}
}

// Predicate decides whether principal may act on the target user
// Returns nil if allowed, apperrors.ErrForbidden otherwise
type Predicate func(p Principal, target uuid.UUID) error

// Self allows acting on own account only
func Self() Predicate {
	return func(p Principal, target uuid.UUID) error {
		if p.UserID != uuid.Nil && p.UserID == target {
			return nil
		}
		return apperrors.ErrForbidden
	}
}

// Role allows principals with the role to act on any account
func Role(role models.Role) Predicate {
	return func(p Principal, _ uuid.UUID) error {
		if p.Role == role {
			return nil
		}
		return apperrors.ErrForbidden
	}
}

func Admin() Predicate {
	return Role(models.RoleAdmin)
}

// AnyOf allows when at least one predicate allows
func AnyOf(preds ...Predicate) Predicate {
	return func(p Principal, target uuid.UUID) error {
		for _, pred := range preds {
			if pred(p, target) == nil {
				return nil
			}
		}
		return apperrors.ErrForbidden
	}
}

// AllOf allows only when every predicate allows
func AllOf(preds ...Predicate) Predicate {
	return func(p Principal, target uuid.UUID) error {
		if len(preds) == 0 {
			return apperrors.ErrForbidden
		}
		for _, pred := range preds {
			if err := pred(p, target); err != nil {
				return err
			}
		}
		return nil
	}
}

// Policy for every user account endpoint
var SelfOrAdmin = AnyOf(Self(), Admin())
