package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/accounts/internal/logger"
	"github.com/nkiryanov/accounts/internal/models"
	"github.com/nkiryanov/accounts/internal/repository"
)

type UserService struct {
	storage repository.Storage
	logger  logger.Logger
}

func NewService(storage repository.Storage, l logger.Logger) (*UserService, error) {
	if storage == nil {
		return nil, errors.New("storage must not be nil")
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &UserService{
		storage: storage,
		logger:  l.With("component", "user"),
	}, nil
}

func (s *UserService) GetUser(ctx context.Context, userID uuid.UUID) (models.User, error) {
	user, err := s.storage.User().GetUserByID(ctx, userID)
	if err != nil {
		return user, fmt.Errorf("can't get user. Err: %w", err)
	}
	return user, nil
}

type ProfileUpdate struct {
	Email       *string
	FullName    *string
	PhoneNumber *string
	JobTitle    *string
}

// Update only fields that set
// Has to return apperrors.ErrDuplicateEmail if new email is taken
func (s *UserService) UpdateProfile(ctx context.Context, userID uuid.UUID, upd ProfileUpdate) (models.User, error) {
	if upd.Email != nil {
		email := models.NormalizeEmail(*upd.Email)
		upd.Email = &email
	}

	user, err := s.storage.User().UpdateProfile(ctx, userID, repository.UpdateProfileParams{
		Email:       upd.Email,
		FullName:    upd.FullName,
		PhoneNumber: upd.PhoneNumber,
		JobTitle:    upd.JobTitle,
	})
	if err != nil {
		return user, fmt.Errorf("can't update user. Err: %w", err)
	}

	return user, nil
}

// Delete user with sessions and reset tokens
func (s *UserService) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	if err := s.storage.User().DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("can't delete user. Err: %w", err)
	}

	s.logger.Info("user deleted", "user_id", userID)
	return nil
}

type ProvisionParams struct {
	Email       string
	FullName    string
	Role        models.Role
	PhoneNumber string
	JobTitle    string
	DocumentKey string
}

// Create account on behalf of the user, e.g. by admin
// No password is stored: account can't log in until the owner sets one through password reset
func (s *UserService) Provision(ctx context.Context, params ProvisionParams) (models.User, error) {
	user, err := s.storage.User().CreateUser(ctx, repository.CreateUserParams{
		Email:       models.NormalizeEmail(params.Email),
		FullName:    params.FullName,
		Role:        params.Role,
		PhoneNumber: params.PhoneNumber,
		JobTitle:    params.JobTitle,
		DocumentKey: params.DocumentKey,
	})
	if err != nil {
		return user, fmt.Errorf("can't create user. Err: %w", err)
	}

	s.logger.Info("user provisioned", "user_id", user.ID, "role", user.Role)
	return user, nil
}
