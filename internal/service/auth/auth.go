package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/accounts/internal/apperrors"
	"github.com/nkiryanov/accounts/internal/logger"
	"github.com/nkiryanov/accounts/internal/metrics"
	"github.com/nkiryanov/accounts/internal/models"
	"github.com/nkiryanov/accounts/internal/repository"
	"github.com/nkiryanov/accounts/internal/service/auth/tokenmanager"
)

// Compared against when user has no password, so unknown emails take as long as wrong passwords
const dummyPassword = "dummy-password-never-matches"

type Config struct {
	// Hasher to use during registration or login
	// Bcrypt wrapped into PooledHasher if not set
	Hasher PasswordHasher

	// Clock, time.Now if not set
	Now func() time.Time

	Logger  logger.Logger
	Metrics *metrics.Metrics
}

type tokenManager interface {
	SignAccess(user models.SafeUser) (models.IssuedToken, error)
	SignRefresh(user models.SafeUser, sessionID string) (models.IssuedToken, error)
	ParseAccess(access string) (tokenmanager.AccessTokenClaims, error)
	ParseRefresh(refresh string) (tokenmanager.RefreshTokenClaims, error)
}

// Auth service
// Verifies credentials and owns the whole session lifecycle: issue, rotate, revoke
type AuthService struct {
	tokens  tokenManager
	hasher  PasswordHasher
	storage repository.Storage

	now     func() time.Time
	logger  logger.Logger
	metrics *metrics.Metrics

	dummyHash string
}

func NewService(cfg Config, tokens tokenManager, storage repository.Storage) (*AuthService, error) {
	if tokens == nil || storage == nil {
		return nil, errors.New("token manager and storage must not be nil")
	}

	if cfg.Hasher == nil {
		cfg.Hasher = NewPooledHasher(BcryptHasher{}, 0)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}

	dummyHash, err := cfg.Hasher.Hash(context.Background(), dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("can't prepare dummy password hash: %w", err)
	}

	return &AuthService{
		tokens:    tokens,
		hasher:    cfg.Hasher,
		storage:   storage,
		now:       cfg.Now,
		logger:    cfg.Logger.With("component", "auth"),
		metrics:   cfg.Metrics,
		dummyHash: dummyHash,
	}, nil
}

// Hasher used by the service, other services share it to keep one hashing pool
func (s *AuthService) Hasher() PasswordHasher {
	return s.hasher
}

type RegisterParams struct {
	Email    string
	FullName string
	Password string
	Device   string
}

// Register user and log him in
// Has to return apperrors.ErrDuplicateEmail if user with the email exists
func (s *AuthService) Register(ctx context.Context, params RegisterParams) (models.AuthResult, error) {
	var result models.AuthResult

	hash, err := s.hasher.Hash(ctx, params.Password)
	if err != nil {
		return result, fmt.Errorf("can't use this as password. Err: %w", err)
	}

	err = s.storage.InTx(ctx, func(st repository.Storage) error {
		user, err := st.User().CreateUser(ctx, repository.CreateUserParams{
			Email:          models.NormalizeEmail(params.Email),
			FullName:       params.FullName,
			HashedPassword: hash,
			Role:           models.RoleUser,
		})
		if err != nil {
			return err
		}

		pair, err := s.issue(ctx, st, user.Safe(), params.Device)
		if err != nil {
			return err
		}

		result = models.AuthResult{User: user.Safe(), Pair: pair}
		return nil
	})
	if err != nil {
		return models.AuthResult{}, err
	}

	s.metrics.SessionIssued()
	s.logger.Info("user registered", "user_id", result.User.ID)
	return result, nil
}

// Login: check credentials and issue new session
func (s *AuthService) Login(ctx context.Context, email string, password string, device string) (models.AuthResult, error) {
	user, err := s.VerifyCredentials(ctx, email, password)
	if err != nil {
		return models.AuthResult{}, err
	}

	pair, err := s.IssueSession(ctx, user, device)
	if err != nil {
		return models.AuthResult{}, err
	}

	return models.AuthResult{User: user, Pair: pair}, nil
}

// Check email and password
// Unknown email, wrong password or user without password all give apperrors.ErrInvalidCredentials
func (s *AuthService) VerifyCredentials(ctx context.Context, email string, password string) (models.SafeUser, error) {
	user, err := s.storage.User().GetUserByEmail(ctx, models.NormalizeEmail(email))
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return models.SafeUser{}, s.rejectCredentials(ctx, password)
	case err != nil:
		s.metrics.CredentialCheck(metrics.ResultError)
		return models.SafeUser{}, fmt.Errorf("can't get user. Err: %w", err)
	case !user.CanLogin():
		return models.SafeUser{}, s.rejectCredentials(ctx, password)
	}

	if err := s.hasher.Compare(ctx, user.HashedPassword, password); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.SafeUser{}, ctxErr
		}
		s.metrics.CredentialCheck(metrics.ResultRejected)
		return models.SafeUser{}, apperrors.ErrInvalidCredentials
	}

	s.metrics.CredentialCheck(metrics.ResultOK)
	return user.Safe(), nil
}

// Spend the same time as real comparison and reject
func (s *AuthService) rejectCredentials(ctx context.Context, password string) error {
	_ = s.hasher.Compare(ctx, s.dummyHash, password)

	s.metrics.CredentialCheck(metrics.ResultRejected)
	return apperrors.ErrInvalidCredentials
}

// Create new session for the user and return token pair bound to it
func (s *AuthService) IssueSession(ctx context.Context, user models.SafeUser, device string) (models.TokenPair, error) {
	var pair models.TokenPair

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		var err error
		pair, err = s.issue(ctx, st, user, device)
		return err
	})
	if err != nil {
		return models.TokenPair{}, err
	}

	s.metrics.SessionIssued()
	return pair, nil
}

// Session is created first: refresh token has to carry its id
// Until hash is set the session is unusable, empty hash matches nothing
func (s *AuthService) issue(ctx context.Context, st repository.Storage, user models.SafeUser, device string) (models.TokenPair, error) {
	session, err := st.Session().Create(ctx, user.ID, device, s.now())
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("can't create session. Err: %w", err)
	}

	access, err := s.tokens.SignAccess(user)
	if err != nil {
		return models.TokenPair{}, err
	}

	refresh, err := s.tokens.SignRefresh(user, session.ID)
	if err != nil {
		return models.TokenPair{}, err
	}

	err = st.Session().SetRefreshHash(ctx, session.ID, hashRefresh(refresh.Value))
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("can't bind refresh token to session. Err: %w", err)
	}

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

var (
	errSessionOwner   = errors.New("session belongs to another user")
	errRefreshUnknown = errors.New("refresh token does not match session")
)

// Exchange refresh token for a new pair
// Presented session is deleted and a new one created in the same transaction, so old token is dead after
// Every failure is apperrors.ErrSessionExpired, the reason is only logged
func (s *AuthService) RotateSession(ctx context.Context, refresh string) (models.AuthResult, error) {
	var result models.AuthResult

	claims, err := s.tokens.ParseRefresh(refresh)
	if err != nil {
		return result, s.rejectRotation(err)
	}

	err = s.storage.InTx(ctx, func(st repository.Storage) error {
		// Concurrent rotations of this session wait here
		// Loser finds no row when the winner commits
		session, err := st.Session().GetForUpdate(ctx, claims.SessionID)
		if err != nil {
			return err
		}

		switch {
		case session.UserID != claims.UserID:
			return errSessionOwner
		case !refreshMatches(session.RefreshHash, refresh):
			return errRefreshUnknown
		}

		if err := st.Session().Delete(ctx, session.ID); err != nil {
			return err
		}

		// Token claims may be stale, take current profile
		user, err := st.User().GetUserByID(ctx, session.UserID)
		if err != nil {
			return err
		}

		pair, err := s.issue(ctx, st, user.Safe(), session.Device)
		if err != nil {
			return err
		}

		result = models.AuthResult{User: user.Safe(), Pair: pair}
		return nil
	})

	switch {
	case err == nil:
		s.metrics.Rotation(metrics.ResultOK)
		s.metrics.SessionIssued()
		return result, nil
	case errors.Is(err, apperrors.ErrStoreUnavailable):
		s.metrics.Rotation(metrics.ResultError)
		return models.AuthResult{}, fmt.Errorf("can't rotate session. Err: %w", err)
	default:
		return models.AuthResult{}, s.rejectRotation(err)
	}
}

func (s *AuthService) rejectRotation(cause error) error {
	s.metrics.Rotation(metrics.ResultRejected)
	s.logger.Debug("refresh token rejected", "error", cause)
	return apperrors.ErrSessionExpired
}

// Delete every session of the user: logout everywhere
// apperrors.ErrUserNotFound if no such user, apperrors.ErrNoActiveSessions if nothing to delete
func (s *AuthService) RevokeAllSessions(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		if _, err := st.User().GetUserByID(ctx, userID); err != nil {
			return err
		}

		var err error
		n, err = st.Session().DeleteByUser(ctx, userID)
		if err != nil {
			return err
		}

		if n == 0 {
			return apperrors.ErrNoActiveSessions
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.metrics.SessionsRevoked(n)
	s.logger.Info("all user sessions revoked", "user_id", userID, "count", n)
	return n, nil
}

// Authenticate request by access token
// Returns current user state: deleted users lose access even with unexpired token
func (s *AuthService) Authenticate(ctx context.Context, access string) (models.User, error) {
	claims, err := s.tokens.ParseAccess(access)
	if err != nil {
		s.logger.Debug("access token rejected", "error", err)
		return models.User{}, apperrors.ErrSessionExpired
	}

	user, err := s.storage.User().GetUserByID(ctx, claims.UserID)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return models.User{}, apperrors.ErrSessionExpired
	case err != nil:
		return models.User{}, fmt.Errorf("can't get user. Err: %w", err)
	}

	return user, nil
}
