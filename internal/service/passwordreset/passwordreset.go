package passwordreset

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/accounts/internal/apperrors"
	"github.com/nkiryanov/accounts/internal/logger"
	"github.com/nkiryanov/accounts/internal/mail"
	"github.com/nkiryanov/accounts/internal/metrics"
	"github.com/nkiryanov/accounts/internal/models"
	"github.com/nkiryanov/accounts/internal/repository"
	"github.com/nkiryanov/accounts/internal/service/auth"
)

const (
	defaultWindow = 15 * time.Minute

	// Delivery outlives the request, so it gets its own deadline
	deliveryTimeout = time.Minute

	secretBytes   = 32
	resetPath     = "/auth/user/reset-password"
)

type Config struct {
	// How long reset link stays valid, 15 minutes if not set
	Window time.Duration

	// Base url of the frontend page that reads the link
	FrontendURL string

	// Support address shown in the email
	SupportEmail string

	// Clock, time.Now if not set
	Now func() time.Time

	Logger  logger.Logger
	Metrics *metrics.Metrics
}

// Password reset: single use, time boxed tokens sent by email
type Service struct {
	storage repository.Storage
	hasher  auth.PasswordHasher
	mailer  mail.Sender

	window       time.Duration
	frontendURL  string
	supportEmail string

	now     func() time.Time
	logger  logger.Logger
	metrics *metrics.Metrics

	deliveries sync.WaitGroup
}

func NewService(cfg Config, storage repository.Storage, hasher auth.PasswordHasher, mailer mail.Sender) (*Service, error) {
	if storage == nil || hasher == nil || mailer == nil {
		return nil, errors.New("storage, hasher and mailer must not be nil")
	}

	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}

	return &Service{
		storage:      storage,
		hasher:       hasher,
		mailer:       mailer,
		window:       cfg.Window,
		frontendURL:  strings.TrimRight(cfg.FrontendURL, "/"),
		supportEmail: cfg.SupportEmail,
		now:          cfg.Now,
		logger:       cfg.Logger.With("component", "passwordreset"),
		metrics:      cfg.Metrics,
	}, nil
}

// Request reset link for the email
// Returns nil for unknown email too: caller must not learn whether account exists
// Token is created and mailed in background, the answer never waits for it
func (s *Service) RequestReset(ctx context.Context, email string) error {
	s.metrics.ResetRequested()

	user, err := s.storage.User().GetUserByEmail(ctx, models.NormalizeEmail(email))
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		s.logger.Debug("password reset requested for unknown email")
		return nil
	case err != nil:
		return fmt.Errorf("can't get user. Err: %w", err)
	}

	s.deliveries.Add(1)
	go func() {
		defer s.deliveries.Done()

		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
		defer cancel()

		// Token stays and expires by itself if mail fails, nobody is told
		if err := s.deliver(dctx, user); err != nil {
			s.logger.Error("can't deliver password reset email", "user_id", user.ID, "error", err)
		}
	}()

	return nil
}

// Wait until every started delivery finished
func (s *Service) Wait() {
	s.deliveries.Wait()
}

func (s *Service) deliver(ctx context.Context, user models.User) error {
	secret, err := newSecret()
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(ctx, secret)
	if err != nil {
		return fmt.Errorf("can't hash reset secret. Err: %w", err)
	}

	now := s.now()
	token := models.ResetToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: hash,
		CreatedAt: now,
		ExpiresAt: now.Add(s.window),
	}
	if err := s.storage.Reset().Create(ctx, token); err != nil {
		return fmt.Errorf("can't save reset token. Err: %w", err)
	}

	html, err := mail.RenderResetEmail(mail.ResetEmail{
		Link:          s.resetLink(token.ID, secret),
		Name:          user.FullName,
		SupportEmail:  s.supportEmail,
		ExpiryMinutes: expiryMinutes(s.window),
	})
	if err != nil {
		return err
	}

	if err := s.mailer.Send(ctx, user.Email, mail.ResetSubject, html); err != nil {
		return err
	}

	s.logger.Info("password reset email sent", "user_id", user.ID, "token_id", token.ID)
	return nil
}

// Whole minutes shown in the email, rounded up so a short window never reads as 0
func expiryMinutes(window time.Duration) int {
	return int(math.Ceil(window.Minutes()))
}

// Set new password by reset token
// Token is deleted on every outcome except unknown id, so it can't be tried twice
func (s *Service) ConsumeReset(ctx context.Context, tokenID string, secret string, newPassword string) error {
	// Outcome that still has to be committed: deleting expired or mismatched token
	var rejected error

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		token, err := st.Reset().GetForUpdate(ctx, tokenID)
		if err != nil {
			return err
		}

		if token.Expired(s.now()) {
			rejected = apperrors.ErrResetTokenExpired
			return st.Reset().Delete(ctx, token.ID)
		}

		if err := s.hasher.Compare(ctx, token.TokenHash, secret); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			rejected = apperrors.ErrResetTokenInvalid
			return st.Reset().Delete(ctx, token.ID)
		}

		hash, err := s.hasher.Hash(ctx, newPassword)
		if err != nil {
			return fmt.Errorf("can't use this as password. Err: %w", err)
		}

		if err := st.Reset().Delete(ctx, token.ID); err != nil {
			return err
		}
		if err := st.User().UpdatePassword(ctx, token.UserID, hash); err != nil {
			return err
		}

		// New password logs out every device
		n, err := st.Session().DeleteByUser(ctx, token.UserID)
		if err != nil {
			return err
		}

		s.logger.Info("password reset", "user_id", token.UserID, "sessions_revoked", n)
		return nil
	})

	switch {
	case err == nil && rejected == nil:
		s.metrics.ResetConsumed(metrics.ResultOK)
		return nil
	case err == nil && errors.Is(rejected, apperrors.ErrResetTokenExpired):
		s.metrics.ResetConsumed(metrics.ResultExpired)
		return rejected
	case err == nil:
		s.metrics.ResetConsumed(metrics.ResultRejected)
		return rejected
	case errors.Is(err, apperrors.ErrResetTokenNotFound):
		s.metrics.ResetConsumed(metrics.ResultRejected)
		return apperrors.ErrResetTokenInvalid
	default:
		s.metrics.ResetConsumed(metrics.ResultError)
		return fmt.Errorf("can't reset password. Err: %w", err)
	}
}

func (s *Service) resetLink(tokenID string, secret string) string {
	q := url.Values{}
	q.Set("tid", tokenID)
	q.Set("t", secret)
	return s.frontendURL + resetPath + "?" + q.Encode()
}

// Random secret, never derived from anything about the user
func newSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("can't generate reset secret. Err: %w", err)
	}
	return hex.EncodeToString(b), nil
}
