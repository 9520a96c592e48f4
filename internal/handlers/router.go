package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/accounts/internal/handlers/middleware"
	"github.com/nkiryanov/accounts/internal/logger"
	"github.com/nkiryanov/accounts/internal/models"
	"github.com/nkiryanov/accounts/internal/service/auth"
	"github.com/nkiryanov/accounts/internal/service/user"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type Config struct {
	// Set Secure flag on refresh cookie, has to be true behind https
	SecureCookie bool

	// Requests per minute for one IP to credential endpoints, 0 disables the limit
	AuthRateLimit int

	// Served on /metrics if set
	Metrics http.Handler

	// Clock used for cookie lifetimes, has to match the one tokens are issued with
	Now func() time.Time
}

func NewRouter(
	authService authService,
	resetService resetService,
	userService userService,
	cfg Config,
	logger logger.Logger,
) http.Handler {
	withAuth := middleware.AuthMiddleware(authService)
	limiter := middleware.NewRateLimiter(cfg.AuthRateLimit)
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cookies := refreshCookies{secure: cfg.SecureCookie, now: cfg.Now}

	apiauth := http.NewServeMux()
	apiauth.Handle("POST /register", limiter.Limit(handleRegister(authService, cookies, logger)))
	apiauth.Handle("POST /login", limiter.Limit(handleLogin(authService, cookies, logger)))
	apiauth.Handle("POST /refresh", limiter.Limit(handleRefresh(authService, cookies, logger)))
	apiauth.Handle("POST /password-reset", limiter.Limit(handlePasswordReset(resetService, logger)))
	apiauth.Handle("POST /set-new-password", limiter.Limit(handleSetNewPassword(resetService, logger)))
	apiauth.Handle("POST /logout/{id}", withAuth(handleLogout(authService, cookies, logger)))

	apiusers := http.NewServeMux()
	apiusers.Handle("GET /{id}", withAuth(handleGetUser(userService, logger)))
	apiusers.Handle("PATCH /{id}", withAuth(handleUpdateUser(userService, logger)))
	apiusers.Handle("DELETE /{id}", withAuth(handleDeleteUser(userService, cookies, logger)))

	root := http.NewServeMux()
	root.Handle("/auth/", http.StripPrefix("/auth", apiauth))
	root.Handle("POST /users", withAuth(handleProvisionUser(userService, logger)))
	root.Handle("/users/", http.StripPrefix("/users", apiusers))
	if cfg.Metrics != nil {
		root.Handle("GET /metrics", cfg.Metrics)
	}

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type authService interface {
	// Register user and issue the first session
	// Has to return apperrors.ErrDuplicateEmail if email taken
	Register(ctx context.Context, params auth.RegisterParams) (models.AuthResult, error)

	// Has to return apperrors.ErrInvalidCredentials for unknown email or wrong password
	Login(ctx context.Context, email string, password string, device string) (models.AuthResult, error)

	// Exchange refresh token for a new pair
	// Any problem with the token is apperrors.ErrSessionExpired
	RotateSession(ctx context.Context, refresh string) (models.AuthResult, error)

	// Has to return apperrors.ErrUserNotFound or apperrors.ErrNoActiveSessions
	RevokeAllSessions(ctx context.Context, userID uuid.UUID) (int64, error)

	// Get user by access token
	Authenticate(ctx context.Context, access string) (models.User, error)
}

type resetService interface {
	// Never reveals whether the email is registered
	RequestReset(ctx context.Context, email string) error

	// Has to return apperrors.ErrResetTokenInvalid or apperrors.ErrResetTokenExpired
	ConsumeReset(ctx context.Context, tokenID string, secret string, newPassword string) error
}

type userService interface {
	GetUser(ctx context.Context, userID uuid.UUID) (models.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, upd user.ProfileUpdate) (models.User, error)
	DeleteUser(ctx context.Context, userID uuid.UUID) error
	Provision(ctx context.Context, params user.ProvisionParams) (models.User, error)
}
