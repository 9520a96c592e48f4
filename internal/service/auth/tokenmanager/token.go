package tokenmanager

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/accounts/internal/models"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 14 * 24 * time.Hour
	defaultSigningMethod   = "HS256"
)

// Claims with safe user view only, never with password hash
type AccessTokenClaims struct {
	jwt.RegisteredClaims
	UserID   uuid.UUID `json:"uid"`
	Email    string    `json:"email"`
	FullName string    `json:"name"`
}

func (c AccessTokenClaims) User() models.SafeUser {
	return models.SafeUser{ID: c.UserID, Email: c.Email, FullName: c.FullName}
}

// Refresh token claims reference the session it was issued for
type RefreshTokenClaims struct {
	AccessTokenClaims
	SessionID string `json:"sid"`
}

// Token manager with sensible default
type Config struct {
	// Secret keys to sign tokens
	// Both required and must differ: access token must never pass as refresh one
	AccessSecret  string
	RefreshSecret string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Clock, time.Now if not set
	Now func() time.Time
}

type TokenManager struct {
	accessKey  []byte
	refreshKey []byte

	alg jwt.SigningMethod

	accessTTL  time.Duration
	refreshTTL time.Duration

	now func() time.Time
}

func New(cfg Config) (*TokenManager, error) {
	switch {
	case cfg.AccessSecret == "" || cfg.RefreshSecret == "":
		return nil, errors.New("secret keys must not be empty")
	case cfg.AccessSecret == cfg.RefreshSecret:
		return nil, errors.New("access and refresh secret keys must differ")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg := jwt.GetSigningMethod(cfg.Alg)
	if _, ok := alg.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unsupported signing method %q, only HMAC allowed", cfg.Alg)
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field <= 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &TokenManager{
		accessKey:  []byte(cfg.AccessSecret),
		refreshKey: []byte(cfg.RefreshSecret),
		alg:        alg,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        cfg.Now,
	}, nil
}

func (m *TokenManager) RefreshTTL() time.Duration {
	return m.refreshTTL
}

func (m *TokenManager) SignAccess(user models.SafeUser) (models.IssuedToken, error) {
	now := m.now().Truncate(time.Second)
	claims := m.userClaims(user, now, m.accessTTL)

	return m.sign(claims, m.accessKey, claims.ExpiresAt.Time)
}

func (m *TokenManager) SignRefresh(user models.SafeUser, sessionID string) (models.IssuedToken, error) {
	if sessionID == "" {
		return models.IssuedToken{}, errors.New("refresh token requires session id")
	}

	now := m.now().Truncate(time.Second)
	claims := RefreshTokenClaims{
		AccessTokenClaims: m.userClaims(user, now, m.refreshTTL),
		SessionID:         sessionID,
	}

	return m.sign(claims, m.refreshKey, claims.ExpiresAt.Time)
}

// Parse and validate access token
func (m *TokenManager) ParseAccess(access string) (AccessTokenClaims, error) {
	claims := AccessTokenClaims{}
	if err := m.parse(access, &claims, m.accessKey); err != nil {
		return claims, err
	}

	return claims, nil
}

// Parse and validate refresh token
// Valid signature says nothing about session: caller has to check it exists and hash matches
func (m *TokenManager) ParseRefresh(refresh string) (RefreshTokenClaims, error) {
	claims := RefreshTokenClaims{}
	if err := m.parse(refresh, &claims, m.refreshKey); err != nil {
		return claims, err
	}

	if claims.SessionID == "" {
		return claims, errors.New("refresh token without session id")
	}

	return claims, nil
}

func (m *TokenManager) userClaims(user models.SafeUser, now time.Time, ttl time.Duration) AccessTokenClaims {
	return AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:   user.ID,
		Email:    user.Email,
		FullName: user.FullName,
	}
}

func (m *TokenManager) sign(claims jwt.Claims, key []byte, expiresAt time.Time) (models.IssuedToken, error) {
	value, err := jwt.NewWithClaims(m.alg, claims).SignedString(key)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing token. Err: %w", err)
	}

	return models.IssuedToken{Value: value, ExpiresAt: expiresAt}, nil
}

func (m *TokenManager) parse(token string, claims jwt.Claims, key []byte) error {
	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (any, error) {
			return key, nil
		},
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return fmt.Errorf("error while parsing or validating token. Err: %w", err)
	}

	return nil
}
