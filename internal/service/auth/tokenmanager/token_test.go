package tokenmanager

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/accounts/internal/models"
)

func mustParseTime(value string) time.Time {
	dt, err := time.Parse("2006-01-02 15:04:05Z07:00", value)
	if err != nil {
		panic(err)
	}
	return dt
}

func Test_TokenManager(t *testing.T) {
	t.Parallel()

	testUser := models.SafeUser{
		ID:       uuid.New(),
		Email:    "john@example.com",
		FullName: "John Doe",
	}
	now := mustParseTime("2024-01-01 19:00:00Z")

	newManager := func(t *testing.T, clock *time.Time) *TokenManager {
		m, err := New(Config{
			AccessSecret:  "access-secret",
			RefreshSecret: "refresh-secret",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    14 * 24 * time.Hour,
			Now:           func() time.Time { return *clock },
		})
		require.NoError(t, err, "token manager should be created without errors")
		return m
	}

	t.Run("new defaults", func(t *testing.T) {
		m, err := New(Config{AccessSecret: "a", RefreshSecret: "r"})
		require.NoError(t, err, "token manager should be created without errors")

		require.Equal(t, defaultAccessTokenTTL, m.accessTTL, "default access token TTL should be set")
		require.Equal(t, defaultRefreshTokenTTL, m.refreshTTL, "default refresh token TTL")
		require.Equal(t, defaultSigningMethod, m.alg.Alg(), "default signing method should be set")
		require.NotNil(t, m.now)
	})

	t.Run("new fails", func(t *testing.T) {
		tests := []struct {
			name string
			cfg  Config
		}{
			{"no access secret", Config{RefreshSecret: "r"}},
			{"no refresh secret", Config{AccessSecret: "a"}},
			{"same secrets", Config{AccessSecret: "s", RefreshSecret: "s"}},
			{"not hmac", Config{AccessSecret: "a", RefreshSecret: "r", Alg: "RS256"}},
			{"unknown alg", Config{AccessSecret: "a", RefreshSecret: "r", Alg: "XX"}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := New(tt.cfg)
				require.Error(t, err)
			})
		}
	})

	t.Run("access claims", func(t *testing.T) {
		clock := now
		m := newManager(t, &clock)

		access, err := m.SignAccess(testUser)
		require.NoError(t, err)

		claims, err := m.ParseAccess(access.Value)
		require.NoError(t, err)
		assert.Equal(t, testUser, claims.User(), "token has to carry safe user view")
		assert.Equal(t, testUser.ID.String(), claims.Subject)
		assert.NotEmpty(t, claims.ID, "token has to has jti")
		assert.WithinDuration(t, now, claims.IssuedAt.Time, 0)
		assert.WithinDuration(t, now.Add(15*time.Minute), access.ExpiresAt, 0)
		assert.WithinDuration(t, access.ExpiresAt, claims.ExpiresAt.Time, 0, "access expires at should match issued token")
	})

	t.Run("refresh claims", func(t *testing.T) {
		clock := now
		m := newManager(t, &clock)

		refresh, err := m.SignRefresh(testUser, "session-id")
		require.NoError(t, err)

		claims, err := m.ParseRefresh(refresh.Value)
		require.NoError(t, err)
		assert.Equal(t, "session-id", claims.SessionID)
		assert.Equal(t, testUser, claims.User())
		assert.WithinDuration(t, now.Add(14*24*time.Hour), refresh.ExpiresAt, 0)
	})

	t.Run("refresh requires session id", func(t *testing.T) {
		clock := now
		m := newManager(t, &clock)

		_, err := m.SignRefresh(testUser, "")
		require.Error(t, err)
	})

	t.Run("tokens are unique", func(t *testing.T) {
		clock := now
		m := newManager(t, &clock)

		r1, err := m.SignRefresh(testUser, "sid")
		require.NoError(t, err)
		r2, err := m.SignRefresh(testUser, "sid")
		require.NoError(t, err)

		assert.NotEqual(t, r1.Value, r2.Value, "same claims in same second must give different tokens")
	})

	t.Run("secrets are not interchangeable", func(t *testing.T) {
		clock := now
		m := newManager(t, &clock)

		access, err := m.SignAccess(testUser)
		require.NoError(t, err)
		refresh, err := m.SignRefresh(testUser, "sid")
		require.NoError(t, err)

		_, err = m.ParseRefresh(access.Value)
		require.Error(t, err, "access token must not pass as refresh")
		_, err = m.ParseAccess(refresh.Value)
		require.Error(t, err, "refresh token must not pass as access")
	})

	t.Run("expired tokens", func(t *testing.T) {
		clock := now
		m := newManager(t, &clock)
		access, err := m.SignAccess(testUser)
		require.NoError(t, err)
		refresh, err := m.SignRefresh(testUser, "sid")
		require.NoError(t, err)

		clock = now.Add(16 * time.Minute)
		_, err = m.ParseAccess(access.Value)
		require.ErrorIs(t, err, jwt.ErrTokenExpired)
		_, err = m.ParseRefresh(refresh.Value)
		require.NoError(t, err, "refresh lives longer")

		clock = now.Add(15 * 24 * time.Hour)
		_, err = m.ParseRefresh(refresh.Value)
		require.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("not a token", func(t *testing.T) {
		clock := now
		m := newManager(t, &clock)

		_, err := m.ParseAccess("invalid token")
		require.Error(t, err, "parsing even not a token should return an error")
	})

	t.Run("not signed token", func(t *testing.T) {
		clock := now
		m := newManager(t, &clock)
		token := jwt.NewWithClaims(
			jwt.SigningMethodNone,
			RefreshTokenClaims{
				AccessTokenClaims: AccessTokenClaims{
					RegisteredClaims: jwt.RegisteredClaims{
						ID:        uuid.NewString(),
						IssuedAt:  jwt.NewNumericDate(now),
						ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)),
					},
					UserID: testUser.ID,
				},
				SessionID: "sid",
			},
		)
		refresh, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = m.ParseRefresh(refresh)
		require.Error(t, err, "Valid token with empty alg must fail")
	})

	t.Run("token without expiration", func(t *testing.T) {
		clock := now
		m := newManager(t, &clock)
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{UserID: testUser.ID})
		access, err := token.SignedString([]byte("access-secret"))
		require.NoError(t, err)

		_, err = m.ParseAccess(access)
		require.Error(t, err, "token must expire")
	})
}
