package passwordreset

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nkiryanov/accounts/internal/apperrors"
	"github.com/nkiryanov/accounts/internal/models"
	"github.com/nkiryanov/accounts/internal/repository"
	"github.com/nkiryanov/accounts/internal/repository/postgres"
	"github.com/nkiryanov/accounts/internal/service/auth"
	"github.com/nkiryanov/accounts/internal/testutil"
)

type sentEmail struct {
	to      string
	subject string
	html    string
}

// Mailer that remembers what was sent
type fakeMailer struct {
	mu    sync.Mutex
	sent  []sentEmail
	err   error
	delay time.Duration
}

func (m *fakeMailer) Send(_ context.Context, to string, subject string, html string) error {
	time.Sleep(m.delay)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentEmail{to: to, subject: subject, html: html})
	return nil
}

const linkPrefix = "https://app.example.com/auth/user/reset-password?"

// Extract token id and secret from the link in the email
func parseLink(t *testing.T, html string) (tokenID string, secret string) {
	t.Helper()

	start := strings.Index(html, linkPrefix)
	require.GreaterOrEqual(t, start, 0, "email must contain reset link")
	end := start + strings.Index(html[start:], `"`)

	// Link is html escaped inside attribute
	u, err := url.Parse(strings.ReplaceAll(html[start:end], "&amp;", "&"))
	require.NoError(t, err)

	return u.Query().Get("tid"), u.Query().Get("t")
}

func Test_PasswordReset(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	hasher := auth.BcryptHasher{Cost: bcrypt.MinCost}
	t0 := time.Date(2024, 1, 1, 19, 0, 0, 0, time.UTC)

	type env struct {
		s      *Service
		st     repository.Storage
		mailer *fakeMailer
		clock  *time.Time
		user   models.User
	}

	withTx := func(t *testing.T, fn func(e env)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			clock := t0
			st := postgres.NewStorage(tx)
			mailer := &fakeMailer{}

			s, err := NewService(Config{
				FrontendURL:  "https://app.example.com/",
				SupportEmail: "support@example.com",
				Now:          func() time.Time { return clock },
			}, st, hasher, mailer)
			require.NoError(t, err)

			hash, err := hasher.Hash(t.Context(), "old-password")
			require.NoError(t, err)
			user, err := st.User().CreateUser(t.Context(), repository.CreateUserParams{
				Email:          "john@example.com",
				FullName:       "John",
				HashedPassword: hash,
			})
			require.NoError(t, err)

			fn(env{s: s, st: st, mailer: mailer, clock: &clock, user: user})
		})
	}

	// Request reset and return token id and secret from the email
	requestLink := func(t *testing.T, e env) (string, string) {
		t.Helper()
		require.NoError(t, e.s.RequestReset(t.Context(), e.user.Email))
		e.s.Wait()
		require.NotEmpty(t, e.mailer.sent, "reset email must be sent")
		return parseLink(t, e.mailer.sent[len(e.mailer.sent)-1].html)
	}

	countTokens := func(t *testing.T, e env) int64 {
		t.Helper()
		n, err := e.st.Reset().CountByUser(t.Context(), e.user.ID)
		require.NoError(t, err)
		return n
	}

	t.Run("new service", func(t *testing.T) {
		_, err := NewService(Config{}, nil, hasher, &fakeMailer{})
		require.Error(t, err)

		s, err := NewService(Config{}, postgres.NewStorage(pg.Pool), hasher, &fakeMailer{})
		require.NoError(t, err)
		require.Equal(t, defaultWindow, s.window)
	})

	t.Run("RequestReset", func(t *testing.T) {
		t.Run("sends link", func(t *testing.T) {
			withTx(t, func(e env) {
				err := e.s.RequestReset(t.Context(), "JOHN@example.com")
				e.s.Wait()

				require.NoError(t, err)
				require.Len(t, e.mailer.sent, 1)
				email := e.mailer.sent[0]
				assert.Equal(t, "john@example.com", email.to)
				assert.Equal(t, "Reset your password", email.subject)
				assert.Contains(t, email.html, "Hi John,")
				assert.Contains(t, email.html, "expire in 15 minutes")

				tokenID, secret := parseLink(t, email.html)
				token, err := e.st.Reset().Get(t.Context(), tokenID)
				require.NoError(t, err)
				assert.Equal(t, e.user.ID, token.UserID)
				assert.Len(t, secret, 64)
				assert.NotEqual(t, secret, token.TokenHash, "raw secret must not be stored")
				assert.NoError(t, hasher.Compare(t.Context(), token.TokenHash, secret))
				assert.WithinDuration(t, t0.Add(15*time.Minute), token.ExpiresAt, time.Microsecond)
			})
		})

		t.Run("unknown email reports success and stores nothing", func(t *testing.T) {
			withTx(t, func(e env) {
				err := e.s.RequestReset(t.Context(), "unknown@x.com")
				e.s.Wait()

				require.NoError(t, err)
				assert.Empty(t, e.mailer.sent)
				assert.Equal(t, int64(0), countTokens(t, e))
			})
		})

		t.Run("mail failure reports success", func(t *testing.T) {
			withTx(t, func(e env) {
				e.mailer.err = errors.New("smtp down")

				err := e.s.RequestReset(t.Context(), e.user.Email)
				e.s.Wait()

				require.NoError(t, err)
				assert.Equal(t, int64(1), countTokens(t, e), "token stays and expires by itself")
			})
		})

		t.Run("answer does not wait for delivery", func(t *testing.T) {
			withTx(t, func(e env) {
				e.mailer.delay = 300 * time.Millisecond

				// Unknown first: delivery of the known one uses the same connection
				start := time.Now()
				require.NoError(t, e.s.RequestReset(t.Context(), "unknown@x.com"))
				unknown := time.Since(start)

				start = time.Now()
				require.NoError(t, e.s.RequestReset(t.Context(), e.user.Email))
				known := time.Since(start)

				assert.Less(t, known, 150*time.Millisecond, "registered email must not wait for mail")
				assert.InDelta(t, unknown.Seconds(), known.Seconds(), 0.1)

				e.s.Wait()
				require.Len(t, e.mailer.sent, 1, "email still delivered")
			})
		})

		t.Run("delivery survives request cancel", func(t *testing.T) {
			withTx(t, func(e env) {
				ctx, cancel := context.WithCancel(t.Context())
				e.mailer.delay = 50 * time.Millisecond

				require.NoError(t, e.s.RequestReset(ctx, e.user.Email))
				cancel()
				e.s.Wait()

				require.Len(t, e.mailer.sent, 1)
				assert.Equal(t, int64(1), countTokens(t, e))
			})
		})

		t.Run("every request gives independent token", func(t *testing.T) {
			withTx(t, func(e env) {
				id1, secret1 := requestLink(t, e)
				id2, secret2 := requestLink(t, e)

				assert.NotEqual(t, id1, id2)
				assert.NotEqual(t, secret1, secret2)
				assert.Equal(t, int64(2), countTokens(t, e))

				require.NoError(t, e.s.ConsumeReset(t.Context(), id2, secret2, "new-password"))
				require.NoError(t, e.s.ConsumeReset(t.Context(), id1, secret1, "newer-password"), "tokens are independent")
			})
		})
	})

	t.Run("ConsumeReset", func(t *testing.T) {
		t.Run("set new password", func(t *testing.T) {
			withTx(t, func(e env) {
				tokenID, secret := requestLink(t, e)
				_, err := e.st.Session().Create(t.Context(), e.user.ID, "", t0)
				require.NoError(t, err)

				err = e.s.ConsumeReset(t.Context(), tokenID, secret, "new-password")
				require.NoError(t, err)

				user, err := e.st.User().GetUserByID(t.Context(), e.user.ID)
				require.NoError(t, err)
				assert.NoError(t, hasher.Compare(t.Context(), user.HashedPassword, "new-password"))
				assert.Error(t, hasher.Compare(t.Context(), user.HashedPassword, "old-password"))

				sessions, err := e.st.Session().CountByUser(t.Context(), e.user.ID)
				require.NoError(t, err)
				assert.Equal(t, int64(0), sessions, "reset logs out every device")
				assert.Equal(t, int64(0), countTokens(t, e))
			})
		})

		t.Run("second use fails", func(t *testing.T) {
			withTx(t, func(e env) {
				tokenID, secret := requestLink(t, e)
				require.NoError(t, e.s.ConsumeReset(t.Context(), tokenID, secret, "new-password"))

				err := e.s.ConsumeReset(t.Context(), tokenID, secret, "new-password")

				require.ErrorIs(t, err, apperrors.ErrResetTokenInvalid)
			})
		})

		t.Run("expired token deleted", func(t *testing.T) {
			withTx(t, func(e env) {
				tokenID, secret := requestLink(t, e)

				*e.clock = t0.Add(16 * time.Minute)
				err := e.s.ConsumeReset(t.Context(), tokenID, secret, "new-password")
				require.ErrorIs(t, err, apperrors.ErrResetTokenExpired)

				_, err = e.st.Reset().Get(t.Context(), tokenID)
				require.ErrorIs(t, err, apperrors.ErrResetTokenNotFound, "expired token must be deleted")

				err = e.s.ConsumeReset(t.Context(), tokenID, secret, "new-password")
				require.ErrorIs(t, err, apperrors.ErrResetTokenInvalid)
			})
		})

		t.Run("expires exactly at window end", func(t *testing.T) {
			withTx(t, func(e env) {
				tokenID, secret := requestLink(t, e)

				*e.clock = t0.Add(15 * time.Minute)
				err := e.s.ConsumeReset(t.Context(), tokenID, secret, "new-password")

				require.ErrorIs(t, err, apperrors.ErrResetTokenExpired)
			})
		})

		t.Run("valid just before window end", func(t *testing.T) {
			withTx(t, func(e env) {
				tokenID, secret := requestLink(t, e)

				*e.clock = t0.Add(15*time.Minute - time.Second)
				err := e.s.ConsumeReset(t.Context(), tokenID, secret, "new-password")

				require.NoError(t, err)
			})
		})

		t.Run("wrong secret deletes token", func(t *testing.T) {
			withTx(t, func(e env) {
				tokenID, secret := requestLink(t, e)

				err := e.s.ConsumeReset(t.Context(), tokenID, "wrong-secret", "new-password")
				require.ErrorIs(t, err, apperrors.ErrResetTokenInvalid)

				err = e.s.ConsumeReset(t.Context(), tokenID, secret, "new-password")
				require.ErrorIs(t, err, apperrors.ErrResetTokenInvalid, "token can't be guessed twice")

				user, err := e.st.User().GetUserByID(t.Context(), e.user.ID)
				require.NoError(t, err)
				assert.NoError(t, hasher.Compare(t.Context(), user.HashedPassword, "old-password"), "password unchanged")
			})
		})

		t.Run("unknown token", func(t *testing.T) {
			withTx(t, func(e env) {
				err := e.s.ConsumeReset(t.Context(), "unknown", "secret", "new-password")

				require.ErrorIs(t, err, apperrors.ErrResetTokenInvalid)
			})
		})

		t.Run("activates provisioned user", func(t *testing.T) {
			withTx(t, func(e env) {
				user, err := e.st.User().CreateUser(t.Context(), repository.CreateUserParams{Email: "new@example.com", FullName: "New"})
				require.NoError(t, err)
				require.False(t, user.CanLogin())

				require.NoError(t, e.s.RequestReset(t.Context(), "new@example.com"))
				e.s.Wait()
				tokenID, secret := parseLink(t, e.mailer.sent[0].html)
				require.NoError(t, e.s.ConsumeReset(t.Context(), tokenID, secret, "first-password"))

				user, err = e.st.User().GetUserByID(t.Context(), user.ID)
				require.NoError(t, err)
				assert.True(t, user.CanLogin())
			})
		})
	})
}

func TestExpiryMinutes(t *testing.T) {
	tests := []struct {
		window time.Duration
		want   int
	}{
		{15 * time.Minute, 15},
		{30 * time.Second, 1},
		{90 * time.Second, 2},
		{time.Hour, 60},
	}

	for _, tt := range tests {
		t.Run(tt.window.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, expiryMinutes(tt.window))
		})
	}
}
