package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"github.com/nkiryanov/accounts/internal/apperrors"
	"github.com/nkiryanov/accounts/internal/models"
)

type SessionRepo struct {
	DB DBTX
}

const createSession = `-- name: CreateSession
INSERT INTO sessions (id, user_id, device, created_at)
VALUES ($1, $2, $3, $4)
RETURNING id, user_id, refresh_hash, device, created_at
`

// Create session with new ULID id
// Refresh hash stays empty until token for the session is signed, empty hash never matches
func (r *SessionRepo) Create(ctx context.Context, userID uuid.UUID, device string, createdAt time.Time) (models.Session, error) {
	rows, _ := r.DB.Query(ctx, createSession, ulid.Make().String(), userID, device, createdAt)
	session, err := pgx.CollectOneRow(rows, rowToSession)
	if err != nil {
		return session, dbError(err)
	}
	return session, nil
}

const setRefreshHash = `-- name: SetRefreshHash
UPDATE sessions
SET refresh_hash = $2
WHERE id = $1
`

func (r *SessionRepo) SetRefreshHash(ctx context.Context, sessionID string, refreshHash string) error {
	tag, err := r.DB.Exec(ctx, setRefreshHash, sessionID, refreshHash)
	switch {
	case err != nil:
		return dbError(err)
	case tag.RowsAffected() == 0:
		return apperrors.ErrSessionNotFound
	default:
		return nil
	}
}

const getSession = `-- name: GetSession
SELECT id, user_id, refresh_hash, device, created_at
FROM sessions
WHERE id = $1
`

func (r *SessionRepo) Get(ctx context.Context, sessionID string) (models.Session, error) {
	rows, _ := r.DB.Query(ctx, getSession, sessionID)
	return collectSession(rows)
}

const getSessionForUpdate = getSession + `FOR UPDATE
`

// Concurrent rotations of the same session wait here until the first one commits
func (r *SessionRepo) GetForUpdate(ctx context.Context, sessionID string) (models.Session, error) {
	rows, _ := r.DB.Query(ctx, getSessionForUpdate, sessionID)
	return collectSession(rows)
}

const deleteSession = `-- name: DeleteSession
DELETE FROM sessions
WHERE id = $1
`

func (r *SessionRepo) Delete(ctx context.Context, sessionID string) error {
	tag, err := r.DB.Exec(ctx, deleteSession, sessionID)
	switch {
	case err != nil:
		return dbError(err)
	case tag.RowsAffected() == 0:
		return apperrors.ErrSessionNotFound
	default:
		return nil
	}
}

const deleteUserSessions = `-- name: DeleteUserSessions
DELETE FROM sessions
WHERE user_id = $1
`

func (r *SessionRepo) DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteUserSessions, userID)
	if err != nil {
		return 0, dbError(err)
	}
	return tag.RowsAffected(), nil
}

const countUserSessions = `-- name: CountUserSessions
SELECT count(*) FROM sessions
WHERE user_id = $1
`

func (r *SessionRepo) CountByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	rows, _ := r.DB.Query(ctx, countUserSessions, userID)
	n, err := pgx.CollectOneRow(rows, pgx.RowTo[int64])
	if err != nil {
		return 0, dbError(err)
	}
	return n, nil
}

const deleteSessionsCreatedBefore = `-- name: DeleteSessionsCreatedBefore
DELETE FROM sessions
WHERE created_at < $1
`

func (r *SessionRepo) DeleteCreatedBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteSessionsCreatedBefore, before)
	if err != nil {
		return 0, dbError(err)
	}
	return tag.RowsAffected(), nil
}

func collectSession(rows pgx.Rows) (models.Session, error) {
	session, err := pgx.CollectOneRow(rows, rowToSession)

	switch {
	case err == nil:
		return session, nil
	case errors.Is(err, pgx.ErrNoRows):
		return session, apperrors.ErrSessionNotFound
	default:
		return session, dbError(err)
	}
}

func rowToSession(row pgx.CollectableRow) (models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.UserID, &s.RefreshHash, &s.Device, &s.CreatedAt)
	return s, err
}
