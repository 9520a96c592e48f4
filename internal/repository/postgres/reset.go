package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/accounts/internal/apperrors"
	"github.com/nkiryanov/accounts/internal/models"
)

type ResetRepo struct {
	DB DBTX
}

const createResetToken = `-- name: CreateResetToken
INSERT INTO reset_tokens (id, user_id, token_hash, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5)
`

func (r *ResetRepo) Create(ctx context.Context, t models.ResetToken) error {
	_, err := r.DB.Exec(ctx, createResetToken, t.ID, t.UserID, t.TokenHash, t.CreatedAt, t.ExpiresAt)
	if err != nil {
		return dbError(err)
	}
	return nil
}

const getResetToken = `-- name: GetResetToken
SELECT id, user_id, token_hash, created_at, expires_at
FROM reset_tokens
WHERE id = $1
`

// Return token even it's expired, caller decides what to do
func (r *ResetRepo) Get(ctx context.Context, tokenID string) (models.ResetToken, error) {
	rows, _ := r.DB.Query(ctx, getResetToken, tokenID)
	return collectResetToken(rows)
}

const getResetTokenForUpdate = getResetToken + `FOR UPDATE
`

// Lock token until transaction ends, so only one consumer checks it at a time
func (r *ResetRepo) GetForUpdate(ctx context.Context, tokenID string) (models.ResetToken, error) {
	rows, _ := r.DB.Query(ctx, getResetTokenForUpdate, tokenID)
	return collectResetToken(rows)
}

func collectResetToken(rows pgx.Rows) (models.ResetToken, error) {
	token, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (models.ResetToken, error) {
		var t models.ResetToken
		err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt)
		return t, err
	})

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, apperrors.ErrResetTokenNotFound
	default:
		return token, dbError(err)
	}
}

const deleteResetToken = `-- name: DeleteResetToken
DELETE FROM reset_tokens
WHERE id = $1
`

func (r *ResetRepo) Delete(ctx context.Context, tokenID string) error {
	tag, err := r.DB.Exec(ctx, deleteResetToken, tokenID)
	switch {
	case err != nil:
		return dbError(err)
	case tag.RowsAffected() == 0:
		return apperrors.ErrResetTokenNotFound
	default:
		return nil
	}
}

const countUserResetTokens = `-- name: CountUserResetTokens
SELECT count(*) FROM reset_tokens
WHERE user_id = $1
`

func (r *ResetRepo) CountByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	rows, _ := r.DB.Query(ctx, countUserResetTokens, userID)
	n, err := pgx.CollectOneRow(rows, pgx.RowTo[int64])
	if err != nil {
		return 0, dbError(err)
	}
	return n, nil
}

const deleteResetTokensExpiredBefore = `-- name: DeleteResetTokensExpiredBefore
DELETE FROM reset_tokens
WHERE expires_at < $1
`

func (r *ResetRepo) DeleteExpiredBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteResetTokensExpiredBefore, before)
	if err != nil {
		return 0, dbError(err)
	}
	return tag.RowsAffected(), nil
}
