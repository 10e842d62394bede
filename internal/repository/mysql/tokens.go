package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/repository"
)

// TokenRepo is the refresh token ledger (single 'token_hash' lookup column).
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// Store inserts a ledger row.
func (r *TokenRepo) Store(ctx context.Context, t *model.RefreshToken) error {
	t.ID = newID()
	t.CreatedAt = now()
	t.UpdatedAt = t.CreatedAt
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (id, token_hash, user_id, expires_at, is_revoked, created_at, updated_at) VALUES (?,?,?,?,?,?,?)",
		t.ID, t.TokenHash, t.UserID, t.ExpiresAt.UTC(), t.IsRevoked, t.CreatedAt, t.UpdatedAt)
	if isDuplicate(err) {
		return repository.ErrDuplicateToken
	}
	return err
}

// GetByHash returns the row for tokenHash.
func (r *TokenRepo) GetByHash(ctx context.Context, tokenHash string) (model.RefreshToken, error) {
	var t model.RefreshToken
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, token_hash, user_id, expires_at, is_revoked, created_at, updated_at FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&t.ID, &t.TokenHash, &t.UserID, &t.ExpiresAt, &t.IsRevoked, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RefreshToken{}, repository.ErrNotFound
	}
	return t, err
}

// IsValidToken reports whether a non-revoked, non-expired row exists.
func (r *TokenRepo) IsValidToken(ctx context.Context, tokenHash string) (bool, error) {
	t, err := r.GetByHash(ctx, tokenHash)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return t.Usable(time.Now().UTC()), nil
}

// RevokeToken marks a token as revoked.
func (r *TokenRepo) RevokeToken(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET is_revoked=1, updated_at=? WHERE token_hash=? AND is_revoked=0",
		now(), tokenHash)
	return err
}

// ConsumeToken revokes the token only if it is still active. The
// is_revoked=0 predicate makes concurrent callers race on one row, so at
// most one of them sees an affected row.
func (r *TokenRepo) ConsumeToken(ctx context.Context, tokenHash string) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET is_revoked=1, updated_at=? WHERE token_hash=? AND is_revoked=0",
		now(), tokenHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// RevokeAllUserTokens revokes all of a user's active tokens.
func (r *TokenRepo) RevokeAllUserTokens(ctx context.Context, userID string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET is_revoked=1, updated_at=? WHERE user_id=? AND is_revoked=0",
		now(), userID)
	return err
}

// CleanupExpiredTokens deletes expired and revoked rows.
func (r *TokenRepo) CleanupExpiredTokens(ctx context.Context, at time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at < ? OR is_revoked=1",
		at.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
