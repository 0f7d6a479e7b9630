package repository

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"fotoljay/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrRefreshTokenNotFound = domain.NewNotFound("refresh token not found")
	ErrRefreshTokenRevoked  = domain.NewUnauthorized("refresh token has been revoked")
)

// RefreshTokenRepository stores refresh sessions. Only a digest of the token
// is persisted; callers always pass the raw token.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error
	FindByToken(ctx context.Context, token string) (*domain.RefreshToken, error)
	// Revoke reports ErrRefreshTokenNotFound unless it flipped a live token
	Revoke(ctx context.Context, token string) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int, error)
	// DeleteExpired drops sessions that expired or were revoked before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// TokenDigest is the stored form of a refresh token
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

const refreshTokenColumns = `id, user_id, token, expires_at, created_at, revoked`

type refreshTokenRepository struct {
	db *sql.DB
}

// NewRefreshTokenRepository creates a PostgreSQL-backed RefreshTokenRepository
func NewRefreshTokenRepository(db *sql.DB) RefreshTokenRepository {
	return &refreshTokenRepository{db: db}
}

func (r *refreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (`+refreshTokenColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		token.ID, token.UserID, TokenDigest(token.Token), token.ExpiresAt, token.CreatedAt, token.Revoked,
	)
	if err != nil {
		return fmt.Errorf("failed to create refresh token: %w", err)
	}
	return nil
}

// FindByToken returns the session for a raw token. The returned Token field
// holds the raw value the caller passed in.
func (r *refreshTokenRepository) FindByToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	var session domain.RefreshToken
	err := r.db.QueryRowContext(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE token = $1`,
		TokenDigest(token),
	).Scan(&session.ID, &session.UserID, &session.Token, &session.ExpiresAt, &session.CreatedAt, &session.Revoked)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrRefreshTokenNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to find refresh token: %w", err)
	case session.Revoked:
		return nil, ErrRefreshTokenRevoked
	}

	session.Token = token
	return &session, nil
}

func (r *refreshTokenRepository) Revoke(ctx context.Context, token string) error {
	n, err := r.exec(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1 AND NOT revoked`, TokenDigest(token))
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	if n == 0 {
		return ErrRefreshTokenNotFound
	}
	return nil
}

func (r *refreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	n, err := r.exec(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1 AND NOT revoked`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke user sessions: %w", err)
	}
	return n, nil
}

func (r *refreshTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	n, err := r.exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1 OR (revoked AND created_at < $1)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge refresh tokens: %w", err)
	}
	return n, nil
}

func (r *refreshTokenRepository) exec(ctx context.Context, query string, args ...interface{}) (int, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
