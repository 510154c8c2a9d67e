package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateVerificationToken issues a single-use e-mail verification token
// for the user, valid for ttl.
func (s *SQLiteStore) CreateVerificationToken(
	ctx context.Context,
	userID string,
	ttl time.Duration,
) (string, error) {
	token := uuid.New().String()
	now := s.timestamp()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verification_tokens (token, user_id, expires_at, created_at)
		VALUES (?, ?, ?, ?)`,
		token, userID, now.Add(ttl), now,
	)
	if err != nil {
		return "", fmt.Errorf("creating verification token: %w", err)
	}
	return token, nil
}

// ConsumeVerificationToken deletes the token and returns the user it was
// issued for. Unknown tokens yield ErrNotFound, expired ones
// ErrTokenExpired; either way the token cannot be used again.
func (s *SQLiteStore) ConsumeVerificationToken(ctx context.Context, token string) (string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var row struct {
		UserID    string    `db:"user_id"`
		ExpiresAt time.Time `db:"expires_at"`
	}
	err = tx.GetContext(ctx, &row,
		"SELECT user_id, expires_at FROM verification_tokens WHERE token = ?", token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("reading verification token: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM verification_tokens WHERE token = ?", token); err != nil {
		return "", fmt.Errorf("deleting verification token: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing verification token: %w", err)
	}

	if !s.timestamp().Before(row.ExpiresAt) {
		return "", ErrTokenExpired
	}
	return row.UserID, nil
}

// RevokeToken records a session token id as logged out until it would
// have expired anyway. Expired revocations are pruned on the way.
func (s *SQLiteStore) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM revoked_tokens WHERE expires_at < ?", s.timestamp()); err != nil {
		return fmt.Errorf("pruning revoked tokens: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO revoked_tokens (jti, expires_at) VALUES (?, ?)",
		jti, expiresAt.UTC()); err != nil {
		return fmt.Errorf("revoking token %s: %w", jti, err)
	}

	return tx.Commit()
}

// IsTokenRevoked reports whether the session token id was logged out.
func (s *SQLiteStore) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM revoked_tokens WHERE jti = ?", jti)
	if err != nil {
		return false, fmt.Errorf("checking revoked token %s: %w", jti, err)
	}
	return count > 0, nil
}
