package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/platecraft/platecraft/internal/domain"
)

// TokenStore implements domain.TokenStore on Postgres.
// Only digests are stored; the raw token never touches the database.
type TokenStore struct {
	pool *pgxpool.Pool
}

// NewTokenStore creates a Postgres-backed token store.
func NewTokenStore(pool *pgxpool.Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

func (s *TokenStore) GetTokenByDigest(ctx context.Context, digest string) (*domain.APIToken, error) {
	var (
		profileID pgtype.UUID
		scope     string
		expiresAt pgtype.Timestamptz
	)

	err := s.pool.QueryRow(ctx, `
		SELECT profile_id, scope, expires_at
		FROM api_tokens
		WHERE token_digest = $1`,
		digest,
	).Scan(&profileID, &scope, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.Unauthorized("auth.token", "invalid token")
		}
		return nil, domain.Internal(err, "auth.token", "failed to look up token")
	}

	token := &domain.APIToken{
		ProfileID: uuid.UUID(profileID.Bytes),
		Scope:     scope,
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		token.ExpiresAt = &t
	}

	return token, nil
}
