package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/platecraft/platecraft/internal/domain"
)

// ProfileStore implements domain.ProfileStore on Postgres.
type ProfileStore struct {
	pool *pgxpool.Pool
}

// NewProfileStore creates a Postgres-backed profile store.
func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

const profileColumns = `
	id, email, restaurant_name, slug, status, is_public,
	provider_customer_id, provider_subscription_id,
	current_period_end, cancel_at_period_end, canceled_at,
	version, created_at, updated_at
`

func (s *ProfileStore) GetProfile(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`,
		pgtype.UUID{Bytes: id, Valid: true},
	)
	return scanProfile(row, "profile.get", id.String())
}

func (s *ProfileStore) GetProfileByProviderSubscription(ctx context.Context, subscriptionID string) (*domain.Profile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE provider_subscription_id = $1`,
		subscriptionID,
	)
	return scanProfile(row, "profile.get_by_subscription", subscriptionID)
}

func (s *ProfileStore) GetProfileByProviderCustomer(ctx context.Context, customerID string) (*domain.Profile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE provider_customer_id = $1`,
		customerID,
	)
	return scanProfile(row, "profile.get_by_customer", customerID)
}

// ApplyEntitlement writes a resolved subscription state in one statement.
// The version predicate is the compare-and-swap: zero rows updated means
// either a concurrent writer won or the profile is gone.
func (s *ProfileStore) ApplyEntitlement(ctx context.Context, params domain.ApplyEntitlementParams) (*domain.Profile, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE profiles SET
			status = $1,
			is_public = $2,
			provider_customer_id = $3,
			provider_subscription_id = $4,
			current_period_end = $5,
			cancel_at_period_end = $6,
			canceled_at = $7,
			version = version + 1,
			updated_at = now()
		WHERE id = $8 AND version = $9
		RETURNING `+profileColumns,
		string(params.Status),
		params.IsPublic,
		textOrNull(params.ProviderCustomerID),
		textOrNull(params.ProviderSubscriptionID),
		timestamptzOrNull(params.CurrentPeriodEnd),
		params.CancelAtPeriodEnd,
		timestamptzOrNull(params.CanceledAt),
		pgtype.UUID{Bytes: params.ProfileID, Valid: true},
		params.ExpectedVersion,
	)

	profile, err := scanProfile(row, "profile.apply", params.ProfileID.String())
	if err != nil {
		if domain.IsCode(err, domain.ENOTFOUND) {
			// Distinguish a stale version from a missing row
			var exists bool
			checkErr := s.pool.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM profiles WHERE id = $1)`,
				pgtype.UUID{Bytes: params.ProfileID, Valid: true},
			).Scan(&exists)
			if checkErr == nil && exists {
				return nil, domain.ErrVersionConflict
			}
		}
		return nil, err
	}

	return profile, nil
}

func (s *ProfileStore) ListLapsedPro(ctx context.Context, asOf time.Time, limit int32) ([]domain.Profile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE status = 'pro' AND current_period_end IS NOT NULL AND current_period_end < $1
		ORDER BY current_period_end
		LIMIT $2`,
		pgtype.Timestamptz{Time: asOf, Valid: true},
		limit,
	)
	if err != nil {
		return nil, domain.Internal(err, "profile.list_lapsed", "failed to query lapsed profiles")
	}
	defer rows.Close()

	var profiles []domain.Profile
	for rows.Next() {
		p, err := scanProfileFields(rows)
		if err != nil {
			return nil, domain.Internal(err, "profile.list_lapsed", "failed to scan profile row")
		}
		profiles = append(profiles, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, "profile.list_lapsed", "failed to read profile rows")
	}

	return profiles, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner, op, identifier string) (*domain.Profile, error) {
	p, err := scanProfileFields(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound(op, "profile", identifier)
		}
		return nil, domain.Internal(err, op, "failed to load profile")
	}
	return p, nil
}

func scanProfileFields(row rowScanner) (*domain.Profile, error) {
	var (
		id              pgtype.UUID
		customerID      pgtype.Text
		subscriptionID  pgtype.Text
		periodEnd       pgtype.Timestamptz
		canceledAt      pgtype.Timestamptz
		status          string
		p               domain.Profile
	)

	err := row.Scan(
		&id, &p.Email, &p.RestaurantName, &p.Slug, &status, &p.IsPublic,
		&customerID, &subscriptionID,
		&periodEnd, &p.CancelAtPeriodEnd, &canceledAt,
		&p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.ID = uuid.UUID(id.Bytes)
	p.Status = domain.CanonicalStatus(status)
	p.ProviderCustomerID = customerID.String
	p.ProviderSubscriptionID = subscriptionID.String
	if periodEnd.Valid {
		t := periodEnd.Time
		p.CurrentPeriodEnd = &t
	}
	if canceledAt.Valid {
		t := canceledAt.Time
		p.CanceledAt = &t
	}

	return &p, nil
}

func textOrNull(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func timestamptzOrNull(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

// CreateProfile inserts a new free-tier profile. Used by signup flows and
// seeds; the lifecycle service itself only updates existing rows.
func (s *ProfileStore) CreateProfile(ctx context.Context, email, restaurantName, slug string) (*domain.Profile, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO profiles (email, restaurant_name, slug)
		VALUES ($1, $2, $3)
		RETURNING `+profileColumns,
		email, restaurantName, slug,
	)

	p, err := scanProfileFields(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return p, nil
}
