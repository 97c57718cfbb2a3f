package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CanonicalStatus is the local subscription state of a profile.
// It is always derived from a provider snapshot, never edited directly.
type CanonicalStatus string

const (
	StatusFree     CanonicalStatus = "free"
	StatusPro      CanonicalStatus = "pro"
	StatusCanceled CanonicalStatus = "canceled"
)

// Valid reports whether s is one of the known canonical statuses.
func (s CanonicalStatus) Valid() bool {
	switch s {
	case StatusFree, StatusPro, StatusCanceled:
		return true
	}
	return false
}

// Profile is a restaurant owner account with its subscription bookkeeping.
// IsPublic gates whether the restaurant's menu page is served; it must always
// equal (Status == StatusPro).
type Profile struct {
	ID             uuid.UUID
	Email          string
	RestaurantName string
	Slug           string

	Status   CanonicalStatus
	IsPublic bool

	ProviderCustomerID     string
	ProviderSubscriptionID string
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool
	CanceledAt             *time.Time

	// Version increments on every entitlement write. Writers compare-and-swap
	// against it; losers refetch and re-resolve.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ErrVersionConflict is returned by ApplyEntitlement when the profile row was
// modified since it was read.
var ErrVersionConflict = &Error{
	Code:    ECONFLICT,
	Message: "profile was modified concurrently",
}

// ApplyEntitlementParams carries one resolved subscription state plus the
// provider bookkeeping that goes with it. Applied as a single atomic write.
type ApplyEntitlementParams struct {
	ProfileID       uuid.UUID
	ExpectedVersion int64

	Status   CanonicalStatus
	IsPublic bool

	ProviderCustomerID     string
	ProviderSubscriptionID string
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool
	CanceledAt             *time.Time
}

// ProfileStore persists profiles and their subscription state.
type ProfileStore interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error)
	GetProfileByProviderSubscription(ctx context.Context, subscriptionID string) (*Profile, error)
	GetProfileByProviderCustomer(ctx context.Context, customerID string) (*Profile, error)

	// ApplyEntitlement atomically writes a resolved state, guarded by the
	// version column. Returns ErrVersionConflict when ExpectedVersion is stale.
	ApplyEntitlement(ctx context.Context, params ApplyEntitlementParams) (*Profile, error)

	// ListLapsedPro returns pro profiles whose current period end has passed.
	ListLapsedPro(ctx context.Context, asOf time.Time, limit int32) ([]Profile, error)
}

// APIToken is a bearer credential for the reconciliation endpoints.
// Tokens are stored as SHA-256 digests, never in the clear.
type APIToken struct {
	ProfileID uuid.UUID
	Scope     string
	ExpiresAt *time.Time
}

// Token scopes.
const (
	ScopeOwner = "owner" // subscription endpoints for one profile
	ScopeOps   = "ops"   // deployment-trusted endpoints (sweep trigger)
)

// Expired reports whether the token is past its expiry, if it has one.
func (t *APIToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}

// TokenStore resolves bearer token digests to profiles.
type TokenStore interface {
	GetTokenByDigest(ctx context.Context, digest string) (*APIToken, error)
}
