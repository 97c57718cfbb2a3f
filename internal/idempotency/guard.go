// Package idempotency deduplicates webhook event deliveries.
//
// A marker is recorded for an event ID before any side effects run. If
// processing fails the marker is removed so the provider's retry of the same
// event ID can succeed. Markers expire after TTL; retries arriving later than
// that are rare enough to tolerate as re-processing, which is safe because
// event handling converges on fresh provider snapshots.
package idempotency

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultTTL is how long processed-event markers are kept.
const DefaultTTL = 24 * time.Hour

// Guard tracks which provider events have been processed.
type Guard interface {
	// Begin records a marker for eventID. Returns false when a marker
	// already exists (duplicate delivery or concurrent worker).
	Begin(ctx context.Context, eventID, eventType string) (fresh bool, err error)

	// Abort removes the marker after a processing failure so the
	// provider's retry is not treated as a duplicate.
	Abort(ctx context.Context, eventID string) error

	// SweepExpired removes markers older than the TTL and returns how
	// many were removed, when the backend can count them.
	SweepExpired(ctx context.Context) (int64, error)
}

// MemoryGuard keeps markers in process memory with a TTL.
// Suitable for single-instance deployments; use the Redis or Postgres guard
// when running more than one replica.
type MemoryGuard struct {
	cache *gocache.Cache
}

// NewMemoryGuard creates an in-memory guard. A ttl of zero uses DefaultTTL.
func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryGuard{
		cache: gocache.New(ttl, ttl/2),
	}
}

func (g *MemoryGuard) Begin(_ context.Context, eventID, eventType string) (bool, error) {
	// Add fails when the key exists, which is exactly the duplicate check
	if err := g.cache.Add(eventID, eventType, gocache.DefaultExpiration); err != nil {
		return false, nil
	}
	return true, nil
}

func (g *MemoryGuard) Abort(_ context.Context, eventID string) error {
	g.cache.Delete(eventID)
	return nil
}

func (g *MemoryGuard) SweepExpired(_ context.Context) (int64, error) {
	before := g.cache.ItemCount()
	g.cache.DeleteExpired()
	return int64(before - g.cache.ItemCount()), nil
}
