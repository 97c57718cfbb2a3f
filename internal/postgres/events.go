package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/platecraft/platecraft/internal/idempotency"
)

// EventGuard implements idempotency.Guard on Postgres.
// The webhook_events rows double as a processing audit trail.
type EventGuard struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewEventGuard creates a Postgres-backed guard. A ttl of zero uses
// idempotency.DefaultTTL.
func NewEventGuard(pool *pgxpool.Pool, ttl time.Duration) *EventGuard {
	if ttl <= 0 {
		ttl = idempotency.DefaultTTL
	}
	return &EventGuard{pool: pool, ttl: ttl}
}

func (g *EventGuard) Begin(ctx context.Context, eventID, eventType string) (bool, error) {
	// ON CONFLICT DO NOTHING makes insert-or-detect-duplicate atomic
	tag, err := g.pool.Exec(ctx, `
		INSERT INTO webhook_events (provider_event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (provider_event_id) DO NOTHING`,
		eventID, eventType,
	)
	if err != nil {
		return false, fmt.Errorf("failed to record event marker: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (g *EventGuard) Abort(ctx context.Context, eventID string) error {
	_, err := g.pool.Exec(ctx,
		`DELETE FROM webhook_events WHERE provider_event_id = $1`,
		eventID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove event marker: %w", err)
	}
	return nil
}

func (g *EventGuard) SweepExpired(ctx context.Context) (int64, error) {
	tag, err := g.pool.Exec(ctx,
		`DELETE FROM webhook_events WHERE received_at < $1`,
		time.Now().Add(-g.ttl),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep event markers: %w", err)
	}
	return tag.RowsAffected(), nil
}
