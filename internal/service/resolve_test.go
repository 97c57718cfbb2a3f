package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/platecraft/platecraft/internal/billing"
	"github.com/platecraft/platecraft/internal/domain"
)

func TestResolveEntitlement(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	canceledAt := now.Add(-48 * time.Hour)

	tests := []struct {
		name         string
		snap         *billing.Subscription
		wantStatus   domain.CanonicalStatus
		wantPublic   bool
		wantCanceled bool
	}{
		{
			name:       "nil snapshot resolves to free",
			snap:       nil,
			wantStatus: domain.StatusFree,
		},
		{
			name:       "active resolves to pro",
			snap:       &billing.Subscription{Status: billing.SubscriptionStatusActive},
			wantStatus: domain.StatusPro,
			wantPublic: true,
		},
		{
			name:       "trialing resolves to pro",
			snap:       &billing.Subscription{Status: billing.SubscriptionStatusTrialing},
			wantStatus: domain.StatusPro,
			wantPublic: true,
		},
		{
			name: "scheduled cancellation keeps pro until period end",
			snap: &billing.Subscription{
				Status:            billing.SubscriptionStatusCanceled,
				CancelAtPeriodEnd: true,
				CurrentPeriodEnd:  now.Add(72 * time.Hour),
			},
			wantStatus: domain.StatusPro,
			wantPublic: true,
		},
		{
			name: "scheduled cancellation past period end resolves to canceled",
			snap: &billing.Subscription{
				Status:            billing.SubscriptionStatusCanceled,
				CancelAtPeriodEnd: true,
				CurrentPeriodEnd:  now.Add(-time.Hour),
				CanceledAt:        &canceledAt,
			},
			wantStatus:   domain.StatusCanceled,
			wantCanceled: true,
		},
		{
			name: "immediate cancellation resolves to canceled even with future period end",
			snap: &billing.Subscription{
				Status:           billing.SubscriptionStatusCanceled,
				CurrentPeriodEnd: now.Add(72 * time.Hour),
			},
			wantStatus:   domain.StatusCanceled,
			wantCanceled: true,
		},
		{
			name:         "past_due ends access immediately",
			snap:         &billing.Subscription{Status: billing.SubscriptionStatusPastDue},
			wantStatus:   domain.StatusCanceled,
			wantCanceled: true,
		},
		{
			name:         "unpaid ends access immediately",
			snap:         &billing.Subscription{Status: billing.SubscriptionStatusUnpaid},
			wantStatus:   domain.StatusCanceled,
			wantCanceled: true,
		},
		{
			name:       "incomplete resolves to free",
			snap:       &billing.Subscription{Status: billing.SubscriptionStatusIncomplete},
			wantStatus: domain.StatusFree,
		},
		{
			name:       "incomplete_expired resolves to free",
			snap:       &billing.Subscription{Status: billing.SubscriptionStatusIncompleteExpired},
			wantStatus: domain.StatusFree,
		},
		{
			name:       "paused resolves to free",
			snap:       &billing.Subscription{Status: billing.SubscriptionStatusPaused},
			wantStatus: domain.StatusFree,
		},
		{
			name:       "unknown future status resolves to free",
			snap:       &billing.Subscription{Status: "some_new_status"},
			wantStatus: domain.StatusFree,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveEntitlement(tt.snap, now)

			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantPublic, got.IsPublic)

			// Visibility must track pro status exactly
			assert.Equal(t, got.Status == domain.StatusPro, got.IsPublic)

			if tt.wantCanceled {
				assert.NotNil(t, got.CanceledAt)
			} else {
				assert.Nil(t, got.CanceledAt)
			}
		})
	}
}

func TestResolveEntitlement_Deterministic(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	snap := &billing.Subscription{
		Status:            billing.SubscriptionStatusCanceled,
		CancelAtPeriodEnd: true,
		CurrentPeriodEnd:  now.Add(24 * time.Hour),
	}

	first := ResolveEntitlement(snap, now)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ResolveEntitlement(snap, now))
	}
}

func TestResolveEntitlement_CanceledAtFallsBackToClock(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	got := ResolveEntitlement(&billing.Subscription{
		Status: billing.SubscriptionStatusPastDue,
	}, now)

	if assert.NotNil(t, got.CanceledAt) {
		assert.Equal(t, now, *got.CanceledAt)
	}
}

func TestResolveEntitlement_PreservesProviderCanceledAt(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	canceledAt := now.Add(-24 * time.Hour)

	got := ResolveEntitlement(&billing.Subscription{
		Status:     billing.SubscriptionStatusCanceled,
		CanceledAt: &canceledAt,
	}, now)

	if assert.NotNil(t, got.CanceledAt) {
		assert.Equal(t, canceledAt, *got.CanceledAt)
	}
}

func TestRelevantEvent(t *testing.T) {
	relevant := []string{
		EventCheckoutCompleted,
		EventSubscriptionCreated,
		EventSubscriptionUpdated,
		EventSubscriptionDeleted,
		EventInvoicePaid,
		EventInvoicePaymentFailed,
	}
	for _, eventType := range relevant {
		assert.True(t, RelevantEvent(eventType), eventType)
	}

	irrelevant := []string{"account.updated", "charge.succeeded", "customer.created", ""}
	for _, eventType := range irrelevant {
		assert.False(t, RelevantEvent(eventType), eventType)
	}
}
