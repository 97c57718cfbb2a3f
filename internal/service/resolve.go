package service

import (
	"time"

	"github.com/platecraft/platecraft/internal/billing"
	"github.com/platecraft/platecraft/internal/domain"
)

// Entitlement is the resolved local subscription state for one provider
// snapshot at one point in time.
type Entitlement struct {
	Status     domain.CanonicalStatus
	IsPublic   bool
	CanceledAt *time.Time
}

// ResolveEntitlement maps a provider snapshot onto the canonical local state.
// This is the only place status semantics live; every sync path (webhook,
// manual reconciliation, expiry sweep) goes through it.
//
// Pure function: the same snapshot and clock always produce the same result,
// and IsPublic is true exactly when Status is pro.
func ResolveEntitlement(snap *billing.Subscription, now time.Time) Entitlement {
	if snap == nil {
		return Entitlement{Status: domain.StatusFree}
	}

	switch snap.Status {
	case billing.SubscriptionStatusActive, billing.SubscriptionStatusTrialing:
		return Entitlement{Status: domain.StatusPro, IsPublic: true}

	case billing.SubscriptionStatusCanceled:
		// A scheduled cancellation keeps paid access until the period ends
		if snap.CancelAtPeriodEnd && snap.CurrentPeriodEnd.After(now) {
			return Entitlement{Status: domain.StatusPro, IsPublic: true}
		}
		return Entitlement{Status: domain.StatusCanceled, CanceledAt: resolveCanceledAt(snap, now)}

	case billing.SubscriptionStatusPastDue, billing.SubscriptionStatusUnpaid:
		// Payment collection failed; access ends immediately
		return Entitlement{Status: domain.StatusCanceled, CanceledAt: resolveCanceledAt(snap, now)}

	default:
		// incomplete, incomplete_expired, paused, or anything new the
		// provider invents: no paid access
		return Entitlement{Status: domain.StatusFree}
	}
}

func resolveCanceledAt(snap *billing.Subscription, now time.Time) *time.Time {
	if snap.CanceledAt != nil {
		return snap.CanceledAt
	}
	t := now
	return &t
}
