package service

import (
	"github.com/platecraft/platecraft/internal/domain"
)

// Subscription lifecycle errors
var (
	// ErrEventAlreadyProcessed means a webhook event ID was seen before.
	// Callers treat this as success; the provider gets a normal ack.
	ErrEventAlreadyProcessed = domain.Errorf(domain.ECONFLICT, "", "Event already processed")

	ErrNoSubscription     = domain.Errorf(domain.EINVALID, "", "No subscription on file")
	ErrNoBillingAccount   = domain.Errorf(domain.EINVALID, "", "No billing account on file")
	ErrAlreadySubscribed  = domain.Errorf(domain.ECONFLICT, "", "Profile already has an active subscription")
	ErrNotPendingCancel   = domain.Errorf(domain.EINVALID, "", "Subscription is not pending cancellation")
	ErrSubscriptionEnded  = domain.Errorf(domain.EINVALID, "", "Subscription already ended; start a new checkout")
)
