package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/platecraft/platecraft/internal/billing"
	"github.com/platecraft/platecraft/internal/domain"
)

// Provider webhook event types this service acts on. Everything else is
// acknowledged and ignored.
const (
	EventCheckoutCompleted    = "checkout.session.completed"
	EventSubscriptionCreated  = "customer.subscription.created"
	EventSubscriptionUpdated  = "customer.subscription.updated"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
	EventInvoicePaid          = "invoice.paid"
	EventInvoicePaymentFailed = "invoice.payment_failed"
)

// RelevantEvent reports whether the service acts on the given event type.
func RelevantEvent(eventType string) bool {
	switch eventType {
	case EventCheckoutCompleted,
		EventSubscriptionCreated,
		EventSubscriptionUpdated,
		EventSubscriptionDeleted,
		EventInvoicePaid,
		EventInvoicePaymentFailed:
		return true
	}
	return false
}

// InboundEvent is a provider webhook event reduced to the identifiers the
// lifecycle needs. Payload state is deliberately absent: snapshots are
// always re-fetched from the provider.
type InboundEvent struct {
	ID   string
	Type string

	SubscriptionID string
	CustomerID     string

	// ProfileID is the checkout client reference; only set on
	// checkout completion events.
	ProfileID string
}

// SweepResult summarizes one expiry sweep run.
type SweepResult struct {
	Examined int
	Demoted  int
	Errors   int
}

// InvoiceSummary is the latest-invoice slice of the subscription detail view.
type InvoiceSummary struct {
	ID             string
	Status         string
	AmountDueCents int64
	HostedURL      string
	CreatedAt      time.Time
}

// SubscriptionDetail composes provider subscription, customer, and invoice
// state into one view for the account page.
type SubscriptionDetail struct {
	ProfileID uuid.UUID
	Status    domain.CanonicalStatus
	IsPublic  bool

	HasSubscription bool
	PlanName        string
	PriceFormatted  string
	AmountCents     int64
	Currency        string
	Interval        string

	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time

	// DaysUntilRenewal is set when the subscription will renew;
	// DaysUntilCancellation when it is scheduled to end instead.
	DaysUntilRenewal      int
	DaysUntilCancellation int

	CardBrand     string
	CardLast4     string
	CustomerEmail string

	LatestInvoice *InvoiceSummary
}

// LifecycleMailer sends best-effort lifecycle notifications.
// Failures are logged and never block a sync.
type LifecycleMailer interface {
	SendPaymentFailed(ctx context.Context, toEmail, restaurantName string) error
	SendSubscriptionCanceled(ctx context.Context, toEmail, restaurantName string) error
}

// SubscriptionService converges local profile state with the billing
// provider's truth and serves the reconciliation surface.
type SubscriptionService interface {
	// ProcessEvent handles one verified webhook event: dedup, fresh
	// snapshot fetch, resolve, synchronize. Returns
	// ErrEventAlreadyProcessed for duplicate deliveries.
	ProcessEvent(ctx context.Context, event InboundEvent) error

	// Sync reconciles a profile against the provider on demand.
	Sync(ctx context.Context, profileID uuid.UUID) (*domain.Profile, error)

	// Cancel schedules cancellation at period end. The profile keeps pro
	// access until the paid period lapses.
	Cancel(ctx context.Context, profileID uuid.UUID) (*domain.Profile, error)

	// Reactivate clears a pending cancellation while still in the paid
	// period.
	Reactivate(ctx context.Context, profileID uuid.UUID) (*domain.Profile, error)

	// StartCheckout creates a hosted checkout session for the pro plan.
	StartCheckout(ctx context.Context, profileID uuid.UUID) (*billing.CheckoutSession, error)

	// PortalURL creates a billing portal session for self-serve payment
	// method management.
	PortalURL(ctx context.Context, profileID uuid.UUID) (string, error)

	// ExpireLapsed demotes pro profiles whose paid period has passed.
	ExpireLapsed(ctx context.Context) (SweepResult, error)

	// GetDetail projects provider subscription, customer, and invoice
	// state into the account view.
	GetDetail(ctx context.Context, profileID uuid.UUID) (*SubscriptionDetail, error)
}
