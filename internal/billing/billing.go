package billing

import (
	"context"
	"time"
)

// Provider defines the billing operations the subscription lifecycle needs.
// The only real implementation is Stripe; Disabled stands in when no API key
// is configured.
type Provider interface {
	// VerifyWebhookSignature verifies that a webhook request is authentic.
	// Must be called before any event side effects.
	VerifyWebhookSignature(payload []byte, signature string, secret string) error

	// GetSubscription fetches a fresh subscription snapshot.
	// Event payloads are never trusted for state; this is the source of truth.
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)

	// CancelSubscriptionAtPeriodEnd schedules cancellation at the end of the
	// current billing period and returns the updated snapshot.
	CancelSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) (*Subscription, error)

	// ReactivateSubscription clears a pending cancellation on a subscription
	// still inside its paid period.
	ReactivateSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)

	// GetCustomer retrieves the billing customer.
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)

	// GetLatestInvoice returns the customer's most recent invoice, or nil
	// when the customer has none.
	GetLatestInvoice(ctx context.Context, customerID string) (*Invoice, error)

	// CreateCheckoutSession starts a subscription-mode hosted checkout.
	// The profile ID travels as the client reference so the completion
	// webhook can bind provider IDs back to the profile.
	CreateCheckoutSession(ctx context.Context, params CreateCheckoutSessionParams) (*CheckoutSession, error)

	// CreatePortalSession creates a self-serve billing portal session.
	CreatePortalSession(ctx context.Context, params CreatePortalSessionParams) (*PortalSession, error)
}

// SubscriptionStatus is the provider-reported subscription state.
type SubscriptionStatus string

const (
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusPaused            SubscriptionStatus = "paused"
)

// Subscription is a provider subscription snapshot.
// CurrentPeriodEnd is read from the first subscription item; that is the one
// canonical period-end source in this codebase.
type Subscription struct {
	ID         string
	CustomerID string
	Status     SubscriptionStatus

	PriceID     string
	PlanName    string
	AmountCents int64
	Currency    string
	Interval    string

	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time

	// Card summary from the default payment method, when expanded.
	CardBrand string
	CardLast4 string

	Metadata map[string]string
}

// Customer represents a billing customer.
type Customer struct {
	ID         string
	Email      string
	Name       string
	Delinquent bool
	CreatedAt  time.Time
}

// InvoiceStatus is the provider-reported invoice state.
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "draft"
	InvoiceStatusOpen          InvoiceStatus = "open"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusUncollectible InvoiceStatus = "uncollectible"
	InvoiceStatusVoid          InvoiceStatus = "void"
)

// Invoice is a provider invoice snapshot.
type Invoice struct {
	ID              string
	Status          InvoiceStatus
	AmountDueCents  int64
	AmountPaidCents int64
	Currency        string
	HostedURL       string
	CreatedAt       time.Time
	PeriodEnd       time.Time
}

// CreateCheckoutSessionParams contains parameters for a hosted checkout.
type CreateCheckoutSessionParams struct {
	ProfileID     string
	CustomerID    string // optional; reuse existing customer when set
	CustomerEmail string
	PriceID       string
	SuccessURL    string
	CancelURL     string
}

// CheckoutSession is a created hosted checkout session.
type CheckoutSession struct {
	ID  string
	URL string
}

// CreatePortalSessionParams contains parameters for a billing portal session.
type CreatePortalSessionParams struct {
	CustomerID string
	ReturnURL  string
}

// PortalSession is a created billing portal session.
type PortalSession struct {
	URL string
}
