package billing

import (
	"context"
)

// DisabledProvider is used when no billing API key is configured.
// Every operation fails with ErrNotConfigured so callers can surface the
// feature as unavailable instead of crashing at startup.
type DisabledProvider struct{}

// NewDisabledProvider creates a provider that rejects all operations.
func NewDisabledProvider() *DisabledProvider {
	return &DisabledProvider{}
}

func (p *DisabledProvider) VerifyWebhookSignature(payload []byte, signature string, secret string) error {
	return ErrNotConfigured
}

func (p *DisabledProvider) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	return nil, ErrNotConfigured
}

func (p *DisabledProvider) CancelSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) (*Subscription, error) {
	return nil, ErrNotConfigured
}

func (p *DisabledProvider) ReactivateSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	return nil, ErrNotConfigured
}

func (p *DisabledProvider) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	return nil, ErrNotConfigured
}

func (p *DisabledProvider) GetLatestInvoice(ctx context.Context, customerID string) (*Invoice, error) {
	return nil, ErrNotConfigured
}

func (p *DisabledProvider) CreateCheckoutSession(ctx context.Context, params CreateCheckoutSessionParams) (*CheckoutSession, error) {
	return nil, ErrNotConfigured
}

func (p *DisabledProvider) CreatePortalSession(ctx context.Context, params CreatePortalSessionParams) (*PortalSession, error) {
	return nil, ErrNotConfigured
}
