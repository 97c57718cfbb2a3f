package billing

import (
	"context"
	"errors"
)

// MockProvider implements Provider for testing.
// Set the corresponding Func field to control behavior; unset methods return
// an error. Call slices record invocations in order.
type MockProvider struct {
	VerifyWebhookSignatureFunc        func(payload []byte, signature string, secret string) error
	GetSubscriptionFunc               func(ctx context.Context, subscriptionID string) (*Subscription, error)
	CancelSubscriptionAtPeriodEndFunc func(ctx context.Context, subscriptionID string) (*Subscription, error)
	ReactivateSubscriptionFunc        func(ctx context.Context, subscriptionID string) (*Subscription, error)
	GetCustomerFunc                   func(ctx context.Context, customerID string) (*Customer, error)
	GetLatestInvoiceFunc              func(ctx context.Context, customerID string) (*Invoice, error)
	CreateCheckoutSessionFunc         func(ctx context.Context, params CreateCheckoutSessionParams) (*CheckoutSession, error)
	CreatePortalSessionFunc           func(ctx context.Context, params CreatePortalSessionParams) (*PortalSession, error)

	GetSubscriptionCalls []string
	CancelCalls          []string
	ReactivateCalls      []string
}

var errMockNotSet = errors.New("billing: mock method not set")

func (m *MockProvider) VerifyWebhookSignature(payload []byte, signature string, secret string) error {
	if m.VerifyWebhookSignatureFunc != nil {
		return m.VerifyWebhookSignatureFunc(payload, signature, secret)
	}
	return nil
}

func (m *MockProvider) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	m.GetSubscriptionCalls = append(m.GetSubscriptionCalls, subscriptionID)
	if m.GetSubscriptionFunc != nil {
		return m.GetSubscriptionFunc(ctx, subscriptionID)
	}
	return nil, errMockNotSet
}

func (m *MockProvider) CancelSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) (*Subscription, error) {
	m.CancelCalls = append(m.CancelCalls, subscriptionID)
	if m.CancelSubscriptionAtPeriodEndFunc != nil {
		return m.CancelSubscriptionAtPeriodEndFunc(ctx, subscriptionID)
	}
	return nil, errMockNotSet
}

func (m *MockProvider) ReactivateSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	m.ReactivateCalls = append(m.ReactivateCalls, subscriptionID)
	if m.ReactivateSubscriptionFunc != nil {
		return m.ReactivateSubscriptionFunc(ctx, subscriptionID)
	}
	return nil, errMockNotSet
}

func (m *MockProvider) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	if m.GetCustomerFunc != nil {
		return m.GetCustomerFunc(ctx, customerID)
	}
	return nil, errMockNotSet
}

func (m *MockProvider) GetLatestInvoice(ctx context.Context, customerID string) (*Invoice, error) {
	if m.GetLatestInvoiceFunc != nil {
		return m.GetLatestInvoiceFunc(ctx, customerID)
	}
	return nil, errMockNotSet
}

func (m *MockProvider) CreateCheckoutSession(ctx context.Context, params CreateCheckoutSessionParams) (*CheckoutSession, error) {
	if m.CreateCheckoutSessionFunc != nil {
		return m.CreateCheckoutSessionFunc(ctx, params)
	}
	return nil, errMockNotSet
}

func (m *MockProvider) CreatePortalSession(ctx context.Context, params CreatePortalSessionParams) (*PortalSession, error) {
	if m.CreatePortalSessionFunc != nil {
		return m.CreatePortalSessionFunc(ctx, params)
	}
	return nil, errMockNotSet
}
