package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v83"
	portalsession "github.com/stripe/stripe-go/v83/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v83/checkout/session"
	stripecustomer "github.com/stripe/stripe-go/v83/customer"
	stripeinvoice "github.com/stripe/stripe-go/v83/invoice"
	stripesubscription "github.com/stripe/stripe-go/v83/subscription"
	"github.com/stripe/stripe-go/v83/webhook"
)

// StripeProvider implements Provider using the Stripe API.
type StripeProvider struct {
	config StripeConfig
}

// NewStripeProvider creates a Stripe-backed billing provider.
func NewStripeProvider(config StripeConfig) (*StripeProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	stripe.Key = config.APIKey

	return &StripeProvider{config: config}, nil
}

// VerifyWebhookSignature verifies the Stripe-Signature header against the
// signing secret. API version mismatches are tolerated; the SDK pins a
// version but snapshots are re-fetched before use anyway.
func (p *StripeProvider) VerifyWebhookSignature(payload []byte, signature string, secret string) error {
	_, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWebhookSignature, err)
	}
	return nil
}

func (p *StripeProvider) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("items.data.price.product")
	params.AddExpand("default_payment_method")

	sub, err := stripesubscription.Get(subscriptionID, params)
	if err != nil {
		return nil, wrapStripeErr("get subscription", err)
	}

	return mapSubscription(sub), nil
}

func (p *StripeProvider) CancelSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	params.Context = ctx
	params.AddExpand("items.data.price.product")

	sub, err := stripesubscription.Update(subscriptionID, params)
	if err != nil {
		return nil, wrapStripeErr("cancel subscription", err)
	}

	return mapSubscription(sub), nil
}

func (p *StripeProvider) ReactivateSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(false),
	}
	params.Context = ctx
	params.AddExpand("items.data.price.product")

	sub, err := stripesubscription.Update(subscriptionID, params)
	if err != nil {
		return nil, wrapStripeErr("reactivate subscription", err)
	}

	return mapSubscription(sub), nil
}

func (p *StripeProvider) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	cust, err := stripecustomer.Get(customerID, params)
	if err != nil {
		return nil, wrapStripeErr("get customer", err)
	}

	return &Customer{
		ID:         cust.ID,
		Email:      cust.Email,
		Name:       cust.Name,
		Delinquent: cust.Delinquent,
		CreatedAt:  time.Unix(cust.Created, 0),
	}, nil
}

func (p *StripeProvider) GetLatestInvoice(ctx context.Context, customerID string) (*Invoice, error) {
	params := &stripe.InvoiceListParams{
		Customer: stripe.String(customerID),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	iter := stripeinvoice.List(params)
	if iter.Next() {
		return mapInvoice(iter.Invoice()), nil
	}
	if err := iter.Err(); err != nil {
		return nil, wrapStripeErr("list invoices", err)
	}

	// No invoices yet is not an error
	return nil, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, params CreateCheckoutSessionParams) (*CheckoutSession, error) {
	sessionParams := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		ClientReferenceID: stripe.String(params.ProfileID),
		SuccessURL:        stripe.String(params.SuccessURL),
		CancelURL:         stripe.String(params.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(params.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"profile_id": params.ProfileID,
			},
		},
	}
	sessionParams.Context = ctx

	if params.CustomerID != "" {
		sessionParams.Customer = stripe.String(params.CustomerID)
	} else if params.CustomerEmail != "" {
		sessionParams.CustomerEmail = stripe.String(params.CustomerEmail)
	}

	sess, err := checkoutsession.New(sessionParams)
	if err != nil {
		return nil, wrapStripeErr("create checkout session", err)
	}

	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (p *StripeProvider) CreatePortalSession(ctx context.Context, params CreatePortalSessionParams) (*PortalSession, error) {
	sessionParams := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(params.CustomerID),
		ReturnURL: stripe.String(params.ReturnURL),
	}
	sessionParams.Context = ctx

	sess, err := portalsession.New(sessionParams)
	if err != nil {
		return nil, wrapStripeErr("create portal session", err)
	}

	return &PortalSession{URL: sess.URL}, nil
}

// mapSubscription converts a Stripe subscription to the provider-neutral
// snapshot. Period bounds come from the first subscription item; the
// subscription root stopped carrying them in current API versions.
func mapSubscription(sub *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:                sub.ID,
		Status:            SubscriptionStatus(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Metadata:          sub.Metadata,
	}

	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}

	if sub.CanceledAt > 0 {
		t := time.Unix(sub.CanceledAt, 0)
		out.CanceledAt = &t
	}

	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		out.CurrentPeriodStart = time.Unix(item.CurrentPeriodStart, 0)
		out.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0)

		if item.Price != nil {
			out.PriceID = item.Price.ID
			out.AmountCents = item.Price.UnitAmount
			out.Currency = string(item.Price.Currency)
			out.PlanName = item.Price.Nickname
			if item.Price.Recurring != nil {
				out.Interval = string(item.Price.Recurring.Interval)
			}
			if out.PlanName == "" && item.Price.Product != nil {
				out.PlanName = item.Price.Product.Name
			}
		}
	}

	if sub.DefaultPaymentMethod != nil && sub.DefaultPaymentMethod.Card != nil {
		out.CardBrand = string(sub.DefaultPaymentMethod.Card.Brand)
		out.CardLast4 = sub.DefaultPaymentMethod.Card.Last4
	}

	return out
}

func mapInvoice(inv *stripe.Invoice) *Invoice {
	return &Invoice{
		ID:              inv.ID,
		Status:          InvoiceStatus(inv.Status),
		AmountDueCents:  inv.AmountDue,
		AmountPaidCents: inv.AmountPaid,
		Currency:        string(inv.Currency),
		HostedURL:       inv.HostedInvoiceURL,
		CreatedAt:       time.Unix(inv.Created, 0),
		PeriodEnd:       time.Unix(inv.PeriodEnd, 0),
	}
}

// wrapStripeErr classifies a Stripe SDK error under the package sentinels
// while preserving the original detail for logging.
func wrapStripeErr(op string, err error) error {
	var sErr *stripe.Error
	if errors.As(err, &sErr) {
		se := &StripeError{
			Message:       sErr.Msg,
			Code:          string(sErr.Code),
			HTTPStatus:    sErr.HTTPStatusCode,
			RequestID:     sErr.RequestID,
			OriginalError: err,
		}
		switch {
		case se.IsMissing():
			return fmt.Errorf("%s: %w: %v", op, ErrResourceMissing, se)
		case se.IsTemporary():
			return fmt.Errorf("%s: %w: %v", op, ErrProviderUnavailable, se)
		}
		return fmt.Errorf("%s: %w", op, se)
	}

	// Errors without a Stripe error body are network-level and retryable
	return fmt.Errorf("%s: %w: %v", op, ErrProviderUnavailable, err)
}
