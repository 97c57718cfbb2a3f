package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned when no billing API key is configured.
	// Subscription features are unavailable; free-tier behavior still works.
	ErrNotConfigured = errors.New("billing: provider not configured")

	// ErrInvalidWebhookSignature is returned when webhook signature verification fails.
	ErrInvalidWebhookSignature = errors.New("billing: invalid webhook signature")

	// ErrResourceMissing is returned when the provider has no such
	// subscription, customer, or invoice.
	ErrResourceMissing = errors.New("billing: resource missing")

	// ErrProviderUnavailable is returned on transient provider failures
	// (rate limits, 5xx, connection errors). Safe to retry.
	ErrProviderUnavailable = errors.New("billing: provider unavailable")
)

// StripeError wraps a Stripe API error with additional context.
type StripeError struct {
	Message       string // Human-readable error message
	Code          string // Stripe error code (e.g., "resource_missing")
	HTTPStatus    int    // HTTP status code from Stripe
	RequestID     string // Stripe request ID for debugging
	OriginalError error  // Original error from Stripe SDK
}

func (e *StripeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("stripe: %s (code: %s)", e.Message, e.Code)
	}
	return fmt.Sprintf("stripe: %s", e.Message)
}

func (e *StripeError) Unwrap() error {
	return e.OriginalError
}

// IsMissing returns true if the error means the resource does not exist.
func (e *StripeError) IsMissing() bool {
	return e.Code == "resource_missing" || e.HTTPStatus == 404
}

// IsTemporary returns true if the error is likely transient and retryable.
func (e *StripeError) IsTemporary() bool {
	return e.Code == "rate_limit" || e.Code == "api_connection_error" ||
		e.HTTPStatus == 429 || e.HTTPStatus >= 500
}
