package routes

import (
	"net/http"

	"github.com/platecraft/platecraft/internal/handler/api"
)

// WebhookDeps contains dependencies for webhook routes.
type WebhookDeps struct {
	StripeHandler http.HandlerFunc
}

// APIDeps contains dependencies for the authenticated subscription API.
type APIDeps struct {
	SubscriptionHandler *api.SubscriptionHandler
	SweepHandler        *api.SweepHandler

	// RequireToken authenticates requests with a bearer API token.
	RequireToken func(http.Handler) http.Handler

	// RequireOpsScope gates ops-only routes on the token's scope.
	RequireOpsScope func(http.Handler) http.Handler

	// RateLimit throttles per-client request rates on the API.
	RateLimit func(http.Handler) http.Handler
}
