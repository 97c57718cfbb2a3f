package routes

import (
	"github.com/platecraft/platecraft/internal/router"
)

// RegisterAPIRoutes registers the authenticated subscription API.
// All routes require a bearer API token; the sweep trigger additionally
// requires the ops scope.
func RegisterAPIRoutes(r *router.Router, deps APIDeps) {
	authed := r.Group(deps.RateLimit, deps.RequireToken)

	authed.Get("/api/subscription", deps.SubscriptionHandler.GetDetail)
	authed.Post("/api/subscription/sync", deps.SubscriptionHandler.Sync)
	authed.Post("/api/subscription/cancel", deps.SubscriptionHandler.Cancel)
	authed.Post("/api/subscription/reactivate", deps.SubscriptionHandler.Reactivate)
	authed.Post("/api/subscription/checkout", deps.SubscriptionHandler.StartCheckout)
	authed.Post("/api/subscription/portal", deps.SubscriptionHandler.Portal)

	authed.Post("/api/jobs/expire", deps.SweepHandler.Trigger, deps.RequireOpsScope)
}
