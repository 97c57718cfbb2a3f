package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/platecraft/platecraft/internal/billing"
	"github.com/platecraft/platecraft/internal/domain"
	"github.com/platecraft/platecraft/internal/handler"
	"github.com/platecraft/platecraft/internal/service"
	"github.com/platecraft/platecraft/internal/telemetry"
)

// StripeHandler receives Stripe webhook events.
type StripeHandler struct {
	provider billing.Provider
	service  service.SubscriptionService
	config   StripeWebhookConfig
	logger   *slog.Logger
}

// StripeWebhookConfig contains configuration for Stripe webhook handling.
type StripeWebhookConfig struct {
	// WebhookSecret is the webhook signing secret from the Stripe dashboard.
	WebhookSecret string

	// MaxPayloadBytes caps the request body size. Zero uses a 64KB default.
	MaxPayloadBytes int64
}

const defaultMaxPayloadBytes = 64 * 1024

// NewStripeHandler creates a new Stripe webhook handler.
func NewStripeHandler(provider billing.Provider, svc service.SubscriptionService, config StripeWebhookConfig, logger *slog.Logger) *StripeHandler {
	if config.MaxPayloadBytes <= 0 {
		config.MaxPayloadBytes = defaultMaxPayloadBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeHandler{
		provider: provider,
		service:  svc,
		config:   config,
		logger:   logger.With("handler", "stripe_webhook"),
	}
}

// HandleWebhook processes incoming Stripe webhook events.
//
// Signature verification happens before anything else touches the payload.
// Processed, duplicate, and irrelevant events are acknowledged with 200.
// A processing failure returns a non-2xx status after its dedup marker is
// removed, so Stripe's redelivery of the event can run.
//
// Stripe CLI testing:
//
//	stripe listen --forward-to localhost:3000/webhooks/stripe
//	stripe trigger customer.subscription.updated
func (h *StripeHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if r.Method != http.MethodPost {
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "", "Method not allowed"))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, h.config.MaxPayloadBytes))
	if err != nil {
		h.logger.Error("failed to read webhook payload", "error", err)
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "", "Error reading request body"))
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "", "Missing signature"))
		return
	}

	if err := h.provider.VerifyWebhookSignature(payload, signature, h.config.WebhookSecret); err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		handler.ErrorResponse(w, r, domain.Errorf(domain.EUNAUTHORIZED, "", "Invalid signature"))
		return
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.Error("failed to parse webhook payload", "error", err)
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "", "Invalid JSON"))
		return
	}

	eventType := string(event.Type)
	h.logger.Info("webhook event received", "event_id", event.ID, "event_type", eventType)

	if telemetry.Business != nil {
		telemetry.Business.WebhookReceived.WithLabelValues(eventType).Inc()
		defer func() {
			telemetry.Business.WebhookLatency.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		}()
	}

	outcome, procErr := h.processEvent(r.Context(), &event)

	if telemetry.Business != nil {
		telemetry.Business.WebhookProcessed.WithLabelValues(eventType, outcome).Inc()
	}

	if procErr != nil {
		// Stripe only redelivers on non-2xx; the aborted dedup marker
		// lets the redelivery run
		handler.ErrorResponse(w, r, procErr)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"received": true}`))
}

func (h *StripeHandler) processEvent(ctx context.Context, event *stripe.Event) (string, error) {
	eventType := string(event.Type)

	if !service.RelevantEvent(eventType) {
		h.logger.Info("ignoring irrelevant event type", "event_id", event.ID, "event_type", eventType)
		return "skipped", nil
	}

	inbound, err := h.buildInboundEvent(event)
	if err != nil {
		h.logger.Warn("failed to extract identifiers from event",
			"event_id", event.ID,
			"event_type", eventType,
			"error", err,
		)
		return "skipped", nil
	}

	if err := h.service.ProcessEvent(ctx, inbound); err != nil {
		if errors.Is(err, service.ErrEventAlreadyProcessed) {
			return "duplicate", nil
		}

		h.logger.Error("failed to process webhook event",
			"event_id", event.ID,
			"event_type", eventType,
			"error", err,
		)
		telemetry.CaptureError(err, map[string]interface{}{
			"event_id":   event.ID,
			"event_type": eventType,
		})
		return "failed", err
	}

	return "processed", nil
}

// buildInboundEvent extracts the identifiers the lifecycle needs from the
// raw payload. Object state is intentionally not carried over; the service
// fetches a fresh snapshot from Stripe.
func (h *StripeHandler) buildInboundEvent(event *stripe.Event) (service.InboundEvent, error) {
	inbound := service.InboundEvent{
		ID:   event.ID,
		Type: string(event.Type),
	}

	switch string(event.Type) {
	case service.EventCheckoutCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return inbound, err
		}
		inbound.ProfileID = session.ClientReferenceID
		if session.Subscription != nil {
			inbound.SubscriptionID = session.Subscription.ID
		}
		if session.Customer != nil {
			inbound.CustomerID = session.Customer.ID
		}

	case service.EventSubscriptionCreated, service.EventSubscriptionUpdated, service.EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return inbound, err
		}
		inbound.SubscriptionID = sub.ID
		if sub.Customer != nil {
			inbound.CustomerID = sub.Customer.ID
		}

	case service.EventInvoicePaid, service.EventInvoicePaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return inbound, err
		}
		if sub := subscriptionFromInvoice(&inv); sub != nil {
			inbound.SubscriptionID = sub.ID
		}
		if inv.Customer != nil {
			inbound.CustomerID = inv.Customer.ID
		}
	}

	return inbound, nil
}

// subscriptionFromInvoice digs the subscription reference out of the v83
// invoice structure. Nil when the invoice is not subscription-backed.
func subscriptionFromInvoice(inv *stripe.Invoice) *stripe.Subscription {
	if inv.Parent == nil || inv.Parent.SubscriptionDetails == nil {
		return nil
	}
	return inv.Parent.SubscriptionDetails.Subscription
}
