package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/platecraft/platecraft/internal/domain"
	"github.com/platecraft/platecraft/internal/handler"
	"github.com/platecraft/platecraft/internal/middleware"
	"github.com/platecraft/platecraft/internal/service"
)

// SubscriptionHandler serves the authenticated subscription API.
type SubscriptionHandler struct {
	service service.SubscriptionService
	logger  *slog.Logger
}

// NewSubscriptionHandler creates a new subscription API handler.
func NewSubscriptionHandler(svc service.SubscriptionService, logger *slog.Logger) *SubscriptionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionHandler{
		service: svc,
		logger:  logger.With("handler", "subscription_api"),
	}
}

// profileResponse is the wire shape for a synchronized profile.
type profileResponse struct {
	ProfileID         string     `json:"profile_id"`
	Status            string     `json:"status"`
	IsPublic          bool       `json:"is_public"`
	CurrentPeriodEnd  *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	CanceledAt        *time.Time `json:"canceled_at,omitempty"`
}

func toProfileResponse(p *domain.Profile) profileResponse {
	return profileResponse{
		ProfileID:         p.ID.String(),
		Status:            string(p.Status),
		IsPublic:          p.IsPublic,
		CurrentPeriodEnd:  p.CurrentPeriodEnd,
		CancelAtPeriodEnd: p.CancelAtPeriodEnd,
		CanceledAt:        p.CanceledAt,
	}
}

// Sync handles POST /api/subscription/sync.
// Reconciles the profile against the billing provider on demand.
func (h *SubscriptionHandler) Sync(w http.ResponseWriter, r *http.Request) {
	profileID := middleware.GetProfileID(r.Context())

	profile, err := h.service.Sync(r.Context(), profileID)
	if err != nil {
		h.logger.Error("sync failed", "profile_id", profileID, "error", err)
		handler.ErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

// Cancel handles POST /api/subscription/cancel.
// Schedules cancellation at period end; paid access continues until then.
func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	profileID := middleware.GetProfileID(r.Context())

	profile, err := h.service.Cancel(r.Context(), profileID)
	if err != nil {
		h.logger.Error("cancel failed", "profile_id", profileID, "error", err)
		handler.ErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

// Reactivate handles POST /api/subscription/reactivate.
// Clears a pending cancellation while the paid period is still running.
func (h *SubscriptionHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	profileID := middleware.GetProfileID(r.Context())

	profile, err := h.service.Reactivate(r.Context(), profileID)
	if err != nil {
		h.logger.Error("reactivate failed", "profile_id", profileID, "error", err)
		handler.ErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

// GetDetail handles GET /api/subscription.
func (h *SubscriptionHandler) GetDetail(w http.ResponseWriter, r *http.Request) {
	profileID := middleware.GetProfileID(r.Context())

	detail, err := h.service.GetDetail(r.Context(), profileID)
	if err != nil {
		h.logger.Error("detail lookup failed", "profile_id", profileID, "error", err)
		handler.ErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toDetailResponse(detail))
}

// StartCheckout handles POST /api/subscription/checkout.
func (h *SubscriptionHandler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	profileID := middleware.GetProfileID(r.Context())

	session, err := h.service.StartCheckout(r.Context(), profileID)
	if err != nil {
		h.logger.Error("checkout failed", "profile_id", profileID, "error", err)
		handler.ErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": session.ID,
		"url":        session.URL,
	})
}

// Portal handles POST /api/subscription/portal.
func (h *SubscriptionHandler) Portal(w http.ResponseWriter, r *http.Request) {
	profileID := middleware.GetProfileID(r.Context())

	url, err := h.service.PortalURL(r.Context(), profileID)
	if err != nil {
		h.logger.Error("portal session failed", "profile_id", profileID, "error", err)
		handler.ErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// detailResponse is the wire shape for the subscription detail view.
type detailResponse struct {
	ProfileID string `json:"profile_id"`
	Status    string `json:"status"`
	IsPublic  bool   `json:"is_public"`

	HasSubscription bool   `json:"has_subscription"`
	PlanName        string `json:"plan_name,omitempty"`
	Price           string `json:"price,omitempty"`
	Interval        string `json:"interval,omitempty"`

	CurrentPeriodStart *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end"`
	CanceledAt         *time.Time `json:"canceled_at,omitempty"`

	DaysUntilRenewal      int `json:"days_until_renewal,omitempty"`
	DaysUntilCancellation int `json:"days_until_cancellation,omitempty"`

	CardBrand     string `json:"card_brand,omitempty"`
	CardLast4     string `json:"card_last4,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`

	LatestInvoice *invoiceResponse `json:"latest_invoice,omitempty"`
}

type invoiceResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	AmountDue int64     `json:"amount_due_cents"`
	HostedURL string    `json:"hosted_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toDetailResponse(d *service.SubscriptionDetail) detailResponse {
	resp := detailResponse{
		ProfileID:             d.ProfileID.String(),
		Status:                string(d.Status),
		IsPublic:              d.IsPublic,
		HasSubscription:       d.HasSubscription,
		PlanName:              d.PlanName,
		Price:                 d.PriceFormatted,
		Interval:              d.Interval,
		CurrentPeriodStart:    d.CurrentPeriodStart,
		CurrentPeriodEnd:      d.CurrentPeriodEnd,
		CancelAtPeriodEnd:     d.CancelAtPeriodEnd,
		CanceledAt:            d.CanceledAt,
		DaysUntilRenewal:      d.DaysUntilRenewal,
		DaysUntilCancellation: d.DaysUntilCancellation,
		CardBrand:             d.CardBrand,
		CardLast4:             d.CardLast4,
		CustomerEmail:         d.CustomerEmail,
	}
	if d.LatestInvoice != nil {
		resp.LatestInvoice = &invoiceResponse{
			ID:        d.LatestInvoice.ID,
			Status:    d.LatestInvoice.Status,
			AmountDue: d.LatestInvoice.AmountDueCents,
			HostedURL: d.LatestInvoice.HostedURL,
			CreatedAt: d.LatestInvoice.CreatedAt,
		}
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
