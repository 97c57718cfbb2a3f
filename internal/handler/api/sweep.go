package api

import (
	"log/slog"
	"net/http"

	"github.com/platecraft/platecraft/internal/handler"
	"github.com/platecraft/platecraft/internal/service"
	"github.com/platecraft/platecraft/internal/telemetry"
)

// SweepHandler exposes the expiry sweep as an ops endpoint.
// The worker runs the same sweep on a schedule; this trigger exists for
// incident response and deploy-time catch-up.
type SweepHandler struct {
	service service.SubscriptionService
	logger  *slog.Logger
}

// NewSweepHandler creates a new sweep trigger handler.
func NewSweepHandler(svc service.SubscriptionService, logger *slog.Logger) *SweepHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepHandler{
		service: svc,
		logger:  logger.With("handler", "sweep_api"),
	}
}

// Trigger handles POST /api/jobs/expire.
func (h *SweepHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ExpireLapsed(r.Context())
	if err != nil {
		h.logger.Error("sweep trigger failed", "error", err)
		handler.ErrorResponse(w, r, err)
		return
	}

	h.logger.Info("sweep triggered",
		"examined", result.Examined,
		"demoted", result.Demoted,
		"errors", result.Errors,
	)

	if telemetry.Business != nil {
		telemetry.Business.SweepRuns.WithLabelValues("manual").Inc()
		telemetry.Business.SweepDemotions.Add(float64(result.Demoted))
		telemetry.Business.SweepErrors.Add(float64(result.Errors))
	}

	writeJSON(w, http.StatusOK, map[string]int{
		"examined": result.Examined,
		"demoted":  result.Demoted,
		"errors":   result.Errors,
	})
}
