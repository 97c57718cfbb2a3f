package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/platecraft/platecraft/internal/idempotency"
	"github.com/platecraft/platecraft/internal/service"
	"github.com/platecraft/platecraft/internal/telemetry"
)

// Config holds worker configuration.
type Config struct {
	// WorkerID uniquely identifies this worker instance
	WorkerID string

	// SweepInterval is how often to run the expiry sweep
	SweepInterval time.Duration

	// MarkerSweepInterval is how often to purge expired dedup markers
	MarkerSweepInterval time.Duration
}

// Worker runs the periodic subscription maintenance jobs: the expiry sweep
// that demotes lapsed pro profiles, and the dedup marker purge.
type Worker struct {
	config  Config
	service service.SubscriptionService
	guard   idempotency.Guard
	logger  *slog.Logger
}

// NewWorker creates a new maintenance worker.
func NewWorker(svc service.SubscriptionService, guard idempotency.Guard, config Config, logger *slog.Logger) *Worker {
	if config.WorkerID == "" {
		config.WorkerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}
	if config.SweepInterval == 0 {
		config.SweepInterval = time.Hour
	}
	if config.MarkerSweepInterval == 0 {
		config.MarkerSweepInterval = 6 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		config:  config,
		service: svc,
		guard:   guard,
		logger:  logger.With("worker_id", config.WorkerID),
	}
}

// Start runs the maintenance loops until the context is cancelled.
// An immediate sweep runs on startup to catch profiles that lapsed while
// the process was down.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("worker starting",
		"sweep_interval", w.config.SweepInterval,
		"marker_sweep_interval", w.config.MarkerSweepInterval,
	)

	w.runExpirySweep(ctx)

	sweepTicker := time.NewTicker(w.config.SweepInterval)
	defer sweepTicker.Stop()

	markerTicker := time.NewTicker(w.config.MarkerSweepInterval)
	defer markerTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker shutting down")
			return ctx.Err()

		case <-sweepTicker.C:
			w.runExpirySweep(ctx)

		case <-markerTicker.C:
			w.runMarkerSweep(ctx)
		}
	}
}

func (w *Worker) runExpirySweep(ctx context.Context) {
	start := time.Now()

	result, err := w.service.ExpireLapsed(ctx)
	if err != nil {
		w.logger.Error("expiry sweep failed", "error", err)
		telemetry.CaptureError(err, map[string]interface{}{"job": "expiry_sweep"})
		return
	}

	duration := time.Since(start)
	w.logger.Info("expiry sweep completed",
		"examined", result.Examined,
		"demoted", result.Demoted,
		"errors", result.Errors,
		"duration", duration,
	)

	if telemetry.Business != nil {
		telemetry.Business.SweepRuns.WithLabelValues("scheduled").Inc()
		telemetry.Business.SweepDemotions.Add(float64(result.Demoted))
		telemetry.Business.SweepErrors.Add(float64(result.Errors))
		telemetry.Business.SweepDuration.Observe(duration.Seconds())
	}
}

func (w *Worker) runMarkerSweep(ctx context.Context) {
	removed, err := w.guard.SweepExpired(ctx)
	if err != nil {
		w.logger.Error("marker sweep failed", "error", err)
		return
	}

	if removed > 0 {
		w.logger.Info("expired event markers removed", "count", removed)
	}
	if telemetry.Business != nil {
		telemetry.Business.MarkersSwept.Add(float64(removed))
	}
}
