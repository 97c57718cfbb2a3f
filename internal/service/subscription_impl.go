package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/platecraft/platecraft/internal/billing"
	"github.com/platecraft/platecraft/internal/domain"
	"github.com/platecraft/platecraft/internal/idempotency"
)

// applyRetries bounds the optimistic-concurrency retry loop. Conflicts are
// rare (webhook and manual sync racing); three attempts is plenty because
// every retry re-resolves from the same provider snapshot.
const applyRetries = 3

// sweepBatchSize bounds how many lapsed profiles one sweep run examines.
const sweepBatchSize = 500

// Config holds the URLs and price the lifecycle hands to the provider.
type Config struct {
	ProPriceID      string
	SuccessURL      string
	CancelURL       string
	PortalReturnURL string
}

type subscriptionService struct {
	store    domain.ProfileStore
	guard    idempotency.Guard
	provider billing.Provider
	mailer   LifecycleMailer // optional
	config   Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewSubscriptionService creates the subscription lifecycle service.
// mailer may be nil; notifications are then skipped.
func NewSubscriptionService(
	store domain.ProfileStore,
	guard idempotency.Guard,
	provider billing.Provider,
	mailer LifecycleMailer,
	config Config,
	logger *slog.Logger,
) (SubscriptionService, error) {
	if store == nil {
		return nil, fmt.Errorf("profile store is required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency guard is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("billing provider is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &subscriptionService{
		store:    store,
		guard:    guard,
		provider: provider,
		mailer:   mailer,
		config:   config,
		logger:   logger.With("service", "subscription"),
		now:      time.Now,
	}, nil
}

// ProcessEvent records the dedup marker before any side effects. On failure
// the marker is removed so the provider's retry of the same event can run.
func (s *subscriptionService) ProcessEvent(ctx context.Context, event InboundEvent) error {
	if event.ID == "" {
		return domain.Invalid("webhook.process", "event id is required")
	}

	fresh, err := s.guard.Begin(ctx, event.ID, event.Type)
	if err != nil {
		return domain.Internal(err, "webhook.process", "failed to record event marker")
	}
	if !fresh {
		s.logger.Info("skipping duplicate event", "event_id", event.ID, "event_type", event.Type)
		return ErrEventAlreadyProcessed
	}

	if err := s.applyEvent(ctx, event); err != nil {
		if abortErr := s.guard.Abort(ctx, event.ID); abortErr != nil {
			s.logger.Error("failed to remove event marker after failure",
				"event_id", event.ID,
				"error", abortErr,
			)
		}
		return err
	}

	return nil
}

func (s *subscriptionService) applyEvent(ctx context.Context, event InboundEvent) error {
	switch event.Type {
	case EventCheckoutCompleted:
		return s.completeCheckout(ctx, event)

	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted,
		EventInvoicePaid, EventInvoicePaymentFailed:
		return s.syncFromEvent(ctx, event)

	default:
		// Handler filters relevance; anything else is a benign skip
		s.logger.Info("ignoring unhandled event type", "event_id", event.ID, "event_type", event.Type)
		return nil
	}
}

// completeCheckout binds the provider customer and subscription to the
// profile named in the checkout's client reference, then syncs.
func (s *subscriptionService) completeCheckout(ctx context.Context, event InboundEvent) error {
	if event.ProfileID == "" || event.SubscriptionID == "" {
		// Stripe CLI test events lack references; log and ack
		s.logger.Warn("checkout completed without profile or subscription reference",
			"event_id", event.ID,
		)
		return nil
	}

	profileID, err := uuid.Parse(event.ProfileID)
	if err != nil {
		s.logger.Warn("checkout completed with malformed profile reference",
			"event_id", event.ID,
			"profile_ref", event.ProfileID,
		)
		return nil
	}

	snap, err := s.fetchSnapshot(ctx, event.SubscriptionID)
	if err != nil {
		return err
	}

	profile, err := s.applySnapshot(ctx, profileID, snap)
	if err != nil {
		if domain.IsCode(err, domain.ENOTFOUND) {
			s.logger.Warn("checkout completed for unknown profile",
				"event_id", event.ID,
				"profile_id", profileID,
			)
			return nil
		}
		return err
	}

	s.logger.Info("checkout completed",
		"profile_id", profile.ID,
		"subscription_id", event.SubscriptionID,
		"status", profile.Status,
	)
	return nil
}

// syncFromEvent locates the profile for a subscription or invoice event and
// converges it on a fresh provider snapshot.
func (s *subscriptionService) syncFromEvent(ctx context.Context, event InboundEvent) error {
	profile, err := s.findProfile(ctx, event)
	if err != nil {
		if domain.IsCode(err, domain.ENOTFOUND) {
			// Subscriptions we never sold (other products on the same
			// Stripe account) land here; ack and move on
			s.logger.Info("event references unknown profile",
				"event_id", event.ID,
				"subscription_id", event.SubscriptionID,
				"customer_id", event.CustomerID,
			)
			return nil
		}
		return err
	}

	wasPro := profile.Status == domain.StatusPro

	snap, err := s.fetchSnapshot(ctx, event.SubscriptionID)
	if err != nil {
		return err
	}

	updated, err := s.applySnapshot(ctx, profile.ID, snap)
	if err != nil {
		return err
	}

	s.logger.Info("profile synchronized from event",
		"event_id", event.ID,
		"event_type", event.Type,
		"profile_id", updated.ID,
		"status", updated.Status,
	)

	switch {
	case event.Type == EventInvoicePaymentFailed:
		s.notifyPaymentFailed(ctx, updated)
	case wasPro && updated.Status == domain.StatusCanceled:
		s.notifyCanceled(ctx, updated)
	}

	return nil
}

func (s *subscriptionService) findProfile(ctx context.Context, event InboundEvent) (*domain.Profile, error) {
	if event.SubscriptionID != "" {
		profile, err := s.store.GetProfileByProviderSubscription(ctx, event.SubscriptionID)
		if err == nil || !domain.IsCode(err, domain.ENOTFOUND) {
			return profile, err
		}
	}
	if event.CustomerID != "" {
		return s.store.GetProfileByProviderCustomer(ctx, event.CustomerID)
	}
	return nil, domain.NotFound("subscription.find_profile", "profile", event.SubscriptionID)
}

func (s *subscriptionService) Sync(ctx context.Context, profileID uuid.UUID) (*domain.Profile, error) {
	profile, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}

	var snap *billing.Subscription
	if profile.ProviderSubscriptionID != "" {
		snap, err = s.fetchSnapshot(ctx, profile.ProviderSubscriptionID)
		if err != nil {
			return nil, err
		}
	}

	return s.applySnapshot(ctx, profileID, snap)
}

func (s *subscriptionService) Cancel(ctx context.Context, profileID uuid.UUID) (*domain.Profile, error) {
	profile, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if profile.ProviderSubscriptionID == "" {
		return nil, ErrNoSubscription
	}

	snap, err := s.provider.CancelSubscriptionAtPeriodEnd(ctx, profile.ProviderSubscriptionID)
	if err != nil {
		return nil, billingError("subscription.cancel", err)
	}

	updated, err := s.applySnapshot(ctx, profileID, snap)
	if err != nil {
		return nil, err
	}

	s.logger.Info("cancellation scheduled",
		"profile_id", updated.ID,
		"period_end", updated.CurrentPeriodEnd,
	)
	return updated, nil
}

func (s *subscriptionService) Reactivate(ctx context.Context, profileID uuid.UUID) (*domain.Profile, error) {
	profile, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if profile.ProviderSubscriptionID == "" {
		return nil, ErrNoSubscription
	}
	if !profile.CancelAtPeriodEnd {
		return nil, ErrNotPendingCancel
	}
	if profile.Status != domain.StatusPro {
		// Grace period is over; the provider subscription is gone
		return nil, ErrSubscriptionEnded
	}

	snap, err := s.provider.ReactivateSubscription(ctx, profile.ProviderSubscriptionID)
	if err != nil {
		if errors.Is(err, billing.ErrResourceMissing) {
			return nil, ErrSubscriptionEnded
		}
		return nil, billingError("subscription.reactivate", err)
	}

	updated, err := s.applySnapshot(ctx, profileID, snap)
	if err != nil {
		return nil, err
	}

	s.logger.Info("cancellation cleared", "profile_id", updated.ID)
	return updated, nil
}

func (s *subscriptionService) StartCheckout(ctx context.Context, profileID uuid.UUID) (*billing.CheckoutSession, error) {
	profile, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if profile.Status == domain.StatusPro {
		return nil, ErrAlreadySubscribed
	}

	session, err := s.provider.CreateCheckoutSession(ctx, billing.CreateCheckoutSessionParams{
		ProfileID:     profile.ID.String(),
		CustomerID:    profile.ProviderCustomerID,
		CustomerEmail: profile.Email,
		PriceID:       s.config.ProPriceID,
		SuccessURL:    s.config.SuccessURL,
		CancelURL:     s.config.CancelURL,
	})
	if err != nil {
		return nil, billingError("subscription.checkout", err)
	}

	s.logger.Info("checkout session created", "profile_id", profile.ID, "session_id", session.ID)
	return session, nil
}

func (s *subscriptionService) PortalURL(ctx context.Context, profileID uuid.UUID) (string, error) {
	profile, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		return "", err
	}
	if profile.ProviderCustomerID == "" {
		return "", ErrNoBillingAccount
	}

	session, err := s.provider.CreatePortalSession(ctx, billing.CreatePortalSessionParams{
		CustomerID: profile.ProviderCustomerID,
		ReturnURL:  s.config.PortalReturnURL,
	})
	if err != nil {
		return "", billingError("subscription.portal", err)
	}

	return session.URL, nil
}

// ExpireLapsed re-checks every pro profile whose recorded period end has
// passed. The provider stays the source of truth: a renewed subscription
// keeps the profile pro, a missing one counts as ended.
func (s *subscriptionService) ExpireLapsed(ctx context.Context) (SweepResult, error) {
	now := s.now()

	profiles, err := s.store.ListLapsedPro(ctx, now, sweepBatchSize)
	if err != nil {
		return SweepResult{}, err
	}

	result := SweepResult{Examined: len(profiles)}

	for _, profile := range profiles {
		var snap *billing.Subscription
		if profile.ProviderSubscriptionID != "" {
			snap, err = s.fetchSnapshot(ctx, profile.ProviderSubscriptionID)
			if err != nil {
				result.Errors++
				s.logger.Error("sweep: snapshot fetch failed",
					"profile_id", profile.ID,
					"error", err,
				)
				continue
			}
			if snap == nil {
				// Provider lost the subscription; treat as ended when
				// the recorded period lapsed
				snap = &billing.Subscription{
					ID:               profile.ProviderSubscriptionID,
					CustomerID:       profile.ProviderCustomerID,
					Status:           billing.SubscriptionStatusCanceled,
					CurrentPeriodEnd: *profile.CurrentPeriodEnd,
				}
			}
		}

		updated, err := s.applySnapshot(ctx, profile.ID, snap)
		if err != nil {
			result.Errors++
			s.logger.Error("sweep: profile update failed",
				"profile_id", profile.ID,
				"error", err,
			)
			continue
		}

		if updated.Status != domain.StatusPro {
			result.Demoted++
			s.logger.Info("sweep: profile demoted",
				"profile_id", updated.ID,
				"status", updated.Status,
			)
		}
	}

	return result, nil
}

// fetchSnapshot gets a fresh subscription snapshot. A provider-missing
// subscription maps to a nil snapshot, not an error; the resolver turns
// that into free.
func (s *subscriptionService) fetchSnapshot(ctx context.Context, subscriptionID string) (*billing.Subscription, error) {
	snap, err := s.provider.GetSubscription(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, billing.ErrResourceMissing) {
			return nil, nil
		}
		return nil, billingError("subscription.fetch", err)
	}
	return snap, nil
}

// applySnapshot resolves and writes one snapshot under optimistic
// concurrency. On a version conflict the profile is refetched and the same
// snapshot re-resolved, so concurrent writers converge instead of clobbering
// each other.
func (s *subscriptionService) applySnapshot(ctx context.Context, profileID uuid.UUID, snap *billing.Subscription) (*domain.Profile, error) {
	for attempt := 0; attempt < applyRetries; attempt++ {
		profile, err := s.store.GetProfile(ctx, profileID)
		if err != nil {
			return nil, err
		}

		ent := ResolveEntitlement(snap, s.now())

		// canceledAt marks the transition into canceled; re-syncing an
		// already-canceled profile keeps the original timestamp unless the
		// provider supplies its own
		if ent.Status == domain.StatusCanceled && profile.Status == domain.StatusCanceled &&
			profile.CanceledAt != nil && snap != nil && snap.CanceledAt == nil {
			ent.CanceledAt = profile.CanceledAt
		}

		params := domain.ApplyEntitlementParams{
			ProfileID:       profile.ID,
			ExpectedVersion: profile.Version,
			Status:          ent.Status,
			IsPublic:        ent.IsPublic,
			CanceledAt:      ent.CanceledAt,
		}

		if snap != nil {
			params.ProviderSubscriptionID = snap.ID
			params.ProviderCustomerID = snap.CustomerID
			if params.ProviderCustomerID == "" {
				params.ProviderCustomerID = profile.ProviderCustomerID
			}
			periodEnd := snap.CurrentPeriodEnd
			params.CurrentPeriodEnd = &periodEnd
			params.CancelAtPeriodEnd = snap.CancelAtPeriodEnd
		} else {
			// No subscription anymore; keep the customer for future
			// checkouts but drop the subscription bookkeeping
			params.ProviderCustomerID = profile.ProviderCustomerID
		}

		updated, err := s.store.ApplyEntitlement(ctx, params)
		if err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				continue
			}
			return nil, err
		}
		return updated, nil
	}

	return nil, domain.Conflict("subscription.apply", "profile update kept conflicting")
}

func (s *subscriptionService) notifyPaymentFailed(ctx context.Context, profile *domain.Profile) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.SendPaymentFailed(ctx, profile.Email, profile.RestaurantName); err != nil {
		s.logger.Error("failed to send payment failed notice",
			"profile_id", profile.ID,
			"error", err,
		)
	}
}

func (s *subscriptionService) notifyCanceled(ctx context.Context, profile *domain.Profile) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.SendSubscriptionCanceled(ctx, profile.Email, profile.RestaurantName); err != nil {
		s.logger.Error("failed to send cancellation notice",
			"profile_id", profile.ID,
			"error", err,
		)
	}
}

// billingError maps billing sentinels onto domain error codes.
func billingError(op string, err error) error {
	switch {
	case errors.Is(err, billing.ErrNotConfigured):
		return domain.Unavailable(op, "billing is not configured")
	case errors.Is(err, billing.ErrProviderUnavailable):
		return domain.WrapError(err, domain.EUNAVAILABLE, op, "billing provider is temporarily unavailable")
	case errors.Is(err, billing.ErrResourceMissing):
		return domain.WrapError(err, domain.ENOTFOUND, op, "billing resource not found")
	default:
		return domain.Internal(err, op, "billing provider call failed")
	}
}
