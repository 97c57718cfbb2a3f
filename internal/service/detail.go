package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GetDetail composes the provider's subscription, customer, and latest
// invoice into one account view. The subscription fetch is authoritative;
// customer and invoice lookups are best-effort and their absence leaves the
// corresponding fields empty.
func (s *subscriptionService) GetDetail(ctx context.Context, profileID uuid.UUID) (*SubscriptionDetail, error) {
	profile, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}

	detail := &SubscriptionDetail{
		ProfileID:  profile.ID,
		Status:     profile.Status,
		IsPublic:   profile.IsPublic,
		CanceledAt: profile.CanceledAt,
	}

	if profile.ProviderSubscriptionID == "" {
		return detail, nil
	}

	snap, err := s.provider.GetSubscription(ctx, profile.ProviderSubscriptionID)
	if err != nil {
		return nil, billingError("subscription.detail", err)
	}

	detail.HasSubscription = true
	detail.PlanName = snap.PlanName
	detail.AmountCents = snap.AmountCents
	detail.Currency = snap.Currency
	detail.Interval = snap.Interval
	detail.PriceFormatted = formatPrice(snap.AmountCents, snap.Currency, snap.Interval)

	start := snap.CurrentPeriodStart
	end := snap.CurrentPeriodEnd
	detail.CurrentPeriodStart = &start
	detail.CurrentPeriodEnd = &end
	detail.CancelAtPeriodEnd = snap.CancelAtPeriodEnd
	if snap.CanceledAt != nil {
		detail.CanceledAt = snap.CanceledAt
	}

	if snap.CancelAtPeriodEnd {
		detail.DaysUntilCancellation = daysUntil(end, s.now())
	} else {
		detail.DaysUntilRenewal = daysUntil(end, s.now())
	}

	detail.CardBrand = snap.CardBrand
	detail.CardLast4 = snap.CardLast4

	if snap.CustomerID != "" {
		customer, err := s.provider.GetCustomer(ctx, snap.CustomerID)
		if err != nil {
			s.logger.Warn("failed to load billing customer for detail view",
				"profile_id", profile.ID,
				"error", err,
			)
		} else {
			detail.CustomerEmail = customer.Email
		}

		invoice, err := s.provider.GetLatestInvoice(ctx, snap.CustomerID)
		if err != nil {
			s.logger.Warn("failed to load latest invoice for detail view",
				"profile_id", profile.ID,
				"error", err,
			)
		} else if invoice != nil {
			detail.LatestInvoice = &InvoiceSummary{
				ID:             invoice.ID,
				Status:         string(invoice.Status),
				AmountDueCents: invoice.AmountDueCents,
				HostedURL:      invoice.HostedURL,
				CreatedAt:      invoice.CreatedAt,
			}
		}
	}

	return detail, nil
}

// daysUntil rounds up, so a period ending in 36 hours reads as "2 days".
// Past deadlines clamp to zero.
func daysUntil(deadline, now time.Time) int {
	if !deadline.After(now) {
		return 0
	}
	return int(math.Ceil(deadline.Sub(now).Hours() / 24))
}

var currencySymbols = map[string]string{
	"usd": "$",
	"eur": "€",
	"gbp": "£",
	"cad": "$",
	"aud": "$",
}

// formatPrice renders cents as a display string like "$12.00/month".
func formatPrice(amountCents int64, currency, interval string) string {
	amount := decimal.NewFromInt(amountCents).Div(decimal.NewFromInt(100))

	symbol, ok := currencySymbols[strings.ToLower(currency)]
	if !ok {
		symbol = strings.ToUpper(currency) + " "
	}

	formatted := symbol + amount.StringFixed(2)
	if interval != "" {
		formatted += "/" + interval
	}
	return formatted
}

var _ SubscriptionService = (*subscriptionService)(nil)
