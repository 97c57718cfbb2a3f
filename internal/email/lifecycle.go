package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/platecraft/platecraft/internal/telemetry"
)

// LifecycleMailer sends the subscription lifecycle notices.
// It satisfies service.LifecycleMailer.
type LifecycleMailer struct {
	sender  Sender
	from    string
	baseURL string
	logger  *slog.Logger
}

// NewLifecycleMailer creates a mailer for subscription lifecycle notices.
// baseURL is the public site root used in email links.
func NewLifecycleMailer(sender Sender, from, baseURL string, logger *slog.Logger) *LifecycleMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LifecycleMailer{
		sender:  sender,
		from:    from,
		baseURL: baseURL,
		logger:  logger.With("component", "lifecycle_mailer"),
	}
}

// SendPaymentFailed notifies the owner that a renewal charge failed.
func (m *LifecycleMailer) SendPaymentFailed(ctx context.Context, toEmail, restaurantName string) error {
	subject := "Payment failed for your Platecraft subscription"
	text := fmt.Sprintf(
		"Hi,\n\n"+
			"We couldn't process the latest payment for %s's Platecraft Pro subscription.\n"+
			"Your published menu stays up for now, but please update your payment method "+
			"to keep it online:\n\n%s/account/billing\n\n"+
			"— The Platecraft team\n",
		restaurantName, m.baseURL,
	)

	return m.send(ctx, "payment_failed", toEmail, subject, text)
}

// SendSubscriptionCanceled notifies the owner that paid access has ended.
func (m *LifecycleMailer) SendSubscriptionCanceled(ctx context.Context, toEmail, restaurantName string) error {
	subject := "Your Platecraft Pro subscription has ended"
	text := fmt.Sprintf(
		"Hi,\n\n"+
			"The Platecraft Pro subscription for %s has ended and your public menu "+
			"page is no longer visible to guests.\n"+
			"You can resubscribe any time to bring it back:\n\n%s/account/billing\n\n"+
			"— The Platecraft team\n",
		restaurantName, m.baseURL,
	)

	return m.send(ctx, "subscription_canceled", toEmail, subject, text)
}

func (m *LifecycleMailer) send(ctx context.Context, emailType, to, subject, text string) error {
	_, err := m.sender.Send(ctx, &Email{
		To:       []string{to},
		From:     m.from,
		Subject:  subject,
		TextBody: text,
	})
	if err != nil {
		if telemetry.Business != nil {
			telemetry.Business.EmailFailed.WithLabelValues(emailType).Inc()
		}
		return err
	}

	if telemetry.Business != nil {
		telemetry.Business.EmailSent.WithLabelValues(emailType).Inc()
	}
	return nil
}
