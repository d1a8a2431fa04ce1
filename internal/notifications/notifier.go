// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

// Package notifications sends transactional messages (booking confirmations,
// cancellations, payment receipts) through a pluggable channel. Delivery is
// best-effort: failures are logged and counted, never surfaced to the domain
// operation that triggered them.
package notifications

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/openvoyage/bookcore/internal/config"
	"github.com/openvoyage/bookcore/internal/logging"
	"github.com/openvoyage/bookcore/internal/metrics"
)

// Kind selects the message template.
type Kind string

const (
	KindBookingConfirmation Kind = "booking_confirmation"
	KindBookingCancellation Kind = "booking_cancellation"
	KindBookingExpired      Kind = "booking_expired"
	KindPaymentReceipt      Kind = "payment_receipt"
)

// Message is one notification to deliver.
type Message struct {
	To   string
	Kind Kind
	// Data fills the template placeholders (confirmation code, tour, amount).
	Data map[string]string
}

// Channel delivers rendered messages. Implementations must be safe for
// concurrent use.
type Channel interface {
	Name() string
	Send(ctx context.Context, to, subject, body string) error
}

// Notifier renders templates and delivers through the configured channel,
// throttled by a token-bucket limiter so a burst of bookings cannot flood the
// SMTP relay.
type Notifier struct {
	channel Channel
	limiter *rate.Limiter
	enabled bool
}

// New constructs a Notifier from configuration. Unknown channels fall back to
// the logging channel.
func New(cfg config.NotificationsConfig) *Notifier {
	var channel Channel
	switch cfg.Channel {
	case "email":
		channel = NewEmailChannel(cfg)
	default:
		channel = NewLogChannel()
	}

	perSecond := cfg.SendsPerSecond
	if perSecond <= 0 {
		perSecond = 1
	}

	return &Notifier{
		channel: channel,
		limiter: rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1),
		enabled: cfg.Enabled,
	}
}

// NewWithChannel constructs a Notifier around an explicit channel, used by
// tests with fake channels.
func NewWithChannel(channel Channel, perSecond float64) *Notifier {
	return &Notifier{
		channel: channel,
		limiter: rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1),
		enabled: true,
	}
}

// Send renders and delivers one message. Errors are logged and counted, not
// returned: notification failure must never fail the domain operation.
func (n *Notifier) Send(ctx context.Context, msg Message) {
	if !n.enabled || msg.To == "" {
		return
	}

	subject, body, err := render(msg)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("kind", string(msg.Kind)).Msg("Failed to render notification")
		metrics.NotificationsSent.WithLabelValues(n.channel.Name(), "render_error").Inc()
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := n.limiter.Wait(waitCtx); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Notification rate limit wait aborted")
		metrics.NotificationsSent.WithLabelValues(n.channel.Name(), "throttled").Inc()
		return
	}

	if err := n.channel.Send(ctx, msg.To, subject, body); err != nil {
		logging.Ctx(ctx).Warn().Err(err).
			Str("kind", string(msg.Kind)).
			Str("channel", n.channel.Name()).
			Msg("Failed to send notification")
		metrics.NotificationsSent.WithLabelValues(n.channel.Name(), "error").Inc()
		return
	}
	metrics.NotificationsSent.WithLabelValues(n.channel.Name(), "sent").Inc()
}

// render produces the subject and body for a message kind.
func render(msg Message) (string, string, error) {
	get := func(key string) string { return msg.Data[key] }

	switch msg.Kind {
	case KindBookingConfirmation:
		subject := fmt.Sprintf("Booking confirmed - %s", get("confirmation_code"))
		body := fmt.Sprintf(
			"Your booking for %s on %s is confirmed.\nConfirmation code: %s\nParticipants: %s\nTotal: %s %s\n",
			get("tour_id"), get("tour_date"), get("confirmation_code"),
			get("participants"), get("total"), get("currency"))
		return subject, body, nil

	case KindBookingCancellation:
		subject := fmt.Sprintf("Booking cancelled - %s", get("confirmation_code"))
		body := fmt.Sprintf(
			"Your booking %s for %s on %s has been cancelled.\nRefund amount: %s %s\n",
			get("confirmation_code"), get("tour_id"), get("tour_date"),
			get("refund_amount"), get("currency"))
		return subject, body, nil

	case KindBookingExpired:
		subject := fmt.Sprintf("Booking expired - %s", get("confirmation_code"))
		body := fmt.Sprintf(
			"Your booking %s for %s on %s expired because payment was not received by the deadline.\n",
			get("confirmation_code"), get("tour_id"), get("tour_date"))
		return subject, body, nil

	case KindPaymentReceipt:
		subject := fmt.Sprintf("Payment received - %s", get("confirmation_code"))
		body := fmt.Sprintf(
			"We received your payment of %s %s for booking %s.\nTransaction: %s\n",
			get("amount"), get("currency"), get("confirmation_code"), get("transaction_id"))
		return subject, body, nil

	default:
		return "", "", fmt.Errorf("unknown notification kind %q", msg.Kind)
	}
}
