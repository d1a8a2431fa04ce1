// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

// Package payments drives the gateway-agnostic transaction lifecycle:
// initiation with fraud screening and commission accounting, verification,
// refunds bounded by the original amount, and idempotent webhook ingestion.
//
// Every outbound gateway call runs behind a per-gateway circuit breaker so a
// degraded provider fails fast instead of tying up request handlers.
package payments

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/openvoyage/bookcore/internal/booking"
	"github.com/openvoyage/bookcore/internal/cache"
	"github.com/openvoyage/bookcore/internal/config"
	"github.com/openvoyage/bookcore/internal/database"
	"github.com/openvoyage/bookcore/internal/eventbus"
	"github.com/openvoyage/bookcore/internal/logging"
	"github.com/openvoyage/bookcore/internal/metrics"
	"github.com/openvoyage/bookcore/internal/models"
	"github.com/openvoyage/bookcore/internal/validation"
)

const cacheNamespaceMetrics = "payments:metrics"

// Webhook outcome labels.
const (
	WebhookOutcomeCreated      = "created"
	WebhookOutcomeUpdated      = "updated"
	WebhookOutcomeManualReview = "manual_review"
	WebhookOutcomeRejected     = "rejected"
)

// Service coordinates payment transactions against the configured gateways.
type Service struct {
	db       *database.DB
	bookings *booking.Service
	registry *Registry
	cache    *cache.Cache
	bus      *eventbus.Bus
	fraud    *fraudChecker
	cfg      config.PaymentsConfig
	cacheCfg config.CacheConfig

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]

	now func() time.Time
}

// New constructs the payment service. bus may be nil in tests.
func New(db *database.DB, bookings *booking.Service, registry *Registry, c *cache.Cache,
	bus *eventbus.Bus, cfg config.PaymentsConfig, cacheCfg config.CacheConfig) *Service {
	return &Service{
		db:       db,
		bookings: bookings,
		registry: registry,
		cache:    c,
		bus:      bus,
		fraud:    newFraudChecker(cfg),
		cfg:      cfg,
		cacheCfg: cacheCfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// InitiateParams are the inputs to start collecting money for a booking.
type InitiateParams struct {
	BookingID    uuid.UUID `validate:"required"`
	Gateway      string
	Amount       int64  `validate:"gt=0"`
	PayerName    string
	PayerEmail   string `validate:"omitempty,email"`
	PayerCountry string `validate:"omitempty,len=2"`
}

// InitiateResult is returned to the client to complete the charge.
type InitiateResult struct {
	TransactionID uuid.UUID                `json:"transaction_id"`
	PaymentURL    string                   `json:"payment_url"`
	Status        models.TransactionStatus `json:"status"`
}

// InitiatePayment validates the amount against the booking's final price,
// screens for fraud, records a pending transaction with the gateway's
// commission, and asks the gateway for a payment URL.
func (s *Service) InitiatePayment(ctx context.Context, params InitiateParams) (*InitiateResult, error) {
	if verr := validation.ValidateStruct(params); verr != nil {
		return nil, verr
	}

	bk, err := s.db.GetBooking(ctx, params.BookingID)
	if err != nil {
		return nil, err
	}
	if params.Amount != bk.TotalAmount {
		return nil, fmt.Errorf("amount %d vs booking total %d: %w",
			params.Amount, bk.TotalAmount, ErrAmountMismatch)
	}

	gatewayName := params.Gateway
	if gatewayName == "" {
		gatewayName = s.cfg.DefaultGateway
	}
	gw, err := s.registry.Resolve(gatewayName)
	if err != nil {
		return nil, err
	}

	if rule := s.fraud.check(params.Amount, params.PayerEmail, params.PayerCountry); rule != "" {
		metrics.FraudRejections.WithLabelValues(rule).Inc()
		logging.Ctx(ctx).Warn().
			Str("booking_id", params.BookingID.String()).
			Str("rule", rule).
			Msg("Payment rejected by fraud check")
		return nil, fmt.Errorf("rule %s: %w", rule, ErrFraudDetected)
	}

	commission := int64(math.Round(float64(params.Amount) * gw.CommissionRate()))
	tx := &models.PaymentTransaction{
		ID:           uuid.New(),
		BookingID:    params.BookingID,
		Gateway:      gatewayName,
		Status:       models.TransactionStatusPending,
		Amount:       params.Amount,
		Currency:     bk.Currency,
		Commission:   commission,
		NetAmount:    params.Amount - commission,
		PayerName:    params.PayerName,
		PayerEmail:   params.PayerEmail,
		PayerCountry: params.PayerCountry,
		CreatedAt:    s.now(),
	}
	if err := s.db.InsertTransaction(ctx, tx); err != nil {
		return nil, err
	}

	result, err := s.throughBreaker(ctx, gatewayName, "create", func() (any, error) {
		return gw.CreatePayment(ctx, CreatePaymentRequest{
			TransactionID: tx.ID.String(),
			BookingID:     params.BookingID.String(),
			Amount:        params.Amount,
			Currency:      bk.Currency,
			PayerEmail:    params.PayerEmail,
			Description:   fmt.Sprintf("Booking %s", bk.ConfirmationCode),
		})
	})
	if err != nil {
		if uerr := s.db.UpdateTransactionStatus(ctx, tx.ID, models.TransactionStatusFailed, "", err.Error()); uerr != nil {
			logging.Ctx(ctx).Error().Err(uerr).Msg("Failed to mark transaction failed")
		}
		metrics.PaymentTransactions.WithLabelValues(gatewayName, "failed").Inc()
		return nil, fmt.Errorf("gateway %s create payment: %w", gatewayName, err)
	}
	created := result.(*CreatePaymentResult)

	if err := s.db.UpdateTransactionStatus(ctx, tx.ID, models.TransactionStatusPending, created.ExternalID, ""); err != nil {
		return nil, err
	}

	metrics.PaymentTransactions.WithLabelValues(gatewayName, "initiated").Inc()
	s.invalidate()
	s.publish(ctx, models.EventPaymentInitiated, tx.ID.String(), map[string]string{
		"transaction_id": tx.ID.String(),
		"booking_id":     params.BookingID.String(),
		"gateway":        gatewayName,
	})

	return &InitiateResult{
		TransactionID: tx.ID,
		PaymentURL:    created.PaymentURL,
		Status:        models.TransactionStatusPending,
	}, nil
}

// VerifyPayment re-validates a transaction with its gateway. On success the
// transaction completes and the booking is confirmed; on gateway rejection it
// fails with ErrVerificationFailed.
func (s *Service) VerifyPayment(ctx context.Context, transactionID uuid.UUID) (*models.PaymentTransaction, error) {
	tx, err := s.db.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	gw, err := s.registry.Resolve(tx.Gateway)
	if err != nil {
		return nil, err
	}

	result, err := s.throughBreaker(ctx, tx.Gateway, "verify", func() (any, error) {
		ok, verr := gw.VerifyPayment(ctx, tx.ExternalID)
		return ok, verr
	})
	if err != nil {
		return nil, fmt.Errorf("gateway %s verify: %w", tx.Gateway, err)
	}
	if !result.(bool) {
		if uerr := s.db.UpdateTransactionStatus(ctx, tx.ID, models.TransactionStatusFailed, "", "verification rejected"); uerr != nil {
			logging.Ctx(ctx).Error().Err(uerr).Msg("Failed to mark transaction failed")
		}
		metrics.PaymentTransactions.WithLabelValues(tx.Gateway, "failed").Inc()
		s.publish(ctx, models.EventPaymentFailed, tx.ID.String(), nil)
		return nil, ErrVerificationFailed
	}

	return tx, s.complete(ctx, tx)
}

// RefundParams are the inputs to return money for a completed transaction.
type RefundParams struct {
	TransactionID uuid.UUID `validate:"required"`
	Amount        int64     `validate:"gt=0"`
	Reason        string
}

// Refund returns part or all of a completed transaction. The amount is
// checked against the refundable remainder before the gateway is called, so
// an oversized request creates no refund record and causes no gateway
// traffic.
func (s *Service) Refund(ctx context.Context, params RefundParams) (*models.Refund, error) {
	if verr := validation.ValidateStruct(params); verr != nil {
		return nil, verr
	}

	tx, err := s.db.GetTransaction(ctx, params.TransactionID)
	if err != nil {
		return nil, err
	}
	if tx.Status != models.TransactionStatusCompleted && tx.Status != models.TransactionStatusPartiallyRefunded {
		return nil, fmt.Errorf("transaction status %s: %w", tx.Status, ErrRefundNotAllowed)
	}

	existing, err := s.db.ListRefundsByTransaction(ctx, params.TransactionID)
	if err != nil {
		return nil, err
	}
	var refunded int64
	for _, r := range existing {
		if r.Status != models.RefundStateFailed {
			refunded += r.Amount
		}
	}
	if params.Amount > tx.Amount-refunded {
		return nil, fmt.Errorf("refund %d exceeds refundable remainder %d: %w",
			params.Amount, tx.Amount-refunded, ErrRefundNotAllowed)
	}

	gw, err := s.registry.Resolve(tx.Gateway)
	if err != nil {
		return nil, err
	}
	result, err := s.throughBreaker(ctx, tx.Gateway, "refund", func() (any, error) {
		return gw.Refund(ctx, tx.ExternalID, params.Amount)
	})
	if err != nil {
		return nil, fmt.Errorf("gateway %s refund: %w", tx.Gateway, err)
	}

	refund := &models.Refund{
		ID:              uuid.New(),
		TransactionID:   params.TransactionID,
		Amount:          params.Amount,
		Reason:          params.Reason,
		Status:          models.RefundStateCompleted,
		GatewayRefundID: result.(string),
		CreatedAt:       s.now(),
	}
	if err := s.db.InsertRefund(ctx, refund); err != nil {
		return nil, err
	}

	if refunded+params.Amount == tx.Amount {
		if uerr := s.db.UpdateBookingRefundState(ctx, tx.BookingID, models.RefundStateCompleted); uerr != nil &&
			!errors.Is(uerr, database.ErrNotFound) {
			logging.Ctx(ctx).Warn().Err(uerr).Msg("Failed to update booking refund state")
		}
	}

	metrics.RefundsIssued.WithLabelValues(tx.Gateway).Inc()
	s.invalidate()
	s.publish(ctx, models.EventPaymentRefunded, tx.ID.String(), refund)
	return refund, nil
}

// WebhookPayload is the normalized body of a gateway webhook.
type WebhookPayload struct {
	ExternalTransactionID string `json:"external_transaction_id"`
	Status                string `json:"status"`
	Amount                int64  `json:"amount"`
	Currency              string `json:"currency"`
	BookingID             string `json:"booking_id"`
	PayerEmail            string `json:"payer_email"`
}

// HandleWebhook ingests a gateway notification, idempotently keyed by the
// external transaction ID: an unseen ID creates a transaction, a seen one
// updates its status. Gateway statuses with no mapping are routed to
// manual_review rather than silently treated as pending. Returns the outcome
// label for metrics and the HTTP layer.
func (s *Service) HandleWebhook(ctx context.Context, gatewayName string, body []byte) (string, error) {
	gw, err := s.registry.Resolve(gatewayName)
	if err != nil {
		metrics.WebhooksReceived.WithLabelValues(gatewayName, WebhookOutcomeRejected).Inc()
		return WebhookOutcomeRejected, err
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.WebhooksReceived.WithLabelValues(gatewayName, WebhookOutcomeRejected).Inc()
		return WebhookOutcomeRejected, fmt.Errorf("decode webhook payload: %w", err)
	}
	if payload.ExternalTransactionID == "" {
		metrics.WebhooksReceived.WithLabelValues(gatewayName, WebhookOutcomeRejected).Inc()
		return WebhookOutcomeRejected, fmt.Errorf("webhook payload missing external transaction id")
	}

	status, mapped := gw.MapStatus(payload.Status)
	if !mapped {
		status = models.TransactionStatusManualReview
		logging.Ctx(ctx).Warn().
			Str("gateway", gatewayName).
			Str("gateway_status", payload.Status).
			Str("external_id", payload.ExternalTransactionID).
			Msg("Unmapped gateway status routed to manual review")
	}

	tx, err := s.db.GetTransactionByExternalID(ctx, gatewayName, payload.ExternalTransactionID)
	switch {
	case err == nil:
		return s.webhookUpdate(ctx, gatewayName, tx, status, mapped)
	case errors.Is(err, database.ErrNotFound):
		return s.webhookCreate(ctx, gatewayName, gw, payload, status, mapped)
	default:
		metrics.WebhooksReceived.WithLabelValues(gatewayName, WebhookOutcomeRejected).Inc()
		return WebhookOutcomeRejected, err
	}
}

// webhookUpdate applies a webhook to an already-known transaction.
func (s *Service) webhookUpdate(ctx context.Context, gatewayName string, tx *models.PaymentTransaction,
	status models.TransactionStatus, mapped bool) (string, error) {
	outcome := WebhookOutcomeUpdated
	if !mapped {
		outcome = WebhookOutcomeManualReview
	}

	// Re-delivery of the same terminal status is a no-op.
	if tx.Status == status {
		metrics.WebhooksReceived.WithLabelValues(gatewayName, outcome).Inc()
		return outcome, nil
	}

	if status == models.TransactionStatusCompleted {
		// A completion may arrive after a failure (the gateway retried and
		// succeeded) or after manual review resolution. Only refunded
		// transactions are past the point of completing.
		switch tx.Status {
		case models.TransactionStatusRefunded, models.TransactionStatusPartiallyRefunded:
			metrics.WebhooksReceived.WithLabelValues(gatewayName, outcome).Inc()
			return outcome, nil
		default:
			if err := s.complete(ctx, tx); err != nil {
				return WebhookOutcomeRejected, err
			}
			metrics.WebhooksReceived.WithLabelValues(gatewayName, outcome).Inc()
			return outcome, nil
		}
	}

	if err := s.db.UpdateTransactionStatus(ctx, tx.ID, status, "", ""); err != nil {
		return WebhookOutcomeRejected, err
	}
	if status == models.TransactionStatusManualReview {
		s.publish(ctx, models.EventPaymentReview, tx.ID.String(), nil)
	}
	if status == models.TransactionStatusFailed {
		s.publish(ctx, models.EventPaymentFailed, tx.ID.String(), nil)
	}
	metrics.WebhooksReceived.WithLabelValues(gatewayName, outcome).Inc()
	s.invalidate()
	return outcome, nil
}

// webhookCreate records a transaction first seen through a webhook.
func (s *Service) webhookCreate(ctx context.Context, gatewayName string, gw Gateway, payload WebhookPayload,
	status models.TransactionStatus, mapped bool) (string, error) {
	bookingID, err := uuid.Parse(payload.BookingID)
	if err != nil {
		metrics.WebhooksReceived.WithLabelValues(gatewayName, WebhookOutcomeRejected).Inc()
		return WebhookOutcomeRejected, fmt.Errorf("webhook for unknown transaction without booking id: %w", err)
	}

	commission := int64(math.Round(float64(payload.Amount) * gw.CommissionRate()))
	tx := &models.PaymentTransaction{
		ID:         uuid.New(),
		BookingID:  bookingID,
		Gateway:    gatewayName,
		ExternalID: payload.ExternalTransactionID,
		Status:     status,
		Amount:     payload.Amount,
		Currency:   payload.Currency,
		Commission: commission,
		NetAmount:  payload.Amount - commission,
		PayerEmail: payload.PayerEmail,
		CreatedAt:  s.now(),
	}
	if status == models.TransactionStatusCompleted {
		completedAt := s.now()
		tx.CompletedAt = &completedAt
	}
	if err := s.db.InsertTransaction(ctx, tx); err != nil {
		metrics.WebhooksReceived.WithLabelValues(gatewayName, WebhookOutcomeRejected).Inc()
		return WebhookOutcomeRejected, err
	}

	outcome := WebhookOutcomeCreated
	if !mapped {
		outcome = WebhookOutcomeManualReview
		s.publish(ctx, models.EventPaymentReview, tx.ID.String(), nil)
	}
	if status == models.TransactionStatusCompleted {
		s.confirmBooking(ctx, tx)
		s.publish(ctx, models.EventPaymentCompleted, tx.ID.String(), nil)
	}

	metrics.WebhooksReceived.WithLabelValues(gatewayName, outcome).Inc()
	metrics.PaymentTransactions.WithLabelValues(gatewayName, string(status)).Inc()
	s.invalidate()
	return outcome, nil
}

// GetTransaction fetches one transaction.
func (s *Service) GetTransaction(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	return s.db.GetTransaction(ctx, id)
}

// GetMetrics aggregates transaction outcomes over a window. The aggregate
// feeds reporting and is cached for hours.
func (s *Service) GetMetrics(ctx context.Context, from, to time.Time) (*models.PaymentMetrics, error) {
	type window struct{ From, To time.Time }
	key := cache.GenerateKey(cacheNamespaceMetrics, window{From: from, To: to})
	if cached, ok := s.cache.Get(key); ok {
		metrics.CacheHits.WithLabelValues(cacheNamespaceMetrics).Inc()
		return cached.(*models.PaymentMetrics), nil
	}
	metrics.CacheMisses.WithLabelValues(cacheNamespaceMetrics).Inc()

	m, err := s.db.PaymentMetricsWindow(ctx, from, to)
	if err != nil {
		return nil, err
	}
	s.cache.SetWithTTL(key, m, s.cacheCfg.StatsTTL)
	return m, nil
}

// complete transitions a pending transaction to completed and confirms its
// booking.
func (s *Service) complete(ctx context.Context, tx *models.PaymentTransaction) error {
	if err := s.db.UpdateTransactionStatus(ctx, tx.ID, models.TransactionStatusCompleted, "", ""); err != nil {
		return err
	}
	tx.Status = models.TransactionStatusCompleted

	s.confirmBooking(ctx, tx)
	metrics.PaymentTransactions.WithLabelValues(tx.Gateway, "completed").Inc()
	s.invalidate()
	s.publish(ctx, models.EventPaymentCompleted, tx.ID.String(), map[string]string{
		"transaction_id": tx.ID.String(),
		"booking_id":     tx.BookingID.String(),
	})
	return nil
}

func (s *Service) confirmBooking(ctx context.Context, tx *models.PaymentTransaction) {
	if s.bookings == nil {
		return
	}
	if _, err := s.bookings.ConfirmPayment(ctx, tx.BookingID, tx.ID); err != nil &&
		!errors.Is(err, database.ErrInvalidTransition) {
		logging.Ctx(ctx).Error().Err(err).
			Str("booking_id", tx.BookingID.String()).
			Str("transaction_id", tx.ID.String()).
			Msg("Failed to confirm booking after completed payment")
	}
}

// throughBreaker runs one gateway call behind the gateway's circuit breaker,
// recording its duration.
func (s *Service) throughBreaker(ctx context.Context, gateway, operation string, fn func() (any, error)) (any, error) {
	breaker := s.breakerFor(gateway)
	start := time.Now()
	result, err := breaker.Execute(fn)
	metrics.PaymentGatewayDuration.WithLabelValues(gateway, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).
			Str("gateway", gateway).
			Str("operation", operation).
			Msg("Gateway call failed")
	}
	return result, err
}

func (s *Service) breakerFor(gateway string) *gobreaker.CircuitBreaker[any] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if breaker, ok := s.breakers[gateway]; ok {
		return breaker
	}

	settings := gobreaker.Settings{
		Name:        "gateway-" + gateway,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Gateway circuit breaker state changed")
		},
	}
	breaker := gobreaker.NewCircuitBreaker[any](settings)
	s.breakers[gateway] = breaker
	return breaker
}

func (s *Service) invalidate() {
	s.cache.InvalidatePrefix(cacheNamespaceMetrics)
}

func (s *Service) publish(ctx context.Context, eventType, aggregateID string, payload interface{}) {
	if s.bus == nil {
		return
	}
	event, err := models.NewDomainEvent(eventType, aggregateID, payload)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("event_type", eventType).Msg("Failed to build event")
		return
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("event_type", eventType).Msg("Failed to publish event")
	}
}
