// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/openvoyage/bookcore/internal/availability"
	"github.com/openvoyage/bookcore/internal/booking"
	"github.com/openvoyage/bookcore/internal/cache"
	"github.com/openvoyage/bookcore/internal/config"
	"github.com/openvoyage/bookcore/internal/database"
	"github.com/openvoyage/bookcore/internal/models"
)

// testDBSemaphore serializes DuckDB access across tests in this package.
var testDBSemaphore = make(chan struct{}, 1)

var testDBMutex sync.Mutex

// fakeGateway is a scriptable in-memory Gateway implementation.
type fakeGateway struct {
	failCreate  bool
	failVerify  bool
	verifyOK    bool
	refundCalls int
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) CreatePayment(_ context.Context, req CreatePaymentRequest) (*CreatePaymentResult, error) {
	if g.failCreate {
		return nil, errors.New("gateway unreachable")
	}
	return &CreatePaymentResult{
		ExternalID: "fake_" + req.TransactionID,
		PaymentURL: "https://pay.fake.test/" + req.TransactionID,
	}, nil
}

func (g *fakeGateway) VerifyPayment(_ context.Context, _ string) (bool, error) {
	if g.failVerify {
		return false, errors.New("gateway unreachable")
	}
	return g.verifyOK, nil
}

func (g *fakeGateway) Refund(_ context.Context, externalID string, _ int64) (string, error) {
	g.refundCalls++
	return "re_" + externalID, nil
}

func (g *fakeGateway) MapStatus(gatewayStatus string) (models.TransactionStatus, bool) {
	switch gatewayStatus {
	case "paid":
		return models.TransactionStatusCompleted, true
	case "declined":
		return models.TransactionStatusFailed, true
	case "waiting":
		return models.TransactionStatusPending, true
	default:
		return "", false
	}
}

func (g *fakeGateway) CommissionRate() float64 { return 0.02 }

type paymentsEnv struct {
	db       *database.DB
	bookings *booking.Service
	payments *Service
	gateway  *fakeGateway
}

func setupPaymentsTest(t *testing.T) *paymentsEnv {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	testDBMutex.Lock()
	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "1GB"})
	testDBMutex.Unlock()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	})

	c := cache.New(time.Minute)
	availSvc := availability.New(db, c, nil, config.CacheConfig{ListTTL: time.Minute, StatsTTL: time.Minute})
	bookingSvc := booking.New(db, availSvc, c, nil, nil, config.BookingConfig{
		TaxPercent:      18,
		PaymentDeadline: 72 * time.Hour,
		Currency:        "EUR",
	}, config.CacheConfig{ListTTL: time.Minute})

	gw := &fakeGateway{verifyOK: true}
	registry := NewRegistry()
	registry.Register(gw)

	svc := New(db, bookingSvc, registry, c, nil, config.PaymentsConfig{
		DefaultGateway:        "fake",
		FraudMaxAmount:        100000,
		FraudBlockedCountries: []string{"KP"},
		GatewayTimeout:        5 * time.Second,
	}, config.CacheConfig{ListTTL: time.Minute, StatsTTL: time.Minute})

	return &paymentsEnv{db: db, bookings: bookingSvc, payments: svc, gateway: gw}
}

// seedBooking creates a pending booking worth 10620 cents (2 x 4500 + 18% tax).
func (env *paymentsEnv) seedBooking(t *testing.T, email string) *models.Booking {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	slot := &models.AvailabilitySlot{
		ID:              uuid.New(),
		TourID:          "tour-sintra-daytrip",
		Date:            now.AddDate(0, 0, 10).Truncate(24 * time.Hour),
		StartTime:       "08:30",
		TotalCapacity:   10,
		AvailableSpaces: 10,
		Status:          models.SlotStatusAvailable,
		BasePrice:       4500,
		Currency:        "EUR",
		PriceMultiplier: 1.0,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := env.db.InsertSlot(ctx, slot); err != nil {
		t.Fatalf("seed slot failed: %v", err)
	}

	bk, err := env.bookings.Create(ctx, booking.CreateParams{
		TourID:       slot.TourID,
		TourDate:     slot.Date,
		ContactName:  "Joao Pires",
		ContactEmail: email,
		ContactPhone: "+351930001122",
		Participants: []booking.ParticipantParams{
			{FullName: "Joao Pires", Age: 41},
			{FullName: "Marta Pires", Age: 39},
		},
	})
	if err != nil {
		t.Fatalf("seed booking failed: %v", err)
	}
	return bk
}

func TestInitiatePayment(t *testing.T) {
	env := setupPaymentsTest(t)
	ctx := context.Background()
	bk := env.seedBooking(t, "joao@example.com")

	result, err := env.payments.InitiatePayment(ctx, InitiateParams{
		BookingID:  bk.ID,
		Amount:     bk.TotalAmount,
		PayerName:  "Joao Pires",
		PayerEmail: "joao@example.com",
	})
	if err != nil {
		t.Fatalf("InitiatePayment failed: %v", err)
	}
	if result.Status != models.TransactionStatusPending {
		t.Errorf("Status = %q, want pending", result.Status)
	}
	if result.PaymentURL == "" {
		t.Error("PaymentURL empty")
	}

	tx, err := env.payments.GetTransaction(ctx, result.TransactionID)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if tx.ExternalID == "" {
		t.Error("ExternalID not recorded from gateway")
	}
	// 2% commission on 10620, rounded.
	if tx.Commission != 212 {
		t.Errorf("Commission = %d, want 212", tx.Commission)
	}
	if tx.NetAmount != bk.TotalAmount-212 {
		t.Errorf("NetAmount = %d, want %d", tx.NetAmount, bk.TotalAmount-212)
	}
}

func TestInitiateAmountMismatch(t *testing.T) {
	env := setupPaymentsTest(t)
	bk := env.seedBooking(t, "joao@example.com")

	_, err := env.payments.InitiatePayment(context.Background(), InitiateParams{
		BookingID: bk.ID,
		Amount:    bk.TotalAmount - 1,
	})
	if !errors.Is(err, ErrAmountMismatch) {
		t.Errorf("mismatched amount error = %v, want ErrAmountMismatch", err)
	}
}

func TestInitiateUnknownGateway(t *testing.T) {
	env := setupPaymentsTest(t)
	bk := env.seedBooking(t, "joao@example.com")

	_, err := env.payments.InitiatePayment(context.Background(), InitiateParams{
		BookingID: bk.ID,
		Gateway:   "paypal",
		Amount:    bk.TotalAmount,
	})
	if !errors.Is(err, ErrGatewayNotConfigured) {
		t.Errorf("unknown gateway error = %v, want ErrGatewayNotConfigured", err)
	}
}

func TestInitiateFraudRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*InitiateParams)
	}{
		{"blocked country", func(p *InitiateParams) { p.PayerCountry = "KP" }},
		{"disposable email", func(p *InitiateParams) { p.PayerEmail = "x@mailinator.com" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := setupPaymentsTest(t)
			bk := env.seedBooking(t, "joao@example.com")

			params := InitiateParams{BookingID: bk.ID, Amount: bk.TotalAmount}
			tc.mutate(&params)
			if _, err := env.payments.InitiatePayment(context.Background(), params); !errors.Is(err, ErrFraudDetected) {
				t.Errorf("error = %v, want ErrFraudDetected", err)
			}
		})
	}
}

func TestInitiateGatewayFailureMarksTransaction(t *testing.T) {
	env := setupPaymentsTest(t)
	ctx := context.Background()
	bk := env.seedBooking(t, "joao@example.com")
	env.gateway.failCreate = true

	_, err := env.payments.InitiatePayment(ctx, InitiateParams{
		BookingID: bk.ID,
		Amount:    bk.TotalAmount,
	})
	if err == nil {
		t.Fatal("InitiatePayment succeeded despite gateway failure")
	}

	// The failed attempt is recorded for the booking.
	txs, err := env.db.ListTransactionsByBooking(ctx, bk.ID)
	if err != nil {
		t.Fatalf("ListTransactionsByBooking failed: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("got %d transactions, want 1", len(txs))
	}
	if txs[0].Status != models.TransactionStatusFailed {
		t.Errorf("transaction status = %q, want failed", txs[0].Status)
	}
}

func TestVerifyCompletesPaymentAndBooking(t *testing.T) {
	env := setupPaymentsTest(t)
	ctx := context.Background()
	bk := env.seedBooking(t, "joao@example.com")

	result, err := env.payments.InitiatePayment(ctx, InitiateParams{BookingID: bk.ID, Amount: bk.TotalAmount})
	if err != nil {
		t.Fatalf("InitiatePayment failed: %v", err)
	}

	tx, err := env.payments.VerifyPayment(ctx, result.TransactionID)
	if err != nil {
		t.Fatalf("VerifyPayment failed: %v", err)
	}
	if tx.Status != models.TransactionStatusCompleted {
		t.Errorf("transaction status = %q, want completed", tx.Status)
	}

	confirmed, err := env.bookings.Get(ctx, bk.ID)
	if err != nil {
		t.Fatalf("Get booking failed: %v", err)
	}
	if confirmed.Status != models.BookingStatusConfirmed {
		t.Errorf("booking status = %q, want confirmed", confirmed.Status)
	}
	if confirmed.PaymentStatus != models.PaymentStateCompleted {
		t.Errorf("booking payment status = %q, want completed", confirmed.PaymentStatus)
	}
}

func TestVerifyRejectionFailsTransaction(t *testing.T) {
	env := setupPaymentsTest(t)
	ctx := context.Background()
	bk := env.seedBooking(t, "joao@example.com")
	env.gateway.verifyOK = false

	result, err := env.payments.InitiatePayment(ctx, InitiateParams{BookingID: bk.ID, Amount: bk.TotalAmount})
	if err != nil {
		t.Fatalf("InitiatePayment failed: %v", err)
	}

	if _, err := env.payments.VerifyPayment(ctx, result.TransactionID); !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("VerifyPayment error = %v, want ErrVerificationFailed", err)
	}

	tx, err := env.payments.GetTransaction(ctx, result.TransactionID)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if tx.Status != models.TransactionStatusFailed {
		t.Errorf("transaction status = %q, want failed", tx.Status)
	}

	stillPending, err := env.bookings.Get(ctx, bk.ID)
	if err != nil {
		t.Fatalf("Get booking failed: %v", err)
	}
	if stillPending.Status != models.BookingStatusPendingPayment {
		t.Errorf("booking status = %q, want pending_payment", stillPending.Status)
	}
}

func TestRefundLifecycle(t *testing.T) {
	env := setupPaymentsTest(t)
	ctx := context.Background()
	bk := env.seedBooking(t, "joao@example.com")

	result, err := env.payments.InitiatePayment(ctx, InitiateParams{BookingID: bk.ID, Amount: bk.TotalAmount})
	if err != nil {
		t.Fatalf("InitiatePayment failed: %v", err)
	}
	if _, err := env.payments.VerifyPayment(ctx, result.TransactionID); err != nil {
		t.Fatalf("VerifyPayment failed: %v", err)
	}

	partial, err := env.payments.Refund(ctx, RefundParams{
		TransactionID: result.TransactionID,
		Amount:        5000,
		Reason:        "one participant dropped out",
	})
	if err != nil {
		t.Fatalf("partial Refund failed: %v", err)
	}
	if partial.Status != models.RefundStateCompleted {
		t.Errorf("refund status = %q, want completed", partial.Status)
	}
	if partial.GatewayRefundID == "" {
		t.Error("GatewayRefundID empty")
	}

	tx, err := env.payments.GetTransaction(ctx, result.TransactionID)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if tx.Status != models.TransactionStatusPartiallyRefunded {
		t.Errorf("transaction status = %q, want partially_refunded", tx.Status)
	}

	// An over-refund is rejected before the gateway is called.
	callsBefore := env.gateway.refundCalls
	if _, err := env.payments.Refund(ctx, RefundParams{
		TransactionID: result.TransactionID,
		Amount:        bk.TotalAmount, // remainder is only TotalAmount-5000
	}); !errors.Is(err, ErrRefundNotAllowed) {
		t.Errorf("over-refund error = %v, want ErrRefundNotAllowed", err)
	}
	if env.gateway.refundCalls != callsBefore {
		t.Errorf("over-refund reached the gateway (%d calls, want %d)", env.gateway.refundCalls, callsBefore)
	}

	// Refunding the exact remainder completes the refund.
	if _, err := env.payments.Refund(ctx, RefundParams{
		TransactionID: result.TransactionID,
		Amount:        bk.TotalAmount - 5000,
	}); err != nil {
		t.Fatalf("remainder Refund failed: %v", err)
	}
	tx, err = env.payments.GetTransaction(ctx, result.TransactionID)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if tx.Status != models.TransactionStatusRefunded {
		t.Errorf("transaction status = %q, want refunded", tx.Status)
	}
}

func TestRefundRequiresCompletedTransaction(t *testing.T) {
	env := setupPaymentsTest(t)
	ctx := context.Background()
	bk := env.seedBooking(t, "joao@example.com")

	result, err := env.payments.InitiatePayment(ctx, InitiateParams{BookingID: bk.ID, Amount: bk.TotalAmount})
	if err != nil {
		t.Fatalf("InitiatePayment failed: %v", err)
	}

	// Still pending: no refund possible.
	if _, err := env.payments.Refund(ctx, RefundParams{
		TransactionID: result.TransactionID,
		Amount:        1000,
	}); !errors.Is(err, ErrRefundNotAllowed) {
		t.Errorf("refund of pending transaction error = %v, want ErrRefundNotAllowed", err)
	}
}

func webhookBody(t *testing.T, payload WebhookPayload) []byte {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal webhook payload: %v", err)
	}
	return body
}

func TestWebhookCreatesUnseenTransaction(t *testing.T) {
	env := setupPaymentsTest(t)
	ctx := context.Background()
	bk := env.seedBooking(t, "joao@example.com")

	outcome, err := env.payments.HandleWebhook(ctx, "fake", webhookBody(t, WebhookPayload{
		ExternalTransactionID: "fake_evt_1",
		Status:                "paid",
		Amount:                bk.TotalAmount,
		Currency:              "EUR",
		BookingID:             bk.ID.String(),
		PayerEmail:            "joao@example.com",
	}))
	if err != nil {
		t.Fatalf("HandleWebhook failed: %v", err)
	}
	if outcome != WebhookOutcomeCreated {
		t.Errorf("outcome = %q, want created", outcome)
	}

	tx, err := env.db.GetTransactionByExternalID(ctx, "fake", "fake_evt_1")
	if err != nil {
		t.Fatalf("GetTransactionByExternalID failed: %v", err)
	}
	if tx.Status != models.TransactionStatusCompleted {
		t.Errorf("transaction status = %q, want completed", tx.Status)
	}
	if tx.CompletedAt == nil {
		t.Error("CompletedAt not stamped")
	}

	// The completed webhook confirmed the booking.
	confirmed, err := env.bookings.Get(ctx, bk.ID)
	if err != nil {
		t.Fatalf("Get booking failed: %v", err)
	}
	if confirmed.Status != models.BookingStatusConfirmed {
		t.Errorf("booking status = %q, want confirmed", confirmed.Status)
	}
}

func TestWebhookIdempotentRedelivery(t *testing.T) {
	env := setupPaymentsTest(t)
	ctx := context.Background()
	bk := env.seedBooking(t, "joao@example.com")

	payload := webhookBody(t, WebhookPayload{
		ExternalTransactionID: "fake_evt_2",
		Status:                "paid",
		Amount:                bk.TotalAmount,
		Currency:              "EUR",
		BookingID:             bk.ID.String(),
	})

	if _, err := env.payments.HandleWebhook(ctx, "fake", payload); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	outcome, err := env.payments.HandleWebhook(ctx, "fake", payload)
	if err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if outcome != WebhookOutcomeUpdated {
		t.Errorf("redelivery outcome = %q, want updated", outcome)
	}

	// Still exactly one transaction for the booking.
	txs, err := env.db.ListTransactionsByBooking(ctx, bk.ID)
	if err != nil {
		t.Fatalf("ListTransactionsByBooking failed: %v", err)
	}
	if len(txs) != 1 {
		t.Errorf("got %d transactions after redelivery, want 1", len(txs))
	}
}

func TestWebhookPendingThenCompleted(t *testing.T) {
	env := setupPaymentsTest(t)
	ctx := context.Background()
	bk := env.seedBooking(t, "joao@example.com")

	result, err := env.payments.InitiatePayment(ctx, InitiateParams{BookingID: bk.ID, Amount: bk.TotalAmount})
	if err != nil {
		t.Fatalf("InitiatePayment failed: %v", err)
	}
	tx, err := env.payments.GetTransaction(ctx, result.TransactionID)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}

	outcome, err := env.payments.HandleWebhook(ctx, "fake", webhookBody(t, WebhookPayload{
		ExternalTransactionID: tx.ExternalID,
		Status:                "paid",
	}))
	if err != nil {
		t.Fatalf("HandleWebhook failed: %v", err)
	}
	if outcome != WebhookOutcomeUpdated {
		t.Errorf("outcome = %q, want updated", outcome)
	}

	updated, err := env.payments.GetTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if updated.Status != models.TransactionStatusCompleted {
		t.Errorf("transaction status = %q, want completed", updated.Status)
	}
}

func TestWebhookFailedThenCompletedConfirmsBooking(t *testing.T) {
	env := setupPaymentsTest(t)
	ctx := context.Background()
	bk := env.seedBooking(t, "joao@example.com")

	// The gateway reports a decline, then retries the charge and succeeds.
	outcome, err := env.payments.HandleWebhook(ctx, "fake", webhookBody(t, WebhookPayload{
		ExternalTransactionID: "fake_evt_retry",
		Status:                "declined",
		Amount:                bk.TotalAmount,
		Currency:              "EUR",
		BookingID:             bk.ID.String(),
	}))
	if err != nil {
		t.Fatalf("HandleWebhook (declined) failed: %v", err)
	}
	if outcome != WebhookOutcomeCreated {
		t.Errorf("outcome = %q, want created", outcome)
	}

	outcome, err = env.payments.HandleWebhook(ctx, "fake", webhookBody(t, WebhookPayload{
		ExternalTransactionID: "fake_evt_retry",
		Status:                "paid",
	}))
	if err != nil {
		t.Fatalf("HandleWebhook (paid) failed: %v", err)
	}
	if outcome != WebhookOutcomeUpdated {
		t.Errorf("outcome = %q, want updated", outcome)
	}

	tx, err := env.db.GetTransactionByExternalID(ctx, "fake", "fake_evt_retry")
	if err != nil {
		t.Fatalf("GetTransactionByExternalID failed: %v", err)
	}
	if tx.Status != models.TransactionStatusCompleted {
		t.Errorf("transaction status = %q, want completed", tx.Status)
	}

	// The money arrived, so the booking is confirmed despite the earlier failure.
	confirmed, err := env.bookings.Get(ctx, bk.ID)
	if err != nil {
		t.Fatalf("Get booking failed: %v", err)
	}
	if confirmed.Status != models.BookingStatusConfirmed {
		t.Errorf("booking status = %q, want confirmed", confirmed.Status)
	}
}

func TestWebhookUnmappedStatusGoesToManualReview(t *testing.T) {
	env := setupPaymentsTest(t)
	ctx := context.Background()
	bk := env.seedBooking(t, "joao@example.com")

	outcome, err := env.payments.HandleWebhook(ctx, "fake", webhookBody(t, WebhookPayload{
		ExternalTransactionID: "fake_evt_3",
		Status:                "chargeback_initiated",
		Amount:                bk.TotalAmount,
		Currency:              "EUR",
		BookingID:             bk.ID.String(),
	}))
	if err != nil {
		t.Fatalf("HandleWebhook failed: %v", err)
	}
	if outcome != WebhookOutcomeManualReview {
		t.Errorf("outcome = %q, want manual_review", outcome)
	}

	tx, err := env.db.GetTransactionByExternalID(ctx, "fake", "fake_evt_3")
	if err != nil {
		t.Fatalf("GetTransactionByExternalID failed: %v", err)
	}
	if tx.Status != models.TransactionStatusManualReview {
		t.Errorf("transaction status = %q, want manual_review", tx.Status)
	}

	// The booking is untouched by a manual-review transaction.
	pending, err := env.bookings.Get(ctx, bk.ID)
	if err != nil {
		t.Fatalf("Get booking failed: %v", err)
	}
	if pending.Status != models.BookingStatusPendingPayment {
		t.Errorf("booking status = %q, want pending_payment", pending.Status)
	}
}

func TestWebhookRejections(t *testing.T) {
	env := setupPaymentsTest(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		gateway string
		body    []byte
	}{
		{"unknown gateway", "paypal", webhookBody(t, WebhookPayload{ExternalTransactionID: "x", Status: "paid"})},
		{"undecodable body", "fake", []byte("not json")},
		{"missing external id", "fake", webhookBody(t, WebhookPayload{Status: "paid"})},
		{"unseen id without booking", "fake", webhookBody(t, WebhookPayload{ExternalTransactionID: "orphan", Status: "paid"})},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			outcome, err := env.payments.HandleWebhook(ctx, tc.gateway, tc.body)
			if err == nil {
				t.Error("HandleWebhook succeeded, want error")
			}
			if outcome != WebhookOutcomeRejected {
				t.Errorf("outcome = %q, want rejected", outcome)
			}
		})
	}
}

func TestGetMetricsWindow(t *testing.T) {
	env := setupPaymentsTest(t)
	ctx := context.Background()
	bk := env.seedBooking(t, "joao@example.com")

	result, err := env.payments.InitiatePayment(ctx, InitiateParams{BookingID: bk.ID, Amount: bk.TotalAmount})
	if err != nil {
		t.Fatalf("InitiatePayment failed: %v", err)
	}
	if _, err := env.payments.VerifyPayment(ctx, result.TransactionID); err != nil {
		t.Fatalf("VerifyPayment failed: %v", err)
	}

	from := time.Now().UTC().Add(-time.Hour)
	to := time.Now().UTC().Add(time.Hour)
	m, err := env.payments.GetMetrics(ctx, from, to)
	if err != nil {
		t.Fatalf("GetMetrics failed: %v", err)
	}
	if m.TransactionCount != 1 || m.CompletedCount != 1 {
		t.Errorf("metrics = %d/%d transactions/completed, want 1/1", m.TransactionCount, m.CompletedCount)
	}
	if m.TotalAmount != bk.TotalAmount {
		t.Errorf("TotalAmount = %d, want %d", m.TotalAmount, bk.TotalAmount)
	}
	if m.SuccessRate != 100.0 {
		t.Errorf("SuccessRate = %v, want 100", m.SuccessRate)
	}
}

func TestRegistryResolveAndNames(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&fakeGateway{})

	if _, err := registry.Resolve("fake"); err != nil {
		t.Errorf("Resolve(fake) failed: %v", err)
	}
	if _, err := registry.Resolve("stripe"); !errors.Is(err, ErrGatewayNotConfigured) {
		t.Errorf("Resolve(stripe) error = %v, want ErrGatewayNotConfigured", err)
	}

	names := registry.Names()
	if len(names) != 1 || names[0] != "fake" {
		t.Errorf("Names = %v, want [fake]", names)
	}
}

func TestSandboxGatewayMapStatus(t *testing.T) {
	gw := NewSandboxGateway(0.029)

	tests := []struct {
		in     string
		want   models.TransactionStatus
		mapped bool
	}{
		{"paid", models.TransactionStatusCompleted, true},
		{"succeeded", models.TransactionStatusCompleted, true},
		{"created", models.TransactionStatusPending, true},
		{"processing", models.TransactionStatusPending, true},
		{"failed", models.TransactionStatusFailed, true},
		{"declined", models.TransactionStatusFailed, true},
		{"weird_new_status", "", false},
	}

	for _, tc := range tests {
		t.Run(fmt.Sprintf("status %s", tc.in), func(t *testing.T) {
			status, ok := gw.MapStatus(tc.in)
			if ok != tc.mapped {
				t.Fatalf("MapStatus(%q) ok = %v, want %v", tc.in, ok, tc.mapped)
			}
			if ok && status != tc.want {
				t.Errorf("MapStatus(%q) = %q, want %q", tc.in, status, tc.want)
			}
		})
	}
}
