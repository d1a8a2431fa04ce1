// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package payments

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/openvoyage/bookcore/internal/config"
	"github.com/openvoyage/bookcore/internal/models"
)

// StripeGateway talks to the Stripe REST API using checkout sessions for
// charges and the refunds endpoint for refunds.
type StripeGateway struct {
	baseURL        string
	secretKey      string
	commissionRate float64
	client         *http.Client
}

// NewStripeGateway creates a Stripe gateway from credentials.
func NewStripeGateway(creds config.GatewayCredentials, timeout time.Duration) *StripeGateway {
	return &StripeGateway{
		baseURL:        strings.TrimRight(creds.BaseURL, "/"),
		secretKey:      creds.SecretKey,
		commissionRate: creds.CommissionRate,
		client:         &http.Client{Timeout: timeout},
	}
}

// Name returns "stripe".
func (g *StripeGateway) Name() string { return "stripe" }

// CreatePayment creates a checkout session and returns its hosted URL.
func (g *StripeGateway) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResult, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", req.BookingID)
	form.Set("customer_email", req.PayerEmail)
	form.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.Amount, 10))
	form.Set("line_items[0][price_data][product_data][name]", req.Description)
	form.Set("line_items[0][quantity]", "1")
	form.Set("metadata[transaction_id]", req.TransactionID)

	var session struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := g.call(ctx, http.MethodPost, "/v1/checkout/sessions", form, &session); err != nil {
		return nil, err
	}
	return &CreatePaymentResult{ExternalID: session.ID, PaymentURL: session.URL}, nil
}

// VerifyPayment fetches the session and reports whether it is paid.
func (g *StripeGateway) VerifyPayment(ctx context.Context, externalID string) (bool, error) {
	var session struct {
		PaymentStatus string `json:"payment_status"`
	}
	if err := g.call(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(externalID), nil, &session); err != nil {
		return false, err
	}
	return session.PaymentStatus == "paid", nil
}

// Refund issues a refund against the session's payment intent.
func (g *StripeGateway) Refund(ctx context.Context, externalID string, amount int64) (string, error) {
	var session struct {
		PaymentIntent string `json:"payment_intent"`
	}
	if err := g.call(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(externalID), nil, &session); err != nil {
		return "", err
	}
	if session.PaymentIntent == "" {
		return "", fmt.Errorf("session %s has no payment intent", externalID)
	}

	form := url.Values{}
	form.Set("payment_intent", session.PaymentIntent)
	form.Set("amount", strconv.FormatInt(amount, 10))

	var refund struct {
		ID string `json:"id"`
	}
	if err := g.call(ctx, http.MethodPost, "/v1/refunds", form, &refund); err != nil {
		return "", err
	}
	return refund.ID, nil
}

// MapStatus maps Stripe's status vocabulary. Unknown statuses are left to the
// caller's manual-review path.
func (g *StripeGateway) MapStatus(gatewayStatus string) (models.TransactionStatus, bool) {
	switch gatewayStatus {
	case "paid", "succeeded", "complete":
		return models.TransactionStatusCompleted, true
	case "unpaid", "open", "processing", "requires_action", "requires_payment_method":
		return models.TransactionStatusPending, true
	case "canceled", "expired", "payment_failed":
		return models.TransactionStatusFailed, true
	case "refunded":
		return models.TransactionStatusRefunded, true
	default:
		return "", false
	}
}

// CommissionRate returns the configured fee fraction.
func (g *StripeGateway) CommissionRate() float64 { return g.commissionRate }

func (g *StripeGateway) call(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("stripe %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read stripe response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(payload, &apiErr)
		return fmt.Errorf("stripe %s %s: status %d: %s", method, path, resp.StatusCode, apiErr.Error.Message)
	}
	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decode stripe response: %w", err)
		}
	}
	return nil
}
