// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package models

import (
	"time"

	"github.com/google/uuid"
)

// TransactionStatus is the lifecycle state of one payment attempt.
type TransactionStatus string

const (
	TransactionStatusPending           TransactionStatus = "pending"
	TransactionStatusCompleted         TransactionStatus = "completed"
	TransactionStatusFailed            TransactionStatus = "failed"
	TransactionStatusRefunded          TransactionStatus = "refunded"
	TransactionStatusPartiallyRefunded TransactionStatus = "partially_refunded"

	// TransactionStatusManualReview is assigned when a webhook carries a
	// gateway status we have no mapping for. An operator resolves these;
	// nothing moves the booking until then.
	TransactionStatusManualReview TransactionStatus = "manual_review"
)

// PaymentTransaction is one attempt to collect money for a booking.
// A booking may have several transactions (retries); each transaction may
// have several refund children, bounded by sum(refunds) <= Amount.
type PaymentTransaction struct {
	ID         uuid.UUID         `json:"id"`
	BookingID  uuid.UUID         `json:"booking_id"`
	Gateway    string            `json:"gateway"`
	ExternalID string            `json:"external_id,omitempty"`
	Status     TransactionStatus `json:"status"`

	// Amounts, minor currency units. NetAmount = Amount - Commission.
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Commission int64  `json:"commission"`
	NetAmount  int64  `json:"net_amount"`

	PayerName    string `json:"payer_name,omitempty"`
	PayerEmail   string `json:"payer_email,omitempty"`
	PayerCountry string `json:"payer_country,omitempty"`

	FailureReason string     `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Refund is a child record of a transaction returning part or all of its amount.
type Refund struct {
	ID              uuid.UUID   `json:"id"`
	TransactionID   uuid.UUID   `json:"transaction_id"`
	Amount          int64       `json:"amount"`
	Reason          string      `json:"reason,omitempty"`
	Status          RefundState `json:"status"`
	GatewayRefundID string      `json:"gateway_refund_id,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// GatewayConfig is the stored configuration for one payment gateway.
type GatewayConfig struct {
	Gateway        string  `json:"gateway"`
	Enabled        bool    `json:"enabled"`
	APIKey         string  `json:"-"`
	SecretKey      string  `json:"-"`
	CommissionRate float64 `json:"commission_rate"` // fraction, e.g. 0.029
	Currency       string  `json:"currency"`
}

// PaymentMetrics aggregates transaction outcomes over a window.
type PaymentMetrics struct {
	From             time.Time `json:"from"`
	To               time.Time `json:"to"`
	TransactionCount int       `json:"transaction_count"`
	CompletedCount   int       `json:"completed_count"`
	FailedCount      int       `json:"failed_count"`
	RefundedCount    int       `json:"refunded_count"`
	TotalAmount      int64     `json:"total_amount"`
	TotalCommission  int64     `json:"total_commission"`
	TotalRefunded    int64     `json:"total_refunded"`
	SuccessRate      float64   `json:"success_rate"` // percent
	GeneratedAt      time.Time `json:"generated_at"`
}
