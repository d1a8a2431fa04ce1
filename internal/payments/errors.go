// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package payments

import "errors"

// Payment domain errors.
var (
	// ErrAmountMismatch indicates the initiation amount does not exactly
	// equal the booking's final price.
	ErrAmountMismatch = errors.New("payment amount does not match booking total")

	// ErrGatewayNotConfigured indicates the requested gateway is unknown or
	// disabled.
	ErrGatewayNotConfigured = errors.New("payment gateway not configured")

	// ErrFraudDetected is a hard stop; the caller must not retry.
	ErrFraudDetected = errors.New("payment rejected by fraud check")

	// ErrVerificationFailed indicates the gateway did not confirm the
	// payment.
	ErrVerificationFailed = errors.New("payment verification failed")

	// ErrRefundNotAllowed indicates a refund against a transaction that is
	// not completed, or for an amount outside the refundable remainder.
	ErrRefundNotAllowed = errors.New("refund not allowed")
)
