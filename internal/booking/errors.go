// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package booking

import "errors"

// Booking domain errors. Each maps to one client-visible failure mode so
// callers and the HTTP layer can branch with errors.Is.
var (
	// ErrTourUnavailable indicates no slot with enough open capacity exists
	// for the requested tour and date. Retryable only after re-querying
	// availability.
	ErrTourUnavailable = errors.New("tour unavailable for the requested date")

	// ErrInvalidDiscountCode indicates the code is missing, inactive, outside
	// its validity window, or over its use cap.
	ErrInvalidDiscountCode = errors.New("invalid discount code")

	// ErrAlreadyCancelled indicates a cancel call against a booking that is
	// already cancelled.
	ErrAlreadyCancelled = errors.New("booking already cancelled")

	// ErrRefundNotAllowed indicates no refund policy matches the remaining
	// time before the tour; the cancellation is rejected and the booking
	// keeps its prior status.
	ErrRefundNotAllowed = errors.New("refund not allowed this close to the tour")

	// ErrBookingClosed indicates an update against a completed or cancelled
	// booking.
	ErrBookingClosed = errors.New("booking is closed to modification")
)
