// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package api

import (
	"errors"
	"net/http"

	"github.com/openvoyage/bookcore/internal/booking"
	"github.com/openvoyage/bookcore/internal/database"
	"github.com/openvoyage/bookcore/internal/logging"
	"github.com/openvoyage/bookcore/internal/payments"
	"github.com/openvoyage/bookcore/internal/validation"
)

// WriteServiceError translates a domain error into the standardized error
// envelope. Every handler funnels service failures through here so status
// codes and error codes stay consistent across the API.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	rw := NewResponseWriter(w, r)

	var verr *validation.RequestValidationError
	if errors.As(err, &verr) {
		rw.ValidationError("Request validation failed", verr.Details())
		return
	}

	switch {
	case errors.Is(err, database.ErrNotFound):
		rw.NotFound("Resource not found")
	case errors.Is(err, database.ErrSlotConflict):
		rw.Error(http.StatusConflict, ErrCodeConflict, "A slot already exists for this tour and date")
	case errors.Is(err, database.ErrDuplicateBooking):
		rw.Error(http.StatusConflict, ErrCodeDuplicateBooking, "An active booking already exists for this contact and tour date")
	case errors.Is(err, database.ErrCapacityExceeded):
		rw.Error(http.StatusConflict, ErrCodeCapacityExceeded, "Not enough available spaces")
	case errors.Is(err, database.ErrInvalidTransition):
		rw.Error(http.StatusConflict, ErrCodeInvalidTransition, "Booking status does not allow this operation")
	case errors.Is(err, database.ErrRefundExceedsAmount):
		rw.Error(http.StatusUnprocessableEntity, ErrCodeRefundNotAllowed, "Refund exceeds the transaction amount")

	case errors.Is(err, booking.ErrTourUnavailable):
		rw.Error(http.StatusConflict, ErrCodeTourUnavailable, "Tour is not available for the requested date and party size")
	case errors.Is(err, booking.ErrInvalidDiscountCode):
		rw.Error(http.StatusBadRequest, ErrCodeInvalidDiscount, "Discount code is invalid or exhausted")
	case errors.Is(err, booking.ErrAlreadyCancelled):
		rw.Error(http.StatusConflict, ErrCodeInvalidTransition, "Booking is already cancelled")
	case errors.Is(err, booking.ErrBookingClosed):
		rw.Error(http.StatusConflict, ErrCodeInvalidTransition, "Booking is closed and can no longer be modified")
	case errors.Is(err, booking.ErrRefundNotAllowed):
		rw.Error(http.StatusUnprocessableEntity, ErrCodeRefundNotAllowed, "No refund policy permits cancellation this close to the tour")

	case errors.Is(err, payments.ErrAmountMismatch):
		rw.Error(http.StatusBadRequest, ErrCodeAmountMismatch, "Payment amount does not match the booking total")
	case errors.Is(err, payments.ErrGatewayNotConfigured):
		rw.Error(http.StatusBadRequest, ErrCodeGatewayUnsupported, "Payment gateway is not configured")
	case errors.Is(err, payments.ErrFraudDetected):
		rw.Error(http.StatusUnprocessableEntity, ErrCodeFraudRejected, "Payment was rejected by fraud screening")
	case errors.Is(err, payments.ErrVerificationFailed):
		rw.Error(http.StatusUnprocessableEntity, ErrCodePaymentUnverified, "Gateway did not confirm the payment")
	case errors.Is(err, payments.ErrRefundNotAllowed):
		rw.Error(http.StatusUnprocessableEntity, ErrCodeRefundNotAllowed, "Transaction cannot be refunded")

	default:
		logging.Ctx(r.Context()).Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Unhandled service error")
		rw.InternalError("An internal error occurred")
	}
}
