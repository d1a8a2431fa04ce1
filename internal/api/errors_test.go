// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/openvoyage/bookcore/internal/booking"
	"github.com/openvoyage/bookcore/internal/database"
	"github.com/openvoyage/bookcore/internal/payments"
	"github.com/openvoyage/bookcore/internal/validation"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response body %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestWriteServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", database.ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"wrapped not found", fmt.Errorf("get slot: %w", database.ErrNotFound), http.StatusNotFound, ErrCodeNotFound},
		{"slot conflict", database.ErrSlotConflict, http.StatusConflict, ErrCodeConflict},
		{"duplicate booking", database.ErrDuplicateBooking, http.StatusConflict, ErrCodeDuplicateBooking},
		{"capacity exceeded", database.ErrCapacityExceeded, http.StatusConflict, ErrCodeCapacityExceeded},
		{"invalid transition", database.ErrInvalidTransition, http.StatusConflict, ErrCodeInvalidTransition},
		{"refund exceeds amount", database.ErrRefundExceedsAmount, http.StatusUnprocessableEntity, ErrCodeRefundNotAllowed},

		{"tour unavailable", booking.ErrTourUnavailable, http.StatusConflict, ErrCodeTourUnavailable},
		{"invalid discount", booking.ErrInvalidDiscountCode, http.StatusBadRequest, ErrCodeInvalidDiscount},
		{"already cancelled", booking.ErrAlreadyCancelled, http.StatusConflict, ErrCodeInvalidTransition},
		{"booking closed", booking.ErrBookingClosed, http.StatusConflict, ErrCodeInvalidTransition},
		{"cancellation refund denied", booking.ErrRefundNotAllowed, http.StatusUnprocessableEntity, ErrCodeRefundNotAllowed},

		{"amount mismatch", payments.ErrAmountMismatch, http.StatusBadRequest, ErrCodeAmountMismatch},
		{"gateway not configured", payments.ErrGatewayNotConfigured, http.StatusBadRequest, ErrCodeGatewayUnsupported},
		{"fraud detected", payments.ErrFraudDetected, http.StatusUnprocessableEntity, ErrCodeFraudRejected},
		{"verification failed", payments.ErrVerificationFailed, http.StatusUnprocessableEntity, ErrCodePaymentUnverified},
		{"transaction refund denied", payments.ErrRefundNotAllowed, http.StatusUnprocessableEntity, ErrCodeRefundNotAllowed},

		{"unknown error", errors.New("disk on fire"), http.StatusInternalServerError, ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil)

			WriteServiceError(rec, req, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			resp := decodeEnvelope(t, rec)
			if resp.Success {
				t.Error("Success = true on error response")
			}
			if resp.Error == nil {
				t.Fatal("Error block missing from error response")
			}
			if resp.Error.Code != tt.wantCode {
				t.Errorf("error code = %q, want %q", resp.Error.Code, tt.wantCode)
			}
			if resp.Error.Message == "" {
				t.Error("error message is empty")
			}
		})
	}
}

func TestWriteServiceErrorValidationDetails(t *testing.T) {
	type form struct {
		Email string `validate:"required,email"`
	}
	verr := validation.ValidateStruct(form{})
	if verr == nil {
		t.Fatal("expected a validation error for an empty required field")
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", nil)
	WriteServiceError(rec, req, verr)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	if resp.Error == nil || resp.Error.Code != ErrCodeValidationFailed {
		t.Fatalf("error = %+v, want code %s", resp.Error, ErrCodeValidationFailed)
	}
	details, ok := resp.Error.Details.([]interface{})
	if !ok || len(details) == 0 {
		t.Fatalf("Details = %v, want per-field entries", resp.Error.Details)
	}
	field, ok := details[0].(map[string]interface{})
	if !ok || field["field"] == "" {
		t.Errorf("detail entry = %v, want field name", details[0])
	}
}

func TestResponseWriterSuccessEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil)

	NewResponseWriter(rec, req).SuccessWithPagination(
		[]string{"a", "b"},
		newPagination(10, 2, 2, 0),
	)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	resp := decodeEnvelope(t, rec)
	if !resp.Success {
		t.Error("Success = false on success response")
	}
	if resp.Meta == nil || resp.Meta.Pagination == nil {
		t.Fatal("pagination meta missing")
	}
	p := resp.Meta.Pagination
	if p.Total != 10 || p.Count != 2 || !p.HasMore {
		t.Errorf("pagination = %+v, want total 10, count 2, has_more", p)
	}
}

func TestNewPaginationHasMore(t *testing.T) {
	if p := newPagination(5, 5, 50, 0); p.HasMore {
		t.Error("HasMore = true when every item fits the first page")
	}
	if p := newPagination(100, 50, 50, 0); !p.HasMore {
		t.Error("HasMore = false with more items beyond the page")
	}
	if p := newPagination(100, 50, 50, 50); p.HasMore {
		t.Error("HasMore = true on the final page")
	}
}
