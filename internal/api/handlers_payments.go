// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package api

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/openvoyage/bookcore/internal/payments"
)

// initiatePaymentRequest is the JSON body of POST /api/v1/payments/initiate.
type initiatePaymentRequest struct {
	BookingID    uuid.UUID `json:"booking_id"`
	Gateway      string    `json:"gateway"`
	Amount       int64     `json:"amount"`
	PayerName    string    `json:"payer_name"`
	PayerEmail   string    `json:"payer_email"`
	PayerCountry string    `json:"payer_country"`
}

// PaymentInitiate handles POST /api/v1/payments/initiate.
func (router *Router) PaymentInitiate(w http.ResponseWriter, r *http.Request) {
	var req initiatePaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		NewResponseWriter(w, r).BadRequest(err.Error())
		return
	}

	result, err := router.payments.InitiatePayment(r.Context(), payments.InitiateParams{
		BookingID:    req.BookingID,
		Gateway:      req.Gateway,
		Amount:       req.Amount,
		PayerName:    req.PayerName,
		PayerEmail:   req.PayerEmail,
		PayerCountry: req.PayerCountry,
	})
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	NewResponseWriter(w, r).Created(result)
}

// PaymentVerify handles POST /api/v1/payments/{id}/verify.
func (router *Router) PaymentVerify(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		NewResponseWriter(w, r).BadRequest(err.Error())
		return
	}

	tx, err := router.payments.VerifyPayment(r.Context(), id)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	NewResponseWriter(w, r).Success(tx)
}

// refundRequest is the JSON body of POST /api/v1/payments/{id}/refund.
type refundRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

// PaymentRefund handles POST /api/v1/payments/{id}/refund.
func (router *Router) PaymentRefund(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		NewResponseWriter(w, r).BadRequest(err.Error())
		return
	}

	var req refundRequest
	if err := decodeJSON(r, &req); err != nil {
		NewResponseWriter(w, r).BadRequest(err.Error())
		return
	}

	refund, err := router.payments.Refund(r.Context(), payments.RefundParams{
		TransactionID: id,
		Amount:        req.Amount,
		Reason:        req.Reason,
	})
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	NewResponseWriter(w, r).Created(refund)
}

// PaymentGet handles GET /api/v1/payments/{id}.
func (router *Router) PaymentGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		NewResponseWriter(w, r).BadRequest(err.Error())
		return
	}

	tx, err := router.payments.GetTransaction(r.Context(), id)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	NewResponseWriter(w, r).Success(tx)
}

// PaymentMetrics handles GET /api/v1/payments/metrics. The window defaults to
// the last 30 days.
func (router *Router) PaymentMetrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)
	if raw := q.Get("from"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			NewResponseWriter(w, r).BadRequest(err.Error())
			return
		}
		from = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			NewResponseWriter(w, r).BadRequest(err.Error())
			return
		}
		to = t
	}

	result, err := router.payments.GetMetrics(r.Context(), from, to)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	NewResponseWriter(w, r).Success(result)
}

// Webhook handles POST /api/v1/webhooks/{gateway}. The raw body is passed to
// the payment service, which owns decoding and idempotence; the handler only
// reports the outcome.
func (router *Router) Webhook(w http.ResponseWriter, r *http.Request) {
	gateway := chi.URLParam(r, "gateway")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		NewResponseWriter(w, r).BadRequest("failed to read webhook body")
		return
	}

	outcome, err := router.payments.HandleWebhook(r.Context(), gateway, body)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	NewResponseWriter(w, r).Success(map[string]string{"outcome": outcome})
}
