// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/openvoyage/bookcore/internal/booking"
	"github.com/openvoyage/bookcore/internal/models"
)

// createBookingRequest is the JSON body of POST /api/v1/bookings.
type createBookingRequest struct {
	TourID       string               `json:"tour_id"`
	TourDate     time.Time            `json:"tour_date"`
	ContactName  string               `json:"contact_name"`
	ContactEmail string               `json:"contact_email"`
	ContactPhone string               `json:"contact_phone"`
	Participants []participantRequest `json:"participants"`
	DiscountCode string               `json:"discount_code"`

	SpecialRequests string `json:"special_requests"`
	DietaryNotes    string `json:"dietary_notes"`
	MobilityNotes   string `json:"mobility_notes"`
}

type participantRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Age      int    `json:"age"`
}

// BookingCreate handles POST /api/v1/bookings.
func (router *Router) BookingCreate(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		NewResponseWriter(w, r).BadRequest(err.Error())
		return
	}

	participants := make([]booking.ParticipantParams, len(req.Participants))
	for i, p := range req.Participants {
		participants[i] = booking.ParticipantParams{
			FullName: p.FullName,
			Email:    p.Email,
			Age:      p.Age,
		}
	}

	bk, err := router.bookings.Create(r.Context(), booking.CreateParams{
		TourID:          req.TourID,
		TourDate:        req.TourDate,
		ContactName:     req.ContactName,
		ContactEmail:    req.ContactEmail,
		ContactPhone:    req.ContactPhone,
		Participants:    participants,
		DiscountCode:    req.DiscountCode,
		SpecialRequests: req.SpecialRequests,
		DietaryNotes:    req.DietaryNotes,
		MobilityNotes:   req.MobilityNotes,
	})
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	NewResponseWriter(w, r).Created(bk)
}

// BookingGet handles GET /api/v1/bookings/{id}. The path parameter is a
// booking UUID or a confirmation code (BK-XXXXXXXX).
func (router *Router) BookingGet(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")

	var bk *models.Booking
	var err error
	if id, perr := uuid.Parse(raw); perr == nil {
		bk, err = router.bookings.Get(r.Context(), id)
	} else {
		bk, err = router.bookings.GetByConfirmationCode(r.Context(), raw)
	}
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	NewResponseWriter(w, r).Success(bk)
}

// BookingList handles GET /api/v1/bookings with filter query parameters.
func (router *Router) BookingList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.BookingFilter{
		TourID:        q.Get("tour_id"),
		ContactEmail:  q.Get("contact_email"),
		Status:        models.BookingStatus(q.Get("status")),
		PaymentStatus: models.PaymentState(q.Get("payment_status")),
		MinTotal:      parseInt64(q.Get("min_total")),
		MaxTotal:      parseInt64(q.Get("max_total")),
	}
	if raw := q.Get("date_from"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			NewResponseWriter(w, r).BadRequest(err.Error())
			return
		}
		filter.DateFrom = t
	}
	if raw := q.Get("date_to"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			NewResponseWriter(w, r).BadRequest(err.Error())
			return
		}
		filter.DateTo = t
	}

	limit, offset := parsePagination(r)
	bookings, total, err := router.bookings.List(r.Context(), filter, limit, offset)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	NewResponseWriter(w, r).SuccessWithPagination(bookings,
		newPagination(total, len(bookings), limit, offset))
}

// cancelBookingRequest is the JSON body of POST /api/v1/bookings/{id}/cancel.
type cancelBookingRequest struct {
	Reason      string `json:"reason"`
	InitiatedBy string `json:"initiated_by"`
}

// BookingCancel handles POST /api/v1/bookings/{id}/cancel.
func (router *Router) BookingCancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		NewResponseWriter(w, r).BadRequest(err.Error())
		return
	}

	// The body is optional; an empty cancel is a customer cancellation.
	var req cancelBookingRequest
	_ = decodeJSON(r, &req)
	if req.InitiatedBy == "" {
		req.InitiatedBy = "customer"
	}

	bk, err := router.bookings.Cancel(r.Context(), id, req.Reason, req.InitiatedBy)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	NewResponseWriter(w, r).Success(bk)
}

// updateBookingRequest is the JSON body of PATCH /api/v1/bookings/{id}.
// Only non-financial notes are mutable; pricing and party size are fixed at
// creation.
type updateBookingRequest struct {
	SpecialRequests *string `json:"special_requests"`
	DietaryNotes    *string `json:"dietary_notes"`
	MobilityNotes   *string `json:"mobility_notes"`
}

// BookingUpdate handles PATCH /api/v1/bookings/{id}.
func (router *Router) BookingUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		NewResponseWriter(w, r).BadRequest(err.Error())
		return
	}

	var req updateBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		NewResponseWriter(w, r).BadRequest(err.Error())
		return
	}

	// PATCH semantics: fields absent from the body keep their current value.
	current, err := router.bookings.Get(r.Context(), id)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	params := booking.UpdateParams{
		SpecialRequests: current.SpecialRequests,
		DietaryNotes:    current.DietaryNotes,
		MobilityNotes:   current.MobilityNotes,
	}
	if req.SpecialRequests != nil {
		params.SpecialRequests = *req.SpecialRequests
	}
	if req.DietaryNotes != nil {
		params.DietaryNotes = *req.DietaryNotes
	}
	if req.MobilityNotes != nil {
		params.MobilityNotes = *req.MobilityNotes
	}

	bk, err := router.bookings.Update(r.Context(), id, params)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	NewResponseWriter(w, r).Success(bk)
}
