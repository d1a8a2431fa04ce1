// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package api

import (
	"net/http"
	"time"

	"github.com/openvoyage/bookcore/internal/availability"
	"github.com/openvoyage/bookcore/internal/models"
)

// createSlotRequest is the JSON body of POST /api/v1/availability/slots.
type createSlotRequest struct {
	TourID                    string    `json:"tour_id"`
	Date                      time.Time `json:"date"`
	StartTime                 string    `json:"start_time"`
	EndTime                   string    `json:"end_time"`
	TotalCapacity             int       `json:"total_capacity"`
	BasePrice                 int64     `json:"base_price"`
	Currency                  string    `json:"currency"`
	BookingDeadlineHours      int       `json:"booking_deadline_hours"`
	CancellationDeadlineHours int       `json:"cancellation_deadline_hours"`
}

// SlotCreate handles POST /api/v1/availability/slots.
func (router *Router) SlotCreate(w http.ResponseWriter, r *http.Request) {
	var req createSlotRequest
	if err := decodeJSON(r, &req); err != nil {
		NewResponseWriter(w, r).BadRequest(err.Error())
		return
	}

	slot, err := router.availability.CreateSlot(r.Context(), availability.CreateSlotParams{
		TourID:                    req.TourID,
		Date:                      req.Date,
		StartTime:                 req.StartTime,
		EndTime:                   req.EndTime,
		TotalCapacity:             req.TotalCapacity,
		BasePrice:                 req.BasePrice,
		Currency:                  req.Currency,
		BookingDeadlineHours:      req.BookingDeadlineHours,
		CancellationDeadlineHours: req.CancellationDeadlineHours,
	})
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	NewResponseWriter(w, r).Created(slot)
}

// SlotGet handles GET /api/v1/availability/slots/{id}.
func (router *Router) SlotGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		NewResponseWriter(w, r).BadRequest(err.Error())
		return
	}

	slot, err := router.availability.GetSlot(r.Context(), id)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	NewResponseWriter(w, r).Success(slot)
}

// SlotSearch handles GET /api/v1/availability/slots with filter parameters.
func (router *Router) SlotSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.SlotFilter{
		TourID:   q.Get("tour_id"),
		MinPrice: parseInt64(q.Get("min_price")),
		MaxPrice: parseInt64(q.Get("max_price")),
		Status:   models.SlotStatus(q.Get("status")),
	}
	if raw := q.Get("participants"); raw != "" {
		filter.MinAvailableSpaces = int(parseInt64(raw))
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

	slots, err := router.availability.Search(r.Context(), filter)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	NewResponseWriter(w, r).Success(slots)
}

// pricingRequest is the JSON body of POST /api/v1/availability/slots/{id}/pricing.
type pricingRequest struct {
	Rules []models.PricingRule `json:"rules"`
}

// SlotPricing handles POST /api/v1/availability/slots/{id}/pricing.
func (router *Router) SlotPricing(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		NewResponseWriter(w, r).BadRequest(err.Error())
		return
	}

	var req pricingRequest
	if err := decodeJSON(r, &req); err != nil {
		NewResponseWriter(w, r).BadRequest(err.Error())
		return
	}

	slot, err := router.availability.ApplyDynamicPricing(r.Context(), id, req.Rules)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	NewResponseWriter(w, r).Success(slot)
}

// Calendar handles GET /api/v1/availability/calendar. The window defaults to
// the next 30 days.
func (router *Router) Calendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tourID := q.Get("tour_id")
	if tourID == "" {
		NewResponseWriter(w, r).BadRequest("tour_id is required")
		return
	}

	from := time.Now().UTC().Truncate(24 * time.Hour)
	to := from.AddDate(0, 0, 30)
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

	days, err := router.availability.GetCalendar(r.Context(), tourID, from, to)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	NewResponseWriter(w, r).Success(days)
}

// createBlockRequest is the JSON body of POST /api/v1/availability/blocks.
type createBlockRequest struct {
	TourID    string    `json:"tour_id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Reason    string    `json:"reason"`
}

// BlockCreate handles POST /api/v1/availability/blocks.
func (router *Router) BlockCreate(w http.ResponseWriter, r *http.Request) {
	var req createBlockRequest
	if err := decodeJSON(r, &req); err != nil {
		NewResponseWriter(w, r).BadRequest(err.Error())
		return
	}
	if req.TourID == "" {
		NewResponseWriter(w, r).BadRequest("tour_id is required")
		return
	}

	block, err := router.availability.BlockAvailability(r.Context(),
		req.TourID, req.StartDate, req.EndDate, req.Reason)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	NewResponseWriter(w, r).Created(block)
}

// createRecurringRequest is the JSON body of POST /api/v1/availability/recurring.
type createRecurringRequest struct {
	TourID     string `json:"tour_id"`
	DaysOfWeek []int  `json:"days_of_week"` // 0=Sunday .. 6=Saturday
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Capacity   int    `json:"capacity"`
	BasePrice  int64  `json:"base_price"`
	Currency   string `json:"currency"`
}

// RecurringCreate handles POST /api/v1/availability/recurring.
func (router *Router) RecurringCreate(w http.ResponseWriter, r *http.Request) {
	var req createRecurringRequest
	if err := decodeJSON(r, &req); err != nil {
		NewResponseWriter(w, r).BadRequest(err.Error())
		return
	}
	if req.TourID == "" || len(req.DaysOfWeek) == 0 || req.Capacity <= 0 || req.BasePrice <= 0 {
		NewResponseWriter(w, r).BadRequest("tour_id, days_of_week, capacity, and base_price are required")
		return
	}

	days := make([]time.Weekday, 0, len(req.DaysOfWeek))
	for _, d := range req.DaysOfWeek {
		if d < 0 || d > 6 {
			NewResponseWriter(w, r).BadRequest("days_of_week entries must be in 0..6")
			return
		}
		days = append(days, time.Weekday(d))
	}

	template := &models.RecurringAvailability{
		TourID:     req.TourID,
		DaysOfWeek: days,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Capacity:   req.Capacity,
		BasePrice:  req.BasePrice,
		Currency:   req.Currency,
	}
	if err := router.availability.CreateRecurring(r.Context(), template); err != nil {
		WriteServiceError(w, r, err)
		return
	}

	NewResponseWriter(w, r).Created(template)
}

// AvailabilityStats handles GET /api/v1/availability/stats.
func (router *Router) AvailabilityStats(w http.ResponseWriter, r *http.Request) {
	tourID := r.URL.Query().Get("tour_id")
	if tourID == "" {
		NewResponseWriter(w, r).BadRequest("tour_id is required")
		return
	}

	stats, err := router.availability.GetStats(r.Context(), tourID)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	NewResponseWriter(w, r).Success(stats)
}
