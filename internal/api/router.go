// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openvoyage/bookcore/internal/availability"
	"github.com/openvoyage/bookcore/internal/booking"
	"github.com/openvoyage/bookcore/internal/config"
	"github.com/openvoyage/bookcore/internal/database"
	"github.com/openvoyage/bookcore/internal/payments"
)

// Router wires the domain services into HTTP handlers.
type Router struct {
	db           *database.DB
	availability *availability.Service
	bookings     *booking.Service
	payments     *payments.Service
	middleware   *ChiMiddleware
}

// NewRouter constructs the router from its dependencies.
func NewRouter(db *database.DB, avail *availability.Service, bookings *booking.Service,
	pay *payments.Service, cfg config.ServerConfig) *Router {
	return &Router{
		db:           db,
		availability: avail,
		bookings:     bookings,
		payments:     pay,
		middleware:   NewChiMiddleware(cfg),
	}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogging())
	r.Use(router.middleware.CORS())

	// Bookings
	r.Route("/api/v1/bookings", func(r chi.Router) {
		r.With(router.middleware.RateLimitWrite()).Post("/", router.BookingCreate)
		r.With(router.middleware.RateLimit()).Get("/", router.BookingList)

		r.Route("/{id}", func(r chi.Router) {
			r.Use(router.middleware.RateLimit())
			r.Get("/", router.BookingGet)
			r.Patch("/", router.BookingUpdate)
			r.Post("/cancel", router.BookingCancel)
		})
	})

	// Availability
	r.Route("/api/v1/availability", func(r chi.Router) {
		r.Use(router.middleware.RateLimit())

		r.Post("/slots", router.SlotCreate)
		r.Get("/slots", router.SlotSearch)
		r.Get("/slots/{id}", router.SlotGet)
		r.Post("/slots/{id}/pricing", router.SlotPricing)
		r.Get("/calendar", router.Calendar)
		r.Post("/blocks", router.BlockCreate)
		r.Post("/recurring", router.RecurringCreate)
		r.Get("/stats", router.AvailabilityStats)
	})

	// Payments
	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Use(router.middleware.RateLimitWrite())

		r.Post("/initiate", router.PaymentInitiate)
		r.Post("/{id}/verify", router.PaymentVerify)
		r.Post("/{id}/refund", router.PaymentRefund)
		r.With(router.middleware.RateLimit()).Get("/{id}", router.PaymentGet)
		r.With(router.middleware.RateLimit()).Get("/metrics", router.PaymentMetrics)
	})

	// Gateway webhooks. No auth here: gateways authenticate via the payload's
	// external transaction ID, and unknown gateways are rejected.
	r.With(router.middleware.RateLimitWebhook()).
		Post("/api/v1/webhooks/{gateway}", router.Webhook)

	// Observability
	r.Get("/health", router.Health)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
