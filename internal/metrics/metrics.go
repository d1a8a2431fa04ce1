// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

// Package metrics exposes Prometheus instrumentation for Bookcore:
// booking lifecycle counts, capacity rejections, payment outcomes, webhook
// results, event bus dispatch, cache efficiency, API latency, and database
// query duration. Scraped via the /metrics endpoint.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Booking lifecycle
	BookingsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookcore_bookings_created_total",
		Help: "Total number of bookings created",
	})

	BookingsConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookcore_bookings_confirmed_total",
		Help: "Total number of bookings confirmed after payment",
	})

	BookingsCancelled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookcore_bookings_cancelled_total",
		Help: "Total number of bookings cancelled",
	}, []string{"initiated_by"})

	BookingsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookcore_bookings_expired_total",
		Help: "Total number of pending bookings expired by the deadline sweeper",
	})

	// Availability
	CapacityRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookcore_capacity_rejections_total",
		Help: "Total capacity adjustments rejected because available spaces would go negative",
	})

	SlotsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookcore_slots_created_total",
		Help: "Total availability slots created",
	}, []string{"source"}) // operator, recurring

	// Payments
	PaymentTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookcore_payment_transactions_total",
		Help: "Total payment transactions by gateway and final status",
	}, []string{"gateway", "status"})

	PaymentGatewayDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bookcore_payment_gateway_duration_seconds",
		Help:    "Duration of outbound payment gateway calls",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"gateway", "operation"})

	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookcore_webhooks_received_total",
		Help: "Total gateway webhooks received by mapped outcome",
	}, []string{"gateway", "outcome"}) // created, updated, manual_review, rejected

	FraudRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookcore_fraud_rejections_total",
		Help: "Total payment initiations rejected by the fraud check",
	}, []string{"rule"})

	RefundsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookcore_refunds_issued_total",
		Help: "Total refunds issued by gateway",
	}, []string{"gateway"})

	// Event bus
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookcore_events_published_total",
		Help: "Total domain events published",
	}, []string{"type"})

	EventHandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookcore_event_handler_errors_total",
		Help: "Total errors returned by event subscribers",
	}, []string{"type"})

	EventHistorySize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bookcore_event_history_entries",
		Help: "Current number of retained domain events in the bus history",
	})

	// Cache
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookcore_cache_hits_total",
		Help: "Total cache hits by namespace",
	}, []string{"namespace"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookcore_cache_misses_total",
		Help: "Total cache misses by namespace",
	}, []string{"namespace"})

	// Notifications
	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookcore_notifications_sent_total",
		Help: "Total notifications sent by channel and outcome",
	}, []string{"channel", "outcome"})

	// HTTP API
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookcore_api_requests_total",
		Help: "Total API requests",
	}, []string{"method", "endpoint", "status_code"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bookcore_api_request_duration_seconds",
		Help:    "API request duration in seconds",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "endpoint"})

	// Database
	DBQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bookcore_db_query_duration_seconds",
		Help:    "Duration of database queries in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	DBQueryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookcore_db_query_errors_total",
		Help: "Total database query errors",
	}, []string{"operation", "table"})
)

// RecordAPIRequest records one completed HTTP request.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordDBQuery records one database query with its duration and outcome.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}
