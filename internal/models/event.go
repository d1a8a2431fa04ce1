// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package models

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Event type constants. Types are dotted so subscribers can match on
// wildcards such as "booking.*" or "*.created".
const (
	EventBookingCreated   = "booking.created"
	EventBookingConfirmed = "booking.confirmed"
	EventBookingCancelled = "booking.cancelled"
	EventBookingExpired   = "booking.expired"

	EventSlotCreated    = "availability.slot_created"
	EventSlotUpdated    = "availability.slot_updated"
	EventSlotBlocked    = "availability.blocked"
	EventPricingApplied = "availability.pricing_applied"

	EventPaymentInitiated = "payment.initiated"
	EventPaymentCompleted = "payment.completed"
	EventPaymentFailed    = "payment.failed"
	EventPaymentRefunded  = "payment.refunded"
	EventPaymentReview    = "payment.manual_review"
)

// DomainEvent is an immutable fact about a state change. The event bus keeps
// a bounded in-memory history for replay; the domain_events table keeps the
// durable audit copy. SQL tables remain the system of record — events exist
// for cross-service side effects, not as authoritative state.
type DomainEvent struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	Data        json.RawMessage `json:"data,omitempty"`
	PublishedAt time.Time       `json:"published_at"`
}

// NewDomainEvent builds an event with a fresh ID and UTC publish time.
// The payload is marshaled immediately so the event is immutable from birth.
func NewDomainEvent(eventType, aggregateID string, payload interface{}) (DomainEvent, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return DomainEvent{}, err
		}
		data = b
	}
	return DomainEvent{
		ID:          uuid.New(),
		Type:        eventType,
		AggregateID: aggregateID,
		Data:        data,
		PublishedAt: time.Now().UTC(),
	}, nil
}
