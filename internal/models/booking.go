// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package models

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

// Legal edges: pending_payment -> confirmed -> completed,
// pending_payment -> cancelled, confirmed -> cancelled.
// No edge leaves cancelled or completed.
const (
	BookingStatusPendingPayment BookingStatus = "pending_payment"
	BookingStatusConfirmed      BookingStatus = "confirmed"
	BookingStatusCancelled      BookingStatus = "cancelled"
	BookingStatusCompleted      BookingStatus = "completed"
)

// legalTransitions is the closed set of allowed booking status edges.
var legalTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPendingPayment: {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed:      {BookingStatusCompleted, BookingStatusCancelled},
	BookingStatusCancelled:      {},
	BookingStatusCompleted:      {},
}

// CanTransitionTo reports whether moving from s to target is a legal edge.
func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, t := range legalTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s BookingStatus) IsTerminal() bool {
	return len(legalTransitions[s]) == 0
}

// PaymentState is the payment-side state carried on a booking.
type PaymentState string

const (
	PaymentStatePending   PaymentState = "pending"
	PaymentStateCompleted PaymentState = "completed"
	PaymentStateFailed    PaymentState = "failed"
	PaymentStateRefunded  PaymentState = "refunded"
)

// RefundState tracks the refund owed after a cancellation.
type RefundState string

const (
	RefundStateNone      RefundState = ""
	RefundStatePending   RefundState = "pending"
	RefundStateCompleted RefundState = "completed"
	RefundStateFailed    RefundState = "failed"
)

// ParticipantStatus mirrors the booking lifecycle on individual participants.
type ParticipantStatus string

const (
	ParticipantStatusPending   ParticipantStatus = "pending"
	ParticipantStatusConfirmed ParticipantStatus = "confirmed"
	ParticipantStatusCancelled ParticipantStatus = "cancelled"
)

// Booking is the aggregate root of one reservation: the booking row plus its
// participants form a single consistency boundary. Bookings are never deleted
// (audit requirement); cancellation is a status transition.
type Booking struct {
	ID       uuid.UUID     `json:"id"`
	TourID   string        `json:"tour_id"`
	TourDate time.Time     `json:"tour_date"`
	SlotID   uuid.UUID     `json:"slot_id"`
	Status   BookingStatus `json:"status"`

	// Contact. The original stored this as a JSON blob column; it is modeled
	// as structured fields decoded at the repository boundary.
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`

	Participants     []BookingParticipant `json:"participants,omitempty"`
	ParticipantCount int                  `json:"participant_count"`

	// Pricing breakdown, minor currency units.
	PricePerPerson int64  `json:"price_per_person"`
	Subtotal       int64  `json:"subtotal"`
	TaxAmount      int64  `json:"tax_amount"`
	DiscountAmount int64  `json:"discount_amount"`
	TotalAmount    int64  `json:"total_amount"`
	Currency       string `json:"currency"`
	DiscountCode   string `json:"discount_code,omitempty"`

	PaymentStatus   PaymentState `json:"payment_status"`
	PaymentDeadline time.Time    `json:"payment_deadline"`

	// Refund bookkeeping, populated on cancellation.
	RefundAmount int64       `json:"refund_amount,omitempty"`
	RefundStatus RefundState `json:"refund_status,omitempty"`
	CancelReason string      `json:"cancel_reason,omitempty"`
	CancelledBy  string      `json:"cancelled_by,omitempty"`
	CancelledAt  *time.Time  `json:"cancelled_at,omitempty"`

	// Non-financial notes, mutable while the booking is open.
	SpecialRequests string `json:"special_requests,omitempty"`
	DietaryNotes    string `json:"dietary_notes,omitempty"`
	MobilityNotes   string `json:"mobility_notes,omitempty"`

	ConfirmationCode string    `json:"confirmation_code"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// BookingParticipant is one traveller on a booking.
type BookingParticipant struct {
	ID        uuid.UUID         `json:"id"`
	BookingID uuid.UUID         `json:"booking_id"`
	FullName  string            `json:"full_name"`
	Email     string            `json:"email,omitempty"`
	Age       int               `json:"age,omitempty"`
	Status    ParticipantStatus `json:"status"`
}

// BookingFilter narrows booking list queries. Zero values mean "no constraint".
type BookingFilter struct {
	TourID        string
	ContactEmail  string
	Status        BookingStatus
	PaymentStatus PaymentState
	DateFrom      time.Time
	DateTo        time.Time
	MinTotal      int64
	MaxTotal      int64
}

// DiscountCode is a promotional code with a validity window and a use cap.
type DiscountCode struct {
	ID         uuid.UUID `json:"id"`
	Code       string    `json:"code"`
	PercentOff int       `json:"percent_off"` // 0 when AmountOff is used
	AmountOff  int64     `json:"amount_off"`  // minor units, 0 when PercentOff is used
	ValidFrom  time.Time `json:"valid_from"`
	ValidUntil time.Time `json:"valid_until"`
	MaxUses    int       `json:"max_uses"` // 0 = unlimited
	UsedCount  int       `json:"used_count"`
	Active     bool      `json:"active"`
}

// Usable reports whether the code can be applied at the given instant.
func (d *DiscountCode) Usable(now time.Time) bool {
	if !d.Active {
		return false
	}
	if now.Before(d.ValidFrom) || now.After(d.ValidUntil) {
		return false
	}
	if d.MaxUses > 0 && d.UsedCount >= d.MaxUses {
		return false
	}
	return true
}

// DiscountFor returns the discount in minor units for the given subtotal.
func (d *DiscountCode) DiscountFor(subtotal int64) int64 {
	if d.PercentOff > 0 {
		return subtotal * int64(d.PercentOff) / 100
	}
	if d.AmountOff > subtotal {
		return subtotal
	}
	return d.AmountOff
}

// RefundPolicy maps how far before the tour a cancellation happens to the
// refund percentage owed. Policies for a tour are scanned most-restrictive
// first (largest DaysBeforeTour first); the first policy whose
// DaysBeforeTour*24 <= hours-until-tour wins. No match means no refund and
// the cancellation is rejected.
type RefundPolicy struct {
	ID             uuid.UUID `json:"id"`
	TourID         string    `json:"tour_id"`
	DaysBeforeTour int       `json:"days_before_tour"`
	RefundPercent  int       `json:"refund_percent"`
}
