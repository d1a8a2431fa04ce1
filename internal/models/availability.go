// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package models

import (
	"time"

	"github.com/google/uuid"
)

// SlotStatus describes the bookability of an availability slot.
type SlotStatus string

// Slot status values. Slots are never hard-deleted, only status-transitioned.
const (
	SlotStatusAvailable   SlotStatus = "available"
	SlotStatusBooked      SlotStatus = "booked"
	SlotStatusUnavailable SlotStatus = "unavailable"
	SlotStatusMaintenance SlotStatus = "maintenance"
)

// AvailabilitySlot is one bookable date/time instance of a tour with finite
// capacity. Capacity is split into booked (confirmed) and reserved (held
// pending payment) spaces; AvailableSpaces is always derived as
// max(0, total - booked - reserved) and never goes negative.
//
// All capacity mutations go through the availability service's
// UpdateAvailability, which performs a single conditional UPDATE so two
// concurrent bookings can never both take the last seat.
type AvailabilitySlot struct {
	ID              uuid.UUID  `json:"id"`
	TourID          string     `json:"tour_id"`
	Date            time.Time  `json:"date"`
	StartTime       string     `json:"start_time,omitempty"` // HH:MM, empty for all-day tours
	EndTime         string     `json:"end_time,omitempty"`
	TotalCapacity   int        `json:"total_capacity"`
	BookedSpaces    int        `json:"booked_spaces"`
	ReservedSpaces  int        `json:"reserved_spaces"`
	AvailableSpaces int        `json:"available_spaces"`
	Status          SlotStatus `json:"status"`

	// Pricing. Amounts are minor currency units (e.g. cents).
	BasePrice       int64   `json:"base_price"`
	Currency        string  `json:"currency"`
	PriceMultiplier float64 `json:"price_multiplier"`
	DynamicPrice    *int64  `json:"dynamic_price,omitempty"`

	// Deadlines, in hours before the tour date.
	BookingDeadlineHours      int `json:"booking_deadline_hours"`
	CancellationDeadlineHours int `json:"cancellation_deadline_hours"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EffectivePrice returns the dynamic price when set, otherwise the base price.
func (s *AvailabilitySlot) EffectivePrice() int64 {
	if s.DynamicPrice != nil {
		return *s.DynamicPrice
	}
	return s.BasePrice
}

// OccupancyPercent returns booked+reserved capacity as a percentage of total.
func (s *AvailabilitySlot) OccupancyPercent() float64 {
	if s.TotalCapacity <= 0 {
		return 0
	}
	return float64(s.BookedSpaces+s.ReservedSpaces) / float64(s.TotalCapacity) * 100.0
}

// RecurringAvailability is a template that expands into concrete slots on a
// weekly cadence. Expansion is performed by the recurring expander job and is
// idempotent: an existing slot for the same tour+date is left untouched.
type RecurringAvailability struct {
	ID         uuid.UUID      `json:"id"`
	TourID     string         `json:"tour_id"`
	DaysOfWeek []time.Weekday `json:"days_of_week"` // 0=Sunday .. 6=Saturday
	StartTime  string         `json:"start_time,omitempty"`
	EndTime    string         `json:"end_time,omitempty"`
	Capacity   int            `json:"capacity"`
	BasePrice  int64          `json:"base_price"`
	Currency   string         `json:"currency"`
	Active     bool           `json:"active"`
	CreatedAt  time.Time      `json:"created_at"`
}

// MatchesDate reports whether the template produces a slot on the given date.
func (r *RecurringAvailability) MatchesDate(date time.Time) bool {
	if !r.Active {
		return false
	}
	wd := date.Weekday()
	for _, d := range r.DaysOfWeek {
		if d == wd {
			return true
		}
	}
	return false
}

// AvailabilityBlock is a date-range exclusion (maintenance, weather, guide
// unavailability) that suppresses bookability without touching slot counters.
type AvailabilityBlock struct {
	ID        uuid.UUID `json:"id"`
	TourID    string    `json:"tour_id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Covers reports whether the block spans the given date (inclusive bounds).
func (b *AvailabilityBlock) Covers(date time.Time) bool {
	return !date.Before(b.StartDate) && !date.After(b.EndDate)
}

// PricingRuleKind selects the condition a dynamic pricing rule evaluates.
type PricingRuleKind string

const (
	// PricingRuleDaysUntilTour matches when the tour is at most Threshold days away.
	PricingRuleDaysUntilTour PricingRuleKind = "days_until_tour"
	// PricingRuleOccupancy matches when occupancy is at least Threshold percent.
	PricingRuleOccupancy PricingRuleKind = "occupancy"
)

// PricingRule is a priority-ordered condition that overrides a slot's base
// price. Rules are evaluated highest priority first; the first match wins.
type PricingRule struct {
	Priority   int             `json:"priority"`
	Kind       PricingRuleKind `json:"kind" validate:"oneof=days_until_tour occupancy"`
	Threshold  float64         `json:"threshold"`
	Multiplier float64         `json:"multiplier" validate:"gt=0"`
}

// CalendarDay is one day in the aggregated calendar view, combining concrete
// slots, blocks, and recurring templates overlapping the window.
type CalendarDay struct {
	Date        time.Time          `json:"date"`
	Slots       []AvailabilitySlot `json:"slots,omitempty"`
	Blocked     bool               `json:"blocked"`
	BlockReason string             `json:"block_reason,omitempty"`
	Recurring   bool               `json:"recurring"` // a template would produce a slot here
	Bookable    bool               `json:"bookable"`
}

// AvailabilityStats is the aggregate occupancy view for a tour, used for
// reporting rather than live decisioning.
type AvailabilityStats struct {
	TourID        string             `json:"tour_id"`
	TotalSlots    int                `json:"total_slots"`
	SlotsByStatus map[SlotStatus]int `json:"slots_by_status"`
	OccupancyRate float64            `json:"occupancy_rate"` // percent across all slots
	MinPrice      int64              `json:"min_price"`
	MaxPrice      int64              `json:"max_price"`
	GeneratedAt   time.Time          `json:"generated_at"`
}

// SlotFilter narrows availability searches. Zero values mean "no constraint".
type SlotFilter struct {
	TourID             string
	DateFrom           time.Time
	DateTo             time.Time
	MinAvailableSpaces int
	MinPrice           int64
	MaxPrice           int64
	Status             SlotStatus
}
