// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

// Package booking implements the reservation state machine:
//
//	pending_payment -> confirmed -> completed
//	pending_payment -> cancelled
//	confirmed -> cancelled
//
// Nothing leaves cancelled or completed. Create reserves slot capacity
// atomically, so a pending_payment booking is a hard hold: two concurrent
// requests can never both take the last seat, and expiry or cancellation
// releases the hold through the same single mutation point.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openvoyage/bookcore/internal/availability"
	"github.com/openvoyage/bookcore/internal/cache"
	"github.com/openvoyage/bookcore/internal/config"
	"github.com/openvoyage/bookcore/internal/database"
	"github.com/openvoyage/bookcore/internal/eventbus"
	"github.com/openvoyage/bookcore/internal/logging"
	"github.com/openvoyage/bookcore/internal/metrics"
	"github.com/openvoyage/bookcore/internal/models"
	"github.com/openvoyage/bookcore/internal/notifications"
	"github.com/openvoyage/bookcore/internal/validation"
)

const cacheNamespaceList = "bookings:list"

// Service coordinates booking lifecycle against availability, discounts,
// refund policies, the event bus, and the notifier.
type Service struct {
	db           *database.DB
	availability *availability.Service
	cache        *cache.Cache
	bus          *eventbus.Bus
	notifier     *notifications.Notifier
	cfg          config.BookingConfig
	cacheCfg     config.CacheConfig

	now func() time.Time
}

// New constructs the booking service. bus and notifier may be nil in tests.
func New(db *database.DB, avail *availability.Service, c *cache.Cache, bus *eventbus.Bus,
	notifier *notifications.Notifier, cfg config.BookingConfig, cacheCfg config.CacheConfig) *Service {
	return &Service{
		db:           db,
		availability: avail,
		cache:        c,
		bus:          bus,
		notifier:     notifier,
		cfg:          cfg,
		cacheCfg:     cacheCfg,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// ParticipantParams is one traveller in a create request.
type ParticipantParams struct {
	FullName string `validate:"required"`
	Email    string `validate:"omitempty,email"`
	Age      int    `validate:"omitempty,gte=0,lte=120"`
}

// CreateParams are the inputs for a new booking.
type CreateParams struct {
	TourID       string              `validate:"required"`
	TourDate     time.Time           `validate:"required"`
	ContactName  string              `validate:"required"`
	ContactEmail string              `validate:"required,email"`
	ContactPhone string              `validate:"required"`
	Participants []ParticipantParams `validate:"required,min=1,max=50,dive"`
	DiscountCode string

	SpecialRequests string
	DietaryNotes    string
	MobilityNotes   string
}

// Create validates the request, reserves slot capacity atomically, applies
// any discount code, computes pricing, and persists the booking in
// pending_payment with a payment deadline. The capacity hold is real from
// this moment: confirmation converts it to booked, cancellation or expiry
// releases it.
func (s *Service) Create(ctx context.Context, params CreateParams) (*models.Booking, error) {
	if verr := validation.ValidateStruct(params); verr != nil {
		return nil, verr
	}

	count := len(params.Participants)
	slot, err := s.resolveSlot(ctx, params.TourID, params.TourDate, count)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var discount *models.DiscountCode
	if params.DiscountCode != "" {
		discount, err = s.db.GetDiscountCode(ctx, params.DiscountCode)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return nil, ErrInvalidDiscountCode
			}
			return nil, err
		}
		if !discount.Usable(now) {
			return nil, ErrInvalidDiscountCode
		}
	}

	pricePerPerson := slot.EffectivePrice()
	subtotal := pricePerPerson * int64(count)
	tax := subtotal * int64(s.cfg.TaxPercent) / 100
	var discountAmount int64
	if discount != nil {
		discountAmount = discount.DiscountFor(subtotal)
	}
	total := subtotal + tax - discountAmount

	// Hold the seats before persisting. The conditional UPDATE is the race
	// arbiter: the loser of a concurrent last-seat contest fails here.
	if err := s.availability.UpdateAvailability(ctx, slot.ID, 0, count); err != nil {
		if errors.Is(err, database.ErrCapacityExceeded) {
			return nil, ErrTourUnavailable
		}
		return nil, err
	}
	release := func() {
		if rerr := s.availability.UpdateAvailability(ctx, slot.ID, 0, -count); rerr != nil {
			logging.Ctx(ctx).Error().Err(rerr).
				Str("slot_id", slot.ID.String()).
				Msg("Failed to release capacity hold after aborted create")
		}
	}

	if discount != nil {
		if err := s.db.ConsumeDiscountCode(ctx, discount.Code); err != nil {
			release()
			if errors.Is(err, database.ErrNotFound) {
				return nil, ErrInvalidDiscountCode
			}
			return nil, err
		}
	}

	booking := &models.Booking{
		ID:               uuid.New(),
		TourID:           params.TourID,
		TourDate:         params.TourDate,
		SlotID:           slot.ID,
		Status:           models.BookingStatusPendingPayment,
		ContactName:      params.ContactName,
		ContactEmail:     strings.ToLower(params.ContactEmail),
		ContactPhone:     params.ContactPhone,
		ParticipantCount: count,
		PricePerPerson:   pricePerPerson,
		Subtotal:         subtotal,
		TaxAmount:        tax,
		DiscountAmount:   discountAmount,
		TotalAmount:      total,
		Currency:         slot.Currency,
		PaymentStatus:    models.PaymentStatePending,
		PaymentDeadline:  now.Add(s.cfg.PaymentDeadline),
		SpecialRequests:  params.SpecialRequests,
		DietaryNotes:     params.DietaryNotes,
		MobilityNotes:    params.MobilityNotes,
		ConfirmationCode: newConfirmationCode(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if discount != nil {
		booking.DiscountCode = discount.Code
	}
	for _, p := range params.Participants {
		booking.Participants = append(booking.Participants, models.BookingParticipant{
			ID:        uuid.New(),
			BookingID: booking.ID,
			FullName:  p.FullName,
			Email:     p.Email,
			Age:       p.Age,
			Status:    models.ParticipantStatusPending,
		})
	}

	if err := s.db.InsertBooking(ctx, booking); err != nil {
		release()
		if discount != nil {
			if derr := s.db.ReleaseDiscountCode(ctx, discount.Code); derr != nil {
				logging.Ctx(ctx).Warn().Err(derr).Msg("Failed to release discount code after aborted create")
			}
		}
		return nil, err
	}

	metrics.BookingsCreated.Inc()
	s.invalidate()
	s.publish(ctx, models.EventBookingCreated, booking.ID.String(), booking)
	s.notify(ctx, booking, notifications.KindBookingConfirmation, nil)

	logging.Ctx(ctx).Info().
		Str("booking_id", booking.ID.String()).
		Str("tour_id", booking.TourID).
		Int("participants", count).
		Int64("total", total).
		Msg("Booking created")
	return booking, nil
}

// Get fetches one booking with its participants.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return s.db.GetBooking(ctx, id)
}

// GetByConfirmationCode fetches a booking by its human-facing code.
func (s *Service) GetByConfirmationCode(ctx context.Context, code string) (*models.Booking, error) {
	return s.db.GetBookingByConfirmationCode(ctx, code)
}

// Cancel cancels a booking and computes the refund owed from the tour's
// refund policies. Policies are scanned most-restrictive first; the first
// policy whose lead time still fits the remaining hours determines the refund
// percentage. No matching policy rejects the cancellation with
// ErrRefundNotAllowed and the booking keeps its prior status.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason, initiatedBy string) (*models.Booking, error) {
	booking, err := s.db.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status == models.BookingStatusCancelled {
		return nil, ErrAlreadyCancelled
	}
	if booking.Status == models.BookingStatusCompleted {
		return nil, fmt.Errorf("cancel completed booking: %w", database.ErrInvalidTransition)
	}

	percent, err := s.refundPercent(ctx, booking)
	if err != nil {
		return nil, err
	}

	refundAmount := booking.TotalAmount * int64(percent) / 100
	refundStatus := models.RefundStateNone
	if booking.PaymentStatus == models.PaymentStateCompleted && refundAmount > 0 {
		refundStatus = models.RefundStatePending
	}

	if err := s.db.RecordCancellation(ctx, id, booking.Status, refundAmount, refundStatus, reason, initiatedBy); err != nil {
		return nil, err
	}

	// Release the capacity this booking held: reserved while pending, booked
	// once confirmed.
	bookedDelta, reservedDelta := 0, -booking.ParticipantCount
	if booking.Status == models.BookingStatusConfirmed {
		bookedDelta, reservedDelta = -booking.ParticipantCount, 0
	}
	if err := s.availability.UpdateAvailability(ctx, booking.SlotID, bookedDelta, reservedDelta); err != nil {
		logging.Ctx(ctx).Error().Err(err).
			Str("booking_id", id.String()).
			Str("slot_id", booking.SlotID.String()).
			Msg("Failed to release capacity after cancellation")
	}

	if booking.DiscountCode != "" && booking.PaymentStatus != models.PaymentStateCompleted {
		if derr := s.db.ReleaseDiscountCode(ctx, booking.DiscountCode); derr != nil {
			logging.Ctx(ctx).Warn().Err(derr).Msg("Failed to release discount code after cancellation")
		}
	}

	booking.Status = models.BookingStatusCancelled
	booking.RefundAmount = refundAmount
	booking.RefundStatus = refundStatus
	booking.CancelReason = reason
	booking.CancelledBy = initiatedBy
	cancelledAt := s.now()
	booking.CancelledAt = &cancelledAt

	metrics.BookingsCancelled.WithLabelValues(initiatedBy).Inc()
	s.invalidate()
	s.publish(ctx, models.EventBookingCancelled, id.String(), booking)
	s.notify(ctx, booking, notifications.KindBookingCancellation, map[string]string{
		"refund_amount": formatMinor(refundAmount),
	})
	return booking, nil
}

// ConfirmPayment transitions a booking to confirmed after a completed
// payment, converting its reserved capacity hold into booked spaces.
func (s *Service) ConfirmPayment(ctx context.Context, id uuid.UUID, paymentID uuid.UUID) (*models.Booking, error) {
	booking, err := s.db.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.db.UpdateBookingStatus(ctx, id, models.BookingStatusPendingPayment, models.BookingStatusConfirmed); err != nil {
		return nil, err
	}
	if err := s.db.UpdateBookingPaymentState(ctx, id, models.PaymentStateCompleted); err != nil {
		return nil, err
	}

	// Reserved -> booked is capacity-neutral; the guard cannot fail on a
	// live slot.
	n := booking.ParticipantCount
	if err := s.availability.UpdateAvailability(ctx, booking.SlotID, n, -n); err != nil {
		logging.Ctx(ctx).Error().Err(err).
			Str("booking_id", id.String()).
			Msg("Failed to convert reserved capacity to booked")
	}

	booking.Status = models.BookingStatusConfirmed
	booking.PaymentStatus = models.PaymentStateCompleted
	for i := range booking.Participants {
		booking.Participants[i].Status = models.ParticipantStatusConfirmed
	}

	metrics.BookingsConfirmed.Inc()
	s.invalidate()
	s.publish(ctx, models.EventBookingConfirmed, id.String(), map[string]string{
		"booking_id": id.String(),
		"payment_id": paymentID.String(),
	})
	s.notify(ctx, booking, notifications.KindBookingConfirmation, nil)
	return booking, nil
}

// UpdateParams are the mutable non-financial fields of an open booking.
type UpdateParams struct {
	SpecialRequests string
	DietaryNotes    string
	MobilityNotes   string
}

// Update mutates the note fields of a booking that is neither completed nor
// cancelled.
func (s *Service) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*models.Booking, error) {
	booking, err := s.db.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status.IsTerminal() {
		return nil, ErrBookingClosed
	}

	if err := s.db.UpdateBookingNotes(ctx, id, params.SpecialRequests, params.DietaryNotes, params.MobilityNotes); err != nil {
		return nil, err
	}

	booking.SpecialRequests = params.SpecialRequests
	booking.DietaryNotes = params.DietaryNotes
	booking.MobilityNotes = params.MobilityNotes
	s.invalidate()
	return booking, nil
}

// List returns bookings matching the filter plus the total for pagination.
// Results are cache-backed with a short TTL and invalidated on every write.
func (s *Service) List(ctx context.Context, filter models.BookingFilter, limit, offset int) ([]models.Booking, int, error) {
	type listKey struct {
		Filter models.BookingFilter
		Limit  int
		Offset int
	}
	type listResult struct {
		Bookings []models.Booking
		Total    int
	}

	key := cache.GenerateKey(cacheNamespaceList, listKey{Filter: filter, Limit: limit, Offset: offset})
	if cached, ok := s.cache.Get(key); ok {
		metrics.CacheHits.WithLabelValues(cacheNamespaceList).Inc()
		result := cached.(listResult)
		return result.Bookings, result.Total, nil
	}
	metrics.CacheMisses.WithLabelValues(cacheNamespaceList).Inc()

	bookings, total, err := s.db.ListBookings(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	s.cache.SetWithTTL(key, listResult{Bookings: bookings, Total: total}, s.cacheCfg.ListTTL)
	return bookings, total, nil
}

// ExpireOverdue cancels pending_payment bookings whose payment deadline has
// passed and releases their capacity holds. Run periodically by the deadline
// sweeper. Returns the number of bookings expired.
func (s *Service) ExpireOverdue(ctx context.Context, batchSize int) (int, error) {
	overdue, err := s.db.ListOverduePending(ctx, s.now(), batchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range overdue {
		b := &overdue[i]
		err := s.db.RecordCancellation(ctx, b.ID, models.BookingStatusPendingPayment,
			0, models.RefundStateNone, "payment deadline expired", "system")
		if errors.Is(err, database.ErrInvalidTransition) {
			// Raced with a concurrent confirmation or cancellation.
			continue
		}
		if err != nil {
			return expired, fmt.Errorf("expire booking %s: %w", b.ID, err)
		}

		if err := s.availability.UpdateAvailability(ctx, b.SlotID, 0, -b.ParticipantCount); err != nil {
			logging.Ctx(ctx).Error().Err(err).
				Str("booking_id", b.ID.String()).
				Msg("Failed to release capacity for expired booking")
		}
		if b.DiscountCode != "" {
			if derr := s.db.ReleaseDiscountCode(ctx, b.DiscountCode); derr != nil {
				logging.Ctx(ctx).Warn().Err(derr).Msg("Failed to release discount code for expired booking")
			}
		}

		expired++
		metrics.BookingsExpired.Inc()
		s.publish(ctx, models.EventBookingExpired, b.ID.String(), map[string]string{
			"booking_id": b.ID.String(),
			"reason":     "payment deadline expired",
		})
		s.notify(ctx, b, notifications.KindBookingExpired, nil)
	}

	if expired > 0 {
		s.invalidate()
		logging.Ctx(ctx).Info().Int("expired", expired).Msg("Overdue pending bookings expired")
	}
	return expired, nil
}

// resolveSlot finds a bookable slot for the tour and date with enough open
// capacity, honoring blocks and the slot's booking deadline.
func (s *Service) resolveSlot(ctx context.Context, tourID string, date time.Time, count int) (*models.AvailabilitySlot, error) {
	blocks, err := s.db.ListBlocks(ctx, tourID, date, date)
	if err != nil {
		return nil, err
	}
	for _, block := range blocks {
		if block.Covers(date) {
			return nil, ErrTourUnavailable
		}
	}

	slots, err := s.db.SearchSlots(ctx, models.SlotFilter{
		TourID:             tourID,
		DateFrom:           date,
		DateTo:             date,
		MinAvailableSpaces: count,
		Status:             models.SlotStatusAvailable,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	for i := range slots {
		slot := &slots[i]
		if slot.BookingDeadlineHours > 0 {
			deadline := slot.Date.Add(-time.Duration(slot.BookingDeadlineHours) * time.Hour)
			if now.After(deadline) {
				continue
			}
		}
		return slot, nil
	}
	return nil, ErrTourUnavailable
}

// refundPercent scans the tour's refund policies most-restrictive first and
// returns the percentage of the first policy whose lead time fits the hours
// remaining before the tour.
func (s *Service) refundPercent(ctx context.Context, booking *models.Booking) (int, error) {
	policies, err := s.db.ListRefundPolicies(ctx, booking.TourID)
	if err != nil {
		return 0, err
	}

	hoursUntilTour := booking.TourDate.Sub(s.now()).Hours()
	for _, policy := range policies {
		if float64(policy.DaysBeforeTour*24) <= hoursUntilTour {
			return policy.RefundPercent, nil
		}
	}
	return 0, ErrRefundNotAllowed
}

func (s *Service) invalidate() {
	s.cache.InvalidatePrefix(cacheNamespaceList)
}

func (s *Service) publish(ctx context.Context, eventType, aggregateID string, payload interface{}) {
	if s.bus == nil {
		return
	}
	event, err := models.NewDomainEvent(eventType, aggregateID, payload)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("event_type", eventType).Msg("Failed to build event")
		return
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("event_type", eventType).Msg("Failed to publish event")
	}
}

func (s *Service) notify(ctx context.Context, booking *models.Booking, kind notifications.Kind, extra map[string]string) {
	if s.notifier == nil {
		return
	}
	data := map[string]string{
		"confirmation_code": booking.ConfirmationCode,
		"tour_id":           booking.TourID,
		"tour_date":         booking.TourDate.Format("2006-01-02"),
		"participants":      strconv.Itoa(booking.ParticipantCount),
		"total":             formatMinor(booking.TotalAmount),
		"currency":          booking.Currency,
	}
	for k, v := range extra {
		data[k] = v
	}
	s.notifier.Send(ctx, notifications.Message{
		To:   booking.ContactEmail,
		Kind: kind,
		Data: data,
	})
}

// newConfirmationCode returns a short human-facing code like "BK-7F3A2C9D".
func newConfirmationCode() string {
	id := uuid.New()
	return "BK-" + strings.ToUpper(id.String()[:8])
}

// formatMinor renders minor currency units as a decimal string.
func formatMinor(amount int64) string {
	return fmt.Sprintf("%d.%02d", amount/100, amount%100)
}
