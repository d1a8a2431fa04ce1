// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openvoyage/bookcore/internal/metrics"
	"github.com/openvoyage/bookcore/internal/models"
)

const bookingColumns = `id, tour_id, tour_date, slot_id, status,
	contact_name, contact_email, contact_phone, participant_count,
	price_per_person, subtotal, tax_amount, discount_amount, total_amount, currency, discount_code,
	payment_status, payment_deadline,
	refund_amount, refund_status, cancel_reason, cancelled_by, cancelled_at,
	special_requests, dietary_notes, mobility_notes,
	confirmation_code, created_at, updated_at`

// InsertBooking persists a booking and its participants in one transaction.
// Returns ErrDuplicateBooking when a non-cancelled booking already exists for
// the same contact email, tour, and date.
func (db *DB) InsertBooking(ctx context.Context, booking *models.Booking) error {
	start := time.Now()
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	var exists bool
	err = tx.QueryRowContext(ctx, `SELECT EXISTS(
		SELECT 1 FROM bookings
		WHERE contact_email = ? AND tour_id = ? AND tour_date = ? AND status != 'cancelled')`,
		booking.ContactEmail, booking.TourID, booking.TourDate).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check duplicate booking: %w", err)
	}
	if exists {
		return ErrDuplicateBooking
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO bookings (`+bookingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		booking.ID, booking.TourID, booking.TourDate, booking.SlotID, string(booking.Status),
		booking.ContactName, booking.ContactEmail, booking.ContactPhone, booking.ParticipantCount,
		booking.PricePerPerson, booking.Subtotal, booking.TaxAmount, booking.DiscountAmount,
		booking.TotalAmount, booking.Currency, nullIfEmpty(booking.DiscountCode),
		string(booking.PaymentStatus), booking.PaymentDeadline,
		nullIfZero(booking.RefundAmount), nullIfEmpty(string(booking.RefundStatus)),
		nullIfEmpty(booking.CancelReason), nullIfEmpty(booking.CancelledBy), booking.CancelledAt,
		nullIfEmpty(booking.SpecialRequests), nullIfEmpty(booking.DietaryNotes), nullIfEmpty(booking.MobilityNotes),
		booking.ConfirmationCode, booking.CreatedAt, booking.UpdatedAt)
	if err != nil {
		metrics.RecordDBQuery("insert", "bookings", time.Since(start), err)
		return fmt.Errorf("insert booking: %w", err)
	}

	for i := range booking.Participants {
		p := &booking.Participants[i]
		_, err = tx.ExecContext(ctx, `INSERT INTO booking_participants
			(id, booking_id, full_name, email, age, status) VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, booking.ID, p.FullName, nullIfEmpty(p.Email), nullIfZeroInt(p.Age), string(p.Status))
		if err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}

	err = tx.Commit()
	metrics.RecordDBQuery("insert", "bookings", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("commit booking: %w", err)
	}
	return nil
}

// GetBooking fetches a booking and its participants.
func (db *DB) GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	booking, err := scanBooking(row)
	metrics.RecordDBQuery("select", "bookings", time.Since(start), err)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get booking %s: %w", id, err)
	}

	participants, err := db.listParticipants(ctx, id)
	if err != nil {
		return nil, err
	}
	booking.Participants = participants
	return booking, nil
}

// GetBookingByConfirmationCode fetches a booking by its human-facing code.
func (db *DB) GetBookingByConfirmationCode(ctx context.Context, code string) (*models.Booking, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE confirmation_code = ?`, code)
	booking, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get booking by confirmation code: %w", err)
	}

	participants, err := db.listParticipants(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	booking.Participants = participants
	return booking, nil
}

// UpdateBookingStatus transitions a booking to a new status. The current
// status is checked inside the UPDATE so a concurrent transition cannot slip
// through; an illegal or stale edge returns ErrInvalidTransition.
func (db *DB) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to models.BookingStatus) error {
	if !from.CanTransitionTo(to) {
		return ErrInvalidTransition
	}

	start := time.Now()
	res, err := db.conn.ExecContext(ctx,
		`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), time.Now().UTC(), id, string(from))
	metrics.RecordDBQuery("update", "bookings", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update booking status rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := db.GetBooking(ctx, id); getErr != nil {
			return getErr
		}
		return ErrInvalidTransition
	}

	if to == models.BookingStatusConfirmed || to == models.BookingStatusCancelled {
		pStatus := models.ParticipantStatusConfirmed
		if to == models.BookingStatusCancelled {
			pStatus = models.ParticipantStatusCancelled
		}
		_, err = db.conn.ExecContext(ctx,
			`UPDATE booking_participants SET status = ? WHERE booking_id = ?`,
			string(pStatus), id)
		if err != nil {
			return fmt.Errorf("update participant status: %w", err)
		}
	}
	return nil
}

// RecordCancellation transitions a booking to cancelled and stores the refund
// bookkeeping in the same statement. The status guard works like
// UpdateBookingStatus.
func (db *DB) RecordCancellation(ctx context.Context, id uuid.UUID, from models.BookingStatus,
	refundAmount int64, refundStatus models.RefundState, reason, cancelledBy string) error {
	if !from.CanTransitionTo(models.BookingStatusCancelled) {
		return ErrInvalidTransition
	}

	now := time.Now().UTC()
	res, err := db.conn.ExecContext(ctx, `UPDATE bookings
		SET status = 'cancelled', refund_amount = ?, refund_status = ?,
		    cancel_reason = ?, cancelled_by = ?, cancelled_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		refundAmount, nullIfEmpty(string(refundStatus)), reason, cancelledBy, now, now,
		id, string(from))
	if err != nil {
		return fmt.Errorf("record cancellation: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record cancellation rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := db.GetBooking(ctx, id); getErr != nil {
			return getErr
		}
		return ErrInvalidTransition
	}

	_, err = db.conn.ExecContext(ctx,
		`UPDATE booking_participants SET status = 'cancelled' WHERE booking_id = ?`, id)
	if err != nil {
		return fmt.Errorf("cancel participants: %w", err)
	}
	return nil
}

// UpdateBookingPaymentState sets the payment-side state on a booking.
func (db *DB) UpdateBookingPaymentState(ctx context.Context, id uuid.UUID, state models.PaymentState) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE bookings SET payment_status = ?, updated_at = ? WHERE id = ?`,
		string(state), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update booking payment state: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateBookingRefundState sets the refund-side state on a booking.
func (db *DB) UpdateBookingRefundState(ctx context.Context, id uuid.UUID, state models.RefundState) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE bookings SET refund_status = ?, updated_at = ? WHERE id = ?`,
		string(state), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update booking refund state: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateBookingNotes updates the non-financial note fields.
func (db *DB) UpdateBookingNotes(ctx context.Context, id uuid.UUID, special, dietary, mobility string) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE bookings
		SET special_requests = ?, dietary_notes = ?, mobility_notes = ?, updated_at = ?
		WHERE id = ?`,
		nullIfEmpty(special), nullIfEmpty(dietary), nullIfEmpty(mobility), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update booking notes: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBookings returns bookings matching the filter plus the total count for
// pagination, ordered by creation time descending. Participants are not
// loaded in list views.
func (db *DB) ListBookings(ctx context.Context, filter models.BookingFilter, limit, offset int) ([]models.Booking, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}

	if filter.TourID != "" {
		where += ` AND tour_id = ?`
		args = append(args, filter.TourID)
	}
	if filter.ContactEmail != "" {
		where += ` AND contact_email = ?`
		args = append(args, filter.ContactEmail)
	}
	if filter.Status != "" {
		where += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.PaymentStatus != "" {
		where += ` AND payment_status = ?`
		args = append(args, string(filter.PaymentStatus))
	}
	if !filter.DateFrom.IsZero() {
		where += ` AND tour_date >= ?`
		args = append(args, filter.DateFrom)
	}
	if !filter.DateTo.IsZero() {
		where += ` AND tour_date <= ?`
		args = append(args, filter.DateTo)
	}
	if filter.MinTotal > 0 {
		where += ` AND total_amount >= ?`
		args = append(args, filter.MinTotal)
	}
	if filter.MaxTotal > 0 {
		where += ` AND total_amount <= ?`
		args = append(args, filter.MaxTotal)
	}

	var total int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count bookings: %w", err)
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings` + where + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	metrics.RecordDBQuery("select", "bookings", time.Since(start), err)
	if err != nil {
		return nil, 0, fmt.Errorf("list bookings: %w", err)
	}
	defer closeQuietly(rows)

	var bookings []models.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, *booking)
	}
	return bookings, total, rows.Err()
}

// ListOverduePending returns pending_payment bookings whose payment deadline
// has passed, for the deadline sweeper.
func (db *DB) ListOverduePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE status = 'pending_payment' AND payment_deadline < ?
		ORDER BY payment_deadline LIMIT ?`,
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list overdue pending bookings: %w", err)
	}
	defer closeQuietly(rows)

	var bookings []models.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan overdue booking: %w", err)
		}
		bookings = append(bookings, *booking)
	}
	return bookings, rows.Err()
}

func (db *DB) listParticipants(ctx context.Context, bookingID uuid.UUID) ([]models.BookingParticipant, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, booking_id, full_name, email, age, status FROM booking_participants WHERE booking_id = ?`,
		bookingID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer closeQuietly(rows)

	var participants []models.BookingParticipant
	for rows.Next() {
		var p models.BookingParticipant
		var email sql.NullString
		var age sql.NullInt64
		var status string
		if err := rows.Scan(&p.ID, &p.BookingID, &p.FullName, &email, &age, &status); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		p.Email = email.String
		p.Age = int(age.Int64)
		p.Status = models.ParticipantStatus(status)
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var status, paymentStatus string
	var discountCode, refundStatus, cancelReason, cancelledBy sql.NullString
	var special, dietary, mobility sql.NullString
	var refundAmount sql.NullInt64

	err := row.Scan(&b.ID, &b.TourID, &b.TourDate, &b.SlotID, &status,
		&b.ContactName, &b.ContactEmail, &b.ContactPhone, &b.ParticipantCount,
		&b.PricePerPerson, &b.Subtotal, &b.TaxAmount, &b.DiscountAmount,
		&b.TotalAmount, &b.Currency, &discountCode,
		&paymentStatus, &b.PaymentDeadline,
		&refundAmount, &refundStatus, &cancelReason, &cancelledBy, &b.CancelledAt,
		&special, &dietary, &mobility,
		&b.ConfirmationCode, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}

	b.Status = models.BookingStatus(status)
	b.PaymentStatus = models.PaymentState(paymentStatus)
	b.DiscountCode = discountCode.String
	b.RefundAmount = refundAmount.Int64
	b.RefundStatus = models.RefundState(refundStatus.String)
	b.CancelReason = cancelReason.String
	b.CancelledBy = cancelledBy.String
	b.SpecialRequests = special.String
	b.DietaryNotes = dietary.String
	b.MobilityNotes = mobility.String
	return &b, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullIfZero(n int64) interface{} {
	if n == 0 {
		return nil
	}
	return n
}

func nullIfZeroInt(n int) interface{} {
	if n == 0 {
		return nil
	}
	return n
}
