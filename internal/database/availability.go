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
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openvoyage/bookcore/internal/metrics"
	"github.com/openvoyage/bookcore/internal/models"
)

const slotColumns = `id, tour_id, date, start_time, end_time,
	total_capacity, booked_spaces, reserved_spaces, available_spaces, status,
	base_price, currency, price_multiplier, dynamic_price,
	booking_deadline_hours, cancellation_deadline_hours, created_at, updated_at`

// InsertSlot creates an availability slot. Returns ErrSlotConflict when a slot
// already exists for the same tour, date, and start time.
func (db *DB) InsertSlot(ctx context.Context, slot *models.AvailabilitySlot) error {
	start := time.Now()

	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM availability_slots WHERE tour_id = ? AND date = ? AND start_time = ?)`,
		slot.TourID, slot.Date, slot.StartTime).Scan(&exists)
	if err != nil {
		metrics.RecordDBQuery("insert", "availability_slots", time.Since(start), err)
		return fmt.Errorf("check slot existence: %w", err)
	}
	if exists {
		return ErrSlotConflict
	}

	_, err = db.conn.ExecContext(ctx, `INSERT INTO availability_slots (`+slotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		slot.ID, slot.TourID, slot.Date, slot.StartTime, slot.EndTime,
		slot.TotalCapacity, slot.BookedSpaces, slot.ReservedSpaces, slot.AvailableSpaces, string(slot.Status),
		slot.BasePrice, slot.Currency, slot.PriceMultiplier, slot.DynamicPrice,
		slot.BookingDeadlineHours, slot.CancellationDeadlineHours, slot.CreatedAt, slot.UpdatedAt)
	metrics.RecordDBQuery("insert", "availability_slots", time.Since(start), err)
	if err != nil {
		// Two concurrent creations can both pass the existence check; the
		// UNIQUE (tour_id, date, start_time) constraint decides the loser.
		if isUniqueViolation(err) {
			return ErrSlotConflict
		}
		return fmt.Errorf("insert slot: %w", err)
	}
	return nil
}

// GetSlot fetches one slot by ID.
func (db *DB) GetSlot(ctx context.Context, id uuid.UUID) (*models.AvailabilitySlot, error) {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+slotColumns+` FROM availability_slots WHERE id = ?`, id)
	slot, err := scanSlot(row)
	metrics.RecordDBQuery("select", "availability_slots", time.Since(start), err)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get slot %s: %w", id, err)
	}
	return slot, nil
}

// GetSlotByTourDate fetches the slot for a tour on a given date and start
// time. Used by the recurring expander for idempotency checks.
func (db *DB) GetSlotByTourDate(ctx context.Context, tourID string, date time.Time, startTime string) (*models.AvailabilitySlot, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+slotColumns+` FROM availability_slots WHERE tour_id = ? AND date = ? AND start_time = ?`,
		tourID, date, startTime)
	slot, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get slot for tour %s on %s: %w", tourID, date.Format("2006-01-02"), err)
	}
	return slot, nil
}

// SearchSlots returns slots matching the filter, ordered by date then start
// time. Zero-valued filter fields are ignored.
func (db *DB) SearchSlots(ctx context.Context, filter models.SlotFilter) ([]models.AvailabilitySlot, error) {
	query := `SELECT ` + slotColumns + ` FROM availability_slots WHERE 1=1`
	var args []interface{}

	if filter.TourID != "" {
		query += ` AND tour_id = ?`
		args = append(args, filter.TourID)
	}
	if !filter.DateFrom.IsZero() {
		query += ` AND date >= ?`
		args = append(args, filter.DateFrom)
	}
	if !filter.DateTo.IsZero() {
		query += ` AND date <= ?`
		args = append(args, filter.DateTo)
	}
	if filter.MinAvailableSpaces > 0 {
		query += ` AND available_spaces >= ?`
		args = append(args, filter.MinAvailableSpaces)
	}
	if filter.MinPrice > 0 {
		query += ` AND COALESCE(dynamic_price, base_price) >= ?`
		args = append(args, filter.MinPrice)
	}
	if filter.MaxPrice > 0 {
		query += ` AND COALESCE(dynamic_price, base_price) <= ?`
		args = append(args, filter.MaxPrice)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY date, start_time`

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	metrics.RecordDBQuery("select", "availability_slots", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("search slots: %w", err)
	}
	defer closeQuietly(rows)

	var slots []models.AvailabilitySlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, *slot)
	}
	return slots, rows.Err()
}

// AdjustCapacity atomically moves spaces between the booked, reserved, and
// available counters of a slot. Deltas may be negative (release). The UPDATE
// carries the capacity guard in its WHERE clause, so two concurrent bookings
// can never both take the last seat: the loser matches zero rows and gets
// ErrCapacityExceeded.
func (db *DB) AdjustCapacity(ctx context.Context, slotID uuid.UUID, bookedDelta, reservedDelta int) error {
	start := time.Now()
	res, err := db.conn.ExecContext(ctx, `UPDATE availability_slots
		SET booked_spaces = booked_spaces + ?,
		    reserved_spaces = reserved_spaces + ?,
		    available_spaces = total_capacity - (booked_spaces + ?) - (reserved_spaces + ?),
		    status = CASE WHEN total_capacity - (booked_spaces + ?) - (reserved_spaces + ?) <= 0
		                  THEN 'booked' ELSE 'available' END,
		    updated_at = ?
		WHERE id = ?
		  AND booked_spaces + ? >= 0
		  AND reserved_spaces + ? >= 0
		  AND total_capacity - (booked_spaces + ?) - (reserved_spaces + ?) >= 0
		  AND status IN ('available', 'booked')`,
		bookedDelta, reservedDelta,
		bookedDelta, reservedDelta,
		bookedDelta, reservedDelta,
		time.Now().UTC(),
		slotID,
		bookedDelta, reservedDelta,
		bookedDelta, reservedDelta)
	metrics.RecordDBQuery("update", "availability_slots", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("adjust capacity for slot %s: %w", slotID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("adjust capacity rows affected: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing slot from a failed guard.
		if _, getErr := db.GetSlot(ctx, slotID); getErr != nil {
			return getErr
		}
		metrics.CapacityRejections.Inc()
		return ErrCapacityExceeded
	}
	return nil
}

// UpdateSlotPricing sets the multiplier and dynamic price of a slot.
func (db *DB) UpdateSlotPricing(ctx context.Context, slotID uuid.UUID, multiplier float64, dynamicPrice *int64) error {
	start := time.Now()
	res, err := db.conn.ExecContext(ctx, `UPDATE availability_slots
		SET price_multiplier = ?, dynamic_price = ?, updated_at = ?
		WHERE id = ?`,
		multiplier, dynamicPrice, time.Now().UTC(), slotID)
	metrics.RecordDBQuery("update", "availability_slots", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("update slot pricing: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSlotStatus sets the slot status (e.g. maintenance).
func (db *DB) UpdateSlotStatus(ctx context.Context, slotID uuid.UUID, status models.SlotStatus) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE availability_slots SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), slotID)
	if err != nil {
		return fmt.Errorf("update slot status: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertBlock records a date-range availability block.
func (db *DB) InsertBlock(ctx context.Context, block *models.AvailabilityBlock) error {
	_, err := db.conn.ExecContext(ctx, `INSERT INTO availability_blocks
		(id, tour_id, start_date, end_date, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		block.ID, block.TourID, block.StartDate, block.EndDate, block.Reason, block.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert availability block: %w", err)
	}
	return nil
}

// DeleteBlock removes a block by ID.
func (db *DB) DeleteBlock(ctx context.Context, id uuid.UUID) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM availability_blocks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete availability block: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBlocks returns blocks for a tour overlapping [from, to].
func (db *DB) ListBlocks(ctx context.Context, tourID string, from, to time.Time) ([]models.AvailabilityBlock, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, tour_id, start_date, end_date, reason, created_at
		FROM availability_blocks
		WHERE tour_id = ? AND start_date <= ? AND end_date >= ?
		ORDER BY start_date`,
		tourID, to, from)
	if err != nil {
		return nil, fmt.Errorf("list availability blocks: %w", err)
	}
	defer closeQuietly(rows)

	var blocks []models.AvailabilityBlock
	for rows.Next() {
		var b models.AvailabilityBlock
		if err := rows.Scan(&b.ID, &b.TourID, &b.StartDate, &b.EndDate, &b.Reason, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan availability block: %w", err)
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// InsertRecurring stores a weekly availability template.
func (db *DB) InsertRecurring(ctx context.Context, r *models.RecurringAvailability) error {
	_, err := db.conn.ExecContext(ctx, `INSERT INTO recurring_availability
		(id, tour_id, days_of_week, start_time, end_time, capacity, base_price, currency, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TourID, encodeWeekdays(r.DaysOfWeek), r.StartTime, r.EndTime,
		r.Capacity, r.BasePrice, r.Currency, r.Active, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert recurring availability: %w", err)
	}
	return nil
}

// ListActiveRecurring returns all active weekly templates, optionally scoped
// to one tour.
func (db *DB) ListActiveRecurring(ctx context.Context, tourID string) ([]models.RecurringAvailability, error) {
	query := `SELECT id, tour_id, days_of_week, start_time, end_time, capacity, base_price, currency, active, created_at
		FROM recurring_availability WHERE active = true`
	var args []interface{}
	if tourID != "" {
		query += ` AND tour_id = ?`
		args = append(args, tourID)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recurring availability: %w", err)
	}
	defer closeQuietly(rows)

	var templates []models.RecurringAvailability
	for rows.Next() {
		var r models.RecurringAvailability
		var days string
		if err := rows.Scan(&r.ID, &r.TourID, &days, &r.StartTime, &r.EndTime,
			&r.Capacity, &r.BasePrice, &r.Currency, &r.Active, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan recurring availability: %w", err)
		}
		r.DaysOfWeek = decodeWeekdays(days)
		templates = append(templates, r)
	}
	return templates, rows.Err()
}

// DeactivateRecurring turns off a weekly template without deleting it.
func (db *DB) DeactivateRecurring(ctx context.Context, id uuid.UUID) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE recurring_availability SET active = false WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate recurring availability: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// TourStats aggregates slot occupancy and price range for one tour.
func (db *DB) TourStats(ctx context.Context, tourID string) (*models.AvailabilityStats, error) {
	stats := &models.AvailabilityStats{
		TourID:        tourID,
		SlotsByStatus: make(map[models.SlotStatus]int),
		GeneratedAt:   time.Now().UTC(),
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM availability_slots WHERE tour_id = ? GROUP BY status`, tourID)
	if err != nil {
		return nil, fmt.Errorf("tour stats by status: %w", err)
	}
	defer closeQuietly(rows)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.SlotsByStatus[models.SlotStatus(status)] = count
		stats.TotalSlots += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var occupied, capacity int64
	err = db.conn.QueryRowContext(ctx, `SELECT
			COALESCE(SUM(booked_spaces + reserved_spaces), 0),
			COALESCE(SUM(total_capacity), 0),
			COALESCE(MIN(COALESCE(dynamic_price, base_price)), 0),
			COALESCE(MAX(COALESCE(dynamic_price, base_price)), 0)
		FROM availability_slots WHERE tour_id = ?`, tourID).
		Scan(&occupied, &capacity, &stats.MinPrice, &stats.MaxPrice)
	if err != nil {
		return nil, fmt.Errorf("tour stats aggregates: %w", err)
	}
	if capacity > 0 {
		stats.OccupancyRate = float64(occupied) / float64(capacity) * 100.0
	}
	return stats, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSlot(row rowScanner) (*models.AvailabilitySlot, error) {
	var s models.AvailabilitySlot
	var status string
	err := row.Scan(&s.ID, &s.TourID, &s.Date, &s.StartTime, &s.EndTime,
		&s.TotalCapacity, &s.BookedSpaces, &s.ReservedSpaces, &s.AvailableSpaces, &status,
		&s.BasePrice, &s.Currency, &s.PriceMultiplier, &s.DynamicPrice,
		&s.BookingDeadlineHours, &s.CancellationDeadlineHours, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Status = models.SlotStatus(status)
	return &s, nil
}

// encodeWeekdays serializes weekdays as a comma-separated list ("1,3,5").
func encodeWeekdays(days []time.Weekday) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, ",")
}

func decodeWeekdays(encoded string) []time.Weekday {
	if encoded == "" {
		return nil
	}
	var days []time.Weekday
	for _, part := range strings.Split(encoded, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n > 6 {
			continue
		}
		days = append(days, time.Weekday(n))
	}
	return days
}
