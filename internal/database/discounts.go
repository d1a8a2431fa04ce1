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

	"github.com/google/uuid"

	"github.com/openvoyage/bookcore/internal/models"
)

// InsertDiscountCode stores a promotional code.
func (db *DB) InsertDiscountCode(ctx context.Context, d *models.DiscountCode) error {
	_, err := db.conn.ExecContext(ctx, `INSERT INTO discount_codes
		(id, code, percent_off, amount_off, valid_from, valid_until, max_uses, used_count, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Code, d.PercentOff, d.AmountOff, d.ValidFrom, d.ValidUntil,
		d.MaxUses, d.UsedCount, d.Active)
	if err != nil {
		return fmt.Errorf("insert discount code: %w", err)
	}
	return nil
}

// GetDiscountCode fetches a code by its string value.
func (db *DB) GetDiscountCode(ctx context.Context, code string) (*models.DiscountCode, error) {
	var d models.DiscountCode
	err := db.conn.QueryRowContext(ctx, `SELECT id, code, percent_off, amount_off,
		valid_from, valid_until, max_uses, used_count, active
		FROM discount_codes WHERE code = ?`, code).
		Scan(&d.ID, &d.Code, &d.PercentOff, &d.AmountOff,
			&d.ValidFrom, &d.ValidUntil, &d.MaxUses, &d.UsedCount, &d.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get discount code %q: %w", code, err)
	}
	return &d, nil
}

// ConsumeDiscountCode increments the use counter, guarded against the use cap
// and the validity window in the same UPDATE. Returns ErrNotFound when the
// code cannot be consumed (missing, inactive, expired, or exhausted).
func (db *DB) ConsumeDiscountCode(ctx context.Context, code string) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE discount_codes
		SET used_count = used_count + 1
		WHERE code = ? AND active = true
		  AND valid_from <= current_timestamp AND valid_until >= current_timestamp
		  AND (max_uses = 0 OR used_count < max_uses)`,
		code)
	if err != nil {
		return fmt.Errorf("consume discount code: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseDiscountCode decrements the use counter when a pending booking that
// consumed the code expires or is cancelled before payment.
func (db *DB) ReleaseDiscountCode(ctx context.Context, code string) error {
	_, err := db.conn.ExecContext(ctx, `UPDATE discount_codes
		SET used_count = CASE WHEN used_count > 0 THEN used_count - 1 ELSE 0 END
		WHERE code = ?`, code)
	if err != nil {
		return fmt.Errorf("release discount code: %w", err)
	}
	return nil
}

// InsertRefundPolicy stores a refund policy tier for a tour.
func (db *DB) InsertRefundPolicy(ctx context.Context, p *models.RefundPolicy) error {
	_, err := db.conn.ExecContext(ctx, `INSERT INTO refund_policies
		(id, tour_id, days_before_tour, refund_percent) VALUES (?, ?, ?, ?)`,
		p.ID, p.TourID, p.DaysBeforeTour, p.RefundPercent)
	if err != nil {
		return fmt.Errorf("insert refund policy: %w", err)
	}
	return nil
}

// ListRefundPolicies returns a tour's refund policies ordered most-restrictive
// first (largest days_before_tour first), the order the booking service scans
// them in.
func (db *DB) ListRefundPolicies(ctx context.Context, tourID string) ([]models.RefundPolicy, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, tour_id, days_before_tour, refund_percent
		FROM refund_policies WHERE tour_id = ? ORDER BY days_before_tour DESC`, tourID)
	if err != nil {
		return nil, fmt.Errorf("list refund policies: %w", err)
	}
	defer closeQuietly(rows)

	var policies []models.RefundPolicy
	for rows.Next() {
		var p models.RefundPolicy
		if err := rows.Scan(&p.ID, &p.TourID, &p.DaysBeforeTour, &p.RefundPercent); err != nil {
			return nil, fmt.Errorf("scan refund policy: %w", err)
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

// DeleteRefundPolicy removes one policy tier.
func (db *DB) DeleteRefundPolicy(ctx context.Context, id uuid.UUID) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM refund_policies WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete refund policy: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}
