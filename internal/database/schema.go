// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

/*
schema.go - Database Schema Management

Tables:
  - availability_slots: per-tour-date capacity ledger (total/booked/reserved)
  - availability_blocks: date-range bookability exclusions
  - recurring_availability: weekly templates expanded into concrete slots
  - bookings / booking_participants: reservation aggregate (never deleted)
  - payment_transactions / refund_transactions: payment attempts and refunds
  - discount_codes: promotional codes with validity window and use cap
  - refund_policies: per-tour refund percentage by days-before-tour
  - domain_events: append-only audit copy of published events

Schema strategy: all columns are defined in the initial CREATE TABLE
statements; incremental changes go through versioned migrations in
migrations.go.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("create table: %s: %w", query, err)
		}
	}
	return nil
}

var tableCreationQueries = []string{
	// Availability ledger. available_spaces is stored (not computed) so the
	// conditional UPDATE guard in AdjustCapacity can reference it directly.
	`CREATE TABLE IF NOT EXISTS availability_slots (
		id UUID PRIMARY KEY,
		tour_id TEXT NOT NULL,
		date DATE NOT NULL,
		start_time TEXT,
		end_time TEXT,
		total_capacity INTEGER NOT NULL,
		booked_spaces INTEGER NOT NULL DEFAULT 0,
		reserved_spaces INTEGER NOT NULL DEFAULT 0,
		available_spaces INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'available',
		base_price BIGINT NOT NULL,
		currency TEXT NOT NULL,
		price_multiplier DOUBLE NOT NULL DEFAULT 1.0,
		dynamic_price BIGINT,
		booking_deadline_hours INTEGER NOT NULL DEFAULT 0,
		cancellation_deadline_hours INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (tour_id, date, start_time)
	)`,

	`CREATE TABLE IF NOT EXISTS availability_blocks (
		id UUID PRIMARY KEY,
		tour_id TEXT NOT NULL,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		reason TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS recurring_availability (
		id UUID PRIMARY KEY,
		tour_id TEXT NOT NULL,
		days_of_week TEXT NOT NULL,
		start_time TEXT,
		end_time TEXT,
		capacity INTEGER NOT NULL,
		base_price BIGINT NOT NULL,
		currency TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMP NOT NULL
	)`,

	// Bookings are never deleted; cancellation is a status transition.
	// Contact fields are structured columns, not a JSON blob.
	`CREATE TABLE IF NOT EXISTS bookings (
		id UUID PRIMARY KEY,
		tour_id TEXT NOT NULL,
		tour_date DATE NOT NULL,
		slot_id UUID NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending_payment',
		contact_name TEXT NOT NULL,
		contact_email TEXT NOT NULL,
		contact_phone TEXT NOT NULL,
		participant_count INTEGER NOT NULL,
		price_per_person BIGINT NOT NULL,
		subtotal BIGINT NOT NULL,
		tax_amount BIGINT NOT NULL,
		discount_amount BIGINT NOT NULL DEFAULT 0,
		total_amount BIGINT NOT NULL,
		currency TEXT NOT NULL,
		discount_code TEXT,
		payment_status TEXT NOT NULL DEFAULT 'pending',
		payment_deadline TIMESTAMP NOT NULL,
		refund_amount BIGINT,
		refund_status TEXT,
		cancel_reason TEXT,
		cancelled_by TEXT,
		cancelled_at TIMESTAMP,
		special_requests TEXT,
		dietary_notes TEXT,
		mobility_notes TEXT,
		confirmation_code TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS booking_participants (
		id UUID PRIMARY KEY,
		booking_id UUID NOT NULL,
		full_name TEXT NOT NULL,
		email TEXT,
		age INTEGER,
		status TEXT NOT NULL DEFAULT 'pending'
	)`,

	`CREATE TABLE IF NOT EXISTS payment_transactions (
		id UUID PRIMARY KEY,
		booking_id UUID NOT NULL,
		gateway TEXT NOT NULL,
		external_id TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		amount BIGINT NOT NULL,
		currency TEXT NOT NULL,
		commission BIGINT NOT NULL DEFAULT 0,
		net_amount BIGINT NOT NULL,
		payer_name TEXT,
		payer_email TEXT,
		payer_country TEXT,
		failure_reason TEXT,
		created_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS refund_transactions (
		id UUID PRIMARY KEY,
		transaction_id UUID NOT NULL,
		amount BIGINT NOT NULL,
		reason TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		gateway_refund_id TEXT,
		created_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS discount_codes (
		id UUID PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		percent_off INTEGER NOT NULL DEFAULT 0,
		amount_off BIGINT NOT NULL DEFAULT 0,
		valid_from TIMESTAMP NOT NULL,
		valid_until TIMESTAMP NOT NULL,
		max_uses INTEGER NOT NULL DEFAULT 0,
		used_count INTEGER NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT true
	)`,

	`CREATE TABLE IF NOT EXISTS refund_policies (
		id UUID PRIMARY KEY,
		tour_id TEXT NOT NULL,
		days_before_tour INTEGER NOT NULL,
		refund_percent INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS domain_events (
		id UUID PRIMARY KEY,
		type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		data TEXT,
		published_at TIMESTAMP NOT NULL
	)`,
}

// createIndexes creates indexes for frequently filtered columns.
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_slots_tour_date ON availability_slots (tour_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_slots_status ON availability_slots (status)`,
		`CREATE INDEX IF NOT EXISTS idx_blocks_tour ON availability_blocks (tour_id, start_date, end_date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_tour_date ON bookings (tour_id, tour_date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_email ON bookings (contact_email)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings (status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_deadline ON bookings (payment_deadline)`,
		`CREATE INDEX IF NOT EXISTS idx_participants_booking ON booking_participants (booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_booking ON payment_transactions (booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_external ON payment_transactions (gateway, external_id)`,
		`CREATE INDEX IF NOT EXISTS idx_refunds_transaction ON refund_transactions (transaction_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_aggregate ON domain_events (aggregate_id, published_at)`,
	}

	for _, query := range indexes {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("create index: %s: %w", query, err)
		}
	}
	return nil
}
