// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package database

import (
	"errors"
	"strings"
)

// Storage-level domain errors. Services and handlers branch on these with
// errors.Is; they are wrapped with context at every return site.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSlotConflict indicates a slot already exists for the tour+date.
	ErrSlotConflict = errors.New("availability slot already exists for this tour and date")

	// ErrCapacityExceeded indicates a capacity adjustment would drive
	// available spaces negative. Callers must treat this as a hard stop,
	// not a retry.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrDuplicateBooking indicates a non-cancelled booking already exists
	// for the same contact email, tour, and date.
	ErrDuplicateBooking = errors.New("duplicate booking")

	// ErrInvalidTransition indicates a booking status change that is not a
	// legal edge (nothing leaves cancelled or completed).
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrRefundExceedsAmount indicates a refund that would push the refunded
	// total past the original transaction amount.
	ErrRefundExceedsAmount = errors.New("refund exceeds transaction amount")
)

// isUniqueViolation reports whether err is a unique or primary key constraint
// violation surfaced by the DuckDB driver. The driver exposes no typed
// constraint error, so this matches on the message.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
