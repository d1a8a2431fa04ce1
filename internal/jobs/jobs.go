// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

// Package jobs holds the supervised background services: the recurring
// expander materializes weekly availability templates into concrete slots,
// and the deadline sweeper expires pending_payment bookings that missed
// their payment deadline.
//
// Both run as suture services with jittered intervals so replicas sharing a
// database do not sweep in lockstep.
package jobs

import (
	"context"
	"math/rand"
	"time"

	"github.com/openvoyage/bookcore/internal/availability"
	"github.com/openvoyage/bookcore/internal/booking"
	"github.com/openvoyage/bookcore/internal/config"
	"github.com/openvoyage/bookcore/internal/logging"
)

// sweepBatchSize caps how many overdue bookings one sweep expires.
const sweepBatchSize = 200

// RecurringExpander periodically materializes recurring availability
// templates into concrete slots.
type RecurringExpander struct {
	availability *availability.Service
	interval     time.Duration
	horizonDays  int
}

// NewRecurringExpander creates the expander from job configuration.
func NewRecurringExpander(avail *availability.Service, cfg config.JobsConfig) *RecurringExpander {
	return &RecurringExpander{
		availability: avail,
		interval:     cfg.ExpandInterval,
		horizonDays:  cfg.ExpandHorizonDays,
	}
}

// String names the service in supervisor logs.
func (e *RecurringExpander) String() string { return "recurring-expander" }

// Serve runs one expansion immediately, then on a jittered interval until the
// context is cancelled. It satisfies suture.Service.
func (e *RecurringExpander) Serve(ctx context.Context) error {
	e.run(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jitter(e.interval)):
			e.run(ctx)
		}
	}
}

func (e *RecurringExpander) run(ctx context.Context) {
	created, err := e.availability.ExpandRecurring(ctx, e.horizonDays)
	if err != nil {
		logging.Error().Err(err).Msg("Recurring expansion failed")
		return
	}
	logging.Debug().Int("created", created).Msg("Recurring expansion completed")
}

// DeadlineSweeper periodically expires overdue pending_payment bookings,
// releasing the capacity they hold.
type DeadlineSweeper struct {
	bookings *booking.Service
	interval time.Duration
}

// NewDeadlineSweeper creates the sweeper from job configuration.
func NewDeadlineSweeper(bookings *booking.Service, cfg config.JobsConfig) *DeadlineSweeper {
	return &DeadlineSweeper{
		bookings: bookings,
		interval: cfg.SweepInterval,
	}
}

// String names the service in supervisor logs.
func (s *DeadlineSweeper) String() string { return "deadline-sweeper" }

// Serve sweeps on a jittered interval until the context is cancelled. It
// satisfies suture.Service.
func (s *DeadlineSweeper) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jitter(s.interval)):
			if _, err := s.bookings.ExpireOverdue(ctx, sweepBatchSize); err != nil {
				logging.Error().Err(err).Msg("Deadline sweep failed")
			}
		}
	}
}

// jitter spreads an interval by up to 10% to avoid lockstep across replicas.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Minute
	}
	spread := int64(float64(d) * 0.1)
	if spread <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(2*spread)-spread)
}
