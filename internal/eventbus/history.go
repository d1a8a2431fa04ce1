// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package eventbus

import (
	"sync"
	"time"

	"github.com/openvoyage/bookcore/internal/metrics"
	"github.com/openvoyage/bookcore/internal/models"
)

// history is the bounded in-memory event log backing History and Replay.
// Eviction is oldest-first, triggered by both a size cap and a max age.
type history struct {
	mu      sync.RWMutex
	events  []models.DomainEvent
	maxSize int
	maxAge  time.Duration
}

func newHistory(maxSize int, maxAge time.Duration) *history {
	return &history{
		maxSize: maxSize,
		maxAge:  maxAge,
	}
}

func (h *history) append(event models.DomainEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events = append(h.events, event)
	h.evictLocked(time.Now())
	metrics.EventHistorySize.Set(float64(len(h.events)))
}

// evictLocked drops entries past the age bound, then past the size bound.
// Events are appended in publish order, so the oldest are always at the front.
func (h *history) evictLocked(now time.Time) {
	if h.maxAge > 0 {
		cutoff := now.Add(-h.maxAge)
		firstFresh := 0
		for firstFresh < len(h.events) && h.events[firstFresh].PublishedAt.Before(cutoff) {
			firstFresh++
		}
		h.events = h.events[firstFresh:]
	}
	if h.maxSize > 0 && len(h.events) > h.maxSize {
		h.events = h.events[len(h.events)-h.maxSize:]
	}
}

// snapshot returns events matching the pattern, oldest first. A limit of 0
// means no limit; otherwise the newest `limit` matches are returned.
func (h *history) snapshot(pattern string, limit int) []models.DomainEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var matched []models.DomainEvent
	for _, e := range h.events {
		if pattern == "" || MatchTopic(pattern, e.Type) {
			matched = append(matched, e)
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched
}

// forAggregate returns events for one aggregate, oldest first.
func (h *history) forAggregate(aggregateID string) []models.DomainEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var matched []models.DomainEvent
	for _, e := range h.events {
		if e.AggregateID == aggregateID {
			matched = append(matched, e)
		}
	}
	return matched
}

func (h *history) size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.events)
}
