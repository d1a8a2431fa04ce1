// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

// Package availability manages the per-tour capacity ledger: concrete slots,
// recurring templates, date-range blocks, dynamic pricing, and occupancy
// statistics.
//
// UpdateAvailability is the single mutation point for capacity. It delegates
// to the repository's conditional UPDATE, so available spaces can never go
// negative no matter how requests interleave.
package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/openvoyage/bookcore/internal/cache"
	"github.com/openvoyage/bookcore/internal/config"
	"github.com/openvoyage/bookcore/internal/database"
	"github.com/openvoyage/bookcore/internal/eventbus"
	"github.com/openvoyage/bookcore/internal/logging"
	"github.com/openvoyage/bookcore/internal/metrics"
	"github.com/openvoyage/bookcore/internal/models"
	"github.com/openvoyage/bookcore/internal/validation"
)

const (
	cacheNamespaceSearch = "availability:search"
	cacheNamespaceStats  = "availability:stats"
)

// Service coordinates slot lifecycle and capacity accounting.
type Service struct {
	db    *database.DB
	cache *cache.Cache
	bus   *eventbus.Bus
	cfg   config.CacheConfig

	now func() time.Time
}

// New constructs the availability service. bus may be nil in tests.
func New(db *database.DB, c *cache.Cache, bus *eventbus.Bus, cfg config.CacheConfig) *Service {
	return &Service{
		db:    db,
		cache: c,
		bus:   bus,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateSlotParams are the operator inputs for a new slot.
type CreateSlotParams struct {
	TourID                    string    `validate:"required"`
	Date                      time.Time `validate:"required"`
	StartTime                 string
	EndTime                   string
	TotalCapacity             int    `validate:"gt=0"`
	BasePrice                 int64  `validate:"gt=0"`
	Currency                  string `validate:"required,len=3"`
	BookingDeadlineHours      int
	CancellationDeadlineHours int
}

// CreateSlot creates a slot with full availability. Fails with
// database.ErrSlotConflict when a slot already exists for the tour+date.
func (s *Service) CreateSlot(ctx context.Context, params CreateSlotParams) (*models.AvailabilitySlot, error) {
	if verr := validation.ValidateStruct(params); verr != nil {
		return nil, verr
	}

	now := s.now()
	slot := &models.AvailabilitySlot{
		ID:                        uuid.New(),
		TourID:                    params.TourID,
		Date:                      params.Date,
		StartTime:                 params.StartTime,
		EndTime:                   params.EndTime,
		TotalCapacity:             params.TotalCapacity,
		AvailableSpaces:           params.TotalCapacity,
		Status:                    models.SlotStatusAvailable,
		BasePrice:                 params.BasePrice,
		Currency:                  params.Currency,
		PriceMultiplier:           1.0,
		BookingDeadlineHours:      params.BookingDeadlineHours,
		CancellationDeadlineHours: params.CancellationDeadlineHours,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}

	if err := s.db.InsertSlot(ctx, slot); err != nil {
		return nil, fmt.Errorf("create slot: %w", err)
	}

	metrics.SlotsCreated.WithLabelValues("operator").Inc()
	s.invalidate()
	s.publish(ctx, models.EventSlotCreated, slot.ID.String(), slot)

	logging.Ctx(ctx).Info().
		Str("slot_id", slot.ID.String()).
		Str("tour_id", slot.TourID).
		Int("capacity", slot.TotalCapacity).
		Msg("Availability slot created")
	return slot, nil
}

// GetSlot fetches one slot by ID.
func (s *Service) GetSlot(ctx context.Context, id uuid.UUID) (*models.AvailabilitySlot, error) {
	return s.db.GetSlot(ctx, id)
}

// Search returns slots matching the filter, date ascending. Results are
// cache-backed with a short TTL and invalidated on every write.
func (s *Service) Search(ctx context.Context, filter models.SlotFilter) ([]models.AvailabilitySlot, error) {
	key := cache.GenerateKey(cacheNamespaceSearch, filter)
	if cached, ok := s.cache.Get(key); ok {
		metrics.CacheHits.WithLabelValues(cacheNamespaceSearch).Inc()
		return cached.([]models.AvailabilitySlot), nil
	}
	metrics.CacheMisses.WithLabelValues(cacheNamespaceSearch).Inc()

	slots, err := s.db.SearchSlots(ctx, filter)
	if err != nil {
		return nil, err
	}

	s.cache.SetWithTTL(key, slots, s.cfg.ListTTL)
	return slots, nil
}

// UpdateAvailability atomically adjusts the booked/reserved counters of a
// slot. It is the single mutation point for capacity: booking creation holds
// reserved spaces, confirmation converts them to booked, cancellation
// releases them. Fails with database.ErrCapacityExceeded when the adjustment
// would drive available spaces negative; callers must treat that as a hard
// stop.
func (s *Service) UpdateAvailability(ctx context.Context, slotID uuid.UUID, bookedDelta, reservedDelta int) error {
	if err := s.db.AdjustCapacity(ctx, slotID, bookedDelta, reservedDelta); err != nil {
		return err
	}

	s.invalidate()
	s.publish(ctx, models.EventSlotUpdated, slotID.String(), map[string]int{
		"booked_delta":   bookedDelta,
		"reserved_delta": reservedDelta,
	})
	return nil
}

// BlockAvailability records a date-range block. Blocks suppress bookability
// in calendar queries without touching slot counters.
func (s *Service) BlockAvailability(ctx context.Context, tourID string, from, to time.Time, reason string) (*models.AvailabilityBlock, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("block end date %s before start date %s",
			to.Format("2006-01-02"), from.Format("2006-01-02"))
	}

	block := &models.AvailabilityBlock{
		ID:        uuid.New(),
		TourID:    tourID,
		StartDate: from,
		EndDate:   to,
		Reason:    reason,
		CreatedAt: s.now(),
	}
	if err := s.db.InsertBlock(ctx, block); err != nil {
		return nil, err
	}

	s.invalidate()
	s.publish(ctx, models.EventSlotBlocked, tourID, block)
	return block, nil
}

// CreateRecurring stores a weekly template. Expansion into concrete slots is
// performed by ExpandRecurring, run periodically by the background expander.
func (s *Service) CreateRecurring(ctx context.Context, r *models.RecurringAvailability) error {
	r.ID = uuid.New()
	r.Active = true
	r.CreatedAt = s.now()
	return s.db.InsertRecurring(ctx, r)
}

// ExpandRecurring materializes concrete slots from active templates for every
// matching date within horizonDays of today. Expansion is idempotent: an
// existing slot for the same tour+date is left untouched. Returns the number
// of slots created.
func (s *Service) ExpandRecurring(ctx context.Context, horizonDays int) (int, error) {
	templates, err := s.db.ListActiveRecurring(ctx, "")
	if err != nil {
		return 0, err
	}

	created := 0
	today := s.now().Truncate(24 * time.Hour)
	for _, tmpl := range templates {
		for day := 0; day <= horizonDays; day++ {
			date := today.AddDate(0, 0, day)
			if !tmpl.MatchesDate(date) {
				continue
			}

			now := s.now()
			slot := &models.AvailabilitySlot{
				ID:              uuid.New(),
				TourID:          tmpl.TourID,
				Date:            date,
				StartTime:       tmpl.StartTime,
				EndTime:         tmpl.EndTime,
				TotalCapacity:   tmpl.Capacity,
				AvailableSpaces: tmpl.Capacity,
				Status:          models.SlotStatusAvailable,
				BasePrice:       tmpl.BasePrice,
				Currency:        tmpl.Currency,
				PriceMultiplier: 1.0,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			err := s.db.InsertSlot(ctx, slot)
			if errors.Is(err, database.ErrSlotConflict) {
				continue
			}
			if err != nil {
				return created, fmt.Errorf("expand template %s: %w", tmpl.ID, err)
			}
			created++
			metrics.SlotsCreated.WithLabelValues("recurring").Inc()
		}
	}

	if created > 0 {
		s.invalidate()
		logging.Ctx(ctx).Info().
			Int("created", created).
			Int("templates", len(templates)).
			Msg("Recurring availability expanded")
	}
	return created, nil
}

// GetCalendar aggregates concrete slots, blocks, and recurring templates into
// a per-day view of the window, used to render bookable dates.
func (s *Service) GetCalendar(ctx context.Context, tourID string, from, to time.Time) ([]models.CalendarDay, error) {
	slots, err := s.db.SearchSlots(ctx, models.SlotFilter{TourID: tourID, DateFrom: from, DateTo: to})
	if err != nil {
		return nil, err
	}
	blocks, err := s.db.ListBlocks(ctx, tourID, from, to)
	if err != nil {
		return nil, err
	}
	templates, err := s.db.ListActiveRecurring(ctx, tourID)
	if err != nil {
		return nil, err
	}

	slotsByDay := make(map[string][]models.AvailabilitySlot)
	for _, slot := range slots {
		key := slot.Date.Format("2006-01-02")
		slotsByDay[key] = append(slotsByDay[key], slot)
	}

	var days []models.CalendarDay
	for date := from; !date.After(to); date = date.AddDate(0, 0, 1) {
		day := models.CalendarDay{
			Date:  date,
			Slots: slotsByDay[date.Format("2006-01-02")],
		}
		for _, block := range blocks {
			if block.Covers(date) {
				day.Blocked = true
				day.BlockReason = block.Reason
				break
			}
		}
		for _, tmpl := range templates {
			if tmpl.MatchesDate(date) {
				day.Recurring = true
				break
			}
		}
		day.Bookable = !day.Blocked && (day.Recurring || hasOpenSlot(day.Slots))
		days = append(days, day)
	}
	return days, nil
}

// ApplyDynamicPricing evaluates priority-ordered rules against a slot and
// sets its dynamic price. Rules are checked highest priority first and the
// first match wins; no match clears the dynamic price back to base.
func (s *Service) ApplyDynamicPricing(ctx context.Context, slotID uuid.UUID, rules []models.PricingRule) (*models.AvailabilitySlot, error) {
	slot, err := s.db.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}

	ordered := make([]models.PricingRule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	multiplier := 1.0
	var dynamicPrice *int64
	for _, rule := range ordered {
		if !s.ruleMatches(rule, slot) {
			continue
		}
		multiplier = rule.Multiplier
		price := int64(float64(slot.BasePrice) * rule.Multiplier)
		dynamicPrice = &price
		break
	}

	if err := s.db.UpdateSlotPricing(ctx, slotID, multiplier, dynamicPrice); err != nil {
		return nil, err
	}

	slot.PriceMultiplier = multiplier
	slot.DynamicPrice = dynamicPrice
	s.invalidate()
	s.publish(ctx, models.EventPricingApplied, slotID.String(), slot)
	return slot, nil
}

func (s *Service) ruleMatches(rule models.PricingRule, slot *models.AvailabilitySlot) bool {
	switch rule.Kind {
	case models.PricingRuleDaysUntilTour:
		daysUntil := slot.Date.Sub(s.now()).Hours() / 24
		return daysUntil <= rule.Threshold
	case models.PricingRuleOccupancy:
		return slot.OccupancyPercent() >= rule.Threshold
	default:
		return false
	}
}

// GetStats returns the aggregate occupancy view for a tour. Stats feed
// reporting, not live decisioning, so they are cached for hours.
func (s *Service) GetStats(ctx context.Context, tourID string) (*models.AvailabilityStats, error) {
	key := cache.GenerateKey(cacheNamespaceStats, tourID)
	if cached, ok := s.cache.Get(key); ok {
		metrics.CacheHits.WithLabelValues(cacheNamespaceStats).Inc()
		return cached.(*models.AvailabilityStats), nil
	}
	metrics.CacheMisses.WithLabelValues(cacheNamespaceStats).Inc()

	stats, err := s.db.TourStats(ctx, tourID)
	if err != nil {
		return nil, err
	}
	s.cache.SetWithTTL(key, stats, s.cfg.StatsTTL)
	return stats, nil
}

func (s *Service) invalidate() {
	s.cache.InvalidatePrefix(cacheNamespaceSearch)
	s.cache.InvalidatePrefix(cacheNamespaceStats)
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

func hasOpenSlot(slots []models.AvailabilitySlot) bool {
	for _, slot := range slots {
		if slot.Status == models.SlotStatusAvailable && slot.AvailableSpaces > 0 {
			return true
		}
	}
	return false
}
