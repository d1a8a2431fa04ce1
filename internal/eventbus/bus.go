// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

// Package eventbus provides the in-process domain event bus: dotted topics
// with wildcard subscription patterns, priority-ordered handlers, a bounded
// replayable history, and a durable audit copy in the domain_events table.
//
// The bus is a side-effect channel, not a source of truth. Services write
// state to SQL first and publish afterwards; a lost event never loses data.
package eventbus

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/openvoyage/bookcore/internal/config"
	"github.com/openvoyage/bookcore/internal/logging"
	"github.com/openvoyage/bookcore/internal/metrics"
	"github.com/openvoyage/bookcore/internal/models"
)

// busTopic is the single transport topic; routing to subscribers happens in
// the dispatcher via pattern matching, not via per-type watermill topics.
const busTopic = "bookcore.events"

// Handler processes one domain event. A non-nil error is logged and counted
// but never stops delivery to other subscribers.
type Handler func(ctx context.Context, event models.DomainEvent) error

// SubscribeOptions tune one subscription.
type SubscribeOptions struct {
	// Priority orders handlers for one event; higher runs first. Equal
	// priorities run in registration order.
	Priority int
	// Once removes the subscription after its first delivery.
	Once bool
}

// EventStore is the durable sink for published events.
type EventStore interface {
	AppendDomainEvent(ctx context.Context, event models.DomainEvent) error
}

// Reducer folds one event into an accumulator during Replay.
type Reducer func(acc interface{}, event models.DomainEvent) interface{}

type subscription struct {
	id       uuid.UUID
	pattern  string
	priority int
	seq      uint64
	once     bool
	handler  Handler
}

// Bus is the domain event bus. Construct with New, register subscribers, then
// run Serve (typically under the supervision tree) for async dispatch.
type Bus struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]*subscription
	seq  uint64

	history *history
	pubsub  *gochannel.GoChannel
	store   EventStore
	sync    bool
}

// New creates a Bus. store may be nil (tests); events are then kept only in
// the in-memory history.
func New(cfg config.EventBusConfig, store EventStore) *Bus {
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: cfg.BufferSize,
	}, newWatermillLogger())

	return &Bus{
		subs:    make(map[uuid.UUID]*subscription),
		history: newHistory(cfg.HistorySize, cfg.HistoryMaxAge),
		pubsub:  pubsub,
		store:   store,
		sync:    cfg.Synchronous,
	}
}

// Subscribe registers a handler for event types matching pattern and returns
// the subscription ID for Unsubscribe.
func (b *Bus) Subscribe(pattern string, handler Handler, opts SubscribeOptions) uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	sub := &subscription{
		id:       uuid.New(),
		pattern:  pattern,
		priority: opts.Priority,
		seq:      b.seq,
		once:     opts.Once,
		handler:  handler,
	}
	b.subs[sub.id] = sub
	return sub.id
}

// Unsubscribe removes a subscription. Removing an unknown ID is a no-op.
func (b *Bus) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Publish records the event in the history and the durable store, then
// dispatches it to matching subscribers. In synchronous mode handlers run
// inline before Publish returns; otherwise the event is handed to the
// transport and dispatched by Serve.
func (b *Bus) Publish(ctx context.Context, event models.DomainEvent) error {
	b.history.append(event)
	metrics.EventsPublished.WithLabelValues(event.Type).Inc()

	if b.store != nil {
		if err := b.store.AppendDomainEvent(ctx, event); err != nil {
			// The audit copy is best-effort; dispatch proceeds.
			logging.Ctx(ctx).Warn().Err(err).
				Str("event_type", event.Type).
				Msg("Failed to persist domain event")
		}
	}

	if b.sync {
		b.dispatch(ctx, event)
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.Type, err)
	}
	msg := message.NewMessage(event.ID.String(), payload)
	msg.Metadata.Set("type", event.Type)
	if err := b.pubsub.Publish(busTopic, msg); err != nil {
		return fmt.Errorf("publish event %s: %w", event.Type, err)
	}
	return nil
}

// Serve runs the async dispatch loop until the context is cancelled. It
// satisfies suture.Service.
func (b *Bus) Serve(ctx context.Context) error {
	messages, err := b.pubsub.Subscribe(ctx, busTopic)
	if err != nil {
		return fmt.Errorf("subscribe to event transport: %w", err)
	}

	logging.Info().Msg("Event bus dispatcher started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var event models.DomainEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				logging.Error().Err(err).
					Str("message_uuid", msg.UUID).
					Msg("Dropping undecodable event message")
				msg.Ack()
				continue
			}
			b.dispatch(ctx, event)
			msg.Ack()
		}
	}
}

// Close shuts down the transport. Pending buffered events are dropped; the
// durable audit copy has already been written by Publish.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// History returns retained events matching pattern (empty matches all),
// oldest first, capped at limit newest entries when limit > 0.
func (b *Bus) History(pattern string, limit int) []models.DomainEvent {
	return b.history.snapshot(pattern, limit)
}

// HistorySize returns the number of retained events.
func (b *Bus) HistorySize() int {
	return b.history.size()
}

// Replay folds the retained history of one aggregate, oldest first.
func (b *Bus) Replay(aggregateID string, reduce Reducer, initial interface{}) interface{} {
	acc := initial
	for _, event := range b.history.forAggregate(aggregateID) {
		acc = reduce(acc, event)
	}
	return acc
}

// dispatch delivers the event to matching subscribers, highest priority
// first. Handler errors are logged and counted; once-subscriptions are
// removed after delivery regardless of handler outcome.
func (b *Bus) dispatch(ctx context.Context, event models.DomainEvent) {
	matched := b.matchingSubs(event.Type)

	var spent []uuid.UUID
	for _, sub := range matched {
		if err := sub.handler(ctx, event); err != nil {
			metrics.EventHandlerErrors.WithLabelValues(event.Type).Inc()
			logging.Ctx(ctx).Error().Err(err).
				Str("event_type", event.Type).
				Str("pattern", sub.pattern).
				Msg("Event handler failed")
		}
		if sub.once {
			spent = append(spent, sub.id)
		}
	}

	if len(spent) > 0 {
		b.mu.Lock()
		for _, id := range spent {
			delete(b.subs, id)
		}
		b.mu.Unlock()
	}
}

// matchingSubs snapshots subscriptions matching the event type in dispatch
// order, so handlers never run under the bus lock.
func (b *Bus) matchingSubs(eventType string) []*subscription {
	b.mu.RLock()
	matched := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if MatchTopic(sub.pattern, eventType) {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].priority != matched[j].priority {
			return matched[i].priority > matched[j].priority
		}
		return matched[i].seq < matched[j].seq
	})
	return matched
}
