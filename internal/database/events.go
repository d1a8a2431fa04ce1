// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/openvoyage/bookcore/internal/models"
)

// AppendDomainEvent writes one event to the durable audit log. The log is
// append-only; events are never updated or deleted.
func (db *DB) AppendDomainEvent(ctx context.Context, event models.DomainEvent) error {
	_, err := db.conn.ExecContext(ctx, `INSERT INTO domain_events
		(id, type, aggregate_id, data, published_at) VALUES (?, ?, ?, ?, ?)`,
		event.ID, event.Type, event.AggregateID, string(event.Data), event.PublishedAt)
	if err != nil {
		return fmt.Errorf("append domain event: %w", err)
	}
	return nil
}

// ListDomainEvents returns the audit trail for one aggregate in publish order.
func (db *DB) ListDomainEvents(ctx context.Context, aggregateID string, limit int) ([]models.DomainEvent, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, type, aggregate_id, data, published_at
		FROM domain_events WHERE aggregate_id = ? ORDER BY published_at LIMIT ?`,
		aggregateID, limit)
	if err != nil {
		return nil, fmt.Errorf("list domain events: %w", err)
	}
	defer closeQuietly(rows)

	var events []models.DomainEvent
	for rows.Next() {
		var e models.DomainEvent
		var data string
		if err := rows.Scan(&e.ID, &e.Type, &e.AggregateID, &data, &e.PublishedAt); err != nil {
			return nil, fmt.Errorf("scan domain event: %w", err)
		}
		e.Data = []byte(data)
		events = append(events, e)
	}
	return events, rows.Err()
}

// PruneDomainEvents deletes audit rows older than the cutoff. Returns the
// number of rows removed.
func (db *DB) PruneDomainEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM domain_events WHERE published_at < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune domain events: %w", err)
	}
	return res.RowsAffected()
}
