// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package database

import (
	"context"
	"fmt"

	"github.com/openvoyage/bookcore/internal/logging"
)

// migration is one versioned, idempotent schema change applied after the
// baseline CREATE TABLE statements.
type migration struct {
	version     int
	description string
	statements  []string
}

// migrations are applied in ascending version order. Versions are recorded in
// schema_migrations; never renumber or edit an applied migration.
var migrations = []migration{
	// Version 1 is the baseline schema from schema.go; it is recorded so
	// later migrations have an anchor.
	{
		version:     1,
		description: "baseline schema",
		statements:  nil,
	},
}

// runMigrations applies pending migrations and records them.
func (db *DB) runMigrations() error {
	ctx, cancel := schemaContext()
	defer cancel()

	_, err := db.conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at TIMESTAMP NOT NULL DEFAULT current_timestamp
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	current, err := db.currentSchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := db.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.version, m.description, err)
		}
		logging.Info().
			Int("version", m.version).
			Str("description", m.description).
			Msg("Applied database migration")
	}
	return nil
}

// currentSchemaVersion returns the highest applied migration version.
func (db *DB) currentSchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// applyMigration runs one migration's statements and records it in a single
// transaction.
func (db *DB) applyMigration(ctx context.Context, m migration) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	for _, stmt := range m.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute statement: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, current_timestamp)`,
		m.version, m.description)
	if err != nil {
		return fmt.Errorf("record migration: %w", err)
	}

	return tx.Commit()
}
