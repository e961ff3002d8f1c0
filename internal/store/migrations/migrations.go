// Package migrations creates the agent's database schema.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS hosts (
		address    TEXT PRIMARY KEY,
		hostname   TEXT NOT NULL DEFAULT '',
		subnet     TEXT NOT NULL DEFAULT '',
		reachable  INTEGER NOT NULL DEFAULT 0,
		open_ports TEXT NOT NULL DEFAULT '',
		os_class   TEXT NOT NULL DEFAULT 'unknown',
		latency_ms REAL NOT NULL DEFAULT 0,
		survey_id  TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_hosts_os_class ON hosts (os_class)`,
	`CREATE INDEX IF NOT EXISTS idx_hosts_subnet ON hosts (subnet)`,
	`CREATE TABLE IF NOT EXISTS surveys (
		id          TEXT PRIMARY KEY,
		state       TEXT NOT NULL,
		targets     TEXT NOT NULL DEFAULT '',
		total       INTEGER NOT NULL DEFAULT 0,
		completed   INTEGER NOT NULL DEFAULT 0,
		started_at  TIMESTAMP,
		finished_at TIMESTAMP
	)`,
}

// Run applies the schema. Statements are idempotent.
func Run(ctx context.Context, db *sql.DB) error {
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}
