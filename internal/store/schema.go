package store

import (
	"database/sql"
	"fmt"
)

// The store keeps one row per session. Followers ride along as a JSON column
// because they are always read and written with their session, never queried
// independently.
const createSessionsTable = `
CREATE TABLE IF NOT EXISTS sessions (
	id              TEXT PRIMARY KEY,
	class_id        TEXT NOT NULL,
	class_name      TEXT NOT NULL,
	leader_id       TEXT NOT NULL,
	leader_name     TEXT NOT NULL,
	is_active       INTEGER NOT NULL,
	started_at      TIMESTAMP NOT NULL,
	document_path   TEXT NOT NULL,
	document_title  TEXT NOT NULL,
	scroll_position REAL NOT NULL DEFAULT 0,
	current_section TEXT,
	last_heartbeat  TIMESTAMP NOT NULL,
	followers       TEXT NOT NULL DEFAULT '[]'
)`

// Reconciliation reads filter on activity and class; retention pruning
// filters on activity and age.
const createSessionIndexes = `
CREATE INDEX IF NOT EXISTS idx_sessions_class_active ON sessions(class_id, is_active);
CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)`

// ensureSchema creates the session table and indexes if missing.
func ensureSchema(db *sql.DB) error {
	if _, err := db.Exec(createSessionsTable); err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}
	if _, err := db.Exec(createSessionIndexes); err != nil {
		return fmt.Errorf("failed to create session indexes: %w", err)
	}
	return nil
}
