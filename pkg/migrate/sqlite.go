package migrate

import (
	"fmt"

	"gorm.io/gorm"
)

// sqliteSchema mirrors the goose migrations for the sqlite development
// driver. Amounts are TEXT so sqlite's numeric affinity cannot round them.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS gigs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  client TEXT NOT NULL,
  freelancer TEXT NOT NULL,
  total_amount TEXT NOT NULL,
  amount_paid TEXT NOT NULL DEFAULT '0',
  start_time DATETIME NOT NULL,
  duration_ms INTEGER NOT NULL CHECK (duration_ms > 0),
  paused INTEGER NOT NULL DEFAULT 0,
  pause_time DATETIME,
  total_pause_ms INTEGER NOT NULL DEFAULT 0 CHECK (total_pause_ms >= 0),
  settled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE TABLE IF NOT EXISTS ledger_transfers (
  id TEXT PRIMARY KEY,
  gig_id INTEGER NOT NULL REFERENCES gigs(id),
  kind TEXT NOT NULL,
  recipient TEXT NOT NULL,
  amount TEXT NOT NULL,
  status TEXT NOT NULL,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  receipt_id TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  completed_at DATETIME
)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
)`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
)`,
}

// ApplySQLiteSchema creates the tables on a sqlite connection.
func ApplySQLiteSchema(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	for _, stmt := range sqliteSchema {
		if err := conn.Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}
