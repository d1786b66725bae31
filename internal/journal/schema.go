package journal

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateSchema creates the notification table.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

const schema = `
-- Notifications, one row per successful ledger mutation
CREATE TABLE IF NOT EXISTS notification (
    ledger_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    round INTEGER NOT NULL,
    type TEXT NOT NULL,
    payload TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (ledger_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_notification_round ON notification(ledger_id, round);
CREATE INDEX IF NOT EXISTS idx_notification_type ON notification(type);
`
