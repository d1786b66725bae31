package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/event"
	_ "modernc.org/sqlite"

	"github.com/FlorentDgrs/Dvoting/internal/domain"
)

// subscriptionBuffer is the channel size used when following a ledger
const subscriptionBuffer = 64

// Source streams ledger notifications
type Source interface {
	ID() string
	Subscribe(ch chan<- *domain.Event) event.Subscription
	Notifications(after uint64, limit int) []*domain.Event
}

// Record is a stored notification
type Record struct {
	LedgerID  string           `json:"ledgerId"`
	Seq       uint64           `json:"seq"`
	Round     uint64           `json:"round"`
	Type      domain.EventType `json:"type"`
	Payload   json.RawMessage  `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
}

// Journal archives ledger notifications in SQLite
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects to the SQLite database at dsn and creates the schema
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal ping failed: %w", err)
	}

	if err := CreateSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{db: db, logger: logger}, nil
}

// Close closes the underlying database
func (j *Journal) Close() error {
	return j.db.Close()
}

// Append stores a notification. Appending the same (ledgerID, seq) twice is a no-op.
func (j *Journal) Append(ctx context.Context, ledgerID string, ev *domain.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO notification (ledger_id, seq, round, type, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ledgerID, int64(ev.Seq), int64(ev.Round), string(ev.Type), string(payload), ev.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to append notification %d: %w", ev.Seq, err)
	}

	return nil
}

// List returns up to limit records of a ledger with seq greater than after, oldest first
func (j *Journal) List(ctx context.Context, ledgerID string, after uint64, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, round, type, payload, created_at
		FROM notification
		WHERE ledger_id = ? AND seq > ?
		ORDER BY seq
		LIMIT ?
	`, ledgerID, int64(after), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var (
			seq, round, createdAt int64
			eventType, payload    string
		)
		if err := rows.Scan(&seq, &round, &eventType, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		records = append(records, Record{
			LedgerID:  ledgerID,
			Seq:       uint64(seq),
			Round:     uint64(round),
			Type:      domain.EventType(eventType),
			Payload:   json.RawMessage(payload),
			Timestamp: time.Unix(0, createdAt),
		})
	}

	return records, rows.Err()
}

// LastSeq returns the highest stored seq of a ledger, or 0 when none is stored
func (j *Journal) LastSeq(ctx context.Context, ledgerID string) (uint64, error) {
	var last sql.NullInt64
	err := j.db.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM notification WHERE ledger_id = ?`, ledgerID,
	).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("failed to read last seq: %w", err)
	}
	return uint64(last.Int64), nil
}

// Run follows source and archives every notification until ctx is cancelled
// or the subscription ends. Notifications logged before Run started are caught up first.
func (j *Journal) Run(ctx context.Context, source Source) error {
	ledgerID := source.ID()

	ch := make(chan *domain.Event, subscriptionBuffer)
	sub := source.Subscribe(ch)
	defer sub.Unsubscribe()

	last, err := j.LastSeq(ctx, ledgerID)
	if err != nil {
		return err
	}

	if last, err = j.catchUp(ctx, source, last); err != nil {
		return err
	}

	j.logger.Info("journal following ledger", "ledgerId", ledgerID, "lastSeq", last)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case ev := <-ch:
			if ev.Seq <= last {
				continue
			}
			// Live delivery dropped something; read the gap from the log.
			if ev.Seq > last+1 {
				if last, err = j.catchUp(ctx, source, last); err != nil {
					return err
				}
				continue
			}
			if err := j.Append(ctx, ledgerID, ev); err != nil {
				return err
			}
			last = ev.Seq
		}
	}
}

// catchUp archives everything the source logged after seq and returns the new last seq
func (j *Journal) catchUp(ctx context.Context, source Source, last uint64) (uint64, error) {
	for {
		backlog := source.Notifications(last, 0)
		if len(backlog) == 0 {
			return last, nil
		}
		for _, ev := range backlog {
			if err := j.Append(ctx, source.ID(), ev); err != nil {
				return last, err
			}
			last = ev.Seq
		}
	}
}
