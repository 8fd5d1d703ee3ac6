package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"orchestrator/pkg/logx"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id             TEXT PRIMARY KEY,
	queue          TEXT NOT NULL,
	body           BLOB NOT NULL,
	enqueued_at    INTEGER NOT NULL,
	delivery_count INTEGER NOT NULL DEFAULT 0,
	locked_until   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_messages_pending ON messages(queue, locked_until, enqueued_at);

CREATE TABLE IF NOT EXISTS dead_letters (
	id               TEXT PRIMARY KEY,
	queue            TEXT NOT NULL,
	body             BLOB NOT NULL,
	enqueued_at      INTEGER NOT NULL,
	delivery_count   INTEGER NOT NULL,
	reason           TEXT NOT NULL,
	description      TEXT,
	dead_lettered_at INTEGER NOT NULL
);
`

// receivePollInterval is how often ReceiveBatch re-checks an empty queue
// while waiting.
const receivePollInterval = 250 * time.Millisecond

// SQLiteBroker is a durable Broker on a single SQLite file. Received messages
// are locked (invisible) for the configured duration; unresolved messages
// become visible again when the lock expires, giving at-least-once delivery.
type SQLiteBroker struct {
	db     *sql.DB
	lock   time.Duration
	logger *logx.Logger
	newID  func() string
}

// NewSQLiteBroker opens (creating if needed) the queue database at path.
func NewSQLiteBroker(path string, lock time.Duration, newID func() string) (*SQLiteBroker, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping queue database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize queue schema: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	broker := &SQLiteBroker{
		db:     db,
		lock:   lock,
		logger: logx.NewLogger("queue"),
		newID:  newID,
	}
	broker.logger.Info("Queue database ready: %s", path)
	return broker, nil
}

func (b *SQLiteBroker) Send(ctx context.Context, queue string, body []byte) (string, error) {
	id := b.newID()
	now := time.Now().UTC().UnixMilli()

	_, err := b.db.ExecContext(ctx,
		`INSERT INTO messages (id, queue, body, enqueued_at) VALUES (?, ?, ?, ?)`,
		id, queue, body, now,
	)
	if err != nil {
		return "", fmt.Errorf("%w: send failed: %w", ErrUnavailable, err)
	}

	b.logger.Debug("Enqueued message %s on %s", id, queue)
	return id, nil
}

func (b *SQLiteBroker) ReceiveBatch(ctx context.Context, queue string, max int, wait time.Duration) ([]*Message, error) {
	deadline := time.Now().Add(wait)

	for {
		msgs, err := b.receiveOnce(ctx, queue, max)
		if err != nil {
			return nil, err
		}
		if len(msgs) > 0 {
			return msgs, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}

		pause := receivePollInterval
		if remaining < pause {
			pause = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pause):
		}
	}
}

func (b *SQLiteBroker) receiveOnce(ctx context.Context, queue string, max int) ([]*Message, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: receive failed: %w", ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().UnixMilli()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, body, enqueued_at, delivery_count
		 FROM messages
		 WHERE queue = ? AND locked_until <= ?
		 ORDER BY enqueued_at
		 LIMIT ?`,
		queue, now, max,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: receive query failed: %w", ErrUnavailable, err)
	}

	var msgs []*Message
	for rows.Next() {
		msg := &Message{Queue: queue}
		var enqueuedMilli int64
		if err := rows.Scan(&msg.ID, &msg.Body, &enqueuedMilli, &msg.DeliveryCount); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("%w: receive scan failed: %w", ErrUnavailable, err)
		}
		msg.EnqueuedAt = time.UnixMilli(enqueuedMilli).UTC()
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("%w: receive rows failed: %w", ErrUnavailable, err)
	}
	_ = rows.Close()

	lockedUntil := now + b.lock.Milliseconds()
	for _, msg := range msgs {
		msg.DeliveryCount++
		if _, err := tx.ExecContext(ctx,
			`UPDATE messages SET locked_until = ?, delivery_count = ? WHERE id = ?`,
			lockedUntil, msg.DeliveryCount, msg.ID,
		); err != nil {
			return nil, fmt.Errorf("%w: receive lock failed: %w", ErrUnavailable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: receive commit failed: %w", ErrUnavailable, err)
	}
	return msgs, nil
}

func (b *SQLiteBroker) Complete(ctx context.Context, msg *Message) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, msg.ID); err != nil {
		return fmt.Errorf("failed to complete message %s: %w", msg.ID, err)
	}
	b.logger.Debug("Completed message %s on %s", msg.ID, msg.Queue)
	return nil
}

func (b *SQLiteBroker) DeadLetter(ctx context.Context, msg *Message, reason, description string) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to dead-letter message %s: %w", msg.ID, err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().UnixMilli()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO dead_letters (id, queue, body, enqueued_at, delivery_count, reason, description, dead_lettered_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.Queue, msg.Body, msg.EnqueuedAt.UnixMilli(), msg.DeliveryCount, reason, description, now,
	); err != nil {
		return fmt.Errorf("failed to dead-letter message %s: %w", msg.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, msg.ID); err != nil {
		return fmt.Errorf("failed to dead-letter message %s: %w", msg.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to dead-letter message %s: %w", msg.ID, err)
	}

	b.logger.Warn("Dead-lettered message %s on %s: %s (%s)", msg.ID, msg.Queue, reason, description)
	return nil
}

func (b *SQLiteBroker) Abandon(ctx context.Context, msg *Message) error {
	if _, err := b.db.ExecContext(ctx,
		`UPDATE messages SET locked_until = 0 WHERE id = ?`, msg.ID,
	); err != nil {
		return fmt.Errorf("failed to abandon message %s: %w", msg.ID, err)
	}
	b.logger.Debug("Abandoned message %s on %s", msg.ID, msg.Queue)
	return nil
}

func (b *SQLiteBroker) Depth(ctx context.Context, queue string) (int, error) {
	var depth int
	err := b.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE queue = ?`, queue,
	).Scan(&depth)
	if err != nil {
		return 0, fmt.Errorf("%w: depth query failed: %w", ErrUnavailable, err)
	}
	return depth, nil
}

// DeadLetters returns up to max entries from the inspection channel, newest first.
func (b *SQLiteBroker) DeadLetters(ctx context.Context, queue string, max int) ([]*DeadMessage, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, body, enqueued_at, delivery_count, reason, description, dead_lettered_at
		 FROM dead_letters
		 WHERE queue = ?
		 ORDER BY dead_lettered_at DESC
		 LIMIT ?`,
		queue, max,
	)
	if err != nil {
		return nil, fmt.Errorf("dead letter query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var dead []*DeadMessage
	for rows.Next() {
		dm := &DeadMessage{}
		dm.Queue = queue
		var enqueuedMilli, deadMilli int64
		var description sql.NullString
		if err := rows.Scan(&dm.ID, &dm.Body, &enqueuedMilli, &dm.DeliveryCount, &dm.Reason, &description, &deadMilli); err != nil {
			return nil, fmt.Errorf("dead letter scan failed: %w", err)
		}
		dm.EnqueuedAt = time.UnixMilli(enqueuedMilli).UTC()
		dm.DeadLettered = time.UnixMilli(deadMilli).UTC()
		dm.Description = description.String
		dead = append(dead, dm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dead letter rows failed: %w", err)
	}
	return dead, nil
}

func (b *SQLiteBroker) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close queue database: %w", err)
	}
	return nil
}
