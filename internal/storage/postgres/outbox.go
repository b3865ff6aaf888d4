package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
)

const defaultOutboxBatch = 100

type outboxRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewOutboxRepository держит очередь уведомлений в notification_outbox.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepository{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *outboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.EnqueuedAt = r.now()

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_outbox (id, aggregate_type, aggregate_id, event_type, payload, enqueued_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, msg.EnqueuedAt); err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("enqueue notification: %w", err)
	}
	return msg, nil
}

func (r *outboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultOutboxBatch
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, enqueued_at
		FROM notification_outbox
		WHERE state = 'queued'
		ORDER BY enqueued_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("select queued notifications: %w", err)
	}
	defer rows.Close()

	var batch []domain.OutboxMessage
	for rows.Next() {
		var msg domain.OutboxMessage
		if err := rows.Scan(&msg.ID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Payload, &msg.EnqueuedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		msg.EnqueuedAt = msg.EnqueuedAt.UTC()
		batch = append(batch, msg)
	}
	return batch, rows.Err()
}

// Stats считает очередь и мёртвые сообщения одним проходом.
func (r *outboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE state = 'queued'),
			COUNT(*) FILTER (WHERE state = 'dead'),
			MIN(enqueued_at) FILTER (WHERE state = 'queued')
		FROM notification_outbox
	`).Scan(&stats.PendingCount, &stats.DeadCount, &oldest)
	if err != nil {
		return domain.OutboxStats{}, fmt.Errorf("notification outbox stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}
	return stats, nil
}

func (r *outboxRepository) MarkDelivered(ctx context.Context, id string, attempts int) error {
	return r.close(ctx, id, "delivered", attempts, "")
}

func (r *outboxRepository) MarkDead(ctx context.Context, id string, attempts int, lastError string) error {
	return r.close(ctx, id, "dead", attempts, lastError)
}

func (r *outboxRepository) close(ctx context.Context, id, state string, attempts int, lastError string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE notification_outbox
		SET state = $2, attempts = attempts + $3, last_error = $4, closed_at = $5
		WHERE id = $1 AND state = 'queued'
	`, id, state, attempts, lastError, r.now())
	if err != nil {
		return fmt.Errorf("mark notification %s %s: %w", id, state, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("notification rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOutboxMessageNotFound
	}
	return nil
}
