package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
)

type timelineRepository struct {
	db *sql.DB
}

// NewTimelineRepository хранит историю заказов в order_timeline.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{db: store.DB()}
}

func (r *timelineRepository) Append(ctx context.Context, entry domain.TimelineEntry) (domain.TimelineEntry, error) {
	if entry.OrderID == "" {
		return domain.TimelineEntry{}, domain.ErrOrderIDRequired
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO order_timeline (order_id, kind, from_status, to_status, detail, at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq
	`, entry.OrderID, string(entry.Kind), string(entry.From), string(entry.To), entry.Detail, entry.At).Scan(&entry.Seq)
	if err != nil {
		return domain.TimelineEntry{}, fmt.Errorf("append timeline entry: %w", err)
	}
	return entry, nil
}

func (r *timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT seq, order_id, kind, from_status, to_status, detail, at
		FROM order_timeline
		WHERE order_id = $1
		ORDER BY seq
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	defer rows.Close()

	var entries []domain.TimelineEntry
	for rows.Next() {
		var (
			e        domain.TimelineEntry
			kind     string
			from, to string
		)
		if err := rows.Scan(&e.Seq, &e.OrderID, &kind, &from, &to, &e.Detail, &e.At); err != nil {
			return nil, fmt.Errorf("scan timeline entry: %w", err)
		}
		e.Kind = domain.TimelineKind(kind)
		e.From = domain.OrderStatus(from)
		e.To = domain.OrderStatus(to)
		e.At = e.At.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
