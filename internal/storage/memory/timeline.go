package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
)

// TimelineLog: история заказов в памяти. Seq сквозной для всех заказов,
// как у BIGSERIAL в PostgreSQL.
type TimelineLog struct {
	mu      sync.Mutex
	lastSeq int64
	byOrder map[string][]domain.TimelineEntry
}

func NewTimelineRepository() *TimelineLog {
	return &TimelineLog{byOrder: make(map[string][]domain.TimelineEntry)}
}

func (l *TimelineLog) Append(_ context.Context, entry domain.TimelineEntry) (domain.TimelineEntry, error) {
	if entry.OrderID == "" {
		return domain.TimelineEntry{}, domain.ErrOrderIDRequired
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastSeq++
	entry.Seq = l.lastSeq
	l.byOrder[entry.OrderID] = append(l.byOrder[entry.OrderID], entry)
	return entry, nil
}

func (l *TimelineLog) List(_ context.Context, orderID string) ([]domain.TimelineEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return slices.Clone(l.byOrder[orderID]), nil
}

var _ domain.TimelineRepository = (*TimelineLog)(nil)
