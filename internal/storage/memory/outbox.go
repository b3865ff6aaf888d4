package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
)

type outboxState uint8

const (
	outboxQueued outboxState = iota
	outboxDelivered
	outboxDead
)

type outboxSlot struct {
	msg       domain.OutboxMessage
	state     outboxState
	attempts  int
	lastError string
}

// OutboxQueue: очередь уведомлений в памяти. Слоты хранятся в порядке
// постановки, поэтому PullPending не сортирует.
type OutboxQueue struct {
	mu    sync.Mutex
	slots []*outboxSlot
	byID  map[string]*outboxSlot
	now   func() time.Time
}

func NewOutboxRepository() *OutboxQueue {
	return &OutboxQueue{
		byID: make(map[string]*outboxSlot),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (q *OutboxQueue) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Payload = append([]byte(nil), msg.Payload...)
	msg.EnqueuedAt = q.now()

	slot := &outboxSlot{msg: msg}
	q.slots = append(q.slots, slot)
	q.byID[msg.ID] = slot
	return msg, nil
}

func (q *OutboxQueue) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	var batch []domain.OutboxMessage
	for _, slot := range q.slots {
		if len(batch) == limit {
			break
		}
		if slot.state == outboxQueued {
			batch = append(batch, slot.msg)
		}
	}
	return batch, nil
}

func (q *OutboxQueue) Stats(_ context.Context) (domain.OutboxStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var stats domain.OutboxStats
	for _, slot := range q.slots {
		switch slot.state {
		case outboxQueued:
			if stats.PendingCount == 0 {
				stats.OldestPendingAt = slot.msg.EnqueuedAt
			}
			stats.PendingCount++
		case outboxDead:
			stats.DeadCount++
		}
	}
	return stats, nil
}

func (q *OutboxQueue) MarkDelivered(_ context.Context, id string, attempts int) error {
	return q.close(id, outboxDelivered, attempts, "")
}

func (q *OutboxQueue) MarkDead(_ context.Context, id string, attempts int, lastError string) error {
	return q.close(id, outboxDead, attempts, lastError)
}

// Dead возвращает сообщения, для которых исчерпаны попытки, с последней ошибкой.
func (q *OutboxQueue) Dead() map[string]string {
	q.mu.Lock()
	defer q.mu.Unlock()

	dead := make(map[string]string)
	for _, slot := range q.slots {
		if slot.state == outboxDead {
			dead[slot.msg.ID] = slot.lastError
		}
	}
	return dead
}

func (q *OutboxQueue) close(id string, state outboxState, attempts int, lastError string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	slot, ok := q.byID[id]
	if !ok || slot.state != outboxQueued {
		return domain.ErrOutboxMessageNotFound
	}
	slot.state = state
	slot.attempts += attempts
	slot.lastError = lastError

	// закрытые слоты в начале очереди больше не нужны
	for len(q.slots) > 0 && q.slots[0].state != outboxQueued && q.slots[0].state != outboxDead {
		delete(q.byID, q.slots[0].msg.ID)
		q.slots = q.slots[1:]
	}
	return nil
}

var _ domain.OutboxRepository = (*OutboxQueue)(nil)
