// Package realtime раздаёт изменения заказов подписчикам внутри процесса.
package realtime

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
)

// Listener получает актуальное состояние заказа после изменения.
type Listener func(order domain.Order)

type subscription struct {
	id      uint64
	orderID string
	fn      Listener
}

// Hub хранит подписки и рассылает им изменения.
// Пустой orderID при подписке означает "все заказы".
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]subscription
	logger *log.Entry
}

// NewHub создаёт пустой хаб.
func NewHub(logger *log.Entry) *Hub {
	if logger == nil {
		logger = log.WithField("component", "realtime-hub")
	}
	return &Hub{
		subs:   make(map[uint64]subscription),
		logger: logger,
	}
}

// Subscribe регистрирует слушателя. Возвращённая функция отписывает его,
// повторный вызов ничего не делает.
func (h *Hub) Subscribe(orderID string, fn Listener) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = subscription{id: id, orderID: orderID, fn: fn}
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Publish синхронно вызывает слушателей по снимку подписок.
// Паника в слушателе логируется и не мешает остальным.
func (h *Hub) Publish(_ context.Context, order domain.Order) {
	for _, sub := range h.snapshot(order.ID) {
		h.deliver(sub, order)
	}
}

// PublishChange реализует domain.ChangePublisher.
func (h *Hub) PublishChange(ctx context.Context, order domain.Order) error {
	h.Publish(ctx, order)
	return nil
}

// Subscribers возвращает число активных подписок.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) snapshot(orderID string) []subscription {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		if sub.orderID == "" || sub.orderID == orderID {
			out = append(out, sub)
		}
	}
	return out
}

func (h *Hub) deliver(sub subscription, order domain.Order) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.WithFields(log.Fields{
				"order_id": order.ID,
				"panic":    r,
			}).Error("change listener panicked")
		}
	}()
	sub.fn(order)
}

var _ domain.ChangePublisher = (*Hub)(nil)
