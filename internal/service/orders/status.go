package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
)

// AdvanceResult: итог запроса на перевод статуса.
type AdvanceResult struct {
	Order domain.Order
	From  domain.OrderStatus
	// Advanced false, если заказ уже в финальном или неизвестном статусе.
	Advanced bool
}

// AdvanceStatus переводит заказ в следующий статус его режима.
//
// expected, если задан, должен совпадать с текущим статусом, иначе
// возвращается ErrStatusConflict: повтор уже выполненного запроса не
// перескакивает через статус. Финальный или неизвестный статус даёт
// результат без перехода, а не ошибку.
func (s *Service) AdvanceStatus(ctx context.Context, id string, expected domain.OrderStatus) (AdvanceResult, error) {
	if expected != "" && !expected.Known() {
		return AdvanceResult{}, fmt.Errorf("expected status %q: %w", expected, domain.ErrInvalidStatus)
	}

	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return AdvanceResult{}, err
	}

	entry := s.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.Number,
		"status":       order.Status,
	})

	if expected != "" && expected != order.Status {
		s.metrics.RecordAdvanceConflict()
		entry.WithField("expected", expected).Info("advance rejected: status changed")
		return AdvanceResult{Order: order, From: order.Status}, fmt.Errorf("advance order %s: %w", order.ID, domain.ErrStatusConflict)
	}

	if !order.CanAdvance() {
		s.metrics.RecordAdvanceNoop()
		entry.Debug("advance ignored: no next status")
		return AdvanceResult{Order: order, From: order.Status}, nil
	}

	from := order.Status
	next := order.NextStatus()
	updated, err := s.orders.CompareAndSetStatus(ctx, order.ID, from, next, s.now())
	if err != nil {
		if domain.IsStatusConflict(err) {
			s.metrics.RecordAdvanceConflict()
		}
		return AdvanceResult{Order: order, From: from}, fmt.Errorf("advance order %s: %w", order.ID, err)
	}

	entry.WithField("next", next).Info("order status advanced")
	s.metrics.RecordStatusTransition(string(from), string(next))
	s.appendTimeline(ctx, domain.StatusEntry(updated, from))
	s.enqueue(ctx, updated, func(o domain.Order) (domain.OutboxMessage, error) {
		return domain.NewStatusChangedMessage(o, from)
	})
	s.publishChange(ctx, updated)

	return AdvanceResult{Order: updated, From: from, Advanced: true}, nil
}

// UpdateNotes меняет заметки клиента. Пока заказ готовится, возвращается ErrNotesLocked.
// Одновременные правки в разрешённом окне: побеждает последняя.
func (s *Service) UpdateNotes(ctx context.Context, id, notes string) (domain.Order, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	notes = strings.TrimSpace(notes)
	if err := domain.ValidateNotes(notes); err != nil {
		s.metrics.RecordNotesUpdate("invalid")
		return domain.Order{}, err
	}

	updated, err := s.orders.UpdateNotes(ctx, id, notes, s.now())
	if err != nil {
		result := "error"
		switch {
		case errors.Is(err, domain.ErrNotesLocked):
			result = "locked"
		case errors.Is(err, domain.ErrOrderNotFound):
			result = "not_found"
		}
		s.metrics.RecordNotesUpdate(result)
		return domain.Order{}, fmt.Errorf("update notes of order %s: %w", id, err)
	}

	s.metrics.RecordNotesUpdate("updated")
	s.logger.WithField("order_id", updated.ID).Info("order notes updated")
	s.appendTimeline(ctx, domain.NotesEntry(updated))
	s.publishChange(ctx, updated)

	return updated, nil
}
