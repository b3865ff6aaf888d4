// Package orders реализует сценарии работы с заказами поверх доменных портов.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
	"github.com/vladislavdragonenkov/lahmacun/internal/metrics"
	"github.com/vladislavdragonenkov/lahmacun/internal/realtime"
)

const (
	defaultListLimit      = 100
	maxListLimit          = 500
	defaultIdempotencyTTL = 24 * time.Hour
)

// ChangeSubscriber выдаёт поток изменений заказов.
type ChangeSubscriber interface {
	Subscribe(orderID string, fn realtime.Listener) func()
}

// Dependencies: порты, из которых собирается Service.
// Outbox, Timeline, Idempotency, Changes и Subscriber необязательны.
type Dependencies struct {
	Orders      domain.OrderRepository
	Numbers     domain.NumberAllocator
	Timeline    domain.TimelineRepository
	Outbox      domain.OutboxRepository
	Idempotency domain.PlacementClaimRepository
	Changes     domain.ChangePublisher
	Subscriber  ChangeSubscriber
	Metrics     *metrics.OrderMetrics
	Logger      *log.Entry

	IdempotencyTTL time.Duration
	// Location задаёт границу суток для статистики.
	Location *time.Location
	Clock    func() time.Time
}

// Service: прикладной слой заказов.
type Service struct {
	orders      domain.OrderRepository
	numbers     domain.NumberAllocator
	timeline    domain.TimelineRepository
	outbox      domain.OutboxRepository
	idempotency domain.PlacementClaimRepository
	changes     domain.ChangePublisher
	subscriber  ChangeSubscriber
	metrics     *metrics.OrderMetrics
	logger      *log.Entry

	idempotencyTTL time.Duration
	location       *time.Location
	now            func() time.Time
}

// NewService проверяет обязательные зависимости.
func NewService(deps Dependencies) (*Service, error) {
	if deps.Orders == nil {
		return nil, errors.New("order repository is required")
	}
	if deps.Numbers == nil {
		return nil, errors.New("order number allocator is required")
	}

	s := &Service{
		orders:         deps.Orders,
		numbers:        deps.Numbers,
		timeline:       deps.Timeline,
		outbox:         deps.Outbox,
		idempotency:    deps.Idempotency,
		changes:        deps.Changes,
		subscriber:     deps.Subscriber,
		metrics:        deps.Metrics,
		logger:         deps.Logger,
		idempotencyTTL: deps.IdempotencyTTL,
		location:       deps.Location,
		now:            deps.Clock,
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "order-service")
	}
	if s.idempotencyTTL <= 0 {
		s.idempotencyTTL = defaultIdempotencyTTL
	}
	if s.location == nil {
		s.location = time.Local
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s, nil
}

// PlaceOrderInput: данные формы и необязательный ключ идемпотентности.
type PlaceOrderInput struct {
	Customer       domain.CustomerData
	IdempotencyKey string
}

// PlaceOrderResult описывает созданный (или повторно выданный) заказ.
type PlaceOrderResult struct {
	Order domain.Order
	// NotificationQueued false, если уведомление не удалось поставить в очередь.
	// Заказ при этом сохранён.
	NotificationQueued bool
	// Replayed true, если заказ вернулся по уже использованному ключу.
	Replayed bool
}

// PlaceOrder валидирует форму, выдаёт номер и сохраняет заказ в статусе pending.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (PlaceOrderResult, error) {
	customer := in.Customer.Normalize()
	if err := domain.NewValidationError(customer.Validate()); err != nil {
		return PlaceOrderResult{}, err
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" || s.idempotency == nil {
		return s.placeOrder(ctx, customer)
	}
	return s.placeOrderClaimed(ctx, key, customer)
}

func (s *Service) placeOrder(ctx context.Context, customer domain.CustomerData) (PlaceOrderResult, error) {
	number, err := s.numbers.Allocate(ctx)
	if err != nil {
		return PlaceOrderResult{}, fmt.Errorf("allocate order number: %w", err)
	}

	now := s.now()
	order := domain.Order{
		ID:        uuid.NewString(),
		Number:    number,
		Status:    domain.OrderStatusPending,
		Customer:  customer,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := domain.NewValidationError(order.ValidateInvariants()); err != nil {
		return PlaceOrderResult{}, err
	}

	if err := s.orders.Create(ctx, order); err != nil {
		s.logger.WithError(err).WithField("order_number", number).Error("failed to create order")
		return PlaceOrderResult{}, fmt.Errorf("create order: %w", err)
	}

	entry := s.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.Number,
		"mode":         order.Customer.DeliveryMode,
	})
	entry.Info("order placed")

	s.metrics.RecordOrderPlaced(string(order.Customer.DeliveryMode))
	s.appendTimeline(ctx, domain.PlacedEntry(order))
	queued := s.enqueue(ctx, order, func(o domain.Order) (domain.OutboxMessage, error) {
		return domain.NewOrderPlacedMessage(o)
	})
	if !queued {
		entry.Warn("order placed without queued notification")
	}
	s.publishChange(ctx, order)

	return PlaceOrderResult{Order: order, NotificationQueued: queued}, nil
}

// GetOrder возвращает заказ по идентификатору.
func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	return s.orders.Get(ctx, id)
}

// GetOrderByNumber ищет заказ по публичному номеру ORDER-NNN.
func (s *Service) GetOrderByNumber(ctx context.Context, number string) (domain.Order, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	if _, err := domain.ParseOrderNumber(number); err != nil {
		return domain.Order{}, err
	}
	return s.orders.GetByNumber(ctx, number)
}

// ListOrders возвращает заказы для админки от новых к старым.
func (s *Service) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	for _, st := range filter.Statuses {
		if !st.Known() {
			return nil, fmt.Errorf("filter status %q: %w", st, domain.ErrInvalidStatus)
		}
	}
	if filter.Mode != "" && !filter.Mode.Valid() {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidOrder, domain.ErrDeliveryModeInvalid)
	}
	filter.Search = strings.TrimSpace(filter.Search)
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultListLimit
	case filter.Limit > maxListLimit:
		filter.Limit = maxListLimit
	}
	return s.orders.List(ctx, filter)
}

// Stats считает сводку относительно начала текущих суток.
func (s *Service) Stats(ctx context.Context) (domain.OrderStats, error) {
	now := s.now().In(s.location)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.location)
	return s.orders.Stats(ctx, dayStart)
}

// Timeline возвращает историю заказа.
func (s *Service) Timeline(ctx context.Context, id string) ([]domain.TimelineEntry, error) {
	if _, err := s.GetOrder(ctx, id); err != nil {
		return nil, err
	}
	if s.timeline == nil {
		return nil, nil
	}
	return s.timeline.List(ctx, id)
}

// Subscribe подписывает fn на изменения заказа; пустой orderID: на все заказы.
func (s *Service) Subscribe(orderID string, fn realtime.Listener) func() {
	if s.subscriber == nil {
		return func() {}
	}
	return s.subscriber.Subscribe(orderID, fn)
}

func (s *Service) appendTimeline(ctx context.Context, entry domain.TimelineEntry) {
	if s.timeline == nil {
		return
	}
	if _, err := s.timeline.Append(ctx, entry); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": entry.OrderID,
			"kind":     entry.Kind,
		}).Warn("failed to append timeline entry")
		return
	}
	s.metrics.RecordTimelineEvent()
}

// enqueue ставит сообщение в outbox. Ошибка не откатывает уже сохранённый заказ.
func (s *Service) enqueue(ctx context.Context, order domain.Order, build func(domain.Order) (domain.OutboxMessage, error)) bool {
	if s.outbox == nil {
		return false
	}
	msg, err := build(order)
	if err == nil {
		_, err = s.outbox.Enqueue(ctx, msg)
	}
	s.metrics.RecordOutboxEnqueue(msg.EventType, err == nil)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id":   order.ID,
			"event_type": msg.EventType,
		}).Error("failed to enqueue outbox message")
		return false
	}
	return true
}

func (s *Service) publishChange(ctx context.Context, order domain.Order) {
	if s.changes == nil {
		return
	}
	if err := s.changes.PublishChange(ctx, order); err != nil {
		s.metrics.RecordChangeFeedError()
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to publish order change")
	}
}
