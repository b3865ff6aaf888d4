package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
	"github.com/vladislavdragonenkov/lahmacun/internal/metrics"
)

// Dispatcher превращает outbox-события в письма.
// Реализует domain.OutboxPublisher, поэтому работает и в outbox-воркере,
// и в Kafka-консьюмере cmd/notifier.
type Dispatcher struct {
	renderer      *Renderer
	sender        Sender
	operatorEmail string
	metrics       *metrics.NotificationMetrics
	logger        *log.Entry

	mu sync.Mutex
	// письма, уже ушедшие по сообщению, которое ещё не доставлено целиком
	delivered map[string]map[string]struct{}
	// порядок появления сообщений в delivered, для вытеснения старых
	tracked    []string
	maxTracked int
}

const defaultMaxTracked = 10000

// DispatcherOption настраивает Dispatcher.
type DispatcherOption func(*Dispatcher)

func WithDispatcherLogger(logger *log.Entry) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithDispatcherMetrics(m *metrics.NotificationMetrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithMaxTracked ограничивает число сообщений с частично отправленными письмами.
func WithMaxTracked(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxTracked = n
		}
	}
}

// NewDispatcher создаёт диспетчер. Пустой operatorEmail отключает письмо ресторану.
func NewDispatcher(renderer *Renderer, sender Sender, operatorEmail string, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		renderer:      renderer,
		sender:        sender,
		operatorEmail: strings.TrimSpace(operatorEmail),
		logger:        log.WithField("component", "notification-dispatcher"),
		delivered:     make(map[string]map[string]struct{}),
		maxTracked:    defaultMaxTracked,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Publish отправляет письма по событию OrderPlaced. Прочие события подтверждаются без отправки.
// При повторной доставке того же сообщения уже отправленные письма не дублируются.
func (d *Dispatcher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	if msg.EventType != domain.EventOrderPlaced {
		return nil
	}
	if d.renderer == nil || d.sender == nil {
		return errors.New("notification dispatcher is not configured")
	}

	payload, err := domain.DecodeOrderPlaced(msg.Payload)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrOutboxPublish, err)
	}

	entry := d.logger.WithFields(log.Fields{
		"outbox_id":    msg.ID,
		"order_id":     payload.OrderID,
		"order_number": payload.Number,
	})

	if d.operatorEmail != "" {
		err := d.sendOnce(ctx, msg.ID, TemplateOperatorReceipt, func() (Email, error) {
			email, err := d.renderer.OperatorReceipt(payload)
			email.To = d.operatorEmail
			return email, err
		})
		if err != nil {
			entry.WithError(err).Warn("operator receipt was not sent")
			return err
		}
	}

	if payload.Email != "" && payload.Number != "" {
		err := d.sendOnce(ctx, msg.ID, TemplateCustomerConfirmation, func() (Email, error) {
			return d.renderer.CustomerConfirmation(payload)
		})
		if err != nil {
			entry.WithError(err).Warn("customer confirmation was not sent")
			return err
		}
	}

	d.Forget(msg.ID)
	entry.Debug("order notifications sent")
	return nil
}

func (d *Dispatcher) sendOnce(ctx context.Context, msgID, template string, build func() (Email, error)) error {
	if msgID != "" && d.wasDelivered(msgID, template) {
		return nil
	}

	email, err := build()
	if err != nil {
		return fmt.Errorf("build %s: %w", template, err)
	}
	err = d.sender.Send(ctx, email)
	d.metrics.RecordSent(template, err)
	if err != nil {
		return fmt.Errorf("send %s: %w", template, err)
	}

	if msgID != "" {
		d.markDelivered(msgID, template)
	}
	return nil
}

func (d *Dispatcher) wasDelivered(msgID, template string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.delivered[msgID][template]
	return ok
}

func (d *Dispatcher) markDelivered(msgID, template string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sent, ok := d.delivered[msgID]
	if !ok {
		sent = make(map[string]struct{}, 2)
		d.delivered[msgID] = sent
		d.tracked = append(d.tracked, msgID)
	}
	sent[template] = struct{}{}

	for len(d.delivered) > d.maxTracked && len(d.tracked) > 0 {
		oldest := d.tracked[0]
		d.tracked = d.tracked[1:]
		delete(d.delivered, oldest)
	}
	if len(d.tracked) > 2*d.maxTracked {
		d.compactTracked()
	}
}

// compactTracked убирает из очереди сообщения, которые уже забыты.
func (d *Dispatcher) compactTracked() {
	live := make([]string, 0, len(d.delivered))
	for _, id := range d.tracked {
		if _, ok := d.delivered[id]; ok {
			live = append(live, id)
		}
	}
	d.tracked = live
}

// Forget сбрасывает отметки об отправленных письмах сообщения.
// Вызывается после полной доставки и когда сообщение уходит в dead.
func (d *Dispatcher) Forget(msgID string) {
	if msgID == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.delivered, msgID)
}

// Tracked возвращает число сообщений с частично отправленными письмами.
func (d *Dispatcher) Tracked() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.delivered)
}

var _ domain.OutboxPublisher = (*Dispatcher)(nil)
