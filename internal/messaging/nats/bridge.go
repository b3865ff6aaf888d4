// Package nats пересылает изменения заказов между инстансами через NATS.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
)

// SubjectOrderChanged: subject, в который публикуется каждое изменение заказа.
const SubjectOrderChanged = "lahmacun.orders.changed"

// LocalPublisher принимает изменения, пришедшие из NATS (обычно realtime.Hub).
type LocalPublisher interface {
	Publish(ctx context.Context, order domain.Order)
}

// Dial подключается к NATS с бесконечным переподключением.
func Dial(url, clientName string) (*nats.Conn, error) {
	if url == "" {
		return nil, errors.New("nats url is empty")
	}
	conn, err := nats.Connect(url,
		nats.Name(clientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// Bridge публикует изменения в NATS и доставляет входящие в локальный хаб.
// Локальный хаб получает и собственные изменения инстанса, поэтому сервис
// публикует только в Bridge, а не в хаб напрямую.
type Bridge struct {
	conn    *nats.Conn
	local   LocalPublisher
	subject string
	logger  *log.Entry

	mu  sync.Mutex
	sub *nats.Subscription
}

// NewBridge создаёт мост поверх готового подключения.
func NewBridge(conn *nats.Conn, local LocalPublisher, logger *log.Entry) *Bridge {
	if logger == nil {
		logger = log.WithField("component", "nats-bridge")
	}
	return &Bridge{
		conn:    conn,
		local:   local,
		subject: SubjectOrderChanged,
		logger:  logger,
	}
}

// PublishChange реализует domain.ChangePublisher.
func (b *Bridge) PublishChange(_ context.Context, order domain.Order) error {
	data, err := encodeOrder(order)
	if err != nil {
		return err
	}
	if err := b.conn.Publish(b.subject, data); err != nil {
		return fmt.Errorf("publish order change to nats: %w", err)
	}
	return nil
}

// Start подписывается на subject; подписка снимается при отмене ctx.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sub != nil {
		return errors.New("nats bridge already started")
	}

	sub, err := b.conn.Subscribe(b.subject, func(msg *nats.Msg) {
		b.handle(ctx, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.subject, err)
	}
	b.sub = sub

	go func() {
		<-ctx.Done()
		b.stop()
	}()

	b.logger.WithField("subject", b.subject).Info("nats bridge started")
	return nil
}

// Healthy сообщает, что подключение к NATS активно.
func (b *Bridge) Healthy() bool {
	return b.conn != nil && b.conn.IsConnected()
}

// Close снимает подписку и закрывает подключение.
func (b *Bridge) Close() {
	b.stop()
	if b.conn != nil {
		b.conn.Close()
	}
}

func (b *Bridge) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sub == nil {
		return
	}
	if err := b.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		b.logger.WithError(err).Warn("failed to unsubscribe nats bridge")
	}
	b.sub = nil
}

func (b *Bridge) handle(ctx context.Context, data []byte) {
	order, err := decodeOrder(data)
	if err != nil {
		b.logger.WithError(err).Warn("dropping malformed order change")
		return
	}
	b.local.Publish(ctx, order)
}

// orderMessage: JSON-представление заказа в subject.
type orderMessage struct {
	ID           string    `json:"id"`
	Number       string    `json:"number"`
	Status       string    `json:"status"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	Phone        string    `json:"phone"`
	DeliveryMode string    `json:"delivery_mode"`
	Address      string    `json:"address,omitempty"`
	Quantity     int       `json:"quantity"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func encodeOrder(order domain.Order) ([]byte, error) {
	c := order.Customer
	data, err := json.Marshal(orderMessage{
		ID:           order.ID,
		Number:       order.Number,
		Status:       string(order.Status),
		Name:         c.Name,
		Email:        c.Email,
		Phone:        c.Phone,
		DeliveryMode: string(c.DeliveryMode),
		Address:      c.Address,
		Quantity:     c.Quantity,
		Notes:        c.Notes,
		CreatedAt:    order.CreatedAt,
		UpdatedAt:    order.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal order change: %w", err)
	}
	return data, nil
}

func decodeOrder(data []byte) (domain.Order, error) {
	var msg orderMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.Order{}, fmt.Errorf("unmarshal order change: %w", err)
	}
	if msg.ID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	return domain.Order{
		ID:     msg.ID,
		Number: msg.Number,
		Status: domain.OrderStatus(msg.Status),
		Customer: domain.CustomerData{
			Name:         msg.Name,
			Email:        msg.Email,
			Phone:        msg.Phone,
			DeliveryMode: domain.DeliveryMode(msg.DeliveryMode),
			Address:      msg.Address,
			Quantity:     msg.Quantity,
			Notes:        msg.Notes,
		},
		CreatedAt: msg.CreatedAt,
		UpdatedAt: msg.UpdatedAt,
	}, nil
}

var _ domain.ChangePublisher = (*Bridge)(nil)
