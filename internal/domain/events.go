package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Типы событий outbox.
const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"

	AggregateOrder = "order"
)

// OrderPlacedPayload: тело события о новом заказе, из него собираются письма.
type OrderPlacedPayload struct {
	OrderID      string       `json:"orderId"`
	Number       string       `json:"orderNumber"`
	Name         string       `json:"name"`
	Email        string       `json:"email,omitempty"`
	Phone        string       `json:"phone"`
	DeliveryMode DeliveryMode `json:"deliveryMode"`
	Address      string       `json:"address,omitempty"`
	Quantity     int          `json:"quantity"`
	Notes        string       `json:"notes,omitempty"`
	PlacedAt     time.Time    `json:"placedAt"`
}

// OrderStatusChangedPayload: тело события о смене статуса.
type OrderStatusChangedPayload struct {
	OrderID   string      `json:"orderId"`
	Number    string      `json:"orderNumber"`
	From      OrderStatus `json:"from"`
	To        OrderStatus `json:"to"`
	ChangedAt time.Time   `json:"changedAt"`
}

// NewOrderPlacedMessage готовит outbox-сообщение для нового заказа.
// Идентификатор сообщения назначает репозиторий.
func NewOrderPlacedMessage(order Order) (OutboxMessage, error) {
	payload, err := json.Marshal(OrderPlacedPayload{
		OrderID:      order.ID,
		Number:       order.Number,
		Name:         order.Customer.Name,
		Email:        order.Customer.Email,
		Phone:        order.Customer.Phone,
		DeliveryMode: order.Customer.DeliveryMode,
		Address:      order.Customer.Address,
		Quantity:     order.Customer.Quantity,
		Notes:        order.Customer.Notes,
		PlacedAt:     order.CreatedAt,
	})
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal order placed payload: %w", err)
	}
	return OutboxMessage{
		AggregateType: AggregateOrder,
		AggregateID:   order.ID,
		EventType:     EventOrderPlaced,
		Payload:       payload,
	}, nil
}

// NewStatusChangedMessage готовит outbox-сообщение о переходе from -> order.Status.
func NewStatusChangedMessage(order Order, from OrderStatus) (OutboxMessage, error) {
	payload, err := json.Marshal(OrderStatusChangedPayload{
		OrderID:   order.ID,
		Number:    order.Number,
		From:      from,
		To:        order.Status,
		ChangedAt: order.UpdatedAt,
	})
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal status changed payload: %w", err)
	}
	return OutboxMessage{
		AggregateType: AggregateOrder,
		AggregateID:   order.ID,
		EventType:     EventOrderStatusChanged,
		Payload:       payload,
	}, nil
}

// DecodeOrderPlaced разбирает тело события OrderPlaced.
func DecodeOrderPlaced(payload []byte) (OrderPlacedPayload, error) {
	var p OrderPlacedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return OrderPlacedPayload{}, fmt.Errorf("decode order placed payload: %w", err)
	}
	if p.OrderID == "" {
		return OrderPlacedPayload{}, ErrOrderIDRequired
	}
	return p, nil
}
