package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewOrderPlacedMessage_RoundTrip(t *testing.T) {
	placedAt := time.Date(2026, 4, 19, 18, 30, 0, 0, time.UTC)
	order := Order{
		ID:     "order-1",
		Number: "ORDER-007",
		Status: OrderStatusPending,
		Customer: CustomerData{
			Name:         "Ayhan",
			Email:        "ayhan@example.com",
			Phone:        "0600000000",
			DeliveryMode: DeliveryModeDelivery,
			Address:      "1 rue de la Paix",
			Quantity:     3,
			Notes:        "sans oignons",
		},
		CreatedAt: placedAt,
	}

	msg, err := NewOrderPlacedMessage(order)
	if err != nil {
		t.Fatalf("new order placed message: %v", err)
	}
	if msg.EventType != EventOrderPlaced || msg.AggregateType != AggregateOrder || msg.AggregateID != "order-1" {
		t.Fatalf("unexpected message header: %+v", msg)
	}
	if msg.ID != "" {
		t.Fatalf("message id must be left to the repository, got %q", msg.ID)
	}

	payload, err := DecodeOrderPlaced(msg.Payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Number != "ORDER-007" || payload.Quantity != 3 || payload.Address != "1 rue de la Paix" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if !payload.PlacedAt.Equal(placedAt) {
		t.Fatalf("placedAt mismatch: %s", payload.PlacedAt)
	}
}

func TestDecodeOrderPlaced_Errors(t *testing.T) {
	if _, err := DecodeOrderPlaced([]byte("{")); err == nil {
		t.Fatal("expected error for broken json")
	}
	if _, err := DecodeOrderPlaced([]byte(`{"orderNumber":"ORDER-001"}`)); !errors.Is(err, ErrOrderIDRequired) {
		t.Fatalf("expected ErrOrderIDRequired, got %v", err)
	}
}

func TestNewStatusChangedMessage(t *testing.T) {
	order := Order{ID: "order-2", Number: "ORDER-002", Status: OrderStatusPreparing}
	msg, err := NewStatusChangedMessage(order, OrderStatusPending)
	if err != nil {
		t.Fatalf("new status changed message: %v", err)
	}
	if msg.EventType != EventOrderStatusChanged {
		t.Fatalf("unexpected event type %q", msg.EventType)
	}
	want := `"from":"pending","to":"preparing"`
	if got := string(msg.Payload); !strings.Contains(got, want) {
		t.Fatalf("payload %s does not contain %s", got, want)
	}
}
