package realtime

import (
	"context"
	"sync"
	"testing"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
)

func TestHub_DeliversToMatchingSubscribers(t *testing.T) {
	hub := NewHub(nil)

	var (
		mu     sync.Mutex
		forA   []domain.OrderStatus
		forAll int
		forB   int
	)
	hub.Subscribe("order-a", func(o domain.Order) {
		mu.Lock()
		defer mu.Unlock()
		forA = append(forA, o.Status)
	})
	hub.Subscribe("", func(domain.Order) {
		mu.Lock()
		defer mu.Unlock()
		forAll++
	})
	hub.Subscribe("order-b", func(domain.Order) {
		mu.Lock()
		defer mu.Unlock()
		forB++
	})

	ctx := context.Background()
	hub.Publish(ctx, domain.Order{ID: "order-a", Status: domain.OrderStatusPending})
	if err := hub.PublishChange(ctx, domain.Order{ID: "order-a", Status: domain.OrderStatusPreparing}); err != nil {
		t.Fatalf("publish change: %v", err)
	}

	if len(forA) != 2 || forA[1] != domain.OrderStatusPreparing {
		t.Fatalf("unexpected deliveries for order-a: %v", forA)
	}
	if forAll != 2 {
		t.Fatalf("wildcard subscriber expected 2 deliveries, got %d", forAll)
	}
	if forB != 0 {
		t.Fatalf("order-b subscriber must not receive order-a changes, got %d", forB)
	}
}

func TestHub_UnsubscribeIsIdempotent(t *testing.T) {
	hub := NewHub(nil)

	calls := 0
	cancel := hub.Subscribe("order-a", func(domain.Order) { calls++ })
	other := hub.Subscribe("order-a", func(domain.Order) {})

	cancel()
	cancel()

	if got := hub.Subscribers(); got != 1 {
		t.Fatalf("expected 1 subscriber left, got %d", got)
	}

	hub.Publish(context.Background(), domain.Order{ID: "order-a"})
	if calls != 0 {
		t.Fatalf("unsubscribed listener was called %d times", calls)
	}

	other()
	if got := hub.Subscribers(); got != 0 {
		t.Fatalf("expected no subscribers, got %d", got)
	}
}

func TestHub_PanickingListenerDoesNotBreakOthers(t *testing.T) {
	hub := NewHub(nil)

	hub.Subscribe("", func(domain.Order) { panic("boom") })
	delivered := false
	hub.Subscribe("", func(domain.Order) { delivered = true })

	hub.Publish(context.Background(), domain.Order{ID: "order-a"})
	if !delivered {
		t.Fatal("second listener must still be called")
	}
}

func TestHub_UnsubscribeFromListener(t *testing.T) {
	hub := NewHub(nil)

	var cancel func()
	calls := 0
	cancel = hub.Subscribe("", func(domain.Order) {
		calls++
		cancel()
	})

	hub.Publish(context.Background(), domain.Order{ID: "x"})
	hub.Publish(context.Background(), domain.Order{ID: "x"})
	if calls != 1 {
		t.Fatalf("expected a single delivery, got %d", calls)
	}
}
