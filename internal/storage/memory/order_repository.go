package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
)

// orderRepositoryInMemory: простая in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	mu       sync.RWMutex
	items    map[string]domain.Order
	byNumber map[string]string
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items:    make(map[string]domain.Order),
		byNumber: make(map[string]string),
	}
}

// Create сохраняет новый заказ, если ID и номер ещё не заняты.
func (r *orderRepositoryInMemory) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.ErrOrderExists
	}
	if _, exists := r.byNumber[order.Number]; exists {
		return domain.ErrOrderExists
	}
	r.items[order.ID] = order
	r.byNumber[order.Number] = order.ID
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (r *orderRepositoryInMemory) GetByNumber(_ context.Context, number string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byNumber[number]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return r.items[id], nil
}

// List возвращает заказы по фильтру, новые первыми.
func (r *orderRepositoryInMemory) List(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	result := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		if !matchesFilter(order, filter, search) {
			continue
		}
		result = append(result, order)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		ni, _ := domain.ParseOrderNumber(result[i].Number)
		nj, _ := domain.ParseOrderNumber(result[j].Number)
		return ni > nj
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}

	return result, nil
}

// CompareAndSetStatus меняет статус под общей блокировкой, что и даёт атомарность CAS.
func (r *orderRepositoryInMemory) CompareAndSetStatus(_ context.Context, id string, expected, next domain.OrderStatus, at time.Time) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if order.Status != expected {
		return order, domain.ErrStatusConflict
	}
	order.Status = next
	order.UpdatedAt = at
	r.items[id] = order
	return order, nil
}

func (r *orderRepositoryInMemory) UpdateNotes(_ context.Context, id, notes string, at time.Time) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if !order.NotesEditable() {
		return order, domain.ErrNotesLocked
	}
	order.Customer.Notes = notes
	order.UpdatedAt = at
	r.items[id] = order
	return order, nil
}

func (r *orderRepositoryInMemory) Stats(_ context.Context, dayStart time.Time) (domain.OrderStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats domain.OrderStats
	for _, order := range r.items {
		stats.Total++
		if !order.CreatedAt.Before(dayStart) {
			stats.Today++
		}
		switch order.Status {
		case domain.OrderStatusPending, domain.OrderStatusPreparing:
			stats.Active++
		case domain.OrderStatusDelivering:
			stats.Delivering++
		}
	}
	return stats, nil
}

func matchesFilter(order domain.Order, filter domain.OrderFilter, search string) bool {
	if len(filter.Statuses) > 0 {
		found := false
		for _, s := range filter.Statuses {
			if order.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.Mode != "" && order.Customer.DeliveryMode != filter.Mode {
		return false
	}
	if search == "" {
		return true
	}
	for _, field := range []string{order.Number, order.Customer.Name, order.Customer.Email, order.Customer.Phone} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

// NumberAllocator выдаёт номера из атомарного счётчика.
type NumberAllocator struct {
	last atomic.Int64
}

// NewNumberAllocator создаёт счётчик, следующий номер будет start+1.
func NewNumberAllocator(start int64) *NumberAllocator {
	a := &NumberAllocator{}
	a.last.Store(start)
	return a
}

func (a *NumberAllocator) Allocate(_ context.Context) (string, error) {
	return domain.FormatOrderNumber(a.last.Add(1)), nil
}

var (
	_ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
	_ domain.NumberAllocator = (*NumberAllocator)(nil)
)
