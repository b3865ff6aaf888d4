package domain

import (
	"context"
	"time"
)

// OrderFilter задаёт выборку заказов для админки.
type OrderFilter struct {
	// Statuses пустой: без фильтра по статусу.
	Statuses []OrderStatus
	Mode     DeliveryMode
	// Search ищет подстроку в номере, имени, email и телефоне без учёта регистра.
	Search string
	Limit  int
}

// OrderStats: сводка для главной страницы админки.
type OrderStats struct {
	Total      int
	Today      int
	Active     int
	Delivering int
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. ErrOrderExists при дубликате id или номера.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// GetByNumber ищет заказ по публичному номеру.
	GetByNumber(ctx context.Context, number string) (Order, error)
	// List возвращает заказы от новых к старым.
	List(ctx context.Context, filter OrderFilter) ([]Order, error)
	// CompareAndSetStatus меняет статус, только если текущий равен expected.
	// ErrStatusConflict, если статус уже другой.
	CompareAndSetStatus(ctx context.Context, id string, expected, next OrderStatus, at time.Time) (Order, error)
	// UpdateNotes атомарно меняет заметки, если заказ не готовится.
	// ErrNotesLocked, если статус preparing.
	UpdateNotes(ctx context.Context, id, notes string, at time.Time) (Order, error)
	// Stats считает сводку; dayStart: начало текущих суток.
	Stats(ctx context.Context, dayStart time.Time) (OrderStats, error)
}

// NumberAllocator выдаёт уникальные возрастающие номера заказов.
type NumberAllocator interface {
	Allocate(ctx context.Context) (string, error)
}

// ChangePublisher рассылает подписчикам изменённый заказ.
type ChangePublisher interface {
	PublishChange(ctx context.Context, order Order) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository: очередь уведомлений о заказах. Сообщение живёт в ней
// до доставки или до перевода в dead после исчерпания попыток.
type OutboxRepository interface {
	// Enqueue назначает ID, если он пуст, и проставляет EnqueuedAt.
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	// PullPending отдаёт ожидающие сообщения в порядке постановки.
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	// MarkDelivered и MarkDead возвращают ErrOutboxMessageNotFound для
	// неизвестного или уже закрытого сообщения.
	MarkDelivered(ctx context.Context, id string, attempts int) error
	MarkDead(ctx context.Context, id string, attempts int, lastError string) error
}

// TimelineRepository хранит историю заказа.
type TimelineRepository interface {
	// Append возвращает запись с назначенным Seq.
	Append(ctx context.Context, entry TimelineEntry) (TimelineEntry, error)
	// List отдаёт записи по возрастанию Seq; для неизвестного заказа пустой список.
	List(ctx context.Context, orderID string) ([]TimelineEntry, error)
}

// PlacementClaimRepository закрепляет ключ Idempotency-Key за первой попыткой оформления.
type PlacementClaimRepository interface {
	// Claim занимает ключ на момент now. Если ключ занят и не истёк к now,
	// возвращается текущая заявка вместе с ErrPlacementKeyTaken или
	// ErrPlacementFingerprintMismatch.
	Claim(ctx context.Context, key, fingerprint string, now, expiresAt time.Time) (PlacementClaim, error)
	Get(ctx context.Context, key string) (PlacementClaim, error)
	Settle(ctx context.Context, key, orderID string, notificationQueued bool) error
	// Reject запоминает отказ, который повторится при тех же данных формы.
	Reject(ctx context.Context, key, reason string) error
	// Release снимает незавершённую заявку, и следующий запрос с ключом
	// оформляет заказ заново. Завершённую заявку не трогает.
	Release(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// SessionRepository хранит сессии администратора.
type SessionRepository interface {
	Create(ctx context.Context, session AdminSession) error
	// Get возвращает ErrSessionNotFound, если сессии нет.
	Get(ctx context.Context, tokenHash string) (AdminSession, error)
	Delete(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxMessage: уведомление, ожидающее доставки.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	EnqueuedAt    time.Time
}

// OutboxStats: размер очереди для метрик воркера.
type OutboxStats struct {
	PendingCount    int
	DeadCount       int
	OldestPendingAt time.Time
}
