package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
)

const orderColumns = `
	id, order_number, status, customer_name, customer_email, customer_phone,
	delivery_mode, address, quantity, notes, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	c := order.Customer
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		order.ID, order.Number, string(order.Status), c.Name, c.Email, c.Phone,
		string(c.DeliveryMode), c.Address, c.Quantity, c.Notes, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderExists
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.getBy(ctx, "id", id)
}

func (r *orderRepository) GetByNumber(ctx context.Context, number string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.getBy(ctx, "order_number", number)
}

func (r *orderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args := buildListQuery(filter)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	return orders, nil
}

// CompareAndSetStatus обновляет статус одним UPDATE с условием на старое значение.
func (r *orderRepository) CompareAndSetStatus(ctx context.Context, id string, expected, next domain.OrderStatus, at time.Time) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		UPDATE orders
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
		RETURNING `+orderColumns,
		id, string(expected), string(next), at,
	)
	order, err := scanOrder(row)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("update order status: %w", err)
	}

	current, getErr := r.getBy(ctx, "id", id)
	if getErr != nil {
		return domain.Order{}, getErr
	}
	return current, domain.ErrStatusConflict
}

// UpdateNotes проверяет блокировку в том же UPDATE, что исключает гонку со сменой статуса.
func (r *orderRepository) UpdateNotes(ctx context.Context, id, notes string, at time.Time) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		UPDATE orders
		SET notes = $2, updated_at = $3
		WHERE id = $1 AND status <> $4
		RETURNING `+orderColumns,
		id, notes, at, string(domain.OrderStatusPreparing),
	)
	order, err := scanOrder(row)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("update order notes: %w", err)
	}

	current, getErr := r.getBy(ctx, "id", id)
	if getErr != nil {
		return domain.Order{}, getErr
	}
	return current, domain.ErrNotesLocked
}

func (r *orderRepository) Stats(ctx context.Context, dayStart time.Time) (domain.OrderStats, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var stats domain.OrderStats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE created_at >= $1),
			COUNT(*) FILTER (WHERE status IN ($2, $3)),
			COUNT(*) FILTER (WHERE status = $4)
		FROM orders
	`,
		dayStart,
		string(domain.OrderStatusPending), string(domain.OrderStatusPreparing),
		string(domain.OrderStatusDelivering),
	).Scan(&stats.Total, &stats.Today, &stats.Active, &stats.Delivering)
	if err != nil {
		return domain.OrderStats{}, fmt.Errorf("order stats query failed: %w", err)
	}
	return stats, nil
}

func (r *orderRepository) getBy(ctx context.Context, column, value string) (domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+column+` = $1`, value)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	return order, nil
}

func buildListQuery(filter domain.OrderFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			placeholders = append(placeholders, arg(string(s)))
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.Mode != "" {
		where = append(where, "delivery_mode = "+arg(string(filter.Mode)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		p := arg("%" + escapeLike(search) + "%")
		where = append(where, fmt.Sprintf(
			"(order_number ILIKE %[1]s OR customer_name ILIKE %[1]s OR customer_email ILIKE %[1]s OR customer_phone ILIKE %[1]s)", p))
	}

	var b strings.Builder
	b.WriteString("SELECT " + orderColumns + " FROM orders")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, length(order_number) DESC, order_number DESC")
	if filter.Limit > 0 {
		b.WriteString(" LIMIT " + arg(filter.Limit))
	}
	return b.String(), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		status string
		mode   string
	)
	err := row.Scan(
		&order.ID, &order.Number, &status,
		&order.Customer.Name, &order.Customer.Email, &order.Customer.Phone,
		&mode, &order.Customer.Address, &order.Customer.Quantity, &order.Customer.Notes,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.Customer.DeliveryMode = domain.DeliveryMode(mode)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

// NumberAllocator берёт номера из sequence order_number_seq.
type NumberAllocator struct {
	db *sql.DB
}

func NewNumberAllocator(store *Store) *NumberAllocator {
	return &NumberAllocator{db: store.DB()}
}

// Allocate не откатывается вместе с транзакцией: при ошибке вставки номер пропадает.
func (a *NumberAllocator) Allocate(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var n int64
	if err := a.db.QueryRowContext(ctx, `SELECT nextval('order_number_seq')`).Scan(&n); err != nil {
		return "", fmt.Errorf("allocate order number: %w", err)
	}
	return domain.FormatOrderNumber(n), nil
}

var (
	_ domain.OrderRepository = (*orderRepository)(nil)
	_ domain.NumberAllocator = (*NumberAllocator)(nil)
)
