package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// opTimeout ограничивает каждый запрос репозиториев.
const opTimeout = 5 * time.Second

// ErrStoreClosed: Store не открыт или уже закрыт.
var ErrStoreClosed = errors.New("postgres store is not open")

type pool struct {
	maxConns    int
	idleConns   int
	lifetime    time.Duration
	idleTimeout time.Duration
	pingTimeout time.Duration
}

// Option меняет параметры пула до первого подключения.
type Option func(*pool)

// WithMaxConns ограничивает число открытых соединений; простаивающих держим половину.
func WithMaxConns(n int) Option {
	return func(p *pool) {
		if n > 0 {
			p.maxConns = n
			p.idleConns = max(n/2, 1)
		}
	}
}

func WithConnLifetime(d time.Duration) Option {
	return func(p *pool) {
		if d > 0 {
			p.lifetime = d
		}
	}
}

func WithPingTimeout(d time.Duration) Option {
	return func(p *pool) {
		if d > 0 {
			p.pingTimeout = d
		}
	}
}

// Store держит пул database/sql поверх драйвера pgx.
type Store struct {
	db          *sql.DB
	pingTimeout time.Duration
}

// Open подключается к базе и сразу проверяет её доступность.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("postgres: empty dsn")
	}
	p := pool{
		maxConns:    20,
		idleConns:   10,
		lifetime:    30 * time.Minute,
		idleTimeout: 5 * time.Minute,
		pingTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&p)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(p.maxConns)
	db.SetMaxIdleConns(p.idleConns)
	db.SetConnMaxLifetime(p.lifetime)
	db.SetConnMaxIdleTime(p.idleTimeout)

	s := &Store{db: db, pingTimeout: p.pingTimeout}
	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return s, nil
}

// DB отдаёт пул для миграций и тестов.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping используется readiness-проверкой.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	ctx, cancel := context.WithTimeout(ctx, s.pingTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// EnsureSchema доводит схему до последней миграции.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// isUniqueViolation распознаёт SQLSTATE 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
