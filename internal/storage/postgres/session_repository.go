package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
)

type sessionRepository struct {
	db *sql.DB
}

// NewSessionRepository создаёт PostgreSQL-хранилище сессий администратора.
func NewSessionRepository(store *Store) domain.SessionRepository {
	return &sessionRepository{db: store.DB()}
}

func (r *sessionRepository) Create(ctx context.Context, session domain.AdminSession) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO admin_sessions (token_hash, created_at, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET expires_at = EXCLUDED.expires_at
	`, session.TokenHash, session.CreatedAt, session.ExpiresAt); err != nil {
		return fmt.Errorf("insert admin session: %w", err)
	}
	return nil
}

func (r *sessionRepository) Get(ctx context.Context, tokenHash string) (domain.AdminSession, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var session domain.AdminSession
	err := r.db.QueryRowContext(ctx, `
		SELECT token_hash, created_at, expires_at
		FROM admin_sessions
		WHERE token_hash = $1
	`, tokenHash).Scan(&session.TokenHash, &session.CreatedAt, &session.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AdminSession{}, domain.ErrSessionNotFound
		}
		return domain.AdminSession{}, fmt.Errorf("select admin session: %w", err)
	}
	session.CreatedAt = session.CreatedAt.UTC()
	session.ExpiresAt = session.ExpiresAt.UTC()
	return session, nil
}

func (r *sessionRepository) Delete(ctx context.Context, tokenHash string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("delete admin session: %w", err)
	}
	return nil
}

func (r *sessionRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 1000
	}
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM admin_sessions
		WHERE token_hash IN (
			SELECT token_hash FROM admin_sessions
			WHERE expires_at <= $1
			ORDER BY expires_at
			LIMIT $2
		)
	`, before, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired admin sessions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("admin sessions rows affected: %w", err)
	}
	return int(affected), nil
}

var _ domain.SessionRepository = (*sessionRepository)(nil)
