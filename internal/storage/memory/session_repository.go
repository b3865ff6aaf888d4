package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
)

type sessionRepositoryInMemory struct {
	mu       sync.RWMutex
	sessions map[string]domain.AdminSession
}

// NewSessionRepository создаёт in-memory хранилище сессий администратора.
func NewSessionRepository() domain.SessionRepository {
	return &sessionRepositoryInMemory{sessions: make(map[string]domain.AdminSession)}
}

func (r *sessionRepositoryInMemory) Create(_ context.Context, session domain.AdminSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[session.TokenHash] = session
	return nil
}

func (r *sessionRepositoryInMemory) Get(_ context.Context, tokenHash string) (domain.AdminSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[tokenHash]
	if !ok {
		return domain.AdminSession{}, domain.ErrSessionNotFound
	}
	return session, nil
}

// Delete идемпотентен: отсутствие сессии не ошибка.
func (r *sessionRepositoryInMemory) Delete(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, tokenHash)
	return nil
}

func (r *sessionRepositoryInMemory) DeleteExpired(_ context.Context, before time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for hash, session := range r.sessions {
		if !session.Expired(before) {
			continue
		}
		delete(r.sessions, hash)
		removed++
		if limit > 0 && removed >= limit {
			break
		}
	}
	return removed, nil
}

var _ domain.SessionRepository = (*sessionRepositoryInMemory)(nil)
