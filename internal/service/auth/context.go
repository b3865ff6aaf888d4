package auth

import (
	"context"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
)

type sessionKey struct{}

// WithSession кладёт сессию администратора в контекст запроса.
func WithSession(ctx context.Context, session domain.AdminSession) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

// SessionFromContext достаёт сессию, положенную middleware.
func SessionFromContext(ctx context.Context) (domain.AdminSession, bool) {
	session, ok := ctx.Value(sessionKey{}).(domain.AdminSession)
	return session, ok
}
