package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
	"github.com/vladislavdragonenkov/lahmacun/internal/storage/memory"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func TestNewService_RequiresSecret(t *testing.T) {
	_, err := NewService(memory.NewSessionRepository(), Config{})
	require.ErrorIs(t, err, ErrNoSecret)

	_, err = NewService(memory.NewSessionRepository(), Config{PasswordHash: "not-a-bcrypt-hash"})
	require.Error(t, err)

	_, err = NewService(nil, Config{Password: "secret"})
	require.Error(t, err)
}

func TestService_LoginAuthenticateLogout(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 4, 19, 12, 0, 0, 0, time.UTC)}
	repo := memory.NewSessionRepository()

	svc, err := NewService(repo, Config{Password: "lahmacun123"}, WithClock(clock.Now))
	require.NoError(t, err)
	require.Equal(t, DefaultSessionTTL, svc.TTL())

	session, token, err := svc.Login(ctx, "lahmacun123")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, HashToken(token), session.TokenHash)
	require.Equal(t, clock.now.Add(DefaultSessionTTL), session.ExpiresAt)

	// в хранилище лежит только хэш
	_, err = repo.Get(ctx, token)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	got, err := svc.Authenticate(ctx, token)
	require.NoError(t, err)
	require.Equal(t, session.TokenHash, got.TokenHash)

	require.NoError(t, svc.Logout(ctx, token))
	_, err = svc.Authenticate(ctx, token)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	require.NoError(t, svc.Logout(ctx, token))
	require.NoError(t, svc.Logout(ctx, ""))
}

func TestService_LoginRejectsWrongPassword(t *testing.T) {
	svc, err := NewService(memory.NewSessionRepository(), Config{Password: "lahmacun123"})
	require.NoError(t, err)

	_, _, err = svc.Login(context.Background(), "wrong")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, _, err = svc.Login(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestService_LoginWithBcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	svc, err := NewService(memory.NewSessionRepository(), Config{
		Password:     "ignored",
		PasswordHash: string(hash),
	})
	require.NoError(t, err)

	_, _, err = svc.Login(context.Background(), "ignored")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, token, err := svc.Login(context.Background(), "s3cret")
	require.NoError(t, err)
	require.NotEmpty(t, token)
}

func TestService_AuthenticateExpiredSession(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 4, 19, 12, 0, 0, 0, time.UTC)}
	repo := memory.NewSessionRepository()

	svc, err := NewService(repo, Config{Password: "pw", SessionTTL: time.Hour}, WithClock(clock.Now))
	require.NoError(t, err)

	_, token, err := svc.Login(ctx, "pw")
	require.NoError(t, err)

	clock.now = clock.now.Add(time.Hour)
	_, err = svc.Authenticate(ctx, token)
	require.ErrorIs(t, err, domain.ErrSessionExpired)

	_, err = repo.Get(ctx, HashToken(token))
	require.ErrorIs(t, err, domain.ErrSessionNotFound, "expired session must be removed")
}

func TestService_AuthenticateEmptyToken(t *testing.T) {
	svc, err := NewService(memory.NewSessionRepository(), Config{Password: "pw"})
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), "  ")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionContext(t *testing.T) {
	_, ok := SessionFromContext(context.Background())
	require.False(t, ok)

	session := domain.AdminSession{TokenHash: "abc"}
	got, ok := SessionFromContext(WithSession(context.Background(), session))
	require.True(t, ok)
	require.Equal(t, session, got)
}
