// Package auth проверяет общий пароль администратора и ведёт серверные сессии.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
)

const (
	// DefaultSessionTTL: срок жизни сессии администратора.
	DefaultSessionTTL = 24 * time.Hour
	// CookieName: имя cookie с токеном сессии.
	CookieName = "admin_session"

	tokenBytes = 32
)

// ErrNoSecret: не задан ни пароль, ни его bcrypt-хэш.
var ErrNoSecret = errors.New("admin password or password hash is required")

// Config задаёт секрет администратора. PasswordHash имеет приоритет над Password.
type Config struct {
	Password     string
	PasswordHash string
	SessionTTL   time.Duration
}

// Service выдаёт и проверяет сессии администратора.
type Service struct {
	sessions domain.SessionRepository
	password []byte
	hash     []byte
	ttl      time.Duration
	now      func() time.Time
	logger   *log.Entry
}

// Option настраивает Service.
type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService создаёт сервис. Некорректный bcrypt-хэш отклоняется сразу.
func NewService(sessions domain.SessionRepository, cfg Config, opts ...Option) (*Service, error) {
	if sessions == nil {
		return nil, errors.New("session repository is required")
	}

	s := &Service{
		sessions: sessions,
		ttl:      cfg.SessionTTL,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   log.WithField("component", "admin-auth"),
	}
	if s.ttl <= 0 {
		s.ttl = DefaultSessionTTL
	}

	switch hash := strings.TrimSpace(cfg.PasswordHash); {
	case hash != "":
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("invalid admin password hash: %w", err)
		}
		s.hash = []byte(hash)
	case cfg.Password != "":
		s.password = []byte(cfg.Password)
	default:
		return nil, ErrNoSecret
	}

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL возвращает срок жизни новых сессий.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Login проверяет пароль и создаёт сессию. Возвращает сессию и токен для cookie.
func (s *Service) Login(ctx context.Context, password string) (domain.AdminSession, string, error) {
	if !s.checkPassword(password) {
		s.logger.Warn("admin login rejected")
		return domain.AdminSession{}, "", domain.ErrInvalidCredentials
	}

	token, err := newToken()
	if err != nil {
		return domain.AdminSession{}, "", err
	}

	now := s.now()
	session := domain.AdminSession{
		TokenHash: HashToken(token),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return domain.AdminSession{}, "", fmt.Errorf("create admin session: %w", err)
	}

	s.logger.Info("admin logged in")
	return session, token, nil
}

// Logout удаляет сессию; неизвестный токен не ошибка.
func (s *Service) Logout(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, HashToken(token)); err != nil {
		return fmt.Errorf("delete admin session: %w", err)
	}
	return nil
}

// Authenticate находит живую сессию по токену.
// Истёкшая сессия удаляется и возвращается ErrSessionExpired.
func (s *Service) Authenticate(ctx context.Context, token string) (domain.AdminSession, error) {
	if strings.TrimSpace(token) == "" {
		return domain.AdminSession{}, domain.ErrSessionNotFound
	}

	hash := HashToken(token)
	session, err := s.sessions.Get(ctx, hash)
	if err != nil {
		return domain.AdminSession{}, err
	}
	if session.Expired(s.now()) {
		if err := s.sessions.Delete(ctx, hash); err != nil {
			s.logger.WithError(err).Warn("failed to delete expired admin session")
		}
		return domain.AdminSession{}, domain.ErrSessionExpired
	}
	return session, nil
}

func (s *Service) checkPassword(candidate string) bool {
	if len(s.hash) > 0 {
		return bcrypt.CompareHashAndPassword(s.hash, []byte(candidate)) == nil
	}
	return subtle.ConstantTimeCompare(s.password, []byte(candidate)) == 1
}

// HashToken: ключ сессии в хранилище.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
