package domain

import "time"

// AdminSession: серверная сессия администратора.
// В хранилище лежит только хэш токена, сам токен живёт в cookie.
type AdminSession struct {
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired сообщает, истекла ли сессия к моменту now.
func (s AdminSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
