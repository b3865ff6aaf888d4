package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
)

// PlacementClaims хранит заявки в map; истёкшая заявка занимается заново
// до того, как её удалит retention. Срок проверяется по now из Claim,
// собственные часы нужны только для SettledAt.
type PlacementClaims struct {
	mu     sync.Mutex
	claims map[string]domain.PlacementClaim
	now    func() time.Time
}

func NewPlacementClaimRepository() *PlacementClaims {
	return &PlacementClaims{
		claims: make(map[string]domain.PlacementClaim),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *PlacementClaims) Claim(_ context.Context, key, fingerprint string, now, expiresAt time.Time) (domain.PlacementClaim, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.PlacementClaim{}, domain.ErrPlacementKeyRequired
	}
	if fingerprint == "" {
		return domain.PlacementClaim{}, domain.ErrPlacementFingerprintRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if held, ok := r.claims[key]; ok && !held.Expired(now) {
		if held.Fingerprint != fingerprint {
			return held, domain.ErrPlacementFingerprintMismatch
		}
		return held, domain.ErrPlacementKeyTaken
	}

	claim := domain.PlacementClaim{
		Key:         key,
		Fingerprint: fingerprint,
		State:       domain.PlacementInFlight,
		ClaimedAt:   now.UTC(),
		ExpiresAt:   expiresAt.UTC(),
	}
	r.claims[key] = claim
	return claim, nil
}

func (r *PlacementClaims) Get(_ context.Context, key string) (domain.PlacementClaim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	claim, ok := r.claims[strings.TrimSpace(key)]
	if !ok {
		return domain.PlacementClaim{}, domain.ErrPlacementNotFound
	}
	return claim, nil
}

func (r *PlacementClaims) Settle(_ context.Context, key, orderID string, notificationQueued bool) error {
	return r.finish(key, func(c *domain.PlacementClaim) {
		c.State = domain.PlacementPlaced
		c.OrderID = orderID
		c.NotificationQueued = notificationQueued
	})
}

func (r *PlacementClaims) Reject(_ context.Context, key, reason string) error {
	return r.finish(key, func(c *domain.PlacementClaim) {
		c.State = domain.PlacementRejected
		c.Reason = reason
	})
}

func (r *PlacementClaims) Release(_ context.Context, key string) error {
	key = strings.TrimSpace(key)

	r.mu.Lock()
	defer r.mu.Unlock()

	claim, ok := r.claims[key]
	if !ok {
		return domain.ErrPlacementNotFound
	}
	if claim.Settled() {
		return domain.ErrPlacementAlreadySettled
	}
	delete(r.claims, key)
	return nil
}

func (r *PlacementClaims) finish(key string, apply func(*domain.PlacementClaim)) error {
	key = strings.TrimSpace(key)

	r.mu.Lock()
	defer r.mu.Unlock()

	claim, ok := r.claims[key]
	if !ok {
		return domain.ErrPlacementNotFound
	}
	if claim.Settled() {
		return domain.ErrPlacementAlreadySettled
	}
	apply(&claim)
	claim.SettledAt = r.now()
	r.claims[key] = claim
	return nil
}

// DeleteExpired удаляет не больше limit заявок; limit <= 0 снимает ограничение.
func (r *PlacementClaims) DeleteExpired(_ context.Context, before time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, claim := range r.claims {
		if limit > 0 && removed == limit {
			break
		}
		if claim.Expired(before) {
			delete(r.claims, key)
			removed++
		}
	}
	return removed, nil
}

var _ domain.PlacementClaimRepository = (*PlacementClaims)(nil)
