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

type placementClaimRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewPlacementClaimRepository создаёт хранилище заявок на оформление поверх placement_claims.
func NewPlacementClaimRepository(store *Store) domain.PlacementClaimRepository {
	return &placementClaimRepository{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Claim занимает ключ одной командой: истёкшая строка перезаписывается,
// живая остаётся как есть и RETURNING ничего не отдаёт.
func (r *placementClaimRepository) Claim(ctx context.Context, key, fingerprint string, now, expiresAt time.Time) (domain.PlacementClaim, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.PlacementClaim{}, domain.ErrPlacementKeyRequired
	}
	if fingerprint == "" {
		return domain.PlacementClaim{}, domain.ErrPlacementFingerprintRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	claim := domain.PlacementClaim{
		Key:         key,
		Fingerprint: fingerprint,
		State:       domain.PlacementInFlight,
		ClaimedAt:   now.UTC(),
		ExpiresAt:   expiresAt.UTC(),
	}

	var claimedKey string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO placement_claims (key, fingerprint, state, claimed_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE SET
			fingerprint = EXCLUDED.fingerprint,
			state = EXCLUDED.state,
			order_id = NULL,
			notification_queued = FALSE,
			reason = '',
			claimed_at = EXCLUDED.claimed_at,
			settled_at = NULL,
			expires_at = EXCLUDED.expires_at
		WHERE placement_claims.expires_at <= EXCLUDED.claimed_at
		RETURNING key
	`, claim.Key, claim.Fingerprint, string(claim.State), claim.ClaimedAt, claim.ExpiresAt).Scan(&claimedKey)
	if err == nil {
		return claim, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.PlacementClaim{}, fmt.Errorf("claim placement key: %w", err)
	}

	held, err := r.get(ctx, key)
	if err != nil {
		return domain.PlacementClaim{}, fmt.Errorf("load held placement claim: %w", err)
	}
	if held.Fingerprint != fingerprint {
		return held, domain.ErrPlacementFingerprintMismatch
	}
	return held, domain.ErrPlacementKeyTaken
}

func (r *placementClaimRepository) Get(ctx context.Context, key string) (domain.PlacementClaim, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return r.get(ctx, strings.TrimSpace(key))
}

func (r *placementClaimRepository) get(ctx context.Context, key string) (domain.PlacementClaim, error) {
	var (
		claim     domain.PlacementClaim
		state     string
		orderID   sql.NullString
		settledAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT key, fingerprint, state, order_id, notification_queued, reason, claimed_at, settled_at, expires_at
		FROM placement_claims
		WHERE key = $1
	`, key).Scan(
		&claim.Key,
		&claim.Fingerprint,
		&state,
		&orderID,
		&claim.NotificationQueued,
		&claim.Reason,
		&claim.ClaimedAt,
		&settledAt,
		&claim.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PlacementClaim{}, domain.ErrPlacementNotFound
	}
	if err != nil {
		return domain.PlacementClaim{}, fmt.Errorf("select placement claim: %w", err)
	}

	claim.State = domain.PlacementState(state)
	if !claim.State.Known() {
		return domain.PlacementClaim{}, fmt.Errorf("placement claim %s has unknown state %q", key, state)
	}
	claim.OrderID = orderID.String
	claim.ClaimedAt = claim.ClaimedAt.UTC()
	claim.ExpiresAt = claim.ExpiresAt.UTC()
	if settledAt.Valid {
		claim.SettledAt = settledAt.Time.UTC()
	}
	return claim, nil
}

func (r *placementClaimRepository) Settle(ctx context.Context, key, orderID string, notificationQueued bool) error {
	return r.finish(ctx, key, `
		UPDATE placement_claims
		SET state = 'placed', order_id = $2, notification_queued = $3, settled_at = $4
		WHERE key = $1 AND state = 'in_flight'
	`, orderID, notificationQueued)
}

func (r *placementClaimRepository) Reject(ctx context.Context, key, reason string) error {
	return r.finish(ctx, key, `
		UPDATE placement_claims
		SET state = 'rejected', reason = $2, settled_at = $3
		WHERE key = $1 AND state = 'in_flight'
	`, reason)
}

// Release удаляет заявку, пока она in_flight.
func (r *placementClaimRepository) Release(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM placement_claims
		WHERE key = $1 AND state = 'in_flight'
	`, key)
	if err != nil {
		return fmt.Errorf("release placement claim: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("placement claim rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	if _, err := r.get(ctx, key); err != nil {
		return err
	}
	return domain.ErrPlacementAlreadySettled
}

// finish дописывает в аргументы key в начало и момент завершения в конец.
func (r *placementClaimRepository) finish(ctx context.Context, key, query string, args ...any) error {
	key = strings.TrimSpace(key)

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	params := append([]any{key}, args...)
	params = append(params, r.now())
	res, err := r.db.ExecContext(ctx, query, params...)
	if err != nil {
		return fmt.Errorf("settle placement claim: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("placement claim rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// строка либо отсутствует, либо уже завершена
	if _, err := r.get(ctx, key); err != nil {
		return err
	}
	return domain.ErrPlacementAlreadySettled
}

func (r *placementClaimRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 1000
	}
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM placement_claims
		WHERE key IN (
			SELECT key FROM placement_claims
			WHERE expires_at <= $1
			ORDER BY expires_at
			LIMIT $2
		)
	`, before, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired placement claims: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("placement claim rows affected: %w", err)
	}
	return int(affected), nil
}
