package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
)

func TestPlacementClaims_PostgresClaimAndSettle(t *testing.T) {
	ctx := context.Background()
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewPlacementClaimRepository(store)

	now := time.Now().UTC()
	expires := now.Add(2 * time.Hour).Round(time.Microsecond)
	claim, err := repo.Claim(ctx, "form-pg-1", "fp-a", now, expires)
	require.NoError(t, err)
	require.Equal(t, domain.PlacementInFlight, claim.State)

	require.NoError(t, repo.Settle(ctx, "form-pg-1", "order-pg-1", true))
	require.ErrorIs(t, repo.Reject(ctx, "form-pg-1", "late"), domain.ErrPlacementAlreadySettled)

	held, err := repo.Claim(ctx, "form-pg-1", "fp-a", now, expires)
	require.ErrorIs(t, err, domain.ErrPlacementKeyTaken)
	require.Equal(t, domain.PlacementPlaced, held.State)
	require.Equal(t, "order-pg-1", held.OrderID)
	require.True(t, held.NotificationQueued)
	require.False(t, held.SettledAt.IsZero())
	require.True(t, held.ExpiresAt.Equal(expires), "expires_at mismatch: %s", held.ExpiresAt)

	_, err = repo.Claim(ctx, "form-pg-1", "fp-b", now, expires)
	require.ErrorIs(t, err, domain.ErrPlacementFingerprintMismatch)
}

func TestPlacementClaims_PostgresRejectAndReclaimExpired(t *testing.T) {
	ctx := context.Background()
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewPlacementClaimRepository(store)

	now := time.Now().UTC()
	_, err := repo.Claim(ctx, "form-pg-2", "fp-old", now.Add(-time.Hour), now.Add(-time.Minute))
	require.NoError(t, err)
	require.NoError(t, repo.Reject(ctx, "form-pg-2", "store unavailable"))

	rejected, err := repo.Get(ctx, "form-pg-2")
	require.NoError(t, err)
	require.Equal(t, domain.PlacementRejected, rejected.State)
	require.Equal(t, "store unavailable", rejected.Reason)

	fresh, err := repo.Claim(ctx, "form-pg-2", "fp-new", now, now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, "fp-new", fresh.Fingerprint)

	got, err := repo.Get(ctx, "form-pg-2")
	require.NoError(t, err)
	require.Equal(t, domain.PlacementInFlight, got.State)
	require.Empty(t, got.Reason)
	require.True(t, got.SettledAt.IsZero())

	require.ErrorIs(t, repo.Settle(ctx, "missing", "o", false), domain.ErrPlacementNotFound)
}

func TestPlacementClaims_PostgresDeleteExpired(t *testing.T) {
	ctx := context.Background()
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewPlacementClaimRepository(store)

	now := time.Now().UTC()
	for i, offset := range []time.Duration{-5 * time.Minute, -4 * time.Minute, -3 * time.Minute, time.Hour} {
		_, err := repo.Claim(ctx, string(rune('k'+i)), "fp", now.Add(-time.Hour), now.Add(offset))
		require.NoError(t, err)
	}

	removed, err := repo.DeleteExpired(ctx, now, 2)
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	removed, err = repo.DeleteExpired(ctx, now, 10)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = repo.Get(ctx, "n")
	require.NoError(t, err)
}

func TestPlacementClaims_PostgresRelease(t *testing.T) {
	ctx := context.Background()
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewPlacementClaimRepository(store)

	now := time.Now().UTC()
	_, err := repo.Claim(ctx, "form-pg-3", "fp", now, now.Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, repo.Release(ctx, "form-pg-3"))
	_, err = repo.Get(ctx, "form-pg-3")
	require.ErrorIs(t, err, domain.ErrPlacementNotFound)

	_, err = repo.Claim(ctx, "form-pg-3", "fp", now, now.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, repo.Settle(ctx, "form-pg-3", "order-pg-3", false))
	require.ErrorIs(t, repo.Release(ctx, "form-pg-3"), domain.ErrPlacementAlreadySettled)
	require.ErrorIs(t, repo.Release(ctx, "missing"), domain.ErrPlacementNotFound)
}

func TestPlacementClaims_PostgresExpiryUsesCallerClock(t *testing.T) {
	ctx := context.Background()
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewPlacementClaimRepository(store)

	claimedAt := time.Date(2026, 4, 19, 11, 0, 0, 0, time.UTC)
	_, err := repo.Claim(ctx, "form-pg-clock", "fp", claimedAt, claimedAt.Add(time.Hour))
	require.NoError(t, err)

	_, err = repo.Claim(ctx, "form-pg-clock", "fp", claimedAt.Add(time.Minute), claimedAt.Add(2*time.Hour))
	require.ErrorIs(t, err, domain.ErrPlacementKeyTaken)
}
