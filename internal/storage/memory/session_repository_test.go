package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
	"github.com/vladislavdragonenkov/lahmacun/internal/storage/memory"
)

func TestSessionRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSessionRepository()
	now := time.Now().UTC()

	live := domain.AdminSession{TokenHash: "live", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	stale := domain.AdminSession{TokenHash: "stale", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}
	for _, s := range []domain.AdminSession{live, stale} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	got, err := repo.Get(ctx, "live")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !got.ExpiresAt.Equal(live.ExpiresAt) {
		t.Fatalf("unexpected session %+v", got)
	}

	removed, err := repo.DeleteExpired(ctx, now, 10)
	if err != nil {
		t.Fatalf("delete expired failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed session, got %d", removed)
	}
	if _, err := repo.Get(ctx, "stale"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected stale session to be purged, got %v", err)
	}

	if err := repo.Delete(ctx, "live"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := repo.Delete(ctx, "live"); err != nil {
		t.Fatalf("second delete must be a no-op, got %v", err)
	}
	if _, err := repo.Get(ctx, "live"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
