package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
	"github.com/vladislavdragonenkov/lahmacun/internal/storage/memory"
)

func TestSweeper_DeleteExpired_Batches(t *testing.T) {
	t.Parallel()

	store := &stubStore{deleteResults: []int{2, 2, 1}}
	sweeper := NewSweeper("placement_claims", store, WithBatchSize(2))

	deleted, err := sweeper.DeleteExpired(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if deleted != 5 {
		t.Fatalf("unexpected deleted total: got=%d want=5", deleted)
	}
	if calls := store.calls(); calls != 3 {
		t.Fatalf("unexpected delete calls: got=%d want=3", calls)
	}
}

func TestSweeper_DeleteExpired_Error(t *testing.T) {
	t.Parallel()

	store := &stubStore{deleteErrors: []error{errors.New("boom")}}
	sweeper := NewSweeper("placement_claims", store, WithBatchSize(10))

	deleted, err := sweeper.DeleteExpired(context.Background(), time.Now().UTC())
	if err == nil {
		t.Fatal("expected DeleteExpired error")
	}
	if deleted != 0 {
		t.Fatalf("unexpected deleted total: got=%d want=0", deleted)
	}
}

func TestSweeper_DeleteExpired_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := &stubStore{deleteResults: []int{5}}
	sweeper := NewSweeper("admin_sessions", store)

	if _, err := sweeper.DeleteExpired(ctx, time.Time{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls := store.calls(); calls != 0 {
		t.Fatalf("expected no store calls, got %d", calls)
	}
}

func TestSweeper_SweepOnce_AdminSessions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 4, 19, 12, 0, 0, 0, time.UTC)
	sessions := memory.NewSessionRepository()
	for _, s := range []domain.AdminSession{
		{TokenHash: "expired", CreatedAt: now.Add(-25 * time.Hour), ExpiresAt: now.Add(-time.Hour)},
		{TokenHash: "active", CreatedAt: now, ExpiresAt: now.Add(24 * time.Hour)},
	} {
		if err := sessions.Create(ctx, s); err != nil {
			t.Fatalf("create session: %v", err)
		}
	}

	sweeper := NewSweeper("admin_sessions", sessions, WithClock(func() time.Time { return now }))
	if deleted := sweeper.SweepOnce(ctx); deleted != 1 {
		t.Fatalf("expected 1 expired session removed, got %d", deleted)
	}
	if _, err := sessions.Get(ctx, "active"); err != nil {
		t.Fatalf("active session must survive: %v", err)
	}
	if _, err := sessions.Get(ctx, "expired"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected expired session to be gone, got %v", err)
	}
}

func TestSweeper_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	store := &stubStore{}
	sweeper := NewSweeper("placement_claims", store, WithInterval(5*time.Millisecond), WithBatchSize(10))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sweeper.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
	if calls := store.calls(); calls == 0 {
		t.Fatal("expected sweep to be called at least once")
	}
}

type stubStore struct {
	mu sync.Mutex

	deleteResults []int
	deleteErrors  []error
	callCount     int
}

func (s *stubStore) DeleteExpired(_ context.Context, _ time.Time, _ int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	if len(s.deleteErrors) > 0 {
		err := s.deleteErrors[0]
		s.deleteErrors = s.deleteErrors[1:]
		if err != nil {
			return 0, err
		}
	}
	if len(s.deleteResults) == 0 {
		return 0, nil
	}
	result := s.deleteResults[0]
	s.deleteResults = s.deleteResults[1:]
	return result, nil
}

func (s *stubStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

var (
	_ ExpiredDeleter = (*stubStore)(nil)
	_ ExpiredDeleter = domain.PlacementClaimRepository(nil)
	_ ExpiredDeleter = domain.SessionRepository(nil)
)
