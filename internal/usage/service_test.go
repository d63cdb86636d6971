package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestIncrementToLimitBoundary(t *testing.T) {
	ctx := context.Background()
	svc := NewService(10)
	svc.now = fixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	for i := 0; i < 9; i++ {
		if _, err := svc.Increment(ctx, "user-1"); err != nil {
			t.Fatalf("Increment %d: %v", i, err)
		}
	}

	u, err := svc.Check(ctx, "user-1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if u.Used != 9 || u.Remaining != 1 || !u.CanProceed {
		t.Fatalf("unexpected snapshot before last slot: %+v", u)
	}

	u, err = svc.Increment(ctx, "user-1")
	if err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if u.Used != 10 || u.Limit != 10 || u.Remaining != 0 || u.CanProceed {
		t.Fatalf("unexpected snapshot at limit: %+v", u)
	}
}

func TestUsageResetsAtUTCDayBoundary(t *testing.T) {
	ctx := context.Background()
	svc := NewService(10)

	svc.now = fixedClock(time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC))
	if _, err := svc.Increment(ctx, "user-1"); err != nil {
		t.Fatalf("Increment: %v", err)
	}

	svc.now = fixedClock(time.Date(2025, 6, 2, 0, 1, 0, 0, time.UTC))
	u, err := svc.Check(ctx, "user-1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if u.Used != 0 {
		t.Fatalf("expected fresh counter on new day, got used=%d", u.Used)
	}
	if u.Date != "2025-06-02" {
		t.Fatalf("unexpected date %q", u.Date)
	}
}

func TestConcurrentIncrementsLoseNoUpdates(t *testing.T) {
	ctx := context.Background()
	svc := NewService(1000)
	svc.now = fixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := svc.Increment(ctx, "user-1"); err != nil {
				t.Errorf("Increment: %v", err)
			}
		}()
	}
	wg.Wait()

	u, err := svc.Check(ctx, "user-1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if u.Used != n {
		t.Fatalf("expected used=%d after %d concurrent increments, got %d", n, n, u.Used)
	}
}

func TestPerUserLimitOverride(t *testing.T) {
	ctx := context.Background()
	svc := NewService(10)
	svc.now = fixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	if err := svc.SetLimit(ctx, "user-1", 3); err != nil {
		t.Fatalf("SetLimit: %v", err)
	}

	u, err := svc.Check(ctx, "user-1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if u.Limit != 3 {
		t.Fatalf("expected limit 3, got %d", u.Limit)
	}

	u, err = svc.Check(ctx, "user-2")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if u.Limit != 10 {
		t.Fatalf("expected default limit 10 for other user, got %d", u.Limit)
	}
}

type failingLimitStore struct {
	store
}

func (s failingLimitStore) Limit(ctx context.Context, userID string) (int, bool, error) {
	return 0, false, errors.New("limits table unavailable")
}

func TestLimitLookupFailureFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	svc := newService(failingLimitStore{newMemoryStore()}, 10)
	svc.now = fixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	u, err := svc.Check(ctx, "user-1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if u.Limit != 10 {
		t.Fatalf("expected conservative default limit, got %d", u.Limit)
	}
}

func TestSnapshotClampsRemaining(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	u := snapshot(12, 10, day)
	if u.Remaining != 0 {
		t.Fatalf("expected remaining clamped to 0, got %d", u.Remaining)
	}
	if u.CanProceed {
		t.Fatal("expected canProceed false when over limit")
	}
	if !u.ResetsAt.Equal(day.AddDate(0, 0, 1)) {
		t.Fatalf("unexpected resetsAt %s", u.ResetsAt)
	}
}
