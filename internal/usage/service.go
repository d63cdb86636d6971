package usage

import (
	"context"
	"time"

	"lingolens-backend/internal/shared/telemetry"
)

type store interface {
	Count(ctx context.Context, userID string, day time.Time) (int, error)
	Increment(ctx context.Context, userID string, day time.Time) (int, error)
	Limit(ctx context.Context, userID string) (int, bool, error)
	SetLimit(ctx context.Context, userID string, limit int) error
	Reset(ctx context.Context, userID string, day time.Time) error
}

// Service answers "can this user run one more analysis today" and performs
// the atomic accounting behind that answer.
type Service struct {
	store        store
	defaultLimit int
	now          func() time.Time
}

// NewService constructs a Service with an in-memory store.
func NewService(defaultLimit int) *Service {
	return newService(newMemoryStore(), defaultLimit)
}

// NewPostgresService constructs a Service backed by Postgres.
func NewPostgresService(pgStore store, defaultLimit int) *Service {
	return newService(pgStore, defaultLimit)
}

func newService(s store, defaultLimit int) *Service {
	if defaultLimit < 1 {
		defaultLimit = DefaultDailyLimit
	}
	return &Service{store: s, defaultLimit: defaultLimit, now: time.Now}
}

// Check returns today's usage snapshot without side effects.
func (s *Service) Check(ctx context.Context, userID string) (Usage, error) {
	day := utcDay(s.now())
	used, err := s.store.Count(ctx, userID, day)
	if err != nil {
		return Usage{}, err
	}
	return snapshot(used, s.limitFor(ctx, userID), day), nil
}

// Increment atomically adds one analysis to today's counter and returns the
// post-increment snapshot. Callers gate on Check first; Increment itself
// never refuses, so a reserved slot is charged even if the analysis later
// fails upstream.
func (s *Service) Increment(ctx context.Context, userID string) (Usage, error) {
	day := utcDay(s.now())
	used, err := s.store.Increment(ctx, userID, day)
	if err != nil {
		return Usage{}, err
	}
	return snapshot(used, s.limitFor(ctx, userID), day), nil
}

// SetLimit configures a per-user daily limit override.
func (s *Service) SetLimit(ctx context.Context, userID string, limit int) error {
	return s.store.SetLimit(ctx, userID, limit)
}

// Reset clears today's counter for a user.
func (s *Service) Reset(ctx context.Context, userID string) (Usage, error) {
	day := utcDay(s.now())
	if err := s.store.Reset(ctx, userID, day); err != nil {
		return Usage{}, err
	}
	return snapshot(0, s.limitFor(ctx, userID), day), nil
}

// limitFor resolves the user's daily limit, falling back to the platform
// default both when unset and when the lookup fails. Failing closed here
// keeps a partial outage from lifting limits.
func (s *Service) limitFor(ctx context.Context, userID string) int {
	limit, found, err := s.store.Limit(ctx, userID)
	if err != nil {
		telemetry.Error("usage.limit_lookup_failed", map[string]any{
			"user_id": userID,
			"error":   err.Error(),
		})
		return s.defaultLimit
	}
	if !found || limit < 1 {
		return s.defaultLimit
	}
	return limit
}
