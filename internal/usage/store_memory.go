package usage

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu     sync.Mutex
	counts map[string]map[string]int
	limits map[string]int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		counts: make(map[string]map[string]int),
		limits: make(map[string]int),
	}
}

func (s *memoryStore) Count(ctx context.Context, userID string, day time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[userID][day.Format(dayFormat)], nil
}

func (s *memoryStore) Increment(ctx context.Context, userID string, day time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byDay, ok := s.counts[userID]
	if !ok {
		byDay = make(map[string]int)
		s.counts[userID] = byDay
	}
	key := day.Format(dayFormat)
	byDay[key]++
	return byDay[key], nil
}

func (s *memoryStore) Limit(ctx context.Context, userID string) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	limit, ok := s.limits[userID]
	return limit, ok, nil
}

func (s *memoryStore) SetLimit(ctx context.Context, userID string, limit int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits[userID] = limit
	return nil
}

func (s *memoryStore) Reset(ctx context.Context, userID string, day time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counts[userID], day.Format(dayFormat))
	return nil
}
