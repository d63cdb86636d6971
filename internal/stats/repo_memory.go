package stats

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo stores stats in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.Mutex
	data map[string]Stats
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string]Stats)}
}

// Get returns the user's stats, or zero-valued stats if none exist.
func (r *MemoryRepo) Get(ctx context.Context, userID string) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data[userID]
	if !ok {
		return Stats{UserID: userID}, nil
	}
	return s, nil
}

// RecordAnalysis applies one completed analysis under the repo lock.
func (r *MemoryRepo) RecordAnalysis(ctx context.Context, userID string, wordsLearned int, today time.Time) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data[userID]
	if !ok {
		s = Stats{UserID: userID}
	}
	s = applyActivity(s, today, wordsLearned)
	s.UpdatedAt = time.Now().UTC()
	r.data[userID] = s
	return s, nil
}
