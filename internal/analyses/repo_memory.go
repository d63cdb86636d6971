package analyses

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo keeps analyses in memory. Used in dev when no database is
// configured, and in tests.
type MemoryRepo struct {
	mu    sync.Mutex
	byID  map[string]Analysis
	clock func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Analysis), clock: time.Now}
}

func (r *MemoryRepo) Create(_ context.Context, a Analysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.UserID == a.UserID && IsActive(existing.Status) {
			return &ActiveTaskError{TaskID: existing.ID}
		}
	}
	r.byID[a.ID] = a
	return nil
}

func (r *MemoryRepo) GetByID(_ context.Context, id string) (Analysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return Analysis{}, ErrNotFound
	}
	return a, nil
}

func (r *MemoryRepo) FindActive(_ context.Context, userID string) (Analysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.byID {
		if a.UserID == userID && IsActive(a.Status) {
			return a, nil
		}
	}
	return Analysis{}, ErrNotFound
}

func (r *MemoryRepo) ReclaimStale(_ context.Context, userID string, activeTimeout, retention time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock().UTC()
	activeCutoff := now.Add(-activeTimeout)
	retentionCutoff := now.Add(-retention)
	var removed int64
	for id, a := range r.byID {
		if a.UserID != userID {
			continue
		}
		// Strictly older than the cutoff; a task updated exactly at the
		// boundary is still considered live.
		if IsActive(a.Status) && a.UpdatedAt.Before(activeCutoff) {
			delete(r.byID, id)
			removed++
			continue
		}
		if IsTerminal(a.Status) && a.UpdatedAt.Before(retentionCutoff) {
			delete(r.byID, id)
			removed++
		}
	}
	return removed, nil
}

func (r *MemoryRepo) SetTerminal(_ context.Context, id, status string, result *Result, errorMessage *string, completedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if IsTerminal(a.Status) {
		return nil
	}
	a.Status = status
	a.Result = result
	a.ErrorMessage = errorMessage
	a.CompletedAt = &completedAt
	a.UpdatedAt = r.clock().UTC()
	r.byID[id] = a
	return nil
}

func (r *MemoryRepo) ListByUser(_ context.Context, userID string, limit, offset int) ([]Analysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Analysis
	for _, a := range r.byID {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
