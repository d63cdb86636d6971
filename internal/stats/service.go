package stats

import (
	"context"
	"time"
)

// Service manages user stats via an underlying repo.
type Service struct {
	repo Repo
	now  func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repo) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Get returns the user's current stats snapshot.
func (s *Service) Get(ctx context.Context, userID string) (Stats, error) {
	return s.repo.Get(ctx, userID)
}

// RecordAnalysis folds one completed analysis into the user's aggregates and
// streak. Safe to call for every completion; the streak only advances once
// per calendar day.
func (s *Service) RecordAnalysis(ctx context.Context, userID string, wordsLearned int) (Stats, error) {
	return s.repo.RecordAnalysis(ctx, userID, wordsLearned, utcDay(s.now()))
}
