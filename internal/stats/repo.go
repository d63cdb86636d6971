package stats

import (
	"context"
	"time"
)

// Repo defines persistence operations for user stats.
type Repo interface {
	// Get returns the user's stats, or zero-valued stats if none exist yet.
	Get(ctx context.Context, userID string) (Stats, error)
	// RecordAnalysis folds one completed analysis into the user's stats and
	// returns the updated snapshot. The read-modify-write is serialized per
	// user so concurrent completions cannot clobber each other.
	RecordAnalysis(ctx context.Context, userID string, wordsLearned int, today time.Time) (Stats, error)
}
