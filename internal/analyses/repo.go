package analyses

import (
	"context"
	"time"
)

// Repo stores analysis tasks. Create returns *ActiveTaskError when the user
// already holds an active task; the check and the insert are a single atomic
// step so concurrent submits cannot both win.
type Repo interface {
	Create(ctx context.Context, a Analysis) error
	GetByID(ctx context.Context, id string) (Analysis, error)
	// FindActive returns the user's pending or analyzing task, or ErrNotFound.
	FindActive(ctx context.Context, userID string) (Analysis, error)
	// ReclaimStale deletes the user's active tasks whose updatedAt is strictly
	// older than now minus activeTimeout, and terminal tasks older than now
	// minus retention. Returns the number of rows removed.
	ReclaimStale(ctx context.Context, userID string, activeTimeout, retention time.Duration) (int64, error)
	// SetTerminal moves a task to completed or failed. Tasks already in a
	// terminal status are left untouched.
	SetTerminal(ctx context.Context, id, status string, result *Result, errorMessage *string, completedAt time.Time) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Analysis, error)
}
