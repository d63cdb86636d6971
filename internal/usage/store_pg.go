package usage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type pgStore struct {
	DB *sql.DB
}

// NewPGStore constructs a Postgres-backed usage store.
func NewPGStore(database *sql.DB) *pgStore {
	return &pgStore{DB: database}
}

func (s *pgStore) Count(ctx context.Context, userID string, day time.Time) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx, `
SELECT count FROM usage_daily WHERE user_id = $1 AND usage_date = $2`,
		userID, day.Format(dayFormat)).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}

// Increment is a single atomic upsert; concurrent callers for the same
// (user, day) serialize on the row and none of the updates are lost.
func (s *pgStore) Increment(ctx context.Context, userID string, day time.Time) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO usage_daily (user_id, usage_date, count)
VALUES ($1, $2, 1)
ON CONFLICT (user_id, usage_date)
DO UPDATE SET count = usage_daily.count + 1, updated_at = now()
RETURNING count`,
		userID, day.Format(dayFormat)).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *pgStore) Limit(ctx context.Context, userID string) (int, bool, error) {
	var limit int
	err := s.DB.QueryRowContext(ctx, `
SELECT daily_limit FROM user_limits WHERE user_id = $1`, userID).Scan(&limit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return limit, true, nil
}

func (s *pgStore) SetLimit(ctx context.Context, userID string, limit int) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO user_limits (user_id, daily_limit)
VALUES ($1, $2)
ON CONFLICT (user_id)
DO UPDATE SET daily_limit = EXCLUDED.daily_limit, updated_at = now()`,
		userID, limit)
	return err
}

func (s *pgStore) Reset(ctx context.Context, userID string, day time.Time) error {
	_, err := s.DB.ExecContext(ctx, `
DELETE FROM usage_daily WHERE user_id = $1 AND usage_date = $2`,
		userID, day.Format(dayFormat))
	return err
}
