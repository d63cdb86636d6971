package stats

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Get returns the user's stats, or zero-valued stats if none exist.
func (r *PGRepo) Get(ctx context.Context, userID string) (Stats, error) {
	s, err := scanStats(r.DB.QueryRowContext(ctx, `
SELECT user_id, total_analyses, total_words_learned, current_streak, longest_streak, last_activity_date, updated_at
FROM user_stats
WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Stats{UserID: userID}, nil
		}
		return Stats{}, err
	}
	return s, nil
}

// RecordAnalysis applies one completed analysis inside a transaction. The row
// lock serializes concurrent completions for the same user.
func (r *PGRepo) RecordAnalysis(ctx context.Context, userID string, wordsLearned int, today time.Time) (Stats, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return Stats{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO user_stats (user_id) VALUES ($1)
ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return Stats{}, err
	}

	s, err := scanStats(tx.QueryRowContext(ctx, `
SELECT user_id, total_analyses, total_words_learned, current_streak, longest_streak, last_activity_date, updated_at
FROM user_stats
WHERE user_id = $1
FOR UPDATE`, userID))
	if err != nil {
		return Stats{}, err
	}

	s = applyActivity(s, today, wordsLearned)

	var lastActivity interface{}
	if s.LastActivityDate != nil {
		lastActivity = s.LastActivityDate.Format(dayFormat)
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE user_stats
SET total_analyses = $1, total_words_learned = $2, current_streak = $3,
    longest_streak = $4, last_activity_date = $5, updated_at = now()
WHERE user_id = $6`,
		s.TotalAnalyses, s.TotalWordsLearned, s.CurrentStreak,
		s.LongestStreak, lastActivity, userID); err != nil {
		return Stats{}, err
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, err
	}
	return s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStats(row rowScanner) (Stats, error) {
	var s Stats
	var lastActivity sql.NullTime
	err := row.Scan(
		&s.UserID,
		&s.TotalAnalyses,
		&s.TotalWordsLearned,
		&s.CurrentStreak,
		&s.LongestStreak,
		&lastActivity,
		&s.UpdatedAt,
	)
	if err != nil {
		return Stats{}, err
	}
	if lastActivity.Valid {
		day := utcDay(lastActivity.Time)
		s.LastActivityDate = &day
	}
	return s, nil
}
