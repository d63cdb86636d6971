package analyses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// PGRepo implements Repo using Postgres. The one-active-task rule is backed
// by the partial unique index analyses_one_active_per_user, so concurrent
// submits race through Create and exactly one wins.
type PGRepo struct {
	DB *sql.DB
}

const uniqueViolation = "23505"

// Create inserts a new analysis. A unique violation on the active-task index
// is mapped to *ActiveTaskError carrying the existing task's id. When the
// conflicting task turned terminal before the lookup the slot just freed, so
// the insert is retried once rather than reporting a conflict with no task.
func (r *PGRepo) Create(ctx context.Context, a Analysis) error {
	err := r.insert(ctx, a)
	if err == nil || !isUniqueViolation(err) {
		return err
	}
	existing, findErr := r.FindActive(ctx, a.UserID)
	if findErr == nil {
		return &ActiveTaskError{TaskID: existing.ID}
	}

	err = r.insert(ctx, a)
	if err == nil || !isUniqueViolation(err) {
		return err
	}
	existing, findErr = r.FindActive(ctx, a.UserID)
	if findErr == nil {
		return &ActiveTaskError{TaskID: existing.ID}
	}
	return &ActiveTaskError{}
}

func (r *PGRepo) insert(ctx context.Context, a Analysis) error {
	const query = `
INSERT INTO analyses (
	id, user_id, status, target_lang, native_lang, level, image_key,
	started_at, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.DB.ExecContext(ctx, query,
		a.ID,
		a.UserID,
		a.Status,
		a.TargetLang,
		a.NativeLang,
		a.Level,
		a.ImageKey,
		a.StartedAt,
		a.CreatedAt,
		a.UpdatedAt,
	)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// GetByID returns an analysis by ID.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Analysis, error) {
	const query = analysisColumns + `
WHERE id = $1
LIMIT 1`
	return scanAnalysis(r.DB.QueryRowContext(ctx, query, id))
}

// FindActive returns the user's in-flight analysis, if any.
func (r *PGRepo) FindActive(ctx context.Context, userID string) (Analysis, error) {
	const query = analysisColumns + `
WHERE user_id = $1 AND status IN ('pending', 'analyzing')
ORDER BY created_at DESC
LIMIT 1`
	return scanAnalysis(r.DB.QueryRowContext(ctx, query, userID))
}

// ReclaimStale removes the user's abandoned active tasks and expired terminal
// tasks. The comparison is strict: a task updated exactly at the cutoff stays.
func (r *PGRepo) ReclaimStale(ctx context.Context, userID string, activeTimeout, retention time.Duration) (int64, error) {
	now := time.Now().UTC()
	const query = `
DELETE FROM analyses
WHERE user_id = $1
  AND (
	(status IN ('pending', 'analyzing') AND updated_at < $2)
	OR (status IN ('completed', 'failed') AND updated_at < $3)
  )`
	res, err := r.DB.ExecContext(ctx, query, userID, now.Add(-activeTimeout), now.Add(-retention))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SetTerminal finalizes a task. The status guard keeps terminal tasks
// immutable, so a late worker writing after reclamation or a duplicate
// completion is a no-op.
func (r *PGRepo) SetTerminal(ctx context.Context, id, status string, result *Result, errorMessage *string, completedAt time.Time) error {
	const query = `
UPDATE analyses
SET status = $2,
    description = $3,
    vocabulary = $4,
    artifact_key = $5,
    error_message = $6,
    completed_at = $7,
    updated_at = NOW()
WHERE id = $1 AND status IN ('pending', 'analyzing')`
	var description, artifactKey any
	var vocabulary any
	if result != nil {
		description = result.Description
		artifactKey = result.ArtifactKey
		payload, err := json.Marshal(result.Vocabulary)
		if err != nil {
			return err
		}
		vocabulary = string(payload)
	}
	_, err := r.DB.ExecContext(ctx, query, id, status, description, vocabulary, artifactKey, errorMessage, completedAt)
	return err
}

// ListByUser returns the user's analyses, newest first.
func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Analysis, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = analysisColumns + `
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const analysisColumns = `
SELECT id, user_id, status, target_lang, native_lang, level, image_key,
       description, vocabulary, artifact_key, error_message,
       started_at, completed_at, created_at, updated_at
FROM analyses`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (Analysis, error) {
	var a Analysis
	var description sql.NullString
	var vocabulary sql.NullString
	var artifactKey sql.NullString
	var errorMessage sql.NullString
	var startedAt sql.NullTime
	var completedAt sql.NullTime
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.Status,
		&a.TargetLang,
		&a.NativeLang,
		&a.Level,
		&a.ImageKey,
		&description,
		&vocabulary,
		&artifactKey,
		&errorMessage,
		&startedAt,
		&completedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Analysis{}, ErrNotFound
		}
		return Analysis{}, err
	}
	if a.Status == StatusCompleted {
		res := &Result{Description: description.String, ArtifactKey: artifactKey.String}
		if vocabulary.Valid {
			if err := json.Unmarshal([]byte(vocabulary.String), &res.Vocabulary); err != nil {
				res.Vocabulary = nil
			}
		}
		a.Result = res
	}
	if errorMessage.Valid {
		a.ErrorMessage = &errorMessage.String
	}
	if startedAt.Valid {
		a.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		a.CompletedAt = &completedAt.Time
	}
	return a, nil
}
