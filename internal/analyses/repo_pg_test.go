package analyses

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PGRepo{DB: db}, mock
}

func analysisRows(a Analysis) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "status", "target_lang", "native_lang", "level", "image_key",
		"description", "vocabulary", "artifact_key", "error_message",
		"started_at", "completed_at", "created_at", "updated_at",
	}).AddRow(
		a.ID, a.UserID, a.Status, a.TargetLang, a.NativeLang, a.Level, a.ImageKey,
		nil, nil, nil, nil,
		nil, nil, a.CreatedAt, a.UpdatedAt,
	)
}

func TestPGRepoCreateInsertsTask(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now().UTC()
	task := Analysis{
		ID:         "task-1",
		UserID:     "user-1",
		Status:     StatusAnalyzing,
		TargetLang: "Spanish",
		NativeLang: "English",
		Level:      "beginner",
		ImageKey:   "user-1/photo.png",
		StartedAt:  &now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	mock.ExpectExec("INSERT INTO analyses").
		WithArgs(
			task.ID, task.UserID, task.Status, task.TargetLang, task.NativeLang,
			task.Level, task.ImageKey, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), task); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoCreateMapsUniqueViolationToActiveTask(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now().UTC()
	existing := Analysis{
		ID: "existing-1", UserID: "user-1", Status: StatusAnalyzing,
		CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectExec("INSERT INTO analyses").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "analyses_one_active_per_user"})
	mock.ExpectQuery("SELECT (.+) FROM analyses").
		WithArgs("user-1").
		WillReturnRows(analysisRows(existing))

	err := repo.Create(context.Background(), Analysis{ID: "task-2", UserID: "user-1", Status: StatusAnalyzing})
	var active *ActiveTaskError
	if !errors.As(err, &active) {
		t.Fatalf("error = %v, want ActiveTaskError", err)
	}
	if active.TaskID != "existing-1" {
		t.Fatalf("conflict task id = %q, want existing-1", active.TaskID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoCreateRetriesWhenConflictCleared(t *testing.T) {
	repo, mock := newMockRepo(t)

	// The insert loses the race, but the winner turns terminal before the
	// lookup. The freed slot must be taken instead of reporting a conflict
	// with no task id.
	mock.ExpectExec("INSERT INTO analyses").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "analyses_one_active_per_user"})
	mock.ExpectQuery("SELECT (.+) FROM analyses").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("INSERT INTO analyses").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(context.Background(), Analysis{ID: "task-2", UserID: "user-1", Status: StatusAnalyzing})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoCreateReportsTaskOnRepeatConflict(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now().UTC()
	existing := Analysis{
		ID: "existing-9", UserID: "user-1", Status: StatusAnalyzing,
		CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectExec("INSERT INTO analyses").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectQuery("SELECT (.+) FROM analyses").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("INSERT INTO analyses").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectQuery("SELECT (.+) FROM analyses").
		WithArgs("user-1").
		WillReturnRows(analysisRows(existing))

	err := repo.Create(context.Background(), Analysis{ID: "task-2", UserID: "user-1", Status: StatusAnalyzing})
	var active *ActiveTaskError
	if !errors.As(err, &active) {
		t.Fatalf("error = %v, want ActiveTaskError", err)
	}
	if active.TaskID != "existing-9" {
		t.Fatalf("conflict task id = %q, want existing-9", active.TaskID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoFindActiveNoRows(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM analyses").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindActive(context.Background(), "user-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoReclaimStaleReportsRowsRemoved(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("DELETE FROM analyses").
		WithArgs("user-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	removed, err := repo.ReclaimStale(context.Background(), "user-1", 30*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoSetTerminalGuardsTerminalStatuses(t *testing.T) {
	repo, mock := newMockRepo(t)

	msg := "analysis failed"
	mock.ExpectExec("UPDATE analyses").
		WithArgs("task-1", StatusFailed, nil, nil, nil, msg, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	// Zero rows affected means the task was already terminal; that is a no-op,
	// not an error.
	if err := repo.SetTerminal(context.Background(), "task-1", StatusFailed, nil, &msg, time.Now().UTC()); err != nil {
		t.Fatalf("SetTerminal: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetByIDScansCompletedResult(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "status", "target_lang", "native_lang", "level", "image_key",
		"description", "vocabulary", "artifact_key", "error_message",
		"started_at", "completed_at", "created_at", "updated_at",
	}).AddRow(
		"task-1", "user-1", StatusCompleted, "Spanish", "English", "beginner", "user-1/photo.png",
		"a busy street market", `[{"word":"mercado","translation":"market","example":"El mercado abre temprano."}]`,
		"user-1/photo.png.analysis.json", nil,
		now, now, now, now,
	)
	mock.ExpectQuery("SELECT (.+) FROM analyses").
		WithArgs("task-1").
		WillReturnRows(rows)

	a, err := repo.GetByID(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if a.Result == nil {
		t.Fatal("expected a result on a completed task")
	}
	if len(a.Result.Vocabulary) != 1 || a.Result.Vocabulary[0].Word != "mercado" {
		t.Fatalf("vocabulary = %+v, want one item for mercado", a.Result.Vocabulary)
	}
	if a.Result.ArtifactKey != "user-1/photo.png.analysis.json" {
		t.Fatalf("artifact key = %q", a.Result.ArtifactKey)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
