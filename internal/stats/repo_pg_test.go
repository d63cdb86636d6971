package stats

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGRepoGetMissingRowIsZeroStats(t *testing.T) {
	database, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	repo := &PGRepo{DB: database}

	mock.ExpectQuery("SELECT user_id, total_analyses").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "total_analyses", "total_words_learned", "current_streak", "longest_streak", "last_activity_date", "updated_at"}))

	s, err := repo.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.UserID != "user-1" || s.TotalAnalyses != 0 || s.CurrentStreak != 0 {
		t.Fatalf("expected zero stats, got %+v", s)
	}
}

func TestPGRepoRecordAnalysisLocksAndUpdates(t *testing.T) {
	database, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	repo := &PGRepo{DB: database}
	now := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	yesterday := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO user_stats").
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "total_analyses", "total_words_learned", "current_streak", "longest_streak", "last_activity_date", "updated_at"}).
			AddRow("user-1", 3, 20, 2, 5, yesterday, now))
	mock.ExpectExec("UPDATE user_stats").
		WithArgs(4, 26, 3, 5, "2025-06-10", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	s, err := repo.RecordAnalysis(context.Background(), "user-1", 6, now)
	if err != nil {
		t.Fatalf("RecordAnalysis: %v", err)
	}
	if s.CurrentStreak != 3 || s.TotalAnalyses != 4 {
		t.Fatalf("unexpected stats after update: %+v", s)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
