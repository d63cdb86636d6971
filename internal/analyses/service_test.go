package analyses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"lingolens-backend/internal/shared/storage/object/local"
	"lingolens-backend/internal/shared/telemetry"
	"lingolens-backend/internal/stats"
	"lingolens-backend/internal/usage"
	"lingolens-backend/internal/vision"
)

// syncBuffer collects log output that the completion worker may still be
// writing while the test reads it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func logEntry(t *testing.T, raw, msg string) map[string]any {
	t.Helper()
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if entry["msg"] == msg {
			return entry
		}
	}
	t.Fatalf("log %q not found in:\n%s", msg, raw)
	return nil
}

// pngBytes is a minimal payload that sniffs as image/png.
var pngBytes = []byte("\x89PNG\r\n\x1a\n" + "0000000000000000")

type staticVision struct {
	result vision.Result
	err    error
	delay  time.Duration
}

func (s staticVision) AnalyzeImage(ctx context.Context, _ vision.AnalyzeInput) (vision.Result, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return vision.Result{}, ctx.Err()
		}
	}
	return s.result, s.err
}

func newTestService(t *testing.T, client vision.Client) (*Service, *MemoryRepo) {
	t.Helper()
	repo := NewMemoryRepo()
	svc := &Service{
		Repo:   repo,
		Usage:  usage.NewService(10),
		Stats:  stats.NewService(stats.NewMemoryRepo()),
		Store:  local.New(t.TempDir()),
		Vision: client,
	}
	return svc, repo
}

func submitInput() SubmitInput {
	return SubmitInput{
		FileName:   "photo.png",
		Image:      pngBytes,
		TargetLang: "Spanish",
		NativeLang: "English",
		Level:      "beginner",
	}
}

func waitForTerminal(t *testing.T, repo *MemoryRepo, id string) Analysis {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		a, err := repo.GetByID(context.Background(), id)
		if err == nil && IsTerminal(a.Status) {
			return a
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("analysis %s never reached a terminal status", id)
	return Analysis{}
}

func TestSubmitCompletesAnalysis(t *testing.T) {
	svc, repo := newTestService(t, staticVision{result: vision.Result{
		Description: "a red bicycle against a wall",
		Vocabulary: []vision.VocabularyItem{
			{Word: "bicicleta", Translation: "bicycle", Example: "La bicicleta es roja."},
		},
	}})

	task, err := svc.Submit(context.Background(), "user-1", submitInput())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if task.Status != StatusAnalyzing {
		t.Fatalf("status = %q, want %q", task.Status, StatusAnalyzing)
	}

	final := waitForTerminal(t, repo, task.ID)
	if final.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed", final.Status)
	}
	if final.Result == nil || len(final.Result.Vocabulary) != 1 {
		t.Fatalf("result = %+v, want one vocabulary item", final.Result)
	}
	if final.Result.ArtifactKey == "" {
		t.Fatal("expected artifact key after a successful store write")
	}
}

func TestSubmitRejectsSecondActiveTask(t *testing.T) {
	svc, _ := newTestService(t, staticVision{delay: time.Second})

	first, err := svc.Submit(context.Background(), "user-1", submitInput())
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	_, err = svc.Submit(context.Background(), "user-1", submitInput())
	var active *ActiveTaskError
	if !errors.As(err, &active) {
		t.Fatalf("second submit error = %v, want ActiveTaskError", err)
	}
	if active.TaskID != first.ID {
		t.Fatalf("conflict task id = %q, want %q", active.TaskID, first.ID)
	}
}

func TestSubmitAllowsOtherUsersDuringActiveTask(t *testing.T) {
	svc, _ := newTestService(t, staticVision{delay: time.Second})

	if _, err := svc.Submit(context.Background(), "user-1", submitInput()); err != nil {
		t.Fatalf("user-1 submit: %v", err)
	}
	if _, err := svc.Submit(context.Background(), "user-2", submitInput()); err != nil {
		t.Fatalf("user-2 submit: %v", err)
	}
}

func TestConcurrentSubmitsOnlyOneWins(t *testing.T) {
	svc, _ := newTestService(t, staticVision{delay: time.Second})

	const attempts = 10
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Submit(context.Background(), "user-1", submitInput())
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		var active *ActiveTaskError
		if !errors.As(err, &active) {
			t.Fatalf("unexpected submit error: %v", err)
		}
	}
	if accepted != 1 {
		t.Fatalf("accepted = %d, want exactly 1", accepted)
	}
}

func TestFailedAnalysisKeepsQuotaCharge(t *testing.T) {
	svc, repo := newTestService(t, staticVision{err: errors.New("provider unavailable")})

	task, err := svc.Submit(context.Background(), "user-1", submitInput())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	final := waitForTerminal(t, repo, task.ID)
	if final.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", final.Status)
	}
	if final.ErrorMessage == nil || *final.ErrorMessage == "" {
		t.Fatal("expected an error message on the failed task")
	}

	snapshot, err := svc.Usage.Check(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("usage check: %v", err)
	}
	if snapshot.Used != 1 {
		t.Fatalf("used = %d, want 1 (failed analyses stay charged)", snapshot.Used)
	}

	// The failed task is terminal, so a retry must be accepted.
	if _, err := svc.Submit(context.Background(), "user-1", submitInput()); err != nil {
		t.Fatalf("resubmit after failure: %v", err)
	}
}

func TestSubmitDeniedAtDailyLimit(t *testing.T) {
	svc, repo := newTestService(t, staticVision{})
	svc.Usage = usage.NewService(1)

	task, err := svc.Submit(context.Background(), "user-1", submitInput())
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	waitForTerminal(t, repo, task.ID)

	_, err = svc.Submit(context.Background(), "user-1", submitInput())
	var quota *QuotaError
	if !errors.As(err, &quota) {
		t.Fatalf("error = %v, want QuotaError", err)
	}
	if quota.Usage.Used != 1 || quota.Usage.Limit != 1 {
		t.Fatalf("quota snapshot = %+v, want used=1 limit=1", quota.Usage)
	}
}

func TestSubmitValidatesInput(t *testing.T) {
	svc, _ := newTestService(t, staticVision{})

	cases := []struct {
		name  string
		input SubmitInput
		want  error
	}{
		{"missing target language", SubmitInput{FileName: "p.png", Image: pngBytes}, ErrMissingTargetLang},
		{"empty image", SubmitInput{FileName: "p.png", TargetLang: "Spanish"}, ErrEmptyImage},
		{"oversized image", SubmitInput{FileName: "p.png", TargetLang: "Spanish", Image: make([]byte, MaxImageBytes+1)}, ErrImageTooLarge},
		{"not an image", SubmitInput{FileName: "p.txt", TargetLang: "Spanish", Image: []byte("plain text payload")}, ErrUnsupportedImageType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), "user-1", tc.input)
			if !errors.Is(err, tc.want) {
				t.Fatalf("error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestStaleActiveTaskReclaimedOnSubmit(t *testing.T) {
	svc, repo := newTestService(t, staticVision{delay: time.Second})
	svc.ActiveTimeout = 30 * time.Minute

	now := time.Now().UTC()
	stale := Analysis{
		ID:        "stale-1",
		UserID:    "user-1",
		Status:    StatusAnalyzing,
		CreatedAt: now.Add(-2 * time.Hour),
		UpdatedAt: now.Add(-31 * time.Minute),
	}
	if err := repo.Create(context.Background(), stale); err != nil {
		t.Fatalf("seed stale task: %v", err)
	}

	task, err := svc.Submit(context.Background(), "user-1", submitInput())
	if err != nil {
		t.Fatalf("submit after stale task: %v", err)
	}
	if task.ID == stale.ID {
		t.Fatal("expected a fresh task id")
	}
	if _, err := repo.GetByID(context.Background(), stale.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stale task lookup = %v, want ErrNotFound", err)
	}
}

func TestActiveTaskAtExactTimeoutIsNotReclaimed(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Now().UTC()
	repo.clock = func() time.Time { return now }

	boundary := Analysis{
		ID:        "boundary-1",
		UserID:    "user-1",
		Status:    StatusAnalyzing,
		CreatedAt: now.Add(-30 * time.Minute),
		UpdatedAt: now.Add(-30 * time.Minute),
	}
	if err := repo.Create(context.Background(), boundary); err != nil {
		t.Fatalf("seed task: %v", err)
	}

	removed, err := repo.ReclaimStale(context.Background(), "user-1", 30*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if removed != 0 {
		t.Fatalf("removed = %d, want 0 for a task at the exact boundary", removed)
	}
}

func TestReclaimRemovesExpiredTerminalTasks(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Now().UTC()
	repo.clock = func() time.Time { return now }

	old := Analysis{
		ID:        "old-1",
		UserID:    "user-1",
		Status:    StatusCompleted,
		CreatedAt: now.Add(-48 * time.Hour),
		UpdatedAt: now.Add(-25 * time.Hour),
	}
	recent := Analysis{
		ID:        "recent-1",
		UserID:    "user-1",
		Status:    StatusFailed,
		CreatedAt: now.Add(-2 * time.Hour),
		UpdatedAt: now.Add(-2 * time.Hour),
	}
	for _, a := range []Analysis{old, recent} {
		if err := repo.Create(context.Background(), a); err != nil {
			t.Fatalf("seed %s: %v", a.ID, err)
		}
	}

	removed, err := repo.ReclaimStale(context.Background(), "user-1", 30*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := repo.GetByID(context.Background(), "recent-1"); err != nil {
		t.Fatalf("recent terminal task should survive: %v", err)
	}
}

func TestGetForUserHidesOtherUsersTasks(t *testing.T) {
	svc, repo := newTestService(t, staticVision{})
	now := time.Now().UTC()
	if err := repo.Create(context.Background(), Analysis{
		ID: "task-1", UserID: "user-1", Status: StatusCompleted, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := svc.GetForUser(context.Background(), "user-2", "task-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-user get = %v, want ErrNotFound", err)
	}
	if _, err := svc.GetForUser(context.Background(), "user-1", "task-1"); err != nil {
		t.Fatalf("owner get: %v", err)
	}
}

func TestWorkerLogsCarryRequestID(t *testing.T) {
	logs := &syncBuffer{}
	telemetry.SetOutput(logs)
	t.Cleanup(func() { telemetry.SetOutput(os.Stdout) })

	svc, repo := newTestService(t, staticVision{result: vision.Result{Description: "a cat"}})

	ctx := WithRequestID(context.Background(), "req-42")
	task, err := svc.Submit(ctx, "user-1", submitInput())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForTerminal(t, repo, task.ID)

	// SetTerminal lands before the completion log, so wait for the line too.
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(logs.String(), "analysis.completed") {
		if time.Now().After(deadline) {
			t.Fatalf("no completion log; logs:\n%s", logs.String())
		}
		time.Sleep(5 * time.Millisecond)
	}

	for _, msg := range []string{"analysis.started", "analysis.completed"} {
		if entry := logEntry(t, logs.String(), msg); entry["request_id"] != "req-42" {
			t.Fatalf("%s request_id = %v, want req-42", msg, entry["request_id"])
		}
	}
}
