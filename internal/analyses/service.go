package analyses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lingolens-backend/internal/shared/metrics"
	"lingolens-backend/internal/shared/storage/object"
	"lingolens-backend/internal/shared/telemetry"
	"lingolens-backend/internal/stats"
	"lingolens-backend/internal/usage"
	"lingolens-backend/internal/vision"
)

// Service orchestrates the analysis lifecycle: reclaim, dedup, quota,
// validation, task creation and the async completion worker.
type Service struct {
	Repo   Repo
	Usage  *usage.Service
	Stats  statsRecorder
	Store  object.ObjectStore
	Vision vision.Client

	// ActiveTimeout bounds how long a task may sit active before a later
	// submit reclaims it. TerminalRetention bounds how long finished tasks
	// are kept.
	ActiveTimeout     time.Duration
	TerminalRetention time.Duration

	now func() time.Time
}

type statsRecorder interface {
	RecordAnalysis(ctx context.Context, userID string, wordsLearned int) (stats.Stats, error)
}

// SubmitInput carries the photo and the learner's preferences.
type SubmitInput struct {
	FileName   string
	Image      []byte
	TargetLang string
	NativeLang string
	Level      string
}

const (
	defaultActiveTimeout     = 30 * time.Minute
	defaultTerminalRetention = 24 * time.Hour
)

func (s *Service) clock() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) activeTimeout() time.Duration {
	if s.ActiveTimeout > 0 {
		return s.ActiveTimeout
	}
	return defaultActiveTimeout
}

func (s *Service) retention() time.Duration {
	if s.TerminalRetention > 0 {
		return s.TerminalRetention
	}
	return defaultTerminalRetention
}

// Submit runs the full admission pipeline and, on success, starts the
// analysis in the background. The returned task is already in the analyzing
// state; callers poll GetForUser for the outcome.
func (s *Service) Submit(ctx context.Context, userID string, input SubmitInput) (Analysis, error) {
	// Abandoned tasks from crashed workers would otherwise block the user
	// forever, so every submit sweeps them first. A sweep failure only
	// degrades cleanup and must not block the submit itself.
	if removed, err := s.Repo.ReclaimStale(ctx, userID, s.activeTimeout(), s.retention()); err != nil {
		telemetry.Error("analysis.reclaim_failed", map[string]any{"userId": userID, "error": err.Error()})
	} else if removed > 0 {
		metrics.AddTasksReclaimed(removed)
		telemetry.Info("analysis.reclaimed", map[string]any{"userId": userID, "removed": removed})
	}

	if existing, err := s.Repo.FindActive(ctx, userID); err == nil {
		metrics.IncSubmitConflict()
		return Analysis{}, &ActiveTaskError{TaskID: existing.ID}
	} else if !errors.Is(err, ErrNotFound) {
		return Analysis{}, err
	}

	snapshot, err := s.Usage.Check(ctx, userID)
	if err != nil {
		return Analysis{}, err
	}
	if !snapshot.CanProceed {
		metrics.IncQuotaDenied()
		return Analysis{}, &QuotaError{Usage: snapshot}
	}

	if input.TargetLang == "" {
		return Analysis{}, ErrMissingTargetLang
	}
	mime, err := validateImage(input.Image)
	if err != nil {
		return Analysis{}, err
	}

	imageKey, _, _, err := s.Store.Save(ctx, userID, input.FileName, bytes.NewReader(input.Image))
	if err != nil {
		return Analysis{}, fmt.Errorf("store image: %w", err)
	}

	now := s.clock()
	task := Analysis{
		ID:         uuid.NewString(),
		UserID:     userID,
		Status:     StatusAnalyzing,
		TargetLang: input.TargetLang,
		NativeLang: input.NativeLang,
		Level:      input.Level,
		ImageKey:   imageKey,
		StartedAt:  &now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Repo.Create(ctx, task); err != nil {
		var active *ActiveTaskError
		if errors.As(err, &active) {
			metrics.IncSubmitConflict()
		}
		return Analysis{}, err
	}

	// The slot is charged before the provider call. A failed analysis keeps
	// its charge; retries are not free.
	if _, err := s.Usage.Increment(ctx, userID); err != nil {
		msg := "could not record usage"
		_ = s.Repo.SetTerminal(ctx, task.ID, StatusFailed, nil, &msg, s.clock())
		return Analysis{}, fmt.Errorf("increment usage: %w", err)
	}

	metrics.IncAnalysisStarted()
	telemetry.Info("analysis.started", map[string]any{
		"taskId": task.ID, "userId": userID, "targetLang": input.TargetLang,
		"request_id": requestIDFromContext(ctx),
	})
	go s.completeAsync(backgroundWithRequestID(ctx), task, input, mime)
	return task, nil
}

// GetForUser returns the task if it belongs to the user. Tasks owned by
// others are indistinguishable from missing ones.
func (s *Service) GetForUser(ctx context.Context, userID, id string) (Analysis, error) {
	a, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return Analysis{}, err
	}
	if a.UserID != userID {
		return Analysis{}, ErrNotFound
	}
	return a, nil
}

// ListForUser returns the user's analyses, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string, limit, offset int) ([]Analysis, error) {
	return s.Repo.ListByUser(ctx, userID, limit, offset)
}

func (s *Service) completeAsync(ctx context.Context, task Analysis, input SubmitInput, mime string) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.Error("analysis.panic", map[string]any{"taskId": task.ID, "panic": fmt.Sprint(r)})
			s.fail(ctx, task, "internal error")
		}
	}()

	start := s.clock()
	res, err := s.Vision.AnalyzeImage(ctx, vision.AnalyzeInput{
		Image:      input.Image,
		MimeType:   mime,
		TargetLang: input.TargetLang,
		NativeLang: input.NativeLang,
		Level:      input.Level,
	})
	if err != nil {
		telemetry.Error("analysis.provider_failed", map[string]any{"taskId": task.ID, "error": err.Error()})
		s.fail(ctx, task, "analysis failed")
		return
	}

	result := &Result{
		Description: res.Description,
		Vocabulary:  res.Vocabulary,
		ArtifactKey: s.saveArtifact(ctx, task, res),
	}
	if err := s.Repo.SetTerminal(ctx, task.ID, StatusCompleted, result, nil, s.clock()); err != nil {
		telemetry.Error("analysis.finalize_failed", map[string]any{"taskId": task.ID, "error": err.Error()})
		s.fail(ctx, task, "could not store result")
		return
	}

	if s.Stats != nil {
		if _, err := s.Stats.RecordAnalysis(ctx, task.UserID, len(res.Vocabulary)); err != nil {
			telemetry.Error("analysis.stats_failed", map[string]any{"taskId": task.ID, "error": err.Error()})
		}
	}

	metrics.IncAnalysisCompleted()
	metrics.ObserveAnalysisDurationMs(float64(s.clock().Sub(start).Milliseconds()))
	telemetry.Info("analysis.completed", map[string]any{
		"taskId": task.ID, "userId": task.UserID, "words": len(res.Vocabulary),
		"request_id": requestIDFromContext(ctx),
	})
}

// saveArtifact writes the result JSON next to the image. Failure is tolerated
// because the result is also stored inline.
func (s *Service) saveArtifact(ctx context.Context, task Analysis, res vision.Result) string {
	payload, err := json.Marshal(res)
	if err != nil {
		return ""
	}
	key := task.ImageKey + ".analysis.json"
	if _, err := s.Store.SaveWithKey(ctx, key, "application/json", bytes.NewReader(payload)); err != nil {
		telemetry.Warn("analysis.artifact_failed", map[string]any{"taskId": task.ID, "error": err.Error()})
		return ""
	}
	return key
}

func (s *Service) fail(ctx context.Context, task Analysis, message string) {
	if err := s.Repo.SetTerminal(ctx, task.ID, StatusFailed, nil, &message, s.clock()); err != nil {
		telemetry.Error("analysis.fail_update_failed", map[string]any{"taskId": task.ID, "error": err.Error()})
	}
	metrics.IncAnalysisFailed()
	telemetry.Info("analysis.failed", map[string]any{
		"taskId": task.ID, "userId": task.UserID, "reason": message,
		"request_id": requestIDFromContext(ctx),
	})
}
