package analyses

import (
	"errors"
	"fmt"

	"lingolens-backend/internal/usage"
)

var (
	ErrNotFound             = errors.New("analysis not found")
	ErrEmptyImage           = errors.New("image is empty")
	ErrImageTooLarge        = errors.New("image exceeds the maximum size")
	ErrUnsupportedImageType = errors.New("unsupported image type")
	ErrMissingTargetLang    = errors.New("targetLang is required")
)

// ActiveTaskError rejects a submit while the user already has an analysis in
// flight. TaskID identifies the existing task so the client can poll it.
type ActiveTaskError struct {
	TaskID string
}

func (e *ActiveTaskError) Error() string {
	return fmt.Sprintf("analysis %s is already in progress", e.TaskID)
}

// QuotaError rejects a submit once the daily limit is reached. It carries the
// usage snapshot so the response can report used and limit.
type QuotaError struct {
	Usage usage.Usage
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("daily analysis limit reached (%d/%d)", e.Usage.Used, e.Usage.Limit)
}

func (e *QuotaError) Unwrap() error { return usage.ErrLimitReached }
