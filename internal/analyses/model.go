package analyses

import (
	"time"

	"lingolens-backend/internal/vision"
)

// Status values for an analysis task. A task is created active, transitions
// once to a terminal status, and never leaves it.
const (
	StatusPending   = "pending"
	StatusAnalyzing = "analyzing"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Analysis represents one photo-vocabulary analysis task.
type Analysis struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	Status       string     `json:"status"`
	TargetLang   string     `json:"targetLang"`
	NativeLang   string     `json:"nativeLang"`
	Level        string     `json:"level"`
	ImageKey     string     `json:"imageKey,omitempty"`
	Result       *Result    `json:"result,omitempty"`
	ErrorMessage *string    `json:"errorMessage,omitempty"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Result is the payload of a completed analysis. ArtifactKey points at the
// stored JSON artifact when the blob store accepted it; the inline fields are
// always present.
type Result struct {
	Description string                  `json:"description"`
	Vocabulary  []vision.VocabularyItem `json:"vocabulary"`
	ArtifactKey string                  `json:"artifactKey,omitempty"`
}

// IsActive reports whether the status counts against the one-in-flight rule.
func IsActive(status string) bool {
	return status == StatusPending || status == StatusAnalyzing
}

// IsTerminal reports whether the status is final.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}
