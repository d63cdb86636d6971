package vision

import (
	"context"
	"errors"
)

// Client abstracts the vision model that turns a photo into vocabulary.
type Client interface {
	AnalyzeImage(ctx context.Context, input AnalyzeInput) (Result, error)
}

// AnalyzeInput captures the inputs for a single image analysis.
type AnalyzeInput struct {
	Image      []byte
	MimeType   string
	TargetLang string
	NativeLang string
	Level      string
}

// VocabularyItem is one word extracted from the image.
type VocabularyItem struct {
	Word        string `json:"word"`
	Translation string `json:"translation"`
	Example     string `json:"example,omitempty"`
}

// Result is the parsed model output for one image.
type Result struct {
	Description string           `json:"description"`
	Vocabulary  []VocabularyItem `json:"vocabulary"`
}

// ErrNotImplemented is returned by the placeholder client.
var ErrNotImplemented = errors.New("vision provider not implemented")

// PlaceholderClient is a stub implementation until provider wiring is added.
type PlaceholderClient struct{}

// AnalyzeImage returns ErrNotImplemented.
func (PlaceholderClient) AnalyzeImage(ctx context.Context, input AnalyzeInput) (Result, error) {
	_ = ctx
	_ = input
	return Result{}, ErrNotImplemented
}
