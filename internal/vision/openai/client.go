package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"lingolens-backend/internal/shared/telemetry"
	"lingolens-backend/internal/vision"
)

const defaultTimeout = 90 * time.Second

// Client implements vision.Client using OpenAI chat completions with image input.
type Client struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewClient constructs a new OpenAI vision client.
func NewClient(apiKey, model string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("VISION_MODEL is required for OpenAI")
	}
	timeout := defaultTimeout
	if raw := strings.TrimSpace(os.Getenv("OPENAI_TIMEOUT_SECONDS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			timeout = time.Duration(parsed) * time.Second
		}
	}
	return &Client{
		client:  openai.NewClient(apiKey),
		model:   model,
		timeout: timeout,
	}, nil
}

// AnalyzeImage sends the photo to the model and parses the structured response.
// A single repair round-trip is attempted when the model returns malformed JSON.
func (c *Client) AnalyzeImage(ctx context.Context, input vision.AnalyzeInput) (vision.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.complete(ctx, input, "")
	if err != nil {
		return vision.Result{}, err
	}

	result, parseErr := parseResult(raw)
	if parseErr == nil {
		return result, nil
	}

	telemetry.Warn("vision.parse_retry", map[string]any{
		"model": c.model,
		"error": parseErr.Error(),
	})

	raw, err = c.complete(ctx, input, raw)
	if err != nil {
		return vision.Result{}, err
	}
	result, parseErr = parseResult(raw)
	if parseErr != nil {
		return vision.Result{}, fmt.Errorf("vision output invalid: %w", parseErr)
	}
	return result, nil
}

func (c *Client) complete(ctx context.Context, input vision.AnalyzeInput, brokenJSON string) (string, error) {
	prompt := buildPrompt(input)
	if brokenJSON != "" {
		prompt = fmt.Sprintf("The previous response was not valid JSON:\n%s\n\nReturn the same content as a single valid JSON object, nothing else.", brokenJSON)
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", input.MimeType, base64.StdEncoding.EncodeToString(input.Image))

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailLow,
						},
					},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat completion: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func buildPrompt(input vision.AnalyzeInput) string {
	level := input.Level
	if level == "" {
		level = "beginner"
	}
	return fmt.Sprintf(`Look at the photo and teach vocabulary from it.

Describe the scene in one or two sentences in %[1]s, then list the most useful
words visible in the photo for a %[3]s learner of %[1]s, each with its
translation into %[2]s and a short example sentence in %[1]s.

Return a JSON object with this structure:
{
  "description": "scene description in %[1]s",
  "vocabulary": [
    {"word": "...", "translation": "...", "example": "..."}
  ]
}`, input.TargetLang, input.NativeLang, level)
}

func parseResult(raw string) (vision.Result, error) {
	var result vision.Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return vision.Result{}, err
	}
	if strings.TrimSpace(result.Description) == "" && len(result.Vocabulary) == 0 {
		return vision.Result{}, fmt.Errorf("empty analysis payload")
	}
	return result, nil
}

var _ vision.Client = (*Client)(nil)
