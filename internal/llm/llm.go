// Package llm grades free-response answers through an OpenAI-compatible
// chat completion endpoint.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/pavelanni/examtrail/internal/llm/prompts"
	"github.com/pavelanni/examtrail/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

const systemMessage = "You are an exam grader. Reply with a single JSON object and nothing else."

// GradeResult holds the model's assessment of one answer.
type GradeResult struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	variant prompts.Variant
}

// New creates a new LLM client. variant is used for answer-key items that
// do not name their own.
func New(baseURL, apiKey, modelName string, variant prompts.Variant) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: variant,
	}
}

// Ping checks that the endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// GradeFreeResponse scores one answer. The score is clamped to
// [0, fr.MaxPoints].
func (c *Client) GradeFreeResponse(ctx context.Context, fr model.FreeResponse) (float64, string, error) {
	prompt, err := prompts.Build(fr, c.variant)
	if err != nil {
		return 0, "", fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemMessage},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return 0, "", fmt.Errorf("LLM grading API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return 0, "", fmt.Errorf("LLM returned no choices for grading")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)

	result, err := parseResult(raw)
	if err != nil {
		return 0, "", err
	}
	score := math.Min(math.Max(result.Score, 0), fr.MaxPoints)
	return score, result.Feedback, nil
}

// parseResult decodes the model's JSON, tolerating a Markdown code fence
// around it.
func parseResult(raw string) (*GradeResult, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	var result GradeResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &result); err != nil {
		return nil, fmt.Errorf("parse grading response: %w (raw: %s)", err, raw)
	}
	if math.IsNaN(result.Score) || math.IsInf(result.Score, 0) {
		return nil, fmt.Errorf("grading response has invalid score (raw: %s)", raw)
	}
	return &result, nil
}
