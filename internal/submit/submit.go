// Package submit talks to the grading service. Every call is a single
// attempt; a non-200 answer is returned as a *StatusError and never retried,
// so a human decides whether to resubmit.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pavelanni/examtrail/internal/model"
)

// maxBodySize bounds how much of a response body is kept for diagnostics.
const maxBodySize = 1 << 20

// StatusError is returned when the grading service answers with a status
// other than 200. Body holds the response text verbatim.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: HTTP %d: %s", e.Op, e.Code, strings.TrimSpace(e.Body))
}

// Client posts to the grading service with basic auth.
type Client struct {
	http  *http.Client
	creds model.Credentials
}

// New returns a client. A zero timeout means requests never time out.
func New(creds model.Credentials, timeout time.Duration) *Client {
	return &Client{
		http:  &http.Client{Timeout: timeout},
		creds: creds,
	}
}

// Login checks the credentials against loginURL.
func (c *Client) Login(ctx context.Context, loginURL string) error {
	_, err := c.post(ctx, "login", loginURL, nil)
	if err != nil {
		return err
	}
	slog.Info("login successful", "url", loginURL)
	return nil
}

// Submit uploads the score report and returns the server's response text.
func (c *Client) Submit(ctx context.Context, postURL string, upload model.ScoreUpload) (string, error) {
	body, err := c.post(ctx, "submit", postURL, upload)
	if err != nil {
		return "", err
	}
	slog.Info("scores uploaded", "url", postURL, "assignment", upload.Assignment, "questions", len(upload.Scores))
	return body, nil
}

// ScoreQuestion asks the live scorer to grade the responses of one question.
func (c *Client) ScoreQuestion(ctx context.Context, baseURL string, req model.LiveScoreRequest) (*model.LiveScore, error) {
	body, err := c.post(ctx, "live score", strings.TrimRight(baseURL, "/")+"/live-scorer", req)
	if err != nil {
		return nil, err
	}
	var score model.LiveScore
	if err := json.Unmarshal([]byte(body), &score); err != nil {
		return nil, fmt.Errorf("parse live score: %w", err)
	}
	return &score, nil
}

// SubmitQuestion records the final responses and score of one question.
func (c *Client) SubmitQuestion(ctx context.Context, baseURL string, sub model.QuestionSubmission) error {
	_, err := c.post(ctx, "submit question", strings.TrimRight(baseURL, "/")+"/submit-question", sub)
	return err
}

func (c *Client) post(ctx context.Context, op, url string, payload any) (string, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("%s: marshal payload: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return "", fmt.Errorf("%s: create request: %w", op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(c.creds.Username, c.creds.Password)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("%s: read response: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Op: op, Code: resp.StatusCode, Body: string(data)}
	}
	return string(data), nil
}
