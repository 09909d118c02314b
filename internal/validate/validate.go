// Package validate runs the grading-side batch: decrypt the session log,
// reconstruct and score it, write the local reports and submit the scores.
//
// Every integrity check happens before the first network call, so a rejected
// log never reaches the grading service.
package validate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pavelanni/examtrail/internal/decoder"
	"github.com/pavelanni/examtrail/internal/keys"
	"github.com/pavelanni/examtrail/internal/model"
	"github.com/pavelanni/examtrail/internal/scorer"
	"github.com/pavelanni/examtrail/internal/submit"
)

// ErrNoCredentials is returned when submission is requested without a username
// or password.
var ErrNoCredentials = errors.New("username and password are required to submit")

// ErrNoAssignment is returned when submission is requested without the
// expected assignment; the log's own claim is never trusted for an upload.
var ErrNoAssignment = errors.New("an expected assignment is required to submit")

// Config drives one validation run.
type Config struct {
	// Paths locates the key files and the output reports.
	Paths model.Paths
	// LogPath is the encrypted session log; defaults to Paths.Log.
	LogPath string

	// Assignment must match the log. It may only be empty when not
	// submitting.
	Assignment            string
	Rubric                model.Rubric
	FreeResponseQuestions int

	Submit      bool
	Credentials model.Credentials
	LoginURL    string
	PostURL     string
	HTTPTimeout time.Duration
}

// Result summarizes a finished run.
type Result struct {
	Session  *decoder.Session
	Report   *scorer.Report
	Upload   model.ScoreUpload
	Response string
}

// Run executes the pipeline. Local reports are written even when submission
// is disabled.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.Submit && cfg.Assignment == "" {
		return nil, ErrNoAssignment
	}
	if cfg.Submit && (cfg.Credentials.Username == "" || cfg.Credentials.Password == "") {
		return nil, ErrNoCredentials
	}
	logPath := cfg.LogPath
	if logPath == "" {
		logPath = cfg.Paths.Log
	}

	pair, err := keys.LoadReceiver(cfg.Paths)
	if err != nil {
		return nil, err
	}

	session, err := decoder.Decode(logPath, pair, decoder.Options{
		Assignment:            cfg.Assignment,
		FreeResponseQuestions: cfg.FreeResponseQuestions,
	})
	if err != nil {
		return nil, err
	}
	for _, code := range session.Suspicious {
		slog.Warn("suspicious code in session log", "code", code)
	}

	if err := writeReduced(cfg.Paths.ReducedLog, session.Reduced); err != nil {
		return nil, err
	}
	if err := writeJSON(cfg.Paths.Info, session.InfoDocument()); err != nil {
		return nil, fmt.Errorf("write info: %w", err)
	}

	report, err := scorer.Score(session.Entries, cfg.Rubric)
	if err != nil {
		return nil, err
	}
	for _, w := range report.Warnings {
		slog.Warn("rubric mismatch", "detail", w)
	}
	if err := writeJSON(cfg.Paths.Results, report.Results()); err != nil {
		return nil, fmt.Errorf("write results: %w", err)
	}

	score, possible := report.Total()
	slog.Info("session scored",
		"assignment", session.Info[model.KeyAssignment],
		"student", session.Info[model.KeyDrexelEmail],
		"score", score,
		"possible", possible,
		"elapsed_minutes", session.Timeline.ElapsedMinutes,
	)

	assignment := cfg.Assignment
	if assignment == "" {
		assignment = session.Info[model.KeyAssignment]
	}
	res := &Result{
		Session: session,
		Report:  report,
		Upload: model.ScoreUpload{
			Assignment:   assignment,
			StudentEmail: session.Info[model.KeyDrexelEmail],
			StartTime:    session.Timeline.Start.Format(model.TimestampLayout),
			EndTime:      session.Timeline.End.Format(model.TimestampLayout),
			Scores:       report.Tests,
		},
	}
	if !cfg.Submit {
		return res, nil
	}

	client := submit.New(cfg.Credentials, cfg.HTTPTimeout)
	if err := client.Login(ctx, cfg.LoginURL); err != nil {
		return res, err
	}
	res.Response, err = client.Submit(ctx, cfg.PostURL, res.Upload)
	if err != nil {
		return res, err
	}
	return res, nil
}

func writeReduced(path string, lines []string) error {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("write reduced log: %w", err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
