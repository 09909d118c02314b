// Package decoder turns an encrypted session log back into a trustworthy
// reconstruction of what the student submitted.
//
// Unlike the logging side, every inconsistency here is fatal: a line that
// fails to decrypt, a missing identity field or an empty log aborts the run.
package decoder

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pavelanni/examtrail/internal/keys"
	"github.com/pavelanni/examtrail/internal/model"
	"github.com/pavelanni/examtrail/internal/telemetry"
)

var (
	infoLine   = regexp.MustCompile(`^info,`)
	answerLine = regexp.MustCompile(`^q(\d+)_(\d+),`)
)

// maxLineSize bounds a single log line; code-run events can be long.
const maxLineSize = 16 * 1024 * 1024

// suspiciousCode flags cell sources that touch the grading side of the toolkit.
var suspiciousCode = []string{"server_private_key", "client_public_key", "examtrail decode", "examtrail validate"}

// Options control reconstruction.
type Options struct {
	// Assignment is the expected assignment identifier. Empty skips the check;
	// only audit paths that never submit may leave it empty.
	Assignment string
	// FreeResponseQuestions is the threshold N: questions 1..N keep only the
	// last entry per sub-question key, questions above N keep every entry.
	FreeResponseQuestions int
}

// Entry is one answer line, "q<N>_<M>, <value>, <timestamp>".
type Entry struct {
	Key       string
	Question  int
	Sub       int
	Value     string
	Timestamp time.Time
	Line      int
}

// Session is the reconstruction of one exam attempt.
type Session struct {
	Events     []model.Event
	Reduced    []string
	Info       map[string]string
	Timeline   model.Timeline
	Entries    []Entry
	Code       []string
	Other      []string
	Suspicious []string
}

// Decode decrypts the log at path and reconstructs the session.
func Decode(path string, pair keys.Pair, opts Options) (*Session, error) {
	events, err := DecryptFile(path, pair)
	if err != nil {
		return nil, err
	}
	return Reconstruct(events, opts)
}

// DecryptFile decrypts every marked line of the log at path.
func DecryptFile(path string, pair keys.Pair) ([]model.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()
	return Decrypt(f, pair)
}

// Decrypt reads a log stream and decrypts every line containing the marker.
// Lines without the marker are ignored.
func Decrypt(r io.Reader, pair keys.Pair) ([]model.Event, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var events []model.Event
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		_, payload, ok := strings.Cut(scanner.Text(), model.LogMarker)
		if !ok {
			continue
		}
		text, err := telemetry.Open(strings.TrimSpace(payload), pair)
		if err != nil {
			return nil, &LineError{Line: lineNum, Err: fmt.Errorf("%w: %v", ErrDecrypt, err)}
		}
		events = append(events, model.Event{Line: lineNum, Kind: classify(text), Text: text})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	if len(events) == 0 {
		return nil, ErrEmptyLog
	}
	slog.Debug("decrypted log", "events", len(events), "lines", lineNum)
	return events, nil
}

func classify(text string) model.EventKind {
	switch {
	case infoLine.MatchString(text):
		return model.EventInfo
	case answerLine.MatchString(text):
		return model.EventAnswer
	case strings.HasPrefix(text, model.CodeRunPrefix):
		return model.EventCode
	default:
		return model.EventOther
	}
}

// Reconstruct rebuilds identity, timeline and answers from decrypted events.
func Reconstruct(events []model.Event, opts Options) (*Session, error) {
	if len(events) == 0 {
		return nil, ErrEmptyLog
	}

	s := &Session{Events: events, Info: make(map[string]string)}
	var answers []Entry
	var stamps []time.Time

	// Short info lines are free-form variables that happen to be labelled
	// "info"; they carry no identity field.
	shortInfo := make(map[int]bool)

	for i, ev := range events {
		switch ev.Kind {
		case model.EventCode:
			s.Code = append(s.Code, ev.Text)
			if isSuspicious(ev.Text) {
				s.Suspicious = append(s.Suspicious, ev.Text)
			}
			continue
		case model.EventOther:
			s.Other = append(s.Other, ev.Text)
			continue
		}

		parts := splitFields(ev.Text)
		if ev.Kind == model.EventInfo {
			if len(parts) < 4 {
				slog.Warn("info line without a field and value, kept as a variable", "line", ev.Line, "text", ev.Text)
				shortInfo[i] = true
				s.Other = append(s.Other, ev.Text)
				continue
			}
			s.Reduced = append(s.Reduced, ev.Text)
			// Last write wins.
			s.Info[parts[1]] = strings.Join(parts[2:len(parts)-1], ", ")
			continue
		}

		s.Reduced = append(s.Reduced, ev.Text)
		if len(parts) < 3 {
			return nil, &LineError{Line: ev.Line, Err: fmt.Errorf("%w: %q", ErrMalformed, ev.Text)}
		}
		m := answerLine.FindStringSubmatch(ev.Text)
		q, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, &LineError{Line: ev.Line, Err: fmt.Errorf("%w: question number in %q", ErrMalformed, ev.Text)}
		}
		sub, err := strconv.Atoi(m[2])
		if err != nil {
			return nil, &LineError{Line: ev.Line, Err: fmt.Errorf("%w: sub-question number in %q", ErrMalformed, ev.Text)}
		}
		answers = append(answers, Entry{
			Key:      parts[0],
			Question: q,
			Sub:      sub,
			Value:    strings.Join(parts[1:len(parts)-1], ", "),
			Line:     ev.Line,
		})
	}

	for _, field := range model.RequiredInfoFields {
		if _, ok := s.Info[field]; !ok {
			return nil, &MissingFieldError{Field: field}
		}
	}
	if opts.Assignment != "" && s.Info[model.KeyAssignment] != opts.Assignment {
		return nil, &AssignmentMismatchError{Expected: opts.Assignment, Got: s.Info[model.KeyAssignment]}
	}

	if len(s.Reduced) == 0 {
		return nil, ErrNoTimestamps
	}
	ai := 0
	for i, ev := range events {
		if ev.Kind != model.EventInfo && ev.Kind != model.EventAnswer || shortInfo[i] {
			continue
		}
		parts := splitFields(ev.Text)
		ts, err := time.Parse(model.TimestampLayout, parts[len(parts)-1])
		if err != nil {
			return nil, &LineError{Line: ev.Line, Err: fmt.Errorf("%w: %v", ErrBadTimestamp, err)}
		}
		stamps = append(stamps, ts)
		if ev.Kind == model.EventAnswer {
			answers[ai].Timestamp = ts
			ai++
		}
	}
	s.Timeline = timeline(stamps)
	s.Entries = collapse(answers, opts.FreeResponseQuestions)
	return s, nil
}

func splitFields(text string) []string {
	parts := strings.Split(text, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func timeline(stamps []time.Time) model.Timeline {
	start, end := stamps[0], stamps[0]
	for _, ts := range stamps[1:] {
		if ts.Before(start) {
			start = ts
		}
		if ts.After(end) {
			end = ts
		}
	}
	minutes := end.Sub(start).Minutes()
	return model.Timeline{
		Start:          start,
		End:            end,
		ElapsedMinutes: math.Round(minutes*100) / 100,
	}
}

// collapse keeps only the last entry per exact key for questions up to the
// threshold and every entry for the questions above it.
func collapse(answers []Entry, threshold int) []Entry {
	last := make(map[string]int)
	for i, e := range answers {
		if e.Question <= threshold {
			last[e.Key] = i
		}
	}
	out := make([]Entry, 0, len(answers))
	for i, e := range answers {
		if e.Question <= threshold && last[e.Key] != i {
			continue
		}
		out = append(out, e)
	}
	return out
}

func isSuspicious(code string) bool {
	for _, s := range suspiciousCode {
		if strings.Contains(code, s) {
			return true
		}
	}
	return false
}

// InfoDocument returns the flattened, upper-cased metadata written to info.json.
func (s *Session) InfoDocument() map[string]any {
	doc := make(map[string]any, len(s.Info)+3)
	for k, v := range s.Info {
		doc[strings.ToUpper(k)] = v
	}
	doc["START_TIME"] = s.Timeline.Start.Format(model.TimestampLayout)
	doc["END_TIME"] = s.Timeline.End.Format(model.TimestampLayout)
	doc["ELAPSED_MINUTES"] = s.Timeline.ElapsedMinutes
	return doc
}
