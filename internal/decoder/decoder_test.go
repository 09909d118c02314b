package decoder

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/pavelanni/examtrail/internal/keys"
	"github.com/pavelanni/examtrail/internal/model"
	"github.com/pavelanni/examtrail/internal/telemetry"
)

func newTestPaths(t *testing.T) model.Paths {
	t.Helper()
	p := model.DefaultPaths(t.TempDir())
	if err := keys.Generate(p, false); err != nil {
		t.Fatalf("keys.Generate: %v", err)
	}
	return p
}

// writeLog encrypts each cleartext line into the session log, interleaved
// with an unrelated plain line the decoder must ignore.
func writeLog(t *testing.T, p model.Paths, lines ...string) {
	t.Helper()
	sender, err := keys.LoadSender(p)
	if err != nil {
		t.Fatalf("LoadSender: %v", err)
	}
	var b strings.Builder
	b.WriteString("WARNING:root:kernel restarted\n")
	for _, l := range lines {
		enc, err := telemetry.Seal(l, sender)
		if err != nil {
			t.Fatalf("Seal: %v", err)
		}
		b.WriteString("INFO:root:" + model.LogMarker + enc + "\n")
	}
	if err := os.WriteFile(p.Log, []byte(b.String()), 0600); err != nil {
		t.Fatalf("write log: %v", err)
	}
}

func identityLines(assignment string) []string {
	return []string{
		"info, assignment, " + assignment + ", 2024-01-01 10:00:00",
		"info, first_name, Ada, 2024-01-01 10:01:00",
		"info, last_name, Lovelace, 2024-01-01 10:01:00",
		"info, drexel_id, al123, 2024-01-01 10:01:00",
		"info, drexel_email, al123@drexel.edu, 2024-01-01 10:01:00",
	}
}

func decode(t *testing.T, p model.Paths, opts Options) (*Session, error) {
	t.Helper()
	pair, err := keys.LoadReceiver(p)
	if err != nil {
		t.Fatalf("LoadReceiver: %v", err)
	}
	return Decode(p.Log, pair, opts)
}

func TestDecodeFullSession(t *testing.T) {
	p := newTestPaths(t)
	lines := append(identityLines("week1"),
		"code run: import numpy as np",
		"q1_1, 3, 2024-01-01 10:05:00",
		"notes, scratch, 2024-01-01 10:06:00",
		"q1_2, 4, 2024-01-01 10:42:30",
	)
	writeLog(t, p, lines...)

	s, err := decode(t, p, Options{Assignment: "week1"})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if s.Info["first_name"] != "Ada" || s.Info["drexel_email"] != "al123@drexel.edu" {
		t.Errorf("unexpected info: %v", s.Info)
	}
	if len(s.Code) != 1 || len(s.Other) != 1 {
		t.Errorf("expected 1 code and 1 other event, got %d and %d", len(s.Code), len(s.Other))
	}
	if len(s.Reduced) != 7 {
		t.Errorf("expected 7 reduced lines, got %d", len(s.Reduced))
	}
	if s.Timeline.ElapsedMinutes != 42.5 {
		t.Errorf("expected 42.5 elapsed minutes, got %v", s.Timeline.ElapsedMinutes)
	}
	if len(s.Entries) != 2 || s.Entries[0].Key != "q1_1" || s.Entries[0].Value != "3" {
		t.Errorf("unexpected entries: %+v", s.Entries)
	}
	if s.Entries[1].Question != 1 || s.Entries[1].Sub != 2 {
		t.Errorf("unexpected parse of q1_2: %+v", s.Entries[1])
	}

	doc := s.InfoDocument()
	if doc["START_TIME"] != "2024-01-01 10:00:00" || doc["END_TIME"] != "2024-01-01 10:42:30" {
		t.Errorf("unexpected window: %v - %v", doc["START_TIME"], doc["END_TIME"])
	}
	if doc["DREXEL_ID"] != "al123" {
		t.Errorf("expected upper-cased keys, got %v", doc)
	}
}

func TestLastWriteWins(t *testing.T) {
	p := newTestPaths(t)
	lines := append(identityLines("A1"), "info, assignment, A2, 2024-01-01 11:00:00")
	writeLog(t, p, lines...)

	s, err := decode(t, p, Options{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if s.Info["assignment"] != "A2" {
		t.Errorf("expected A2, got %q", s.Info["assignment"])
	}
}

func TestAssignmentMismatch(t *testing.T) {
	p := newTestPaths(t)
	writeLog(t, p, append(identityLines("week2"), "q1_1, 3, 2024-01-01 10:05:00")...)

	_, err := decode(t, p, Options{Assignment: "week1"})
	var mismatch *AssignmentMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected AssignmentMismatchError, got %v", err)
	}
	if mismatch.Got != "week2" || mismatch.Expected != "week1" {
		t.Errorf("unexpected mismatch detail: %+v", mismatch)
	}
}

func TestMissingRequiredField(t *testing.T) {
	for _, field := range []string{"drexel_id", "first_name", "last_name", "drexel_email", "assignment"} {
		t.Run(field, func(t *testing.T) {
			p := newTestPaths(t)
			var lines []string
			for _, l := range identityLines("week1") {
				if !strings.HasPrefix(l, "info, "+field+",") {
					lines = append(lines, l)
				}
			}
			// A bad timestamp proves the field check runs first.
			lines = append(lines, "q1_1, 3, not-a-time")
			writeLog(t, p, lines...)

			_, err := decode(t, p, Options{Assignment: "week1"})
			var missing *MissingFieldError
			if !errors.As(err, &missing) {
				t.Fatalf("expected MissingFieldError, got %v", err)
			}
			if missing.Field != field {
				t.Errorf("expected missing %s, got %s", field, missing.Field)
			}
		})
	}
}

func TestDecryptFailureAborts(t *testing.T) {
	p := newTestPaths(t)
	writeLog(t, p, identityLines("week1")...)

	// Append a line sealed for a different server.
	other := newTestPaths(t)
	sender, _ := keys.LoadSender(other)
	enc, _ := telemetry.Seal("q1_1, 10, 2024-01-01 10:05:00", sender)
	f, err := os.OpenFile(p.Log, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString(model.LogMarker + enc + "\n")
	f.Close()

	_, err = decode(t, p, Options{Assignment: "week1"})
	if !errors.Is(err, ErrDecrypt) {
		t.Fatalf("expected ErrDecrypt, got %v", err)
	}
	var lineErr *LineError
	if !errors.As(err, &lineErr) || lineErr.Line != 7 {
		t.Errorf("expected failure on line 7, got %v", err)
	}
}

func TestEmptyAndDegenerateLogs(t *testing.T) {
	t.Run("no encrypted lines", func(t *testing.T) {
		p := newTestPaths(t)
		writeLog(t, p)
		if _, err := decode(t, p, Options{}); !errors.Is(err, ErrEmptyLog) {
			t.Errorf("expected ErrEmptyLog, got %v", err)
		}
	})

	t.Run("bad timestamp", func(t *testing.T) {
		p := newTestPaths(t)
		writeLog(t, p, append(identityLines("week1"), "q1_1, 3, yesterday")...)
		if _, err := decode(t, p, Options{}); !errors.Is(err, ErrBadTimestamp) {
			t.Errorf("expected ErrBadTimestamp, got %v", err)
		}
	})

	t.Run("no retained events", func(t *testing.T) {
		events := []model.Event{{Line: 1, Kind: model.EventCode, Text: "code run: x"}}
		if _, err := Reconstruct(events, Options{}); err == nil {
			t.Error("expected error for log without identity")
		}
	})
}

func TestFreeResponseThreshold(t *testing.T) {
	p := newTestPaths(t)
	lines := append(identityLines("week1"),
		"q1_1, 3, 2024-01-01 10:05:00",
		"q1_1, 0, 2024-01-01 10:06:00",
		"q2_1, 3, 2024-01-01 10:07:00",
		"q2_1, 0, 2024-01-01 10:08:00",
	)
	writeLog(t, p, lines...)

	s, err := decode(t, p, Options{Assignment: "week1", FreeResponseQuestions: 1})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	var q1, q2 []string
	for _, e := range s.Entries {
		switch e.Question {
		case 1:
			q1 = append(q1, e.Value)
		case 2:
			q2 = append(q2, e.Value)
		}
	}
	if len(q1) != 1 || q1[0] != "0" {
		t.Errorf("question 1 should collapse to its last entry, got %v", q1)
	}
	if len(q2) != 2 {
		t.Errorf("question 2 should keep every entry, got %v", q2)
	}
}

func TestSuspiciousCode(t *testing.T) {
	p := newTestPaths(t)
	lines := append(identityLines("week1"),
		"code run: open('server_private_key.bin', 'rb').read()",
		"code run: print('fine')",
	)
	writeLog(t, p, lines...)

	s, err := decode(t, p, Options{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(s.Suspicious) != 1 {
		t.Errorf("expected 1 suspicious cell, got %v", s.Suspicious)
	}
}

func TestOverflowingQuestionNumberIsMalformed(t *testing.T) {
	p := newTestPaths(t)
	writeLog(t, p, append(identityLines("week1"), "q99999999999999999999_1, 3, 2024-01-01 10:05:00")...)

	_, err := decode(t, p, Options{Assignment: "week1"})
	var lineErr *LineError
	if !errors.Is(err, ErrMalformed) || !errors.As(err, &lineErr) {
		t.Fatalf("expected malformed LineError, got %v", err)
	}
	// Line 1 is the plain kernel warning.
	if lineErr.Line != 7 {
		t.Errorf("expected line 7, got %d", lineErr.Line)
	}
}

func TestShortInfoLineIsKeptAsVariable(t *testing.T) {
	p := newTestPaths(t)
	lines := append(identityLines("week1"),
		"info, scratch, 2024-01-01 10:05:00",
		"info, 2024-01-01 10:06:00",
		"q1_1, 3, 2024-01-01 10:42:30",
	)
	writeLog(t, p, lines...)

	s, err := decode(t, p, Options{Assignment: "week1"})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(s.Other) != 2 {
		t.Errorf("expected both short info lines in Other, got %v", s.Other)
	}
	if _, ok := s.Info["scratch"]; ok {
		t.Error("a short info line must not become an identity field")
	}
	if len(s.Reduced) != 6 {
		t.Errorf("expected 6 reduced lines, got %d", len(s.Reduced))
	}
	if s.Timeline.ElapsedMinutes != 42.5 || len(s.Entries) != 1 {
		t.Errorf("unexpected timeline or entries: %v %+v", s.Timeline, s.Entries)
	}
}
