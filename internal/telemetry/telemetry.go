// Package telemetry records the encrypted, append-only activity log of an
// exam session.
//
// Everything on this path favours availability: a failure to log is reported
// locally and dropped, it never interrupts the student's cell.
package telemetry

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pavelanni/examtrail/internal/keys"
	"github.com/pavelanni/examtrail/internal/model"
)

// Logger encrypts events and appends them to the session log file.
type Logger struct {
	paths   model.Paths
	now     func() time.Time
	mu      sync.Mutex
	dropped atomic.Int64
}

// NewLogger returns a logger writing to p.Log with keys from p.
func NewLogger(p model.Paths) *Logger {
	return &Logger{paths: p, now: time.Now}
}

// RecordCellExecution logs the source of a cell about to run. It never fails.
func (l *Logger) RecordCellExecution(source string) {
	l.record(model.CodeRunPrefix + source)
}

// RecordVariable logs "<label>, <value>, <timestamp>". It never fails.
func (l *Logger) RecordVariable(value any, label string) {
	ts := l.now().Format(model.TimestampLayout)
	l.record(fmt.Sprintf("%s, %v, %s", label, value, ts))
}

// RecordInfo logs an identity or session field as "info, <field>, <value>, <timestamp>".
func (l *Logger) RecordInfo(field string, value any) {
	l.RecordVariable(value, string(model.EventInfo)+", "+field)
}

// Dropped reports how many events were lost because of logging failures.
func (l *Logger) Dropped() int64 {
	return l.dropped.Load()
}

func (l *Logger) record(cleartext string) {
	defer func() {
		if r := recover(); r != nil {
			l.dropped.Add(1)
			slog.Warn("telemetry panic recovered, event dropped", "panic", r)
		}
	}()
	if err := l.Append(cleartext); err != nil {
		l.dropped.Add(1)
		slog.Warn("telemetry event dropped", "error", err)
	}
}

// Append encrypts cleartext and appends it as one marked line. Unlike the
// Record methods it returns the error to the caller.
func (l *Logger) Append(cleartext string) error {
	encoded, err := l.Encrypt(cleartext)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.paths.Log), 0700); err != nil {
		return fmt.Errorf("telemetry: create log directory: %w", err)
	}
	f, err := os.OpenFile(l.paths.Log, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("telemetry: open log: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("INFO:%s:%s%s\n", l.now().Format(model.TimestampLayout), model.LogMarker, encoded)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("telemetry: write log: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("telemetry: sync log: %w", err)
	}
	return nil
}

// Encrypt loads the sender keys from disk and seals cleartext with them.
// Key files are read on every call; they do not change during a session.
func (l *Logger) Encrypt(cleartext string) (string, error) {
	pair, err := keys.LoadSender(l.paths)
	if err != nil {
		return "", fmt.Errorf("telemetry: %w", err)
	}
	return Seal(cleartext, pair)
}
