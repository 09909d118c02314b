package answerkey

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Holder serves the current answer key and swaps it on reload.
type Holder struct {
	path     string
	mu       sync.RWMutex
	key      *Key
	onReload func(*Key)
}

// NewHolder loads the key at path. onReload, if not nil, runs after every
// successful reload.
func NewHolder(path string, onReload func(*Key)) (*Holder, error) {
	k, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Holder{path: path, key: k, onReload: onReload}, nil
}

// Key returns the current answer key.
func (h *Holder) Key() *Key {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.key
}

// Path returns the watched file.
func (h *Holder) Path() string { return h.path }

// Reload re-reads the file. A broken file keeps the previous key.
func (h *Holder) Reload() error {
	k, err := Load(h.path)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.key = k
	h.mu.Unlock()
	if h.onReload != nil {
		h.onReload(k)
	}
	return nil
}

// debounce is how long the watcher waits after the last write.
const debounce = 500 * time.Millisecond

// Watch reloads the key whenever its file changes. It blocks until ctx is
// cancelled. The parent directory is watched so editors that replace the
// file by rename are picked up too.
func (h *Holder) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(h.path)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", h.path, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %q: %w", filepath.Dir(abs), err)
	}

	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				if err := h.Reload(); err != nil {
					slog.Error("answer key reload failed, keeping previous key", "path", h.path, "error", err)
					return
				}
				slog.Info("answer key reloaded", "path", h.path, "sha256", h.Key().Hash)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("file watcher error", "error", err)
		}
	}
}
