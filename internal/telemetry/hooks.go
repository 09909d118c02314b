package telemetry

import (
	"log/slog"
	"sync"
)

// HookFunc receives the raw source of a unit of student code before it runs.
type HookFunc func(source string)

// Hooks is the pre-run callback registry of a notebook host. The host calls
// PreRunCell synchronously before executing each cell.
type Hooks struct {
	mu    sync.Mutex
	names []string
	funcs map[string]HookFunc
}

// NewHooks returns an empty registry.
func NewHooks() *Hooks {
	return &Hooks{funcs: make(map[string]HookFunc)}
}

// Register adds fn under name. Registering the same name twice replaces the
// earlier callback so re-running the setup cell does not double-log.
func (h *Hooks) Register(name string, fn HookFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.funcs[name]; !ok {
		h.names = append(h.names, name)
	}
	h.funcs[name] = fn
}

// Registered reports whether a callback is registered under name.
func (h *Hooks) Registered(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.funcs[name]
	return ok
}

// PreRunCell invokes every callback in registration order. A panicking
// callback is recovered and logged; the cell always proceeds.
func (h *Hooks) PreRunCell(source string) {
	h.mu.Lock()
	names := append([]string(nil), h.names...)
	funcs := make([]HookFunc, 0, len(names))
	for _, n := range names {
		funcs = append(funcs, h.funcs[n])
	}
	h.mu.Unlock()

	for i, fn := range funcs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Warn("pre-run hook panicked", "hook", names[i], "panic", r)
				}
			}()
			fn(source)
		}()
	}
}
