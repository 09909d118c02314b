package responses

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/pavelanni/examtrail/internal/model"
)

// ErrNoSeed is returned when a question is rendered before the identity form
// has stored a seed.
var ErrNoSeed = errors.New("you must submit your student info before starting the exam")

// Store is the durable key/value state of one exam attempt, persisted as a
// single JSON object.
type Store struct {
	path string
	temp string
}

// KeyValue is one entry returned by Values, in the order the keys were requested.
type KeyValue struct {
	Key   string
	Value any
}

// New returns a store backed by the response file in p.
func New(p model.Paths) *Store {
	return &Store{path: p.Responses, temp: p.ResponsesTemp}
}

// Ensure loads the store, creating it with an empty object when the file is
// missing or does not hold valid JSON.
func (s *Store) Ensure() (map[string]any, error) {
	data, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read responses: %w", err)
	}

	m := map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &m); err == nil && m != nil {
			return m, nil
		}
		slog.Warn("responses file is not valid JSON, resetting", "path", s.path)
		m = map[string]any{}
	}

	if err := s.write(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Get returns the value stored under key.
func (s *Store) Get(key string) (any, bool, error) {
	m, err := s.Ensure()
	if err != nil {
		return nil, false, err
	}
	v, ok := m[key]
	return v, ok, nil
}

// Update sets key to value and atomically replaces the response file.
func (s *Store) Update(key string, value any) (map[string]any, error) {
	return s.UpdateMany([]KeyValue{{Key: key, Value: value}})
}

// UpdateMany applies all pairs in order and commits them with a single
// atomic replace.
func (s *Store) UpdateMany(pairs []KeyValue) (map[string]any, error) {
	m, err := s.Ensure()
	if err != nil {
		return nil, err
	}
	for _, kv := range pairs {
		m[kv.Key] = kv.Value
	}
	if err := s.write(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Values returns the stored value of every key, in the given order. Keys that
// were never answered carry a nil value.
func (s *Store) Values(keys []string) ([]KeyValue, error) {
	m, err := s.Ensure()
	if err != nil {
		return nil, err
	}
	out := make([]KeyValue, 0, len(keys))
	for _, k := range keys {
		out = append(out, KeyValue{Key: k, Value: m[k]})
	}
	return out, nil
}

// Seed returns the stored shuffling seed. It fails with ErrNoSeed when the
// identity form has not been submitted yet.
func (s *Store) Seed() (int64, error) {
	v, ok, err := s.Get(model.KeySeed)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNoSeed
	}
	// JSON numbers decode as float64.
	f, isNum := v.(float64)
	if !isNum || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: seed %v is not an integer", ErrNoSeed, v)
	}
	return int64(f), nil
}

// write commits m by writing a temporary file and renaming it over the
// original, so readers see either the old or the new content.
func (s *Store) write(m map[string]any) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode responses: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create responses directory: %w", err)
	}

	f, err := os.OpenFile(s.temp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open temp responses: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(s.temp)
		return fmt.Errorf("write temp responses: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(s.temp)
		return fmt.Errorf("sync temp responses: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(s.temp)
		return fmt.Errorf("close temp responses: %w", err)
	}

	if err := os.Rename(s.temp, s.path); err != nil {
		os.Remove(s.temp)
		return fmt.Errorf("replace responses: %w", err)
	}
	return nil
}
