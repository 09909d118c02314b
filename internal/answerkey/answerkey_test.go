package answerkey

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pavelanni/examtrail/internal/model"
)

const sampleKey = `
assignments:
  week1:
    q1_1:
      answer: B
      points: 2
    q1_2:
      accept: ["42", "forty-two"]
      points: 3
    q3_1:
      question: Why do we fsync before rename?
      rubric: Mentions durability of the new content before it becomes visible.
      points: 5
`

func writeKey(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "key.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

type fakeGrader struct {
	score    float64
	feedback string
	err      error
	got      model.FreeResponse
}

func (f *fakeGrader) GradeFreeResponse(_ context.Context, fr model.FreeResponse) (float64, string, error) {
	f.got = fr
	return f.score, f.feedback, f.err
}

func TestLoad(t *testing.T) {
	k, err := Load(writeKey(t, t.TempDir(), sampleKey))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	it, ok := k.Lookup("week1", "q3_1")
	if !ok || !it.FreeResponse() {
		t.Errorf("q3_1 should be a free-response item: %+v", it)
	}
	if it, _ := k.Lookup("week1", "q1_1"); it.FreeResponse() {
		t.Error("q1_1 should be a closed item")
	}
	if _, ok := k.Lookup("week2", "q1_1"); ok {
		t.Error("unexpected item for unknown assignment")
	}
	if len(k.Hash) != 64 {
		t.Errorf("expected hex sha256, got %q", k.Hash)
	}
}

func TestLoadRejectsInvalidItems(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty item", "assignments:\n  week1:\n    q1_1:\n      points: 2\n"},
		{"negative points", "assignments:\n  week1:\n    q1_1:\n      answer: A\n      points: -1\n"},
		{"bad yaml", "assignments: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeKey(t, t.TempDir(), tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestScore(t *testing.T) {
	k, err := Load(writeKey(t, t.TempDir(), sampleKey))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	grader := &fakeGrader{score: 9, feedback: "thorough"}

	got := k.Score(context.Background(), model.LiveScoreRequest{
		Assignment: "week1",
		Question:   "q1",
		Responses: map[string]any{
			"q1_1": " b ",
			"q1_2": 42.0,
			"q3_1": "So a crash never exposes a half-written file.",
			"q9_9": "?",
		},
	}, grader)

	want := map[string]float64{"q1_1": 2, "q1_2": 3, "q3_1": 5, "q9_9": 0}
	for key, w := range want {
		if got.Scores[key] != w {
			t.Errorf("score[%s] = %v, want %v", key, got.Scores[key], w)
		}
	}
	if got.Total != 10 {
		t.Errorf("expected total 10, got %v", got.Total)
	}
	if got.Feedback["q3_1"] != "thorough" || got.Feedback["q9_9"] == "" {
		t.Errorf("unexpected feedback: %v", got.Feedback)
	}
	if grader.got.MaxPoints != 5 || grader.got.Answer == "" {
		t.Errorf("grader received %+v", grader.got)
	}
}

func TestScoreWrongAnswerAndGraderFailure(t *testing.T) {
	k, _ := Load(writeKey(t, t.TempDir(), sampleKey))
	req := model.LiveScoreRequest{
		Assignment: "week1",
		Responses:  map[string]any{"q1_1": "C", "q3_1": "no idea"},
	}

	got := k.Score(context.Background(), req, &fakeGrader{err: errors.New("endpoint down")})
	if got.Total != 0 {
		t.Errorf("expected total 0, got %v", got.Total)
	}

	got = k.Score(context.Background(), req, nil)
	if got.Scores["q3_1"] != 0 || got.Feedback["q3_1"] == "" {
		t.Errorf("free response without grader should score 0 with feedback: %+v", got)
	}
}

func TestHolderReloadKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	path := writeKey(t, dir, sampleKey)

	var reloads int
	h, err := NewHolder(path, func(*Key) { reloads++ })
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	first := h.Key()

	writeKey(t, dir, "assignments: [")
	if err := h.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if h.Key() != first || reloads != 0 {
		t.Error("a broken file must keep the previous key")
	}

	writeKey(t, dir, "assignments:\n  week2:\n    q1_1:\n      answer: A\n      points: 1\n")
	if err := h.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if _, ok := h.Key().Lookup("week2", "q1_1"); !ok || reloads != 1 {
		t.Error("expected the new key after reload")
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeKey(t, dir, sampleKey)
	h, err := NewHolder(path, nil)
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeKey(t, dir, "assignments:\n  week2:\n    q1_1:\n      answer: A\n      points: 1\n")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := h.Key().Lookup("week2", "q1_1"); ok {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("answer key was not reloaded after the file changed")
}
