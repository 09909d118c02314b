// Package answerkey holds the development grading server's answer key and
// scores live-scorer requests against it.
package answerkey

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pavelanni/examtrail/internal/model"
)

// Item is the expected answer of one response key.
//
// A closed item lists accepted answers and earns Points on an exact match
// (case and surrounding whitespace ignored). An item with a Rubric and no
// accepted answers is free-response and graded by a FreeResponseGrader.
type Item struct {
	Answer      string   `yaml:"answer"`
	Accept      []string `yaml:"accept"`
	Points      float64  `yaml:"points"`
	Question    string   `yaml:"question"`
	Rubric      string   `yaml:"rubric"`
	ModelAnswer string   `yaml:"model_answer"`
	Variant     string   `yaml:"variant"`
}

// FreeResponse reports whether the item needs a grader.
func (it Item) FreeResponse() bool {
	return it.Answer == "" && len(it.Accept) == 0 && it.Rubric != ""
}

func (it Item) accepts(answer string) bool {
	answer = strings.TrimSpace(answer)
	if it.Answer != "" && strings.EqualFold(answer, strings.TrimSpace(it.Answer)) {
		return true
	}
	for _, a := range it.Accept {
		if strings.EqualFold(answer, strings.TrimSpace(a)) {
			return true
		}
	}
	return false
}

// Key maps assignment → response key (q<N>_<M>) → item.
type Key struct {
	Assignments map[string]map[string]Item `yaml:"assignments"`
	// Hash is the SHA-256 of the file the key was loaded from.
	Hash string `yaml:"-"`
}

// Load reads and validates a YAML answer key.
func Load(path string) (*Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read answer key: %w", err)
	}
	var k Key
	if err := yaml.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("parse answer key: %w", err)
	}
	for assignment, items := range k.Assignments {
		for key, it := range items {
			if it.Points < 0 {
				return nil, fmt.Errorf("answer key %s/%s: negative points", assignment, key)
			}
			if it.Answer == "" && len(it.Accept) == 0 && it.Rubric == "" {
				return nil, fmt.Errorf("answer key %s/%s: needs answer, accept or rubric", assignment, key)
			}
		}
	}
	sum := sha256.Sum256(data)
	k.Hash = hex.EncodeToString(sum[:])
	return &k, nil
}

// Lookup returns the item for a response key of an assignment.
func (k *Key) Lookup(assignment, responseKey string) (Item, bool) {
	it, ok := k.Assignments[assignment][responseKey]
	return it, ok
}

// FreeResponseGrader scores a free-text answer against a rubric.
type FreeResponseGrader interface {
	GradeFreeResponse(ctx context.Context, fr model.FreeResponse) (score float64, feedback string, err error)
}

// Score grades every response of a live-scorer request. Unknown keys score 0
// with feedback; a grader failure scores 0 for that key only. grader may be
// nil, in which case free-response items score 0.
func (k *Key) Score(ctx context.Context, req model.LiveScoreRequest, grader FreeResponseGrader) model.LiveScore {
	out := model.LiveScore{
		Question: req.Question,
		Scores:   make(map[string]float64, len(req.Responses)),
		Feedback: make(map[string]string),
	}

	keys := make([]string, 0, len(req.Responses))
	for rk := range req.Responses {
		keys = append(keys, rk)
	}
	sort.Strings(keys)

	for _, rk := range keys {
		answer := stringify(req.Responses[rk])
		it, ok := k.Lookup(req.Assignment, rk)
		switch {
		case !ok:
			out.Scores[rk] = 0
			out.Feedback[rk] = "no answer key entry"
			slog.Warn("live score for unknown key", "assignment", req.Assignment, "key", rk)
		case it.FreeResponse():
			out.Scores[rk], out.Feedback[rk] = gradeFree(ctx, grader, it, answer)
		case it.accepts(answer):
			out.Scores[rk] = it.Points
		default:
			out.Scores[rk] = 0
		}
		out.Total += out.Scores[rk]
	}
	if len(out.Feedback) == 0 {
		out.Feedback = nil
	}
	return out
}

func gradeFree(ctx context.Context, grader FreeResponseGrader, it Item, answer string) (float64, string) {
	if grader == nil {
		return 0, "free-response grading is not configured"
	}
	score, feedback, err := grader.GradeFreeResponse(ctx, model.FreeResponse{
		Question:    it.Question,
		Rubric:      it.Rubric,
		ModelAnswer: it.ModelAnswer,
		Variant:     it.Variant,
		MaxPoints:   it.Points,
		Answer:      answer,
	})
	if err != nil {
		slog.Error("free-response grading failed", "error", err)
		return 0, "grading failed"
	}
	return min(max(score, 0), it.Points), feedback
}

// stringify renders a JSON-decoded response value for comparison.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case []any:
		parts := make([]string, len(x))
		for i, p := range x {
			parts[i] = stringify(p)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(x)
	}
}
