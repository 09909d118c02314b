// Package scorer turns reconstructed answer entries into the per-question
// score report.
package scorer

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/pavelanni/examtrail/internal/decoder"
	"github.com/pavelanni/examtrail/internal/model"
)

// ScoreParseError reports an answer line whose score payload is not numeric.
type ScoreParseError struct {
	Key   string
	Value string
	Line  int
}

func (e *ScoreParseError) Error() string {
	return fmt.Sprintf("line %d: score %q for %s is not a number", e.Line, e.Value, e.Key)
}

// Report is the scorer output: the ordered results plus data-quality warnings.
type Report struct {
	Tests    []model.TestResult
	KeyMax   map[string]float64
	Warnings []string
}

// Results wraps the report for results.json.
func (r *Report) Results() model.Results {
	return model.Results{Tests: r.Tests}
}

// Total returns the summed score and summed max score of the report.
func (r *Report) Total() (score, possible int) {
	for _, t := range r.Tests {
		score += t.Score
		possible += t.MaxScore
	}
	return score, possible
}

// Score aggregates entries against rubric.
//
// Each sub-question key is credited with the highest score it ever had, so
// resubmitting never lowers a grade. Key maxima are summed per question.
// Questions found in the log but not in the rubric are reported with a zero
// max score; both kinds of mismatch produce a warning, never an error.
func Score(entries []decoder.Entry, rubric model.Rubric) (*Report, error) {
	keyMax := make(map[string]float64)
	keyQuestion := make(map[string]int)
	for _, e := range entries {
		v, err := strconv.ParseFloat(e.Value, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &ScoreParseError{Key: e.Key, Value: e.Value, Line: e.Line}
		}
		if cur, ok := keyMax[e.Key]; !ok || v > cur {
			keyMax[e.Key] = v
		}
		keyQuestion[e.Key] = e.Question
	}

	totals := make(map[int]float64, len(rubric))
	for q := range rubric {
		totals[q] = 0
	}
	logged := make(map[int]bool)
	for key, v := range keyMax {
		totals[keyQuestion[key]] += v
		logged[keyQuestion[key]] = true
	}

	questions := make([]int, 0, len(totals))
	for q := range totals {
		questions = append(questions, q)
	}
	sort.Ints(questions)

	report := &Report{KeyMax: keyMax}
	for _, q := range questions {
		maxScore, ok := rubric[q]
		switch {
		case !ok:
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("question %d has logged answers but no rubric entry", q))
		case !logged[q]:
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("question %d is in the rubric but has no logged answers", q))
		}
		report.Tests = append(report.Tests, model.TestResult{
			Name:     fmt.Sprintf("Question %d", q),
			Score:    int(math.RoundToEven(totals[q])),
			MaxScore: int(math.RoundToEven(maxScore)),
		})
	}
	return report, nil
}
