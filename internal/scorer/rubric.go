package scorer

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pavelanni/examtrail/internal/model"
)

// rubricFile is the on-disk rubric layout:
//
//	questions:
//	  1: 10
//	  2: 5
type rubricFile struct {
	Questions map[int]float64 `yaml:"questions"`
}

// LoadRubric reads a YAML rubric file.
func LoadRubric(path string) (model.Rubric, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rubric: %w", err)
	}
	var rf rubricFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse rubric: %w", err)
	}
	rubric := make(model.Rubric, len(rf.Questions))
	for q, points := range rf.Questions {
		if err := checkEntry(q, points); err != nil {
			return nil, fmt.Errorf("rubric %s: %w", path, err)
		}
		rubric[q] = points
	}
	return rubric, nil
}

// ParseMaxScores converts "question=max" flag pairs into a rubric.
// Entries override base, which may be nil.
func ParseMaxScores(base model.Rubric, pairs map[string]string) (model.Rubric, error) {
	rubric := make(model.Rubric, len(base)+len(pairs))
	for q, points := range base {
		rubric[q] = points
	}
	for k, v := range pairs {
		q, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("max score %s=%s: question must be an integer", k, v)
		}
		points, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("max score %s=%s: %w", k, v, err)
		}
		if err := checkEntry(q, points); err != nil {
			return nil, err
		}
		rubric[q] = points
	}
	return rubric, nil
}

func checkEntry(q int, points float64) error {
	if q < 1 {
		return fmt.Errorf("question %d: numbers start at 1", q)
	}
	if points < 0 {
		return fmt.Errorf("question %d: negative max score %v", q, points)
	}
	return nil
}
