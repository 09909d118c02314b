// Package prompts renders the system prompts sent to the grading model.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/examtrail/internal/model"
)

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// maxAnswerRunes caps the answer text forwarded to the model.
const maxAnswerRunes = 10000

//go:embed templates/*.tmpl
var templateFS embed.FS

// Variant selects how strictly free responses are graded.
type Variant string

const (
	Strict   Variant = "strict"
	Standard Variant = "standard"
	Lenient  Variant = "lenient"
)

var variants = []Variant{Strict, Standard, Lenient}

// ParseVariant maps a name to a Variant. Empty means Standard.
func ParseVariant(s string) (Variant, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Standard, nil
	}
	for _, v := range variants {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown prompt variant %q", s)
}

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[Variant]*template.Template
)

func load(fsys fs.FS) error {
	loadOnce.Do(func() {
		templates = make(map[Variant]*template.Template)
		for _, v := range variants {
			name := "templates/grade_" + string(v) + ".tmpl"
			content, err := fs.ReadFile(fsys, name)
			if err != nil {
				loadErr = fmt.Errorf("read prompt %s: %w", name, err)
				return
			}
			tmpl, err := template.New(string(v)).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt %s: %w", name, err)
				return
			}
			templates[v] = tmpl
		}
	})
	return loadErr
}

type gradeData struct {
	Question    string
	Rubric      string
	ModelAnswer string
	MaxPoints   string
	Answer      string
}

// Build renders the grading prompt for one free response. The item's own
// variant wins over fallback.
func Build(fr model.FreeResponse, fallback Variant) (string, error) {
	if err := load(templateFS); err != nil {
		return "", err
	}
	v := fallback
	if fr.Variant != "" {
		parsed, err := ParseVariant(fr.Variant)
		if err != nil {
			return "", err
		}
		v = parsed
	}
	tmpl, ok := templates[v]
	if !ok {
		return "", errors.New("invalid prompt variant: " + string(v))
	}

	var buf bytes.Buffer
	err := tmpl.Execute(&buf, gradeData{
		Question:    fr.Question,
		Rubric:      fr.Rubric,
		ModelAnswer: fr.ModelAnswer,
		MaxPoints:   strconv.FormatFloat(fr.MaxPoints, 'f', -1, 64),
		Answer:      SanitizeAnswer(fr.Answer),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// SanitizeAnswer strips the delimiter tags used by the templates, so a
// student cannot close the answer block and inject instructions, and caps
// the length.
func SanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAnswerRunes]) + "\n\n[Answer truncated due to length]"
	}
	return answer
}
