package model

import "time"

// ScoreUpload is the JSON body posted to the score upload endpoint.
type ScoreUpload struct {
	Assignment   string       `json:"assignment"`
	StudentEmail string       `json:"student_email"`
	StartTime    string       `json:"start_time"`
	EndTime      string       `json:"end_time"`
	Scores       []TestResult `json:"scores"`
}

// LiveScoreRequest is the JSON body posted to the live scorer.
type LiveScoreRequest struct {
	StudentEmail string         `json:"student_email"`
	Term         string         `json:"term"`
	Assignment   string         `json:"assignment"`
	Question     string         `json:"question"`
	Responses    map[string]any `json:"responses"`
}

// QuestionSubmission is the JSON body posted to the submit-question endpoint.
type QuestionSubmission struct {
	StudentEmail string             `json:"student_email"`
	Term         string             `json:"term"`
	Assignment   string             `json:"assignment"`
	Question     string             `json:"question"`
	Responses    map[string]any     `json:"responses"`
	Score        map[string]float64 `json:"score"`
}

// LiveScore is returned by the live scorer: a score per response key.
type LiveScore struct {
	Question string             `json:"question"`
	Scores   map[string]float64 `json:"scores"`
	Feedback map[string]string  `json:"feedback,omitempty"`
	Total    float64            `json:"total"`
}

// StoredUpload is a score upload as persisted by the development grading server.
type StoredUpload struct {
	ID         string      `json:"id"`
	Username   string      `json:"username"`
	Upload     ScoreUpload `json:"upload"`
	ReceivedAt time.Time   `json:"received_at"`
}

// StoredQuestion is a per-question submission as persisted by the development grading server.
type StoredQuestion struct {
	ID         string             `json:"id"`
	Submission QuestionSubmission `json:"submission"`
	ReceivedAt time.Time          `json:"received_at"`
}

// User is an account allowed to call the development grading server.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
}

// FreeResponse is one free-text answer to grade against a rubric.
type FreeResponse struct {
	Question    string
	Rubric      string
	ModelAnswer string
	Variant     string
	MaxPoints   float64
	Answer      string
}
