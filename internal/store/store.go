// Package store persists the development grading server's state in SQLite:
// accounts, score uploads and per-question submissions.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/examtrail/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: SQLite serialises writers anyway, and ":memory:"
	// databases are per connection.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS score_uploads (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		assignment TEXT NOT NULL,
		student_email TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		scores TEXT NOT NULL,
		received_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_score_uploads_assignment ON score_uploads(assignment, student_email);

	CREATE TABLE IF NOT EXISTS question_submissions (
		id TEXT PRIMARY KEY,
		student_email TEXT NOT NULL,
		term TEXT NOT NULL DEFAULT '',
		assignment TEXT NOT NULL,
		question TEXT NOT NULL,
		responses TEXT NOT NULL,
		score TEXT NOT NULL,
		received_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_question_submissions_assignment ON question_submissions(assignment, student_email);

	CREATE TABLE IF NOT EXISTS server_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveUpload stores a score upload received from username.
// Every upload is kept; a student may submit more than once.
func (s *Store) SaveUpload(username string, u model.ScoreUpload) (model.StoredUpload, error) {
	scores, err := json.Marshal(u.Scores)
	if err != nil {
		return model.StoredUpload{}, fmt.Errorf("marshal scores: %w", err)
	}
	stored := model.StoredUpload{
		ID:         uuid.NewString(),
		Username:   username,
		Upload:     u,
		ReceivedAt: time.Now().UTC(),
	}
	_, err = s.db.Exec(
		`INSERT INTO score_uploads (id, username, assignment, student_email, start_time, end_time, scores, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, username, u.Assignment, u.StudentEmail, u.StartTime, u.EndTime, string(scores), stored.ReceivedAt,
	)
	if err != nil {
		return model.StoredUpload{}, err
	}
	return stored, nil
}

// ListUploads returns uploads oldest first. An empty assignment matches all.
func (s *Store) ListUploads(assignment string) ([]model.StoredUpload, error) {
	query := `SELECT id, username, assignment, student_email, start_time, end_time, scores, received_at
		FROM score_uploads WHERE 1=1`
	var args []any
	if assignment != "" {
		query += ` AND assignment = ?`
		args = append(args, assignment)
	}
	query += ` ORDER BY rowid`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var uploads []model.StoredUpload
	for rows.Next() {
		var u model.StoredUpload
		var scores string
		if err := rows.Scan(&u.ID, &u.Username, &u.Upload.Assignment, &u.Upload.StudentEmail,
			&u.Upload.StartTime, &u.Upload.EndTime, &scores, &u.ReceivedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(scores), &u.Upload.Scores); err != nil {
			return nil, fmt.Errorf("upload %s: decode scores: %w", u.ID, err)
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

// SaveQuestion stores a per-question submission.
func (s *Store) SaveQuestion(sub model.QuestionSubmission) (model.StoredQuestion, error) {
	responses, err := json.Marshal(sub.Responses)
	if err != nil {
		return model.StoredQuestion{}, fmt.Errorf("marshal responses: %w", err)
	}
	score, err := json.Marshal(sub.Score)
	if err != nil {
		return model.StoredQuestion{}, fmt.Errorf("marshal score: %w", err)
	}
	stored := model.StoredQuestion{
		ID:         uuid.NewString(),
		Submission: sub,
		ReceivedAt: time.Now().UTC(),
	}
	_, err = s.db.Exec(
		`INSERT INTO question_submissions (id, student_email, term, assignment, question, responses, score, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, sub.StudentEmail, sub.Term, sub.Assignment, sub.Question, string(responses), string(score), stored.ReceivedAt,
	)
	if err != nil {
		return model.StoredQuestion{}, err
	}
	return stored, nil
}

// ListQuestions returns the question submissions of one student for an
// assignment, oldest first.
func (s *Store) ListQuestions(assignment, studentEmail string) ([]model.StoredQuestion, error) {
	rows, err := s.db.Query(
		`SELECT id, student_email, term, assignment, question, responses, score, received_at
		 FROM question_submissions WHERE assignment = ? AND student_email = ?
		 ORDER BY rowid`, assignment, studentEmail,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.StoredQuestion
	for rows.Next() {
		var q model.StoredQuestion
		var responses, score string
		sub := &q.Submission
		if err := rows.Scan(&q.ID, &sub.StudentEmail, &sub.Term, &sub.Assignment, &sub.Question,
			&responses, &score, &q.ReceivedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(responses), &sub.Responses); err != nil {
			return nil, fmt.Errorf("question %s: decode responses: %w", q.ID, err)
		}
		if err := json.Unmarshal([]byte(score), &sub.Score); err != nil {
			return nil, fmt.Errorf("question %s: decode score: %w", q.ID, err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
