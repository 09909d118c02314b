package store

import (
	"fmt"
	"sort"

	"github.com/pavelanni/examtrail/internal/model"
)

// StudentResult is one student's standing for an assignment, built from
// their most recent upload.
type StudentResult struct {
	StudentEmail string             `json:"student_email"`
	Uploads      int                `json:"uploads"`
	Latest       model.StoredUpload `json:"latest"`
	Score        int                `json:"score"`
	MaxScore     int                `json:"max_score"`
}

// ExportAssignment summarises the uploads of an assignment per student,
// ordered by e-mail.
func (s *Store) ExportAssignment(assignment string) ([]StudentResult, error) {
	uploads, err := s.ListUploads(assignment)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}

	byStudent := make(map[string]*StudentResult)
	for _, u := range uploads {
		r, ok := byStudent[u.Upload.StudentEmail]
		if !ok {
			r = &StudentResult{StudentEmail: u.Upload.StudentEmail}
			byStudent[u.Upload.StudentEmail] = r
		}
		r.Uploads++
		// Uploads are oldest first, so the last one wins.
		r.Latest = u
	}

	results := make([]StudentResult, 0, len(byStudent))
	for _, r := range byStudent {
		r.Score, r.MaxScore = 0, 0
		for _, t := range r.Latest.Upload.Scores {
			r.Score += t.Score
			r.MaxScore += t.MaxScore
		}
		results = append(results, *r)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].StudentEmail < results[j].StudentEmail
	})
	return results, nil
}
