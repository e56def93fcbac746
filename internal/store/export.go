package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ieltsdesk/ieltsdesk/internal/model"
)

// ExportAllResults builds export-ready rows from every stored result. Users
// are joined into the query rather than fetched per row: the single pooled
// connection is held by the open cursor, so a nested query would deadlock.
func (s *Store) ExportAllResults() ([]model.StudentResult, error) {
	rows, err := s.db.Query(
		`SELECT r.ref, r.student_id, r.section_id, r.score, r.total_score, r.band_score, r.feedback, r.submitted_at,
		        s.name, s.type, u.username, u.display_name
		 FROM results r
		 JOIN sections s ON s.id = r.section_id
		 LEFT JOIN users u ON u.id = r.student_id
		 ORDER BY r.submitted_at, r.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	// Submission count per student+section for submission_number.
	type pair struct{ student, section int64 }
	submissionCount := make(map[pair]int)

	var out []model.StudentResult
	for rows.Next() {
		var (
			sr          model.StudentResult
			studentID   int64
			sectionID   int64
			feedback    []byte
			username    sql.NullString
			displayName sql.NullString
		)
		if err := rows.Scan(&sr.Ref, &studentID, &sectionID, &sr.Score, &sr.TotalScore, &sr.BandScore,
			&feedback, &sr.SubmittedAt, &sr.SectionName, &sr.SectionType, &username, &displayName); err != nil {
			return nil, err
		}
		sr.Username = username.String
		sr.DisplayName = displayName.String

		p := pair{studentID, sectionID}
		submissionCount[p]++
		sr.SubmissionNumber = submissionCount[p]

		if len(feedback) > 0 {
			sr.Feedback = &model.SectionEvaluation{}
			if err := json.Unmarshal(feedback, sr.Feedback); err != nil {
				return nil, fmt.Errorf("unmarshal feedback for %s: %w", sr.Ref, err)
			}
		}

		out = append(out, sr)
	}
	return out, rows.Err()
}
