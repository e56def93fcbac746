package model

import "time"

// ExamExport is the top-level JSON structure for exam result export.
type ExamExport struct {
	ExamID     string          `json:"exam_id"`
	Subject    string          `json:"subject"`
	Date       string          `json:"date"`
	NumResults int             `json:"num_results"`
	Results    []StudentResult `json:"results"`
}

// StudentResult holds one submission's data for export.
type StudentResult struct {
	Ref              string             `json:"ref"`
	Username         string             `json:"username"`
	DisplayName      string             `json:"display_name"`
	SectionName      string             `json:"section_name"`
	SectionType      SectionType        `json:"section_type"`
	SubmissionNumber int                `json:"submission_number"`
	Score            float64            `json:"score"`
	TotalScore       float64            `json:"total_score"`
	BandScore        float64            `json:"band_score"`
	SubmittedAt      time.Time          `json:"submitted_at"`
	Feedback         *SectionEvaluation `json:"feedback,omitempty"`
}

// ExamInfo holds exam identification metadata stored as key-value rows.
type ExamInfo struct {
	ExamID  string
	Subject string
	Date    string
}
