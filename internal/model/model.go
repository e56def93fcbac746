package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleTeacher is a teacher user role.
	UserRoleTeacher UserRole = "teacher"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// SectionType discriminates exam sections; writing sections are graded by the
// AI evaluator, everything else by the objective answer evaluator.
type SectionType string

const (
	SectionListening SectionType = "listening"
	SectionReading   SectionType = "reading"
	SectionWriting   SectionType = "writing"
)

// Section is an authored exam section with its question set.
type Section struct {
	ID              int64       `json:"id"`
	Name            string      `json:"name"`
	Type            SectionType `json:"type"`
	DurationMinutes int         `json:"duration_minutes"`
	Questions       []Question  `json:"questions,omitempty"`
}

// AttemptStatus is the lifecycle state of an attempt.
type AttemptStatus string

const (
	StatusAssigned   AttemptStatus = "assigned"
	StatusInProgress AttemptStatus = "in_progress"
	StatusSubmitted  AttemptStatus = "submitted"
)

// Attempt is one student's instance of an assigned exam section.
// Transitions are assigned -> in_progress -> submitted; reassignment resets
// the row to assigned and clears answers, score, and timing.
type Attempt struct {
	ID        int64         `json:"id"`
	SectionID int64         `json:"section_id"`
	StudentID int64         `json:"student_id"`
	Status    AttemptStatus `json:"status"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
	EndsAt    *time.Time    `json:"ends_at,omitempty"`
	Answers   AnswerSet     `json:"answers"`
	Score     float64       `json:"score"`
	CreatedAt time.Time     `json:"created_at"`
}

// Result is an immutable historical record of one submission. Reassignment
// never deletes Results; multiple rows per student+section pair are expected
// and are distinguished by SubmittedAt.
type Result struct {
	ID          int64              `json:"id"`
	Ref         string             `json:"ref"`
	AttemptID   int64              `json:"attempt_id"`
	SectionID   int64              `json:"section_id"`
	StudentID   int64              `json:"student_id"`
	Score       float64            `json:"score"`
	TotalScore  float64            `json:"total_score"`
	BandScore   float64            `json:"band_score"`
	Answers     AnswerSet          `json:"answers"`
	Feedback    *SectionEvaluation `json:"feedback,omitempty"`
	SubmittedAt time.Time          `json:"submitted_at"`
}

// CriterionScore is one named IELTS writing criterion with its feedback.
type CriterionScore struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// WritingEvaluation is the structured assessment of a single writing task.
type WritingEvaluation struct {
	BandScore         float64        `json:"band_score"`
	TaskAchievement   CriterionScore `json:"task_achievement"`
	CoherenceCohesion CriterionScore `json:"coherence_cohesion"`
	LexicalResource   CriterionScore `json:"lexical_resource"`
	GrammaticalRange  CriterionScore `json:"grammatical_range"`
	OverallFeedback   string         `json:"overall_feedback"`
	Strengths         []string       `json:"strengths"`
	Improvements      []string       `json:"improvements"`
}

// SectionEvaluation aggregates per-task writing evaluations into one band.
type SectionEvaluation struct {
	BandScore float64                      `json:"band_score"`
	Tasks     map[string]WritingEvaluation `json:"tasks"`
}

// Reserved answer keys. AnswerKeyEvaluation holds the embedded AI evaluation
// payload inside a submitted answer set; the task keys carry writing responses.
const (
	AnswerKeyEvaluation = "_aiEvaluation"
	AnswerKeyTask1      = "task1"
	AnswerKeyTask2      = "task2"
	AnswerKeyEssay      = "essay"
)
