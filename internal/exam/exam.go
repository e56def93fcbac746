// Package exam implements the attempt lifecycle: assignment, the timed start
// transition, submission with grading, reassignment, and deferred writing
// evaluation. It enforces ownership and state rules on top of the store.
package exam

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ieltsdesk/ieltsdesk/internal/ai"
	"github.com/ieltsdesk/ieltsdesk/internal/band"
	"github.com/ieltsdesk/ieltsdesk/internal/grading"
	"github.com/ieltsdesk/ieltsdesk/internal/model"
	"github.com/ieltsdesk/ieltsdesk/internal/store"
)

// WritingTotal is the nominal total for AI-evaluated sections; writing scores
// are already band scores on the 0-9 scale.
const WritingTotal = 9

// Evaluator grades a writing section. Satisfied by *ai.Evaluator.
type Evaluator interface {
	EvaluateSection(ctx context.Context, tasks []ai.Task) (model.SectionEvaluation, error)
}

// Service wires the store and the AI evaluator into lifecycle operations.
type Service struct {
	store *store.Store
	ai    Evaluator
	now   func() time.Time
}

// New creates a Service. The evaluator may be nil; writing submissions are
// then recorded unevaluated with a zero score.
func New(st *store.Store, eval Evaluator) *Service {
	return &Service{store: st, ai: eval, now: time.Now}
}

// Assign creates an assigned attempt binding a student to a section.
func (s *Service) Assign(ctx context.Context, sectionID, studentID int64) (model.Attempt, error) {
	if _, err := s.store.GetSection(sectionID); err != nil {
		return model.Attempt{}, fmt.Errorf("assign: %w", err)
	}
	u, err := s.store.GetUserByID(studentID)
	if err != nil {
		return model.Attempt{}, fmt.Errorf("assign: %w", err)
	}
	if u == nil || u.Role != model.UserRoleStudent || !u.Active {
		return model.Attempt{}, fmt.Errorf("assign: user %d is not an active student: %w", studentID, model.ErrValidation)
	}
	id, err := s.store.CreateAttempt(sectionID, studentID)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return model.Attempt{}, fmt.Errorf("assign: student %d already has an attempt for section %d: %w", studentID, sectionID, model.ErrValidation)
		}
		return model.Attempt{}, fmt.Errorf("assign: %w", err)
	}
	return s.store.GetAttempt(id)
}

// Start transitions an assigned attempt to in_progress and returns the attempt
// together with the remaining time in seconds. Calling Start on an attempt
// that is already in progress does not restart the clock.
func (s *Service) Start(ctx context.Context, attemptID int64, caller *model.User) (model.Attempt, int, error) {
	a, err := s.authorizedAttempt(attemptID, caller)
	if err != nil {
		return model.Attempt{}, 0, err
	}

	switch a.Status {
	case model.StatusSubmitted:
		return model.Attempt{}, 0, fmt.Errorf("start attempt %d: already submitted: %w", attemptID, model.ErrInvalidState)
	case model.StatusInProgress:
		remaining := 0
		if a.EndsAt != nil {
			if d := a.EndsAt.Sub(s.now()); d > 0 {
				remaining = int(d.Seconds())
			}
		}
		return a, remaining, nil
	}

	sec, err := s.store.GetSection(a.SectionID)
	if err != nil {
		return model.Attempt{}, 0, fmt.Errorf("start attempt %d: %w", attemptID, err)
	}
	now := s.now()
	endsAt := now.Add(time.Duration(sec.DurationMinutes) * time.Minute)
	if _, err := s.store.StartAttempt(attemptID, now, endsAt); err != nil {
		return model.Attempt{}, 0, fmt.Errorf("start attempt %d: %w", attemptID, err)
	}
	a, err = s.store.GetAttempt(attemptID)
	if err != nil {
		return model.Attempt{}, 0, err
	}
	return a, sec.DurationMinutes * 60, nil
}

// Submit grades the answers and finalizes the attempt. Writing sections go to
// the AI evaluator; if evaluation fails the submission is still recorded with
// a zero score and no feedback, to be evaluated later. Exactly one concurrent
// Submit wins; losers get ErrInvalidState.
func (s *Service) Submit(ctx context.Context, attemptID int64, caller *model.User, answers model.AnswerSet) (model.Result, error) {
	a, err := s.authorizedAttempt(attemptID, caller)
	if err != nil {
		return model.Result{}, err
	}
	if a.Status == model.StatusSubmitted {
		return model.Result{}, fmt.Errorf("submit attempt %d: already submitted: %w", attemptID, model.ErrInvalidState)
	}

	sec, err := s.store.GetSection(a.SectionID)
	if err != nil {
		return model.Result{}, fmt.Errorf("submit attempt %d: %w", attemptID, err)
	}

	if answers == nil {
		answers = model.AnswerSet{}
	} else {
		answers = answers.Clone()
	}
	delete(answers, model.AnswerKeyEvaluation)

	result := model.Result{
		AttemptID: a.ID,
		SectionID: a.SectionID,
		StudentID: a.StudentID,
	}

	if sec.Type == model.SectionWriting {
		result.TotalScore = WritingTotal
		// Grading must complete even if the submitting client disconnects.
		eval, evalErr := s.evaluate(context.WithoutCancel(ctx), sec, answers)
		if evalErr != nil {
			slog.Error("writing evaluation failed, recording unevaluated submission",
				"attempt_id", a.ID, "error", evalErr)
		} else {
			result.Score = eval.BandScore
			result.BandScore = eval.BandScore
			result.Feedback = &eval
			if raw, err := model.RawAnswer(eval); err == nil {
				answers[model.AnswerKeyEvaluation] = raw
			}
		}
	} else {
		score, total := grading.EvaluateSection(sec.Questions, answers)
		result.Score = float64(score)
		result.TotalScore = float64(total)
		result.BandScore = band.ToBand(float64(score), float64(total), sec.Type)
	}

	ref, err := s.store.FinalizeSubmission(a.ID, answers, result)
	if err != nil {
		return model.Result{}, fmt.Errorf("submit attempt %d: %w", attemptID, err)
	}
	return s.store.GetResultByRef(ref)
}

// Reassign resets an attempt to assigned, clearing answers, score, and timing.
// Historical results are preserved.
func (s *Service) Reassign(ctx context.Context, attemptID int64) (model.Attempt, error) {
	if err := s.store.ResetAttempt(attemptID); err != nil {
		return model.Attempt{}, fmt.Errorf("reassign attempt %d: %w", attemptID, err)
	}
	return s.store.GetAttempt(attemptID)
}

// Results lists all historical results for the attempt's student and section,
// oldest first.
func (s *Service) Results(ctx context.Context, attemptID int64, caller *model.User) ([]model.Result, error) {
	a, err := s.authorizedAttempt(attemptID, caller)
	if err != nil {
		return nil, err
	}
	return s.store.ListResults(a.SectionID, a.StudentID)
}

// Result returns one result by id, enforcing student ownership.
func (s *Service) Result(ctx context.Context, resultID int64, caller *model.User) (model.Result, error) {
	r, err := s.store.GetResult(resultID)
	if err != nil {
		return model.Result{}, err
	}
	if caller != nil && caller.Role == model.UserRoleStudent && caller.ID != r.StudentID {
		return model.Result{}, fmt.Errorf("result %d: %w", resultID, model.ErrNotAuthorized)
	}
	return r, nil
}

// EvaluateWriting runs the AI evaluation for a writing result that was
// recorded unevaluated. It is idempotent: a result that already carries
// feedback is returned unchanged.
func (s *Service) EvaluateWriting(ctx context.Context, resultID int64) (model.Result, error) {
	r, err := s.store.GetResult(resultID)
	if err != nil {
		return model.Result{}, err
	}
	if r.Feedback != nil {
		return r, nil
	}

	sec, err := s.store.GetSection(r.SectionID)
	if err != nil {
		return model.Result{}, fmt.Errorf("evaluate result %d: %w", resultID, err)
	}
	if sec.Type != model.SectionWriting {
		return model.Result{}, fmt.Errorf("evaluate result %d: section is not a writing section: %w", resultID, model.ErrValidation)
	}

	eval, err := s.evaluate(context.WithoutCancel(ctx), sec, r.Answers)
	if err != nil {
		return model.Result{}, fmt.Errorf("evaluate result %d: %w", resultID, err)
	}

	answers := r.Answers.Clone()
	if raw, rawErr := model.RawAnswer(eval); rawErr == nil {
		answers[model.AnswerKeyEvaluation] = raw
	}
	if err := s.store.UpdateResultEvaluation(r.ID, eval.BandScore, eval.BandScore, &eval, answers); err != nil {
		return model.Result{}, fmt.Errorf("evaluate result %d: %w", resultID, err)
	}
	return s.store.GetResult(r.ID)
}

func (s *Service) evaluate(ctx context.Context, sec model.Section, answers model.AnswerSet) (model.SectionEvaluation, error) {
	if s.ai == nil {
		return model.SectionEvaluation{}, fmt.Errorf("evaluate section %d: no evaluator configured: %w", sec.ID, model.ErrProviderExhausted)
	}
	return s.ai.EvaluateSection(ctx, writingTasks(sec, answers))
}

// writingTasks pairs the submitted writing responses with their task prompts.
// Responses live under the reserved task keys; a bare essay key maps to a
// single task.
func writingTasks(sec model.Section, answers model.AnswerSet) []ai.Task {
	prompts := make(map[string]string)
	var firstPrompt string
	for _, q := range sec.Questions {
		if q.Type != model.WritingTask {
			continue
		}
		prompts[q.ID] = q.Text
		if firstPrompt == "" {
			firstPrompt = q.Text
		}
	}

	var tasks []ai.Task
	for _, key := range []string{model.AnswerKeyTask1, model.AnswerKeyTask2} {
		v, ok := answers[key]
		if !ok {
			continue
		}
		tasks = append(tasks, ai.Task{ID: key, Description: prompts[key], Response: v.Scalar})
	}
	if len(tasks) == 0 {
		if v, ok := answers[model.AnswerKeyEssay]; ok {
			tasks = append(tasks, ai.Task{ID: model.AnswerKeyEssay, Description: firstPrompt, Response: v.Scalar})
		}
	}
	return tasks
}

func (s *Service) authorizedAttempt(attemptID int64, caller *model.User) (model.Attempt, error) {
	a, err := s.store.GetAttempt(attemptID)
	if err != nil {
		return model.Attempt{}, err
	}
	if caller != nil && caller.Role == model.UserRoleStudent && caller.ID != a.StudentID {
		return model.Attempt{}, fmt.Errorf("attempt %d: %w", attemptID, model.ErrNotAuthorized)
	}
	return a, nil
}
