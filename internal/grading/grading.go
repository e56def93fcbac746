// Package grading implements the objective answer evaluator: per-type
// correctness rules, multi-select partial credit, and instruction-driven
// point cardinality. All functions are pure.
package grading

import (
	"regexp"
	"strings"

	"github.com/ieltsdesk/ieltsdesk/internal/model"
)

var cardinalityRe = regexp.MustCompile(`(?i)\b(two|three|four|five)\b`)

var cardinalityWords = map[string]int{
	"two":   2,
	"three": 3,
	"four":  4,
	"five":  5,
}

// Evaluate reports whether the student's answer is fully correct for the
// given question. Partial multi-select matches return false here; partial
// credit applies to point scoring only, never to pass/fail reporting.
func Evaluate(q model.Question, ans model.AnswerValue) bool {
	switch {
	case q.Type == model.MultiChoice:
		return setEqual(ans.List, q.Key.List)
	case q.Type.IsMatching():
		if q.Key.Pairs != nil {
			return mapEqual(ans.Pairs, q.Key.Pairs)
		}
		return ans.Scalar == q.Key.Scalar
	case q.Type.IsTextual():
		return MatchText(q, q.Key.Scalar, ans.Scalar)
	default:
		// single choice, true/false/not-given, yes/no/not-given: canonical
		// option ids are fixed tokens, compared case-sensitively.
		return ans.Scalar == q.Key.Scalar
	}
}

// Points returns the question's point value. A multi-choice question left at
// the default single point inherits its cardinality from the instruction text
// ("Choose TWO letters" makes it worth 2).
func Points(q model.Question) int {
	p := q.Points
	if p <= 0 {
		p = 1
	}
	if q.Type == model.MultiChoice && p == 1 {
		if m := cardinalityRe.FindString(q.Instruction); m != "" {
			p = cardinalityWords[strings.ToLower(m)]
		}
	}
	return p
}

// Score returns the points earned for one answer. Multi-choice awards one
// point per correct selection chosen, capped at the question's points, even
// when the overall selection is not a perfect match. Every other type is all
// or nothing.
func Score(q model.Question, ans model.AnswerValue) int {
	points := Points(q)
	if q.Type == model.MultiChoice {
		correct := 0
		for _, sel := range ans.List {
			if contains(q.Key.List, sel) {
				correct++
			}
		}
		if correct > points {
			return points
		}
		return correct
	}
	if Evaluate(q, ans) {
		return points
	}
	return 0
}

// EvaluateSection grades a full objective section, returning the earned score
// and the total available score. Unanswered questions earn zero but still
// count toward the total.
func EvaluateSection(questions []model.Question, answers model.AnswerSet) (score, total int) {
	for _, q := range questions {
		total += Points(q)
		if ans, ok := answers[q.ID]; ok {
			score += Score(q, ans)
		}
	}
	return score, total
}

func setEqual(got, want []string) bool {
	if len(got) != len(want) || len(want) == 0 {
		return false
	}
	for _, g := range got {
		if !contains(want, g) {
			return false
		}
	}
	return true
}

func mapEqual(got, want map[string]string) bool {
	if len(got) != len(want) || len(want) == 0 {
		return false
	}
	for k, w := range want {
		if got[k] != w {
			return false
		}
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
