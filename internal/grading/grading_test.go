package grading

import (
	"testing"

	"github.com/ieltsdesk/ieltsdesk/internal/model"
)

func TestEvaluateChoiceTypes(t *testing.T) {
	tests := []struct {
		name string
		q    model.Question
		ans  model.AnswerValue
		want bool
	}{
		{
			"single choice correct",
			model.Question{Type: model.SingleChoice, Key: model.AnswerKey{Scalar: "B"}},
			model.ScalarAnswer("B"), true,
		},
		{
			"single choice wrong",
			model.Question{Type: model.SingleChoice, Key: model.AnswerKey{Scalar: "B"}},
			model.ScalarAnswer("C"), false,
		},
		{
			"single choice is case sensitive",
			model.Question{Type: model.SingleChoice, Key: model.AnswerKey{Scalar: "B"}},
			model.ScalarAnswer("b"), false,
		},
		{
			"true false not given",
			model.Question{Type: model.TrueFalseNotGiven, Key: model.AnswerKey{Scalar: "NOT GIVEN"}},
			model.ScalarAnswer("NOT GIVEN"), true,
		},
		{
			"yes no not given wrong",
			model.Question{Type: model.YesNoNotGiven, Key: model.AnswerKey{Scalar: "YES"}},
			model.ScalarAnswer("NO"), false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.q, tt.ans); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateMultiChoice(t *testing.T) {
	q := model.Question{Type: model.MultiChoice, Key: model.AnswerKey{List: []string{"A", "C", "E"}}}

	tests := []struct {
		name string
		ans  model.AnswerValue
		want bool
	}{
		{"exact set any order", model.ListAnswer("E", "A", "C"), true},
		{"missing one", model.ListAnswer("A", "C"), false},
		{"extra one", model.ListAnswer("A", "C", "E", "B"), false},
		{"same size wrong member", model.ListAnswer("A", "C", "D"), false},
		{"empty", model.ListAnswer(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(q, tt.ans); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateMatching(t *testing.T) {
	t.Run("scalar pair", func(t *testing.T) {
		q := model.Question{Type: model.Matching, Key: model.AnswerKey{Scalar: "iv"}}
		if !Evaluate(q, model.ScalarAnswer("iv")) {
			t.Error("expected scalar match")
		}
		if Evaluate(q, model.ScalarAnswer("vi")) {
			t.Error("expected scalar mismatch")
		}
	})

	t.Run("grouped map", func(t *testing.T) {
		q := model.Question{Type: model.PlanMapLabeling, Key: model.AnswerKey{Pairs: map[string]string{"14": "B", "15": "G"}}}
		if !Evaluate(q, model.PairsAnswer(map[string]string{"15": "G", "14": "B"})) {
			t.Error("expected deep map match")
		}
		if Evaluate(q, model.PairsAnswer(map[string]string{"14": "B", "15": "F"})) {
			t.Error("expected map mismatch on value")
		}
		if Evaluate(q, model.PairsAnswer(map[string]string{"14": "B"})) {
			t.Error("expected map mismatch on missing key")
		}
	})
}

func TestPointsCardinalityOverride(t *testing.T) {
	tests := []struct {
		name string
		q    model.Question
		want int
	}{
		{
			"default single point",
			model.Question{Type: model.SingleChoice},
			1,
		},
		{
			"explicit points untouched",
			model.Question{Type: model.MultiChoice, Points: 3, Instruction: "Choose TWO letters."},
			3,
		},
		{
			"multi choice two",
			model.Question{Type: model.MultiChoice, Points: 1, Instruction: "Choose TWO letters, A-E."},
			2,
		},
		{
			"multi choice three",
			model.Question{Type: model.MultiChoice, Instruction: "Choose THREE answers."},
			3,
		},
		{
			"multi choice five",
			model.Question{Type: model.MultiChoice, Instruction: "Select five options."},
			5,
		},
		{
			"hint ignored for single choice",
			model.Question{Type: model.SingleChoice, Instruction: "Choose TWO letters."},
			1,
		},
		{
			"no hint",
			model.Question{Type: model.MultiChoice, Instruction: "Choose the correct letters."},
			1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Points(tt.q); got != tt.want {
				t.Errorf("Points() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScoreMultiChoicePartialCredit(t *testing.T) {
	q := model.Question{
		Type:        model.MultiChoice,
		Instruction: "Choose THREE letters.",
		Key:         model.AnswerKey{List: []string{"A", "C", "E"}},
	}

	tests := []struct {
		name string
		ans  model.AnswerValue
		want int
	}{
		{"all correct", model.ListAnswer("A", "C", "E"), 3},
		{"two of three", model.ListAnswer("A", "C"), 2},
		{"two correct one wrong", model.ListAnswer("A", "C", "B"), 2},
		{"one correct", model.ListAnswer("E"), 1},
		{"none correct", model.ListAnswer("B", "D"), 0},
		{"capped at points", model.ListAnswer("A", "C", "E", "A"), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(q, tt.ans); got != tt.want {
				t.Errorf("Score() = %d, want %d", got, tt.want)
			}
		})
	}

	// Partial selections score points yet still fail the boolean check.
	if Evaluate(q, model.ListAnswer("A", "C")) {
		t.Error("partial selection must not report as correct")
	}
}

func TestEvaluateSection(t *testing.T) {
	questions := []model.Question{
		{ID: "1", Type: model.SingleChoice, Key: model.AnswerKey{Scalar: "A"}},
		{ID: "2", Type: model.MultiChoice, Instruction: "Choose TWO letters.", Key: model.AnswerKey{List: []string{"B", "D"}}},
		{ID: "3", Type: model.ShortAnswer, Key: model.AnswerKey{Scalar: "museum"}},
		{ID: "4", Type: model.TrueFalseNotGiven, Key: model.AnswerKey{Scalar: "FALSE"}},
	}
	answers := model.AnswerSet{
		"1": model.ScalarAnswer("A"),
		"2": model.ListAnswer("B"), // partial: 1 of 2
		"3": model.ScalarAnswer("MUSEUM"),
		// question 4 unanswered
	}

	score, total := EvaluateSection(questions, answers)
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if score != 3 {
		t.Errorf("score = %d, want 3", score)
	}
}
