package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// QuestionType discriminates the polymorphic question variants.
type QuestionType string

const (
	SingleChoice        QuestionType = "single_choice"
	MultiChoice         QuestionType = "multi_choice"
	TrueFalseNotGiven   QuestionType = "true_false_not_given"
	YesNoNotGiven       QuestionType = "yes_no_not_given"
	FillBlank           QuestionType = "fill_blank"
	ShortAnswer         QuestionType = "short_answer"
	SentenceCompletion  QuestionType = "sentence_completion"
	SummaryCompletion   QuestionType = "summary_completion"
	NoteCompletion      QuestionType = "note_completion"
	TableCompletion     QuestionType = "table_completion"
	FlowChartCompletion QuestionType = "flow_chart_completion"
	FormCompletion      QuestionType = "form_completion"
	Matching            QuestionType = "matching"
	DiagramLabeling     QuestionType = "diagram_labeling"
	PlanMapLabeling     QuestionType = "plan_map_labeling"
	WritingTask         QuestionType = "writing_task"
)

// Question is an immutable question definition. The grading core treats it as
// read-only input; Points defaults to 1 when the author leaves it unset.
type Question struct {
	ID          string       `json:"id"`
	Type        QuestionType `json:"type"`
	Text        string       `json:"text"`
	Instruction string       `json:"instruction,omitempty"`
	Points      int          `json:"points,omitempty"`
	Key         AnswerKey    `json:"correct_answer"`
}

// IsTextual reports whether the question is graded by the text-comparison
// rules (the fill-in-blank family).
func (t QuestionType) IsTextual() bool {
	switch t {
	case FillBlank, ShortAnswer, SentenceCompletion, SummaryCompletion,
		NoteCompletion, TableCompletion, FlowChartCompletion, FormCompletion:
		return true
	}
	return false
}

// IsMatching reports whether the question belongs to the matching/labeling
// family, compared by scalar equality or grouped map equality.
func (t QuestionType) IsMatching() bool {
	switch t {
	case Matching, DiagramLabeling, PlanMapLabeling:
		return true
	}
	return false
}

// AnswerKey is the correct-answer shape for a question: a scalar option id or
// text, a list of option ids (multi-select), or a map of sub-id to option id
// (grouped matching). Exactly one field is populated.
type AnswerKey struct {
	Scalar string
	List   []string
	Pairs  map[string]string
}

// UnmarshalJSON decodes whichever of the three shapes the authored key uses.
func (k *AnswerKey) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case '"':
		return json.Unmarshal(data, &k.Scalar)
	case '[':
		return json.Unmarshal(data, &k.List)
	case '{':
		return json.Unmarshal(data, &k.Pairs)
	}
	return fmt.Errorf("answer key: unsupported shape %s", string(data))
}

// MarshalJSON emits the populated shape.
func (k AnswerKey) MarshalJSON() ([]byte, error) {
	switch {
	case k.Pairs != nil:
		return json.Marshal(k.Pairs)
	case k.List != nil:
		return json.Marshal(k.List)
	default:
		return json.Marshal(k.Scalar)
	}
}

// AnswerValue is a student-provided answer. It mirrors the AnswerKey shapes
// and additionally preserves the raw payload, so reserved slots (such as the
// embedded AI evaluation) round-trip through storage untouched.
type AnswerValue struct {
	Scalar string
	List   []string
	Pairs  map[string]string
	Raw    json.RawMessage
}

// ScalarAnswer builds a scalar answer value.
func ScalarAnswer(s string) AnswerValue { return AnswerValue{Scalar: s} }

// ListAnswer builds a multi-select answer value.
func ListAnswer(vs ...string) AnswerValue { return AnswerValue{List: vs} }

// PairsAnswer builds a grouped-matching answer value.
func PairsAnswer(m map[string]string) AnswerValue { return AnswerValue{Pairs: m} }

// RawAnswer wraps an arbitrary JSON payload, used for reserved slots.
func RawAnswer(v any) (AnswerValue, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return AnswerValue{}, err
	}
	return AnswerValue{Raw: b}, nil
}

// UnmarshalJSON accepts a string, a string list, a string map, or any other
// JSON value (kept raw only).
func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	v.Raw = append(json.RawMessage(nil), data...)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case '"':
		return json.Unmarshal(data, &v.Scalar)
	case '[':
		if err := json.Unmarshal(data, &v.List); err != nil {
			v.List = nil // mixed-type array, keep raw only
		}
		return nil
	case '{':
		if err := json.Unmarshal(data, &v.Pairs); err != nil {
			v.Pairs = nil // nested object, keep raw only
		}
		return nil
	}
	return nil
}

// MarshalJSON emits the raw payload when present, else the populated shape.
func (v AnswerValue) MarshalJSON() ([]byte, error) {
	if v.Raw != nil {
		return v.Raw, nil
	}
	switch {
	case v.Pairs != nil:
		return json.Marshal(v.Pairs)
	case v.List != nil:
		return json.Marshal(v.List)
	default:
		return json.Marshal(v.Scalar)
	}
}

// AnswerSet maps question ids (plus reserved keys) to answer values.
type AnswerSet map[string]AnswerValue

// Clone returns a shallow copy of the set.
func (a AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
