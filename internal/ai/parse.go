package ai

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ieltsdesk/ieltsdesk/internal/model"
)

const missingFeedback = "No feedback provided."

// evaluationPayload mirrors the JSON object the prompt asks for. Fields are
// loosely typed: models drift on numeric vs string scores and omit fields, so
// everything is coerced after parsing.
type evaluationPayload struct {
	BandScore         any              `json:"bandScore"`
	TaskAchievement   criterionPayload `json:"taskAchievement"`
	CoherenceCohesion criterionPayload `json:"coherenceCohesion"`
	LexicalResource   criterionPayload `json:"lexicalResource"`
	GrammaticalRange  criterionPayload `json:"grammaticalRange"`
	OverallFeedback   any              `json:"overallFeedback"`
	Strengths         []any            `json:"strengths"`
	Improvements      []any            `json:"improvements"`
}

type criterionPayload struct {
	Score    any `json:"score"`
	Feedback any `json:"feedback"`
}

// parseEvaluation extracts a WritingEvaluation from a raw model reply. Code
// fences are stripped, the first top-level JSON object is located, and every
// field is coerced with a floor of zero for numbers and a placeholder for
// missing text. Only a reply with no parseable JSON object at all fails.
func parseEvaluation(raw string) (model.WritingEvaluation, error) {
	cleaned := stripFences(raw)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return model.WritingEvaluation{}, fmt.Errorf("%w: no JSON object in reply", model.ErrParseFailure)
	}

	var payload evaluationPayload
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &payload); err != nil {
		return model.WritingEvaluation{}, fmt.Errorf("%w: %v", model.ErrParseFailure, err)
	}

	return model.WritingEvaluation{
		BandScore:         coerceScore(payload.BandScore),
		TaskAchievement:   coerceCriterion(payload.TaskAchievement),
		CoherenceCohesion: coerceCriterion(payload.CoherenceCohesion),
		LexicalResource:   coerceCriterion(payload.LexicalResource),
		GrammaticalRange:  coerceCriterion(payload.GrammaticalRange),
		OverallFeedback:   coerceText(payload.OverallFeedback, missingFeedback),
		Strengths:         coerceList(payload.Strengths),
		Improvements:      coerceList(payload.Improvements),
	}, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:] // drop the fence language tag line
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// coerceScore turns any JSON value into a non-negative float, zero for
// anything that is not a number or numeric string.
func coerceScore(v any) float64 {
	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case string:
		n, _ = strconv.ParseFloat(strings.TrimSpace(t), 64)
	}
	if n < 0 {
		return 0
	}
	return n
}

func coerceText(v any, fallback string) string {
	if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
		return s
	}
	return fallback
}

func coerceCriterion(c criterionPayload) model.CriterionScore {
	return model.CriterionScore{
		Score:    coerceScore(c.Score),
		Feedback: coerceText(c.Feedback, missingFeedback),
	}
}

func coerceList(vs []any) []string {
	var out []string
	for _, v := range vs {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
