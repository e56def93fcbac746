package ai

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxResponseRunes = 10000

var (
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
	studentResponseRegex    = regexp.MustCompile(`(?i)</?\s*student-response\b[^>]*>`)
)

// buildEvalPrompt builds the fixed writing-evaluation prompt for one task.
func buildEvalPrompt(description, response string) string {
	var sb strings.Builder
	sb.WriteString("You are a certified IELTS writing examiner. Evaluate the candidate's response to the task below.\n\n")
	sb.WriteString("TASK:\n" + description + "\n\n")
	sb.WriteString("CANDIDATE RESPONSE:\n" + sanitizeResponse(response) + "\n\n")
	sb.WriteString("INSTRUCTIONS:\n")
	sb.WriteString("- Score each of the four IELTS writing criteria on the 0-9 band scale, using 0.5 steps: ")
	sb.WriteString("task achievement, coherence and cohesion, lexical resource, grammatical range and accuracy.\n")
	sb.WriteString("- Give an overall band score on the same scale.\n")
	sb.WriteString("- If the response is gibberish, off-topic, or not written in English, award 0 for every criterion and overall.\n")
	sb.WriteString("- List concrete strengths and areas for improvement.\n")
	sb.WriteString("\nRespond ONLY with a single JSON object with these fields:\n")
	sb.WriteString(`{"bandScore": <number>, "taskAchievement": {"score": <number>, "feedback": "<text>"}, ` +
		`"coherenceCohesion": {"score": <number>, "feedback": "<text>"}, ` +
		`"lexicalResource": {"score": <number>, "feedback": "<text>"}, ` +
		`"grammaticalRange": {"score": <number>, "feedback": "<text>"}, ` +
		`"overallFeedback": "<text>", "strengths": ["<text>"], "improvements": ["<text>"]}`)
	sb.WriteString("\n")
	return sb.String()
}

func sanitizeResponse(response string) string {
	response = systemInstructionsRegex.ReplaceAllString(response, "")
	response = studentResponseRegex.ReplaceAllString(response, "")
	response = strings.TrimSpace(response)

	if response == "" {
		return "[No response provided]"
	}

	if utf8.RuneCountInString(response) > maxResponseRunes {
		runes := []rune(response)
		response = string(runes[:maxResponseRunes]) + "\n\n[Response truncated due to length]"
	}

	return response
}
