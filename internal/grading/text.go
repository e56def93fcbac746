package grading

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/ieltsdesk/ieltsdesk/internal/model"
)

// Text-comparison rules for the fill-in-blank family. Tolerances are
// deliberately narrow: all-lowercase and all-uppercase renditions of the
// correct answer pass (keyboard auto-capitalization), Title Case does not.

var (
	wordOrNumberRe = regexp.MustCompile(`(?i)\bwords?\b[^.]*\bnumbers?\b|\bnumbers?\b[^.]*\bwords?\b`)
	blankRe        = regexp.MustCompile(`_{2,}|…+|\.{4,}`)
)

var numberWords = map[string]string{
	"one": "1", "two": "2", "three": "3", "four": "4", "five": "5",
	"six": "6", "seven": "7", "eight": "8", "nine": "9", "ten": "10",
}

// MatchText decides whether a fill-in-blank answer matches the correct one,
// applying the question's instruction and blank-position context.
//
// The rules, in order:
//  1. trim both strings;
//  2. under a "word and/or number" instruction, a numeral is interchangeable
//     with its word form for one through ten, case-insensitively;
//  3. a blank that opens a sentence requires the capitalization the position
//     implies: a lowercase key must be answered with its first letter
//     uppercased and the rest exact, any other key byte-exact;
//  4. a mid-sentence blank accepts the exact key, its all-lowercase form, and
//     its all-uppercase form; mixed-case variants must equal the key exactly.
func MatchText(q model.Question, correct, given string) bool {
	correct = strings.TrimSpace(correct)
	given = strings.TrimSpace(given)
	if correct == "" || given == "" {
		return correct == given
	}

	if wordOrNumberRe.MatchString(q.Instruction) && numeralEquivalent(correct, given) {
		return true
	}

	if blankStartsSentence(q.Text) {
		return matchSentenceStart(correct, given)
	}
	return matchMidSentence(correct, given)
}

// numeralEquivalent reports whether one string is the numeral form and the
// other the word form of the same number, one through ten. Comparison is
// case-insensitive in both directions.
func numeralEquivalent(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if d, ok := numberWords[la]; ok && d == lb {
		return true
	}
	if d, ok := numberWords[lb]; ok && d == la {
		return true
	}
	return false
}

// blankStartsSentence inspects the question text for the blank marker and
// reports whether it follows a line start, a bullet, or a period.
func blankStartsSentence(text string) bool {
	loc := blankRe.FindStringIndex(text)
	if loc == nil {
		return false
	}
	prefix := strings.TrimRight(text[:loc[0]], " \t")
	if prefix == "" || strings.HasSuffix(prefix, "\n") {
		return true
	}
	switch prefix[len(prefix)-1] {
	case '.', '-', '*':
		return true
	}
	return strings.HasSuffix(prefix, "•")
}

func matchSentenceStart(correct, given string) bool {
	if correct != strings.ToLower(correct) {
		// Key already carries its own casing; require it verbatim.
		return given == correct
	}
	cr := []rune(correct)
	gr := []rune(given)
	if len(gr) == 0 {
		return false
	}
	return gr[0] == unicode.ToUpper(cr[0]) && string(gr[1:]) == string(cr[1:])
}

func matchMidSentence(correct, given string) bool {
	if given == correct {
		return true
	}
	lower := strings.ToLower(correct)
	if given == lower {
		return true
	}
	// All-caps is tolerated; Title Case and other mixed forms are not.
	return given == strings.ToUpper(given) && strings.ToLower(given) == lower
}
