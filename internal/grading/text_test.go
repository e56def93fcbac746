package grading

import (
	"testing"

	"github.com/ieltsdesk/ieltsdesk/internal/model"
)

func TestMatchTextMidSentence(t *testing.T) {
	q := model.Question{Type: model.ShortAnswer, Text: "The artefacts are kept in the city ____ near the river."}

	tests := []struct {
		name    string
		correct string
		given   string
		want    bool
	}{
		{"exact", "museum", "museum", true},
		{"all caps tolerated", "museum", "MUSEUM", true},
		{"title case rejected", "museum", "Museum", false},
		{"trimmed", "museum", "  museum ", true},
		{"wrong word", "museum", "gallery", false},
		{"capitalized key exact", "Thames", "Thames", true},
		{"capitalized key all lower", "Thames", "thames", true},
		{"capitalized key all caps", "Thames", "THAMES", true},
		{"capitalized key mixed", "Thames", "ThAmes", false},
		{"multi word lower", "coal mine", "coal mine", true},
		{"multi word title rejected", "coal mine", "Coal Mine", false},
		{"empty answer", "museum", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchText(q, tt.correct, tt.given); got != tt.want {
				t.Errorf("MatchText(%q, %q) = %v, want %v", tt.correct, tt.given, got, tt.want)
			}
		})
	}
}

func TestMatchTextSentenceStart(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		correct string
		given   string
		want    bool
	}{
		{"line start lowercase key needs capital", "____ tide carried the boat away.", "the", "The", true},
		{"line start lowercase answer rejected", "____ tide carried the boat away.", "the", "the", false},
		{"after period", "The harbour closed. ____ ferry stopped running.", "every", "Every", true},
		{"after period lowercase rejected", "The harbour closed. ____ ferry stopped running.", "every", "every", false},
		{"after bullet", "- ____ samples must be labelled", "all", "All", true},
		{"capitalized key byte exact", "____ is the largest city.", "Jakarta", "Jakarta", true},
		{"capitalized key lowercased rejected", "____ is the largest city.", "Jakarta", "jakarta", false},
		{"rest must match exactly", "____ tide carried the boat away.", "the", "THE", false},
		{"mid sentence not affected", "Visitors reach the ____ by bus.", "harbour", "HARBOUR", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := model.Question{Type: model.SentenceCompletion, Text: tt.text}
			if got := MatchText(q, tt.correct, tt.given); got != tt.want {
				t.Errorf("MatchText(%q, %q) = %v, want %v", tt.correct, tt.given, got, tt.want)
			}
		})
	}
}

func TestMatchTextWordOrNumber(t *testing.T) {
	q := model.Question{
		Type:        model.NoteCompletion,
		Text:        "Tickets cost £____ each.",
		Instruction: "Write ONE WORD AND/OR A NUMBER for each answer.",
	}

	tests := []struct {
		name    string
		correct string
		given   string
		want    bool
	}{
		{"numeral for word", "three", "3", true},
		{"word for numeral", "3", "three", true},
		{"word for numeral cased", "3", "Three", true},
		{"ten", "ten", "10", true},
		{"outside one to ten", "12", "twelve", false},
		{"plain match still works", "3", "3", true},
		{"wrong number", "three", "4", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchText(q, tt.correct, tt.given); got != tt.want {
				t.Errorf("MatchText(%q, %q) = %v, want %v", tt.correct, tt.given, got, tt.want)
			}
		})
	}

	t.Run("equivalence needs the instruction", func(t *testing.T) {
		plain := model.Question{Type: model.NoteCompletion, Text: "Tickets cost £____ each."}
		if MatchText(plain, "three", "3") {
			t.Error("numeral equivalence must require the word-and/or-number instruction")
		}
	})
}

func TestBlankStartsSentence(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"line start", "____ begins here", true},
		{"mid sentence", "the answer is ____ here", false},
		{"after period", "First sentence. ____ second", true},
		{"after bullet dash", "- ____ item", true},
		{"after bullet dot", "• ____ item", true},
		{"after newline", "heading\n____ next line", true},
		{"ellipsis blank mid sentence", "reach the …… by bus", false},
		{"no blank marker", "no marker at all", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := blankStartsSentence(tt.text); got != tt.want {
				t.Errorf("blankStartsSentence(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}
