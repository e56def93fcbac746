// Package band converts raw section scores to IELTS band scores using the
// standard conversion scales. The tables are domain constants, not derived.
package band

import (
	"math"

	"github.com/ieltsdesk/ieltsdesk/internal/model"
)

// Step maps a minimum raw score (out of 40) to a band. Tables are ordered
// from the highest threshold down and evaluated first-match.
type Step struct {
	MinRaw int
	Band   float64
}

// ListeningTable is the standard IELTS Listening conversion scale.
var ListeningTable = []Step{
	{39, 9.0},
	{37, 8.5},
	{35, 8.0},
	{32, 7.5},
	{30, 7.0},
	{26, 6.5},
	{23, 6.0},
	{18, 5.5},
	{16, 5.0},
	{13, 4.5},
	{10, 4.0},
	{8, 3.5},
	{6, 3.0},
	{4, 2.5},
	{2, 2.0},
	{1, 1.0},
}

// ReadingTable is the standard IELTS Academic Reading conversion scale.
var ReadingTable = []Step{
	{39, 9.0},
	{37, 8.5},
	{35, 8.0},
	{33, 7.5},
	{30, 7.0},
	{27, 6.5},
	{23, 6.0},
	{19, 5.5},
	{15, 5.0},
	{13, 4.5},
	{10, 4.0},
	{8, 3.5},
	{6, 3.0},
	{4, 2.5},
	{3, 2.0},
	{1, 1.0},
}

// ToBand converts an earned score out of totalScore to a band for the given
// section type. Scores on a non-standard total are first rescaled to 40 with
// proportional rounding; raw scores below the lowest threshold map to 0.0.
func ToBand(score, totalScore float64, sectionType model.SectionType) float64 {
	if totalScore <= 0 {
		return 0
	}
	raw := int(score)
	if totalScore != 40 {
		raw = int(math.Round(score / totalScore * 40))
	}

	table := ReadingTable
	if sectionType == model.SectionListening {
		table = ListeningTable
	}
	for _, step := range table {
		if raw >= step.MinRaw {
			return step.Band
		}
	}
	return 0
}
