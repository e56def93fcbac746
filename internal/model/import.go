package model

// SectionImport is used for loading exam sections from JSON files.
type SectionImport struct {
	Name            string      `json:"name"`
	Type            SectionType `json:"type"`
	DurationMinutes int         `json:"duration_minutes"`
	Questions       []Question  `json:"questions"`
}
