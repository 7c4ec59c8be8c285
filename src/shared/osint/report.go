package osint

import "time"

// ReportEntry is one ranked finding inside a report group.
type ReportEntry struct {
	Finding         Finding  `json:"finding"`
	Corroborated    bool     `json:"corroborated"`
	CrossReferences []string `json:"crossReferences,omitempty"`
}

// FindingGroup holds the entries of one canonical category.
type FindingGroup struct {
	Category FindingCategory `json:"category"`
	Entries  []ReportEntry   `json:"entries"`
}

// Summary aggregates counts over a report.
type Summary struct {
	TotalFindings int                     `json:"totalFindings"`
	ByCategory    map[FindingCategory]int `json:"byCategory"`
	Corroborated  int                     `json:"corroborated"`
	Tasks         map[TaskState]int       `json:"tasks"`
}

// Report is the consolidated output for a terminal investigation.
type Report struct {
	ID               string              `json:"id"`
	InvestigationID  string              `json:"investigationId"`
	Target           Target              `json:"target"`
	Status           InvestigationStatus `json:"status"`
	Partial          bool                `json:"partial"`
	DeadlineExceeded bool                `json:"deadlineExceeded"`
	Groups           []FindingGroup      `json:"groups"`
	Summary          Summary             `json:"summary"`
	Digest           string              `json:"digest"`
	GeneratedAt      time.Time           `json:"generatedAt"`
}
