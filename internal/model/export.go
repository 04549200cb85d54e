package model

import "time"

// CatalogInfo describes the imported lab catalog.
type CatalogInfo struct {
	Name       string    `json:"name"`
	Version    string    `json:"version,omitempty"`
	ImportedAt time.Time `json:"imported_at"`
}

// ProgressExport is the top-level JSON structure for progress export.
type ProgressExport struct {
	Catalog    CatalogInfo     `json:"catalog"`
	ExportedAt time.Time       `json:"exported_at"`
	NumLabs    int             `json:"num_labs"`
	Results    []StudentResult `json:"results"`
}

// StudentResult holds one student's progress on one lab for export.
type StudentResult struct {
	Username         string         `json:"username"`
	DisplayName      string         `json:"display_name"`
	LabID            string         `json:"lab_id"`
	LabTitle         string         `json:"lab_title"`
	LabType          LabType        `json:"lab_type"`
	PassingScore     int            `json:"passing_score"`
	Status           ProgressStatus `json:"status"`
	Attempts         int            `json:"attempts"`
	BestScore        *int           `json:"best_score,omitempty"`
	Passed           bool           `json:"passed"`
	TimeSpentMinutes int            `json:"time_spent_minutes"`
	StartedAt        *time.Time     `json:"started_at,omitempty"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
}
