package model

import (
	"encoding/json"
	"time"
)

// ProgressStatus is the durable state of a (user, lab) pair.
type ProgressStatus string

const (
	StatusNotStarted ProgressStatus = "NOT_STARTED"
	StatusInProgress ProgressStatus = "IN_PROGRESS"
	StatusCompleted  ProgressStatus = "COMPLETED"
)

// LabProgress is the durable per-student-per-lab record.
type LabProgress struct {
	UserID           int64           `json:"userId"`
	LabID            string          `json:"labId"`
	Status           ProgressStatus  `json:"status"`
	Attempts         int             `json:"attempts"`
	Score            *int            `json:"score"` // best score, nil until first graded attempt
	Passed           bool            `json:"passed"`
	TimeSpentSeconds int             `json:"timeSpentSeconds"`
	Notes            *string         `json:"notes"`
	LastAnswers      json.RawMessage `json:"lastAnswers,omitempty"`
	StartedAt        *time.Time      `json:"startedAt,omitempty"`
	CompletedAt      *time.Time      `json:"completedAt,omitempty"`
}

// TimeSpentMinutes returns the persisted time in whole minutes.
func (p LabProgress) TimeSpentMinutes() int {
	return p.TimeSpentSeconds / 60
}

// Submission is what an interactive attempt hands to the persistence layer.
type Submission struct {
	Score            int             `json:"score"`
	Passed           bool            `json:"passed"`
	Answers          json.RawMessage `json:"answers"`
	TimeSpentMinutes int             `json:"timeSpentMinutes"`
}

// LabWithProgress is the student-facing load result.
type LabWithProgress struct {
	Lab      Lab          `json:"lab"`
	Progress *LabProgress `json:"progress"`
}
