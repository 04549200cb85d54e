// Package progress owns the durable lab-progress state machine, the elapsed
// time tracker that feeds it, and the client-side controller that pushes
// transitions to the persistence collaborator.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/awarelab/internal/model"
)

var (
	ErrLabNotFound       = errors.New("lab not found")
	ErrNotStarted        = errors.New("lab not started")
	ErrContentOnly       = errors.New("operation only applies to content labs")
	ErrInteractiveOnly   = errors.New("operation only applies to interactive labs")
	ErrAlreadyCompleted  = errors.New("lab already completed")
	ErrInvalidSubmission = errors.New("invalid submission")
)

// Start moves a missing or NOT_STARTED record to IN_PROGRESS. Records that
// are already started come back unchanged.
func Start(p *model.LabProgress, userID int64, labID string, now time.Time) model.LabProgress {
	if p != nil && p.Status != model.StatusNotStarted {
		return *p
	}
	out := model.LabProgress{UserID: userID, LabID: labID}
	if p != nil {
		out = *p
	}
	out.Status = model.StatusInProgress
	out.StartedAt = &now
	return out
}

// UpdateNotes records notes and time on an in-progress content lab.
func UpdateNotes(labType model.LabType, p *model.LabProgress, notes string, minutes int) (model.LabProgress, error) {
	if labType != model.LabTypeContent {
		return model.LabProgress{}, ErrContentOnly
	}
	if p == nil || p.Status == model.StatusNotStarted {
		return model.LabProgress{}, ErrNotStarted
	}
	if p.Status == model.StatusCompleted {
		return model.LabProgress{}, ErrAlreadyCompleted
	}
	out := *p
	out.Notes = &notes
	out.TimeSpentSeconds = mergeTime(out.TimeSpentSeconds, minutes)
	return out, nil
}

// Complete self-reports completion of a content lab. It never looks at or
// sets a score.
func Complete(labType model.LabType, p *model.LabProgress, minutes int, notes string, now time.Time) (model.LabProgress, error) {
	if labType != model.LabTypeContent {
		return model.LabProgress{}, ErrContentOnly
	}
	if p == nil || p.Status == model.StatusNotStarted {
		return model.LabProgress{}, ErrNotStarted
	}
	out := *p
	out.Notes = &notes
	out.TimeSpentSeconds = mergeTime(out.TimeSpentSeconds, minutes)
	if out.Status != model.StatusCompleted {
		out.Status = model.StatusCompleted
		out.CompletedAt = &now
	}
	return out, nil
}

// Submit folds one graded attempt into the record: attempts always grows by
// one, the best score never drops, and COMPLETED is sticky.
func Submit(labType model.LabType, p *model.LabProgress, sub model.Submission, now time.Time) (model.LabProgress, error) {
	if !labType.Interactive() {
		return model.LabProgress{}, ErrInteractiveOnly
	}
	if err := CheckSubmission(sub); err != nil {
		return model.LabProgress{}, err
	}
	if p == nil || p.Status == model.StatusNotStarted {
		return model.LabProgress{}, ErrNotStarted
	}
	out := *p
	out.Attempts++
	if out.Score == nil || sub.Score > *out.Score {
		s := sub.Score
		out.Score = &s
	}
	out.TimeSpentSeconds = mergeTime(out.TimeSpentSeconds, sub.TimeSpentMinutes)
	if len(sub.Answers) > 0 {
		out.LastAnswers = sub.Answers
	}
	if sub.Passed {
		out.Passed = true
		if out.Status != model.StatusCompleted {
			out.Status = model.StatusCompleted
			out.CompletedAt = &now
		}
	} else if out.Status != model.StatusCompleted {
		out.Status = model.StatusInProgress
	}
	return out, nil
}

// CheckSubmission rejects scores outside 0..100 and negative time.
func CheckSubmission(sub model.Submission) error {
	if sub.Score < 0 || sub.Score > 100 {
		return fmt.Errorf("%w: score %d out of range", ErrInvalidSubmission, sub.Score)
	}
	if sub.TimeSpentMinutes < 0 {
		return fmt.Errorf("%w: negative time", ErrInvalidSubmission)
	}
	return nil
}

// mergeTime keeps the larger of the stored seconds and the reported total,
// so a stale or duplicate save cannot roll time backwards.
func mergeTime(storedSeconds, minutes int) int {
	return max(storedSeconds, minutes*60)
}
