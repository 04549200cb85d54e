package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/awarelab/internal/model"
	"github.com/pavelanni/awarelab/internal/progress"
)

var _ progress.Store = (*Store)(nil)

const progressColumns = `user_id, lab_id, status, attempts, score, passed, time_spent_seconds,
	notes, last_answers, started_at, completed_at`

func scanProgress(row rowScanner) (model.LabProgress, error) {
	var (
		p         model.LabProgress
		score     sql.NullInt64
		notes     sql.NullString
		answers   sql.NullString
		started   sql.NullInt64
		completed sql.NullInt64
	)
	err := row.Scan(&p.UserID, &p.LabID, &p.Status, &p.Attempts, &score, &p.Passed, &p.TimeSpentSeconds,
		&notes, &answers, &started, &completed)
	if err != nil {
		return model.LabProgress{}, err
	}
	if score.Valid {
		v := int(score.Int64)
		p.Score = &v
	}
	if notes.Valid {
		p.Notes = &notes.String
	}
	if answers.Valid {
		p.LastAnswers = json.RawMessage(answers.String)
	}
	p.StartedAt = fromNullUnix(started)
	p.CompletedAt = fromNullUnix(completed)
	return p, nil
}

// GetProgress returns the progress row for (userID, labID), or nil.
func (s *Store) GetProgress(ctx context.Context, userID int64, labID string) (*model.LabProgress, error) {
	p, err := scanProgress(s.db.QueryRowContext(ctx,
		`SELECT `+progressColumns+` FROM lab_progress WHERE user_id = $1 AND lab_id = $2`, userID, labID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetLabForStudent returns the lab with the student's progress, or nil when
// the lab does not exist.
func (s *Store) GetLabForStudent(ctx context.Context, userID int64, labID string) (*model.LabWithProgress, error) {
	lab, err := s.GetLab(ctx, labID)
	if err != nil || lab == nil {
		return nil, err
	}
	p, err := s.GetProgress(ctx, userID, labID)
	if err != nil {
		return nil, err
	}
	return &model.LabWithProgress{Lab: *lab, Progress: p}, nil
}

// ListLabsWithProgress returns every lab with the student's progress on it.
func (s *Store) ListLabsWithProgress(ctx context.Context, userID int64) ([]model.LabWithProgress, error) {
	labs, err := s.ListLabs(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+progressColumns+` FROM lab_progress WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	byLab := map[string]model.LabProgress{}
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		byLab[p.LabID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]model.LabWithProgress, len(labs))
	for i, lab := range labs {
		out[i].Lab = lab
		if p, ok := byLab[lab.ID]; ok {
			out[i].Progress = &p
		}
	}
	return out, nil
}

func (s *Store) labType(ctx context.Context, labID string) (model.LabType, error) {
	var t model.LabType
	err := s.db.QueryRowContext(ctx, `SELECT lab_type FROM labs WHERE id = $1`, labID).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return "", progress.ErrLabNotFound
	}
	return t, err
}

// explainNoRow maps a conditional update that touched nothing to the
// transition error the current row implies.
func (s *Store) explainNoRow(ctx context.Context, userID int64, labID string) error {
	p, err := s.GetProgress(ctx, userID, labID)
	if err != nil {
		return err
	}
	if p == nil || p.Status == model.StatusNotStarted {
		return progress.ErrNotStarted
	}
	if p.Status == model.StatusCompleted {
		return progress.ErrAlreadyCompleted
	}
	return fmt.Errorf("progress for lab %s changed concurrently", labID)
}

// StartLab creates the progress row in IN_PROGRESS, or returns the
// existing row unchanged.
func (s *Store) StartLab(ctx context.Context, userID int64, labID string) (model.LabProgress, error) {
	if _, err := s.labType(ctx, labID); err != nil {
		return model.LabProgress{}, err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lab_progress (user_id, lab_id, status, attempts, passed, time_spent_seconds, started_at)
		 VALUES ($1, $2, $3, 0, $4, 0, $5)
		 ON CONFLICT (user_id, lab_id) DO UPDATE SET
			status = CASE WHEN lab_progress.status = $6 THEN EXCLUDED.status ELSE lab_progress.status END,
			started_at = COALESCE(lab_progress.started_at, EXCLUDED.started_at)`,
		userID, labID, model.StatusInProgress, false, unix(time.Now()), model.StatusNotStarted,
	)
	if err != nil {
		return model.LabProgress{}, fmt.Errorf("start lab %s: %w", labID, err)
	}
	p, err := s.GetProgress(ctx, userID, labID)
	if err != nil {
		return model.LabProgress{}, err
	}
	return *p, nil
}

// UpdateLabNotes saves notes and time on an in-progress content lab.
func (s *Store) UpdateLabNotes(ctx context.Context, userID int64, labID, notes string, minutes int) (model.LabProgress, error) {
	t, err := s.labType(ctx, labID)
	if err != nil {
		return model.LabProgress{}, err
	}
	if t != model.LabTypeContent {
		return model.LabProgress{}, progress.ErrContentOnly
	}
	p, err := scanProgress(s.db.QueryRowContext(ctx,
		`UPDATE lab_progress SET
			notes = $3,
			time_spent_seconds = CASE WHEN time_spent_seconds < $4 THEN $4 ELSE time_spent_seconds END
		 WHERE user_id = $1 AND lab_id = $2 AND status = $5
		 RETURNING `+progressColumns,
		userID, labID, notes, minutes*60, model.StatusInProgress))
	if errors.Is(err, sql.ErrNoRows) {
		return model.LabProgress{}, s.explainNoRow(ctx, userID, labID)
	}
	return p, err
}

// CompleteLab marks a content lab COMPLETED. The score is never touched.
func (s *Store) CompleteLab(ctx context.Context, userID int64, labID string, minutes int, notes string) (model.LabProgress, error) {
	t, err := s.labType(ctx, labID)
	if err != nil {
		return model.LabProgress{}, err
	}
	if t != model.LabTypeContent {
		return model.LabProgress{}, progress.ErrContentOnly
	}
	p, err := scanProgress(s.db.QueryRowContext(ctx,
		`UPDATE lab_progress SET
			notes = $3,
			time_spent_seconds = CASE WHEN time_spent_seconds < $4 THEN $4 ELSE time_spent_seconds END,
			completed_at = CASE WHEN status = $5 THEN completed_at ELSE $6 END,
			status = $5
		 WHERE user_id = $1 AND lab_id = $2 AND status <> $7
		 RETURNING `+progressColumns,
		userID, labID, notes, minutes*60, model.StatusCompleted, unix(time.Now()), model.StatusNotStarted))
	if errors.Is(err, sql.ErrNoRows) {
		return model.LabProgress{}, s.explainNoRow(ctx, userID, labID)
	}
	return p, err
}

// SubmitLabSimulation records one graded attempt in a single statement:
// attempts grows by one, the best score is kept, and COMPLETED is sticky.
func (s *Store) SubmitLabSimulation(ctx context.Context, userID int64, labID string, sub model.Submission) (model.LabProgress, error) {
	if err := progress.CheckSubmission(sub); err != nil {
		return model.LabProgress{}, err
	}
	t, err := s.labType(ctx, labID)
	if err != nil {
		return model.LabProgress{}, err
	}
	if !t.Interactive() {
		return model.LabProgress{}, progress.ErrInteractiveOnly
	}
	var answers sql.NullString
	if len(sub.Answers) > 0 {
		answers = sql.NullString{String: string(sub.Answers), Valid: true}
	}
	p, err := scanProgress(s.db.QueryRowContext(ctx,
		`UPDATE lab_progress SET
			attempts = attempts + 1,
			score = CASE WHEN score IS NULL OR score < $3 THEN $3 ELSE score END,
			passed = CASE WHEN $4 THEN $4 ELSE passed END,
			time_spent_seconds = CASE WHEN time_spent_seconds < $5 THEN $5 ELSE time_spent_seconds END,
			last_answers = COALESCE($6, last_answers),
			completed_at = CASE WHEN status <> $7 AND $4 THEN $8 ELSE completed_at END,
			status = CASE WHEN status = $7 OR $4 THEN $7 ELSE $9 END
		 WHERE user_id = $1 AND lab_id = $2 AND status <> $10
		 RETURNING `+progressColumns,
		userID, labID, sub.Score, sub.Passed, sub.TimeSpentMinutes*60, answers,
		model.StatusCompleted, unix(time.Now()), model.StatusInProgress, model.StatusNotStarted))
	if errors.Is(err, sql.ErrNoRows) {
		return model.LabProgress{}, progress.ErrNotStarted
	}
	if err != nil {
		return model.LabProgress{}, fmt.Errorf("submit lab %s: %w", labID, err)
	}
	return p, nil
}
