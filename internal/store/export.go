package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pavelanni/awarelab/internal/model"
)

// ExportAllProgress builds export-ready rows for every started (user, lab)
// pair, ordered by username then lab.
func (s *Store) ExportAllProgress(ctx context.Context) ([]model.StudentResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.username, u.display_name, l.id, l.title, l.lab_type, l.passing_score,
			p.status, p.attempts, p.score, p.passed, p.time_spent_seconds, p.started_at, p.completed_at
		 FROM lab_progress p
		 JOIN users u ON u.id = p.user_id
		 JOIN labs l ON l.id = p.lab_id
		 ORDER BY u.username, l.id`)
	if err != nil {
		return nil, fmt.Errorf("query progress: %w", err)
	}
	defer rows.Close()

	var results []model.StudentResult
	for rows.Next() {
		var (
			r                  model.StudentResult
			score              sql.NullInt64
			seconds            int
			started, completed sql.NullInt64
		)
		if err := rows.Scan(&r.Username, &r.DisplayName, &r.LabID, &r.LabTitle, &r.LabType, &r.PassingScore,
			&r.Status, &r.Attempts, &score, &r.Passed, &seconds, &started, &completed); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		if score.Valid {
			v := int(score.Int64)
			r.BestScore = &v
		}
		r.TimeSpentMinutes = seconds / 60
		r.StartedAt = fromNullUnix(started)
		r.CompletedAt = fromNullUnix(completed)
		results = append(results, r)
	}
	return results, rows.Err()
}
