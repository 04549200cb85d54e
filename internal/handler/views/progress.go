package views

import (
	"context"

	appI18n "github.com/pavelanni/awarelab/internal/i18n"
	"github.com/pavelanni/awarelab/internal/model"
)

func completedCount(labs []model.LabWithProgress) int {
	n := 0
	for _, l := range labs {
		if l.Progress != nil && l.Progress.Status == model.StatusCompleted {
			n++
		}
	}
	return n
}

func progressOf(l model.LabWithProgress) model.LabProgress {
	if l.Progress == nil {
		return model.LabProgress{Status: model.StatusNotStarted}
	}
	return *l.Progress
}

// scoreText is "-" until the lab has been graded.
func scoreText(ctx context.Context, l model.LabWithProgress) string {
	p := progressOf(l)
	if p.Score == nil {
		return "-"
	}
	verdict := "NotPassed"
	if p.Passed {
		verdict = "Passed"
	}
	return appI18n.Td(ctx, "ScoreOutOf", map[string]any{
		"Score": *p.Score, "Passing": l.Lab.PassingScore,
	}) + " " + appI18n.T(ctx, verdict)
}
