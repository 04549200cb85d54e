package labfile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pavelanni/awarelab/internal/authoring"
	"github.com/pavelanni/awarelab/internal/model"
)

// Saver is the part of the store an import writes to.
type Saver interface {
	SaveLab(ctx context.Context, lab model.Lab) error
	GetImportedFileHash(path string) (string, error)
	SetImportedFileHash(path, hash string) error
}

// ImportResult describes one imported file.
type ImportResult struct {
	Path     string                       `json:"path"`
	Skipped  bool                         `json:"skipped"`
	Labs     []string                     `json:"labs"`
	Warnings map[string][]authoring.Issue `json:"warnings,omitempty"`
}

// InvalidError carries the validation reports of every lab in a file that
// failed authoring checks.
type InvalidError struct {
	Path    string
	Reports map[string]authoring.Report
}

func (e *InvalidError) Error() string {
	for id, r := range e.Reports {
		return fmt.Sprintf("%s: lab %s: %v", e.Path, id, r.Err())
	}
	return e.Path + ": invalid"
}

func (e *InvalidError) Unwrap() error { return authoring.ErrInvalid }

// Import parses data, validates every lab and saves them. A file whose
// hash matches the last import is skipped unless force is set. Nothing is
// saved when any lab has a blocking error.
func Import(ctx context.Context, s Saver, path string, data []byte, force bool) (ImportResult, error) {
	res := ImportResult{Path: path}
	hash := Hash(data)
	if !force {
		stored, err := s.GetImportedFileHash(path)
		if err != nil {
			return res, fmt.Errorf("check import status of %s: %w", path, err)
		}
		if stored == hash {
			slog.Info("lab file unchanged, skipping", "path", path)
			res.Skipped = true
			return res, nil
		}
	}

	labs, err := Parse(data, FormatOf(path))
	if err != nil {
		return res, fmt.Errorf("parse %s: %w", path, err)
	}

	invalid := &InvalidError{Path: path, Reports: map[string]authoring.Report{}}
	seen := map[string]bool{}
	for _, lab := range labs {
		if seen[lab.ID] {
			return res, fmt.Errorf("%s: duplicate lab id %q: %w", path, lab.ID, authoring.ErrInvalid)
		}
		seen[lab.ID] = true
		report := authoring.Validate(lab)
		if !report.OK() {
			invalid.Reports[lab.ID] = report
			continue
		}
		if len(report.Warnings) > 0 {
			if res.Warnings == nil {
				res.Warnings = map[string][]authoring.Issue{}
			}
			res.Warnings[lab.ID] = report.Warnings
		}
	}
	if len(invalid.Reports) > 0 {
		return res, invalid
	}

	for _, lab := range labs {
		if err := s.SaveLab(ctx, lab); err != nil {
			return res, fmt.Errorf("save lab %s: %w", lab.ID, err)
		}
		res.Labs = append(res.Labs, lab.ID)
	}
	if err := s.SetImportedFileHash(path, hash); err != nil {
		return res, fmt.Errorf("record import of %s: %w", path, err)
	}
	slog.Info("imported lab file", "path", path, "labs", len(labs))
	return res, nil
}

// AsInvalid returns the validation reports behind err, if any.
func AsInvalid(err error) (*InvalidError, bool) {
	var ie *InvalidError
	ok := errors.As(err, &ie)
	return ie, ok
}
