package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/awarelab/internal/model"
)

const labColumns = `id, title, description, lab_type, passing_score, estimated_time, objectives_json,
	instructions, scenario, resources, hints, config_json`

// SaveLab inserts or replaces a lab definition. The config is stored as a
// tagged JSON blob.
func (s *Store) SaveLab(ctx context.Context, lab model.Lab) error {
	if err := lab.CheckConfig(); err != nil {
		return fmt.Errorf("save lab %s: %w", lab.ID, err)
	}
	cfg, err := model.EncodeSimulationConfig(lab.SimulationConfig)
	if err != nil {
		return fmt.Errorf("encode config for %s: %w", lab.ID, err)
	}
	var cfgCol sql.NullString
	if cfg != nil {
		cfgCol = sql.NullString{String: string(cfg), Valid: true}
	}
	objectives := lab.Objectives
	if objectives == nil {
		objectives = []string{}
	}
	obj, err := json.Marshal(objectives)
	if err != nil {
		return err
	}
	var est sql.NullInt64
	if lab.EstimatedTime != nil {
		est = sql.NullInt64{Int64: int64(*lab.EstimatedTime), Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO labs (`+labColumns+`, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title, description = EXCLUDED.description, lab_type = EXCLUDED.lab_type,
			passing_score = EXCLUDED.passing_score, estimated_time = EXCLUDED.estimated_time,
			objectives_json = EXCLUDED.objectives_json, instructions = EXCLUDED.instructions,
			scenario = EXCLUDED.scenario, resources = EXCLUDED.resources, hints = EXCLUDED.hints,
			config_json = EXCLUDED.config_json, updated_at = EXCLUDED.updated_at`,
		lab.ID, lab.Title, lab.Description, lab.LabType, lab.PassingScore, est, string(obj),
		lab.Instructions, lab.Scenario, lab.Resources, lab.Hints, cfgCol, unix(time.Now()),
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanLab reads labColumns and decodes the config blob against lab_type.
// A blob that no longer matches its type surfaces as an error here, at
// load time.
func scanLab(row rowScanner, extra ...any) (model.Lab, error) {
	var (
		lab model.Lab
		est sql.NullInt64
		obj string
		cfg sql.NullString
	)
	dest := append([]any{
		&lab.ID, &lab.Title, &lab.Description, &lab.LabType, &lab.PassingScore, &est, &obj,
		&lab.Instructions, &lab.Scenario, &lab.Resources, &lab.Hints, &cfg,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return model.Lab{}, err
	}
	if est.Valid {
		v := int(est.Int64)
		lab.EstimatedTime = &v
	}
	if err := json.Unmarshal([]byte(obj), &lab.Objectives); err != nil {
		return model.Lab{}, fmt.Errorf("lab %s objectives: %w", lab.ID, err)
	}
	var raw []byte
	if cfg.Valid {
		raw = []byte(cfg.String)
	}
	c, err := model.DecodeSimulationConfig(lab.LabType, raw)
	if err != nil {
		return model.Lab{}, fmt.Errorf("lab %s: %w", lab.ID, err)
	}
	lab.SimulationConfig = c
	return lab, nil
}

// GetLab returns a lab by ID, or nil if it does not exist.
func (s *Store) GetLab(ctx context.Context, id string) (*model.Lab, error) {
	lab, err := scanLab(s.db.QueryRowContext(ctx, `SELECT `+labColumns+` FROM labs WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lab, nil
}

// ListLabs returns all labs ordered by ID.
func (s *Store) ListLabs(ctx context.Context) ([]model.Lab, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+labColumns+` FROM labs ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var labs []model.Lab
	for rows.Next() {
		lab, err := scanLab(rows)
		if err != nil {
			return nil, err
		}
		labs = append(labs, lab)
	}
	return labs, rows.Err()
}

// DeleteLab removes a lab and all progress recorded against it.
func (s *Store) DeleteLab(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM labs WHERE id = $1`, id)
	return err
}

// LabCount returns the number of labs.
func (s *Store) LabCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM labs`).Scan(&count)
	return count, err
}

// GetImportedFileHash returns the hash recorded for path, or "" if the file
// was never imported.
func (s *Store) GetImportedFileHash(path string) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT hash FROM imported_files WHERE path = $1`, path).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return hash, err
}

// SetImportedFileHash records that path was imported with the given hash.
func (s *Store) SetImportedFileHash(path, hash string) error {
	_, err := s.db.Exec(
		`INSERT INTO imported_files (path, hash, imported_at) VALUES ($1, $2, $3)
		 ON CONFLICT (path) DO UPDATE SET hash = EXCLUDED.hash, imported_at = EXCLUDED.imported_at`,
		path, hash, unix(time.Now()),
	)
	return err
}
