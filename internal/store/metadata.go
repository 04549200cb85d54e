package store

import (
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/pavelanni/awarelab/internal/model"
)

// SetMetadata upserts a key-value pair in the metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO metadata (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetCatalogInfo stores the lab catalog description as metadata rows.
func (s *Store) SetCatalogInfo(info model.CatalogInfo) error {
	pairs := []struct{ k, v string }{
		{"catalog_name", info.Name},
		{"catalog_version", info.Version},
		{"catalog_imported_at", strconv.FormatInt(info.ImportedAt.Unix(), 10)},
	}
	for _, p := range pairs {
		if err := s.SetMetadata(p.k, p.v); err != nil {
			return err
		}
	}
	return nil
}

// GetCatalogInfo reads the catalog description from metadata.
func (s *Store) GetCatalogInfo() (model.CatalogInfo, error) {
	var info model.CatalogInfo
	var err error

	if info.Name, err = s.GetMetadata("catalog_name"); err != nil {
		return info, err
	}
	if info.Version, err = s.GetMetadata("catalog_version"); err != nil {
		return info, err
	}
	at, err := s.GetMetadata("catalog_imported_at")
	if err != nil {
		return info, err
	}
	if at != "" {
		sec, err := strconv.ParseInt(at, 10, 64)
		if err != nil {
			return info, err
		}
		info.ImportedAt = time.Unix(sec, 0).UTC()
	}
	return info, nil
}
