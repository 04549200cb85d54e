// Package labfile reads authored lab definitions from JSON or YAML files.
// A file holds either one lab or a list of labs.
package labfile

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pavelanni/awarelab/internal/model"
)

// Format is the encoding of a lab file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatOf picks the format from the file extension. Anything that is not
// .yaml or .yml is treated as JSON.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// File is a parsed lab file.
type File struct {
	Path string
	Hash string
	Labs []model.Lab
}

// Load reads and parses the lab file at path.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read %s: %w", path, err)
	}
	labs, err := Parse(data, FormatOf(path))
	if err != nil {
		return File{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return File{Path: path, Hash: Hash(data), Labs: labs}, nil
}

// Hash returns the hex sha256 of data, used to detect changed files.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Parse decodes data as a single lab or a list of labs. YAML goes through
// the JSON decoder so both formats share the same strict config checks.
func Parse(data []byte, format Format) ([]model.Lab, error) {
	if format == FormatYAML {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
		var err error
		if data, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("convert yaml: %w", err)
		}
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("empty lab file")
	}
	if trimmed[0] == '[' {
		var labs []model.Lab
		if err := json.Unmarshal(trimmed, &labs); err != nil {
			return nil, err
		}
		return labs, nil
	}
	var lab model.Lab
	if err := json.Unmarshal(trimmed, &lab); err != nil {
		return nil, err
	}
	return []model.Lab{lab}, nil
}
