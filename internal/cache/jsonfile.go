package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// JSONFile stores the snapshot as a single JSON document on disk.
type JSONFile struct {
	path string
}

// NewJSONFile creates a JSON-file backed store at path.
func NewJSONFile(path string) *JSONFile { return &JSONFile{path: path} }

// Load reads the snapshot. A missing file is a clean miss.
func (s *JSONFile) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode cache %s: %w", s.path, err)
	}
	return &snap, nil
}

// Save writes the snapshot, creating parent directories as needed. The write
// goes through a temp file and rename so a crash never leaves a truncated
// cache behind.
func (s *JSONFile) Save(snap *Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
