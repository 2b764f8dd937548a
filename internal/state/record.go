package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Record is the on-disk copy of the asset list, so a later command can
// continue with the selection an earlier one uploaded.
type Record struct {
	Names     []string  `json:"names"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LoadRecord reads the record at path. A missing file yields an empty record.
func LoadRecord(path string) (Record, error) {
	var r Record
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return r, fmt.Errorf("failed to read asset record: %w", err)
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("failed to parse asset record %s: %w", path, err)
	}
	return r, nil
}

// SaveRecord writes the names of fs to path.
func SaveRecord(path string, fs *FileSet) error {
	names := make([]string, 0, fs.Count())
	for _, a := range fs.Assets() {
		if a.RemotePresent {
			names = append(names, a.Name)
		}
	}
	data, err := json.MarshalIndent(Record{Names: names, UpdatedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode asset record: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write asset record: %w", err)
	}
	return nil
}
