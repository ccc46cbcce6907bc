package document

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LoadWorkbook reads a workbook previously written by Save.
func LoadWorkbook(path string) (*Workbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workbook: %w", err)
	}
	w := &Workbook{}
	if err := json.Unmarshal(data, w); err != nil {
		return nil, fmt.Errorf("decode workbook %s: %w", path, err)
	}
	for _, s := range w.Sheets {
		if s.Cells == nil {
			s.Cells = make(map[string]*Cell)
		}
		if s.Visibility == "" {
			s.Visibility = VisibilityVisible
		}
	}
	return w, nil
}

// Save writes the workbook as JSON, replacing the file atomically.
func (w *Workbook) Save(path string) error {
	w.mu.Lock()
	data, err := json.MarshalIndent(w, "", "  ")
	w.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode workbook: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".workbook-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close workbook: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace workbook: %w", err)
	}
	return nil
}
