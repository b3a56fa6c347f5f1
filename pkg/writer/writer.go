// Package writer persists college records and summarizes their completeness.
package writer

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/David-Botos/ipeds-ingress/pkg/model"
)

// WriteJSON writes records as an indented JSON array. Non-ASCII text and
// HTML characters are written literally. The file is staged next to path
// and renamed into place, so a failed write never leaves a partial file.
func WriteJSON(path string, records []model.College) (err error) {
	if records == nil {
		records = []model.College{}
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary output in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	buf := bufio.NewWriter(tmp)
	enc := json.NewEncoder(buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)

	if err = enc.Encode(records); err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	if err = buf.Flush(); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", tmpName, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move output into place at %s: %w", path, err)
	}
	return nil
}

// ReadJSON reads a file written by WriteJSON
func ReadJSON(path string) ([]model.College, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var records []model.College
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if records == nil {
		return nil, errors.New("output is not a JSON array")
	}
	return records, nil
}
