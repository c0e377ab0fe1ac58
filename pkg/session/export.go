package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// mergeMu serializes MergeJSONFile so concurrent threads never interleave
// their read-modify-write of the export file.
var mergeMu sync.Mutex

// ExportJSON writes the history of one thread as a JSON object keyed by the
// thread id.
func ExportJSON(w io.Writer, threadID string, entries []Entry) error {
	return writeJSON(w, map[string][]Entry{threadID: nonNil(entries)})
}

// MergeJSONFile replaces the history of threadID inside the JSON file at
// path, keeping the other threads. The file is created if missing and is
// replaced atomically, so readers never see a partial document.
func MergeJSONFile(path, threadID string, entries []Entry) error {
	mergeMu.Lock()
	defer mergeMu.Unlock()

	existing := map[string][]Entry{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(data) > 0 {
			if err := json.Unmarshal(data, &existing); err != nil {
				return fmt.Errorf("failed to parse %s: %w", path, err)
			}
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	existing[threadID] = nonNil(entries)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tempPath := tmp.Name()
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to set mode on %s: %w", tempPath, err)
	}
	if err := writeJSON(tmp, existing); err != nil {
		tmp.Close()
		os.Remove(tempPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	return nil
}

func nonNil(entries []Entry) []Entry {
	if entries == nil {
		return []Entry{}
	}
	return entries
}
