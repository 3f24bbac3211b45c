package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// ClipsDir is the subdirectory of the data directory holding clip audio.
const ClipsDir = "clips"

// writeClipFile writes data under <dataDir>/clips with a freshly
// generated name and returns the file path relative to dataDir.
func writeClipFile(dataDir string, data []byte, originalFilename string) (string, error) {
	name, err := clipFileName(originalFilename)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(dataDir, ClipsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("store: create clips directory: %w", err)
	}
	rel := filepath.Join(ClipsDir, name)
	if err := os.WriteFile(filepath.Join(dataDir, rel), data, 0o644); err != nil {
		return "", fmt.Errorf("store: write clip file: %w", err)
	}
	return rel, nil
}

// removeClipFile deletes the file at relPath under dataDir. Failures are
// logged and swallowed; the janitor reconciles leftovers.
func removeClipFile(dataDir, relPath string) {
	path := filepath.Join(dataDir, relPath)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Error("failed to remove clip file", "path", path, "error", err)
	}
}
