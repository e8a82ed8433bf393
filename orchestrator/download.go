package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
)

// Downloader stores a finished result under the given name
type Downloader interface {
	Save(name string, data []byte) (string, error)
}

// DirDownloader writes results into Dir (the working directory when empty)
type DirDownloader struct {
	Dir string
}

// Save writes data to a temporary file next to the destination and renames it
// into place. The temporary file is removed if anything goes wrong.
func (d DirDownloader) Save(name string, data []byte) (string, error) {
	dir := d.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".imgmin-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write result: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	dest := filepath.Join(dir, filepath.Base(name))
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("failed to move result into place: %w", err)
	}
	return dest, nil
}
