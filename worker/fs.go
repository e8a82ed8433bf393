package worker

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Filesystem is the worker's transient scratch filesystem. Names are relative
// to Root; the compressor sees Root as its working directory.
type Filesystem interface {
	Root() string
	WriteFile(name string, data []byte) error
	ReadFile(name string) ([]byte, error)
	Remove(name string) error
	List() ([]string, error)
}

// ScratchFS is a Filesystem backed by a private host directory
type ScratchFS struct {
	root string
}

// NewScratchFS creates a fresh scratch directory under the system temp dir
func NewScratchFS() (*ScratchFS, error) {
	dir, err := os.MkdirTemp("", "imgmin_scratch_*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	return &ScratchFS{root: dir}, nil
}

// NewScratchFSAt uses an existing directory as the scratch root
func NewScratchFSAt(dir string) *ScratchFS {
	return &ScratchFS{root: dir}
}

func (s *ScratchFS) Root() string { return s.root }

func (s *ScratchFS) path(name string) (string, error) {
	clean := filepath.Clean("/" + filepath.ToSlash(name))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." {
		return "", fmt.Errorf("invalid scratch path %q", name)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

func (s *ScratchFS) WriteFile(name string, data []byte) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o600)
}

func (s *ScratchFS) ReadFile(name string) ([]byte, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

func (s *ScratchFS) Remove(name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	return os.Remove(p)
}

// List returns the names of regular files in the scratch root
func (s *ScratchFS) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Close removes the scratch directory and everything left in it
func (s *ScratchFS) Close() error {
	return os.RemoveAll(s.root)
}
