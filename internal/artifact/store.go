// Package artifact keeps generated images on the local filesystem. Files are
// named per session so concurrent sessions never overwrite each other.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/basel-ax/omni/internal/domain"
)

const filePrefix = "generated_"

// ErrNotFound is returned by Open for names the store did not produce.
var ErrNotFound = errors.New("artifact not found")

// Store writes generated images under one directory.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore creates a store rooted at dir. The directory is created on the
// first Save.
func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// Dir returns the root directory.
func (s *Store) Dir() string { return s.dir }

// Save writes data to a new file named after sessionID and returns it.
func (s *Store) Save(sessionID string, data []byte) (*domain.GeneratedArtifact, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact dir: %w", err)
	}

	name := fmt.Sprintf("%s%s_%s.png", filePrefix, sanitize(sessionID), uuid.NewString())
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write artifact: %w", err)
	}

	return &domain.GeneratedArtifact{Name: name, Path: path}, nil
}

// Open returns the path of a previously saved artifact.
func (s *Store) Open(name string) (string, error) {
	if name != filepath.Base(name) || !strings.HasPrefix(name, filePrefix) {
		return "", ErrNotFound
	}
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to stat artifact: %w", err)
	}
	return path, nil
}

// Sweep deletes generated files last modified more than olderThan ago and
// returns how many were removed.
func (s *Store) Sweep(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list artifact dir: %w", err)
	}

	cutoff := s.now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), filePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
		}
		removed++
	}
	return removed, nil
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		}
		return '-'
	}, id)
}
