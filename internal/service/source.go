package service

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeblew999/plat-rog/internal/source"
)

var (
	ErrInvalidName = errors.New("invalid file name")
	ErrNotFound    = errors.New("file not found")
)

// SourceService manages source data files.
type SourceService struct {
	sourcesDir string
	db         *sql.DB
}

// NewSourceService creates a new source service. db serves the formats read
// through DuckDB and may be nil.
func NewSourceService(dataDir string, db *sql.DB) *SourceService {
	return &SourceService{
		sourcesDir: filepath.Join(dataDir, "sources"),
		db:         db,
	}
}

// List returns all source files in a readable format.
func (s *SourceService) List() ([]SourceFile, error) {
	entries, err := os.ReadDir(s.sourcesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []SourceFile{}, nil
		}
		return nil, err
	}

	files := []SourceFile{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		format, ok := source.DetectFormat(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, SourceFile{
			Name:     entry.Name(),
			Size:     formatSize(info.Size()),
			FileType: string(format),
		})
	}
	return files, nil
}

// Path returns the location of a source file after checking the name.
func (s *SourceService) Path(name string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	path := filepath.Join(s.sourcesDir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return path, nil
}

// Open returns a reader for a source file.
func (s *SourceService) Open(name string) (source.Source, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	return source.Open(path, source.Options{DB: s.db})
}

// SourcesDir returns the path to the sources directory.
func (s *SourceService) SourcesDir() string {
	return s.sourcesDir
}

// checkName rejects names that would escape the data directory.
func checkName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
