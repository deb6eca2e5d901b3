// Package storage persists uploaded and captured images.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ImageStore saves image bytes and returns the public URL they are served
// under.
type ImageStore interface {
	Save(category string, data []byte, ext string) (string, error)
}

// LocalImageStore writes images under a media directory served by the HTTP
// server, partitioned by category and date (references/2026/08/29/<id>.webp).
type LocalImageStore struct {
	dir     string
	baseURL string
}

// NewLocalImageStore creates the store rooted at dir; baseURL is the URL
// prefix the media directory is served under.
func NewLocalImageStore(dir, baseURL string) (*LocalImageStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("media dir: %w", err)
	}
	return &LocalImageStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Save writes data to a fresh file and returns its URL.
func (s *LocalImageStore) Save(category string, data []byte, ext string) (string, error) {
	if ext == "" {
		ext = ".webp"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	datePath := time.Now().UTC().Format("2006/01/02")
	rel := filepath.Join(category, datePath, uuid.New().String()+ext)
	abs := filepath.Join(s.dir, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return "", fmt.Errorf("media subdir: %w", err)
	}
	if err := os.WriteFile(abs, data, 0644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return s.baseURL + "/" + filepath.ToSlash(rel), nil
}
