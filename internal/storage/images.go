package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// ImageStore persists generated and uploaded images under a single directory.
// Saved files double as the outbound attachment and the cached "last image"
// for follow-up edits, so reads must return exactly what was written.
type ImageStore struct {
	dir string
}

// NewImageStore creates the save directory if needed
func NewImageStore(dir string) (*ImageStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("save directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create save directory: %w", err)
	}
	return &ImageStore{dir: dir}, nil
}

// Dir returns the root save directory
func (s *ImageStore) Dir() string {
	return s.dir
}

// SaveImage writes image bytes to a new file named
// <prefix>_<unix>_<uuid8>_<sanitized reply text>.png and returns its path.
func (s *ImageStore) SaveImage(prefix, replyText string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("no image data to save")
	}

	name := fmt.Sprintf("%s_%d_%s_%s.png",
		prefix, time.Now().Unix(), uuid.NewString()[:8], sanitizeName(replyText))
	path := filepath.Join(s.dir, name)

	// Write to a temporary file first, then rename (atomic replace)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to rename image file: %w", err)
	}

	log.Debugf("Saved image %s (%d bytes)", path, len(data))
	return path, nil
}

// ReadImage reads back a previously saved image
func (s *ImageStore) ReadImage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	return data, nil
}

// Cleanup deletes images older than the retention window that no session
// still references as its last image. Returns the number of files removed.
func (s *ImageStore) Cleanup(olderThan time.Duration, protected map[string]struct{}) int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		log.Warnf("Failed to read save directory for cleanup: %v", err)
		return 0
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if _, ok := protected[path]; ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			log.Warnf("Failed to remove stale image %s: %v", path, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		log.Infof("Removed %d stale image files", removed)
	}
	return removed
}

// sanitizeName makes reply text safe for use in a filename
func sanitizeName(text string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_")
	clean := replacer.Replace(text)
	runes := []rune(clean)
	if len(runes) > 30 {
		clean = string(runes[:30]) + "..."
	}
	return clean
}
