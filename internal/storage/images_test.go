package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewImageStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "images")

	store, err := NewImageStore(dir)
	if err != nil {
		t.Fatalf("Failed to create image store: %v", err)
	}
	if store.Dir() != dir {
		t.Errorf("Expected dir %s, got %s", dir, store.Dir())
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Error("Save directory should have been created")
	}
}

func TestNewImageStoreRequiresDir(t *testing.T) {
	if _, err := NewImageStore(""); err == nil {
		t.Error("Expected error for empty directory")
	}
}

func TestSaveAndReadImage(t *testing.T) {
	store, err := NewImageStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create image store: %v", err)
	}

	data := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x01, 0x02, 0x03}
	path, err := store.SaveImage("gemini", "a cat on a roof", data)
	if err != nil {
		t.Fatalf("Failed to save image: %v", err)
	}

	name := filepath.Base(path)
	if !strings.HasPrefix(name, "gemini_") {
		t.Errorf("Expected gemini_ prefix, got %s", name)
	}
	if !strings.HasSuffix(name, ".png") {
		t.Errorf("Expected .png suffix, got %s", name)
	}
	if strings.HasSuffix(name, ".tmp") {
		t.Errorf("Temporary file leaked into final path: %s", name)
	}

	got, err := store.ReadImage(path)
	if err != nil {
		t.Fatalf("Failed to read image back: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("Read bytes differ from written bytes")
	}
}

func TestSaveImageRejectsEmptyData(t *testing.T) {
	store, err := NewImageStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create image store: %v", err)
	}
	if _, err := store.SaveImage("gemini", "text", nil); err == nil {
		t.Error("Expected error for empty image data")
	}
}

func TestSaveImageUniqueNames(t *testing.T) {
	store, err := NewImageStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create image store: %v", err)
	}

	a, err := store.SaveImage("gemini", "same text", []byte("a"))
	if err != nil {
		t.Fatalf("Failed to save first image: %v", err)
	}
	b, err := store.SaveImage("gemini", "same text", []byte("b"))
	if err != nil {
		t.Fatalf("Failed to save second image: %v", err)
	}
	if a == b {
		t.Errorf("Two saves produced the same path: %s", a)
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "path separators replaced",
			in:   "a/b\\c:d*e",
			want: "a_b_c_d_e",
		},
		{
			name: "short text unchanged",
			in:   "a red fox",
			want: "a red fox",
		},
		{
			name: "long text truncated to 30 runes",
			in:   strings.Repeat("x", 40),
			want: strings.Repeat("x", 30) + "...",
		},
		{
			name: "multibyte text truncated by runes",
			in:   strings.Repeat("图", 40),
			want: strings.Repeat("图", 30) + "...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeName(tt.in); got != tt.want {
				t.Errorf("sanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCleanup(t *testing.T) {
	dir := t.TempDir()
	store, err := NewImageStore(dir)
	if err != nil {
		t.Fatalf("Failed to create image store: %v", err)
	}

	stale := filepath.Join(dir, "gemini_old.png")
	protectedStale := filepath.Join(dir, "gemini_protected.png")
	fresh := filepath.Join(dir, "gemini_fresh.png")
	for _, p := range []string{stale, protectedStale, fresh} {
		if err := os.WriteFile(p, []byte("img"), 0o644); err != nil {
			t.Fatalf("Failed to write fixture %s: %v", p, err)
		}
	}

	old := time.Now().Add(-48 * time.Hour)
	for _, p := range []string{stale, protectedStale} {
		if err := os.Chtimes(p, old, old); err != nil {
			t.Fatalf("Failed to age fixture %s: %v", p, err)
		}
	}

	removed := store.Cleanup(24*time.Hour, map[string]struct{}{protectedStale: {}})
	if removed != 1 {
		t.Errorf("Expected 1 file removed, got %d", removed)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("Stale unprotected file should be gone")
	}
	if _, err := os.Stat(protectedStale); err != nil {
		t.Error("Protected file should survive cleanup")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("Fresh file should survive cleanup")
	}
}
