package localfs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveCommitsUnderPath(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := s.Save(context.Background(), "sub-1_license_scan.png", strings.NewReader("png-bytes")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	raw, err := os.ReadFile(s.Path("sub-1_license_scan.png"))
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if string(raw) != "png-bytes" {
		t.Fatalf("unexpected content %q", raw)
	}

	if got := s.Path("sub-1_license_scan.png"); filepath.Dir(got) != s.basePath {
		t.Fatalf("Path() escaped base dir: %s", got)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected only the committed file, got %d entries", len(entries))
	}
}

func TestSaveRejectsTraversal(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	err = s.Save(context.Background(), "../escape.png", strings.NewReader("x"))
	if !errors.Is(err, errInvalidKey) {
		t.Fatalf("expected invalid key error, got %v", err)
	}
}
