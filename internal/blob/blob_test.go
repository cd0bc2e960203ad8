package blob

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func readAll(t *testing.T, f *os.File) string {
	t.Helper()
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(b)
}

func TestReplayRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	if err := s.PutReplay(42, strings.NewReader("replay bytes")); err != nil {
		t.Fatalf("put: %v", err)
	}
	f, err := s.OpenReplay(42)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := readAll(t, f); got != "replay bytes" {
		t.Fatalf("got %q", got)
	}

	if _, err := s.OpenReplay(43); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing replay: %v", err)
	}
}

func TestScreenshotNamesAndExtensions(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	name, err := s.PutScreenshot(strings.NewReader("png data"), "png")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if !strings.HasSuffix(name, ".png") {
		t.Fatalf("name %q", name)
	}
	if base := strings.TrimSuffix(name, ".png"); len(base) != 8 {
		t.Fatalf("name stem %q should be 8 chars", base)
	}

	f, err := s.OpenScreenshot(name)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := readAll(t, f); got != "png data" {
		t.Fatalf("got %q", got)
	}

	other, err := s.PutScreenshot(strings.NewReader("more"), "jpg")
	if err != nil {
		t.Fatalf("second put: %v", err)
	}
	if other == name {
		t.Fatal("screenshot names should not collide")
	}
}

func TestScreenshotTraversalGuard(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	if _, err := s.OpenScreenshot("../../etc/passwd"); err == nil {
		t.Fatal("traversal name should not resolve outside the store")
	}
}

func TestAvatarFallsBackAcrossExtensions(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	s, err := NewStore(root)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if _, _, err := s.OpenAvatar(7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing avatar: %v", err)
	}

	if err := os.WriteFile(filepath.Join(root, "avatars", "7.png"), []byte("png"), 0o644); err != nil {
		t.Fatalf("seed avatar: %v", err)
	}
	f, ext, err := s.OpenAvatar(7)
	if err != nil {
		t.Fatalf("open avatar: %v", err)
	}
	f.Close()
	if ext != "png" {
		t.Fatalf("ext %q", ext)
	}
}

func TestMapFileRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	if err := s.PutMapFile(123, strings.NewReader("osu file format v14")); err != nil {
		t.Fatalf("put: %v", err)
	}
	f, err := s.OpenMapFile(123)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := readAll(t, f); got != "osu file format v14" {
		t.Fatalf("got %q", got)
	}
}
