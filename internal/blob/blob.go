// Package blob stores the server's on-disk assets: replays, screenshots,
// avatars and beatmap files, each under its own subdirectory of the data
// root.
package blob

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no file exists for the requested key.
var ErrNotFound = errors.New("blob: not found")

// Store manages the data directory tree.
type Store struct {
	root string
}

// NewStore creates the data directories under root.
func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("data root directory is required")
	}
	for _, sub := range []string{"osr", "ss", "avatars", "osu"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	slog.Debug("blob store initialized", "dir", root)
	return &Store{root: root}, nil
}

// write lands bytes at path via a temp file so a crashed write never
// leaves a partial blob behind.
func (s *Store) write(path string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".blob-write-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	size, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("write blob bytes: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("close blob file: %w", closeErr)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("move blob into place: %w", err)
	}
	return size, nil
}

func (s *Store) open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open blob file: %w", err)
	}
	return f, nil
}

// PutReplay stores a replay keyed by score id.
func (s *Store) PutReplay(scoreID int64, r io.Reader) error {
	path := filepath.Join(s.root, "osr", fmt.Sprintf("%d.osr", scoreID))
	size, err := s.write(path, r)
	if err != nil {
		return err
	}
	slog.Info("replay stored", "score_id", scoreID, "size", size)
	return nil
}

// OpenReplay opens a stored replay by score id.
func (s *Store) OpenReplay(scoreID int64) (*os.File, error) {
	return s.open(filepath.Join(s.root, "osr", fmt.Sprintf("%d.osr", scoreID)))
}

// PutScreenshot stores a screenshot under a fresh 8-character url-safe
// name and returns the full filename.
func (s *Store) PutScreenshot(r io.Reader, ext string) (string, error) {
	if ext != "png" {
		ext = "jpg"
	}
	id := uuid.New()
	name := base64.RawURLEncoding.EncodeToString(id[:])[:8] + "." + ext
	size, err := s.write(filepath.Join(s.root, "ss", name), r)
	if err != nil {
		return "", err
	}
	slog.Info("screenshot stored", "name", name, "size", size)
	return name, nil
}

// OpenScreenshot opens a stored screenshot by filename. The name is
// validated so a crafted request cannot escape the screenshot directory.
func (s *Store) OpenScreenshot(name string) (*os.File, error) {
	if name != filepath.Base(name) {
		return nil, ErrNotFound
	}
	return s.open(filepath.Join(s.root, "ss", name))
}

// OpenAvatar opens a user's avatar, trying the supported extensions.
func (s *Store) OpenAvatar(userID int32) (*os.File, string, error) {
	for _, ext := range []string{"jpg", "png"} {
		f, err := s.open(filepath.Join(s.root, "avatars", fmt.Sprintf("%d.%s", userID, ext)))
		if err == nil {
			return f, ext, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, "", err
		}
	}
	return nil, "", ErrNotFound
}

// PutMapFile stores a .osu beatmap file by map id.
func (s *Store) PutMapFile(mapID int32, r io.Reader) error {
	_, err := s.write(filepath.Join(s.root, "osu", fmt.Sprintf("%d.osu", mapID)), r)
	return err
}

// OpenMapFile opens a stored .osu file by map id.
func (s *Store) OpenMapFile(mapID int32) (*os.File, error) {
	return s.open(filepath.Join(s.root, "osu", fmt.Sprintf("%d.osu", mapID)))
}
