// Package photos keeps one picture per action on local disk.
package photos

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gosimple/slug"
)

// ErrEmptyActionID is returned when no file name can be derived from the action id.
var ErrEmptyActionID = errors.New("empty action id")

// FileStore copies pictures to stable per-action paths under a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir. The directory is created on first save.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the root directory.
func (s *FileStore) Dir() string { return s.dir }

// Path returns where the picture of actionID in format is stored.
func (s *FileStore) Path(actionID, format string) (string, error) {
	stem, err := Stem(actionID)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, "eco_action_"+stem+extension(format)), nil
}

// Stem returns the file name stem of actionID: a readable slug followed by a
// short hash of the raw id. Ids that slug alike still get distinct stems.
func Stem(actionID string) (string, error) {
	name := slug.Make(actionID)
	if name == "" {
		return "", ErrEmptyActionID
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(actionID))
	return fmt.Sprintf("%s-%08x", name, uint32(h.Sum64()>>32)), nil
}

// Save implements capture.PhotoStore. An existing picture of the same action
// and format is replaced atomically.
func (s *FileStore) Save(ctx context.Context, actionID, srcPath, format string) (string, error) {
	dst, err := s.Path(actionID, format)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if filepath.Clean(srcPath) == dst {
		return dst, nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create photo dir: %w", err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(s.dir, ".photo-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after rename

	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("copy photo: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("store photo: %w", err)
	}
	return dst, nil
}

func extension(format string) string {
	switch f := strings.ToLower(format); f {
	case "jpeg", "jpg", "":
		return ".jpg"
	default:
		return "." + f
	}
}
