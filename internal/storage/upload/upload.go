// Package upload stores image files on the local disk.
package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/h2non/filetype"

	"github.com/fabianovilela/buymore/internal/domain/image"
)

var _ image.FileStore = (*DiskStore)(nil)

// DiskStore writes uploads below a root directory. Stored paths are relative
// to the root.
type DiskStore struct {
	root string
	now  func() time.Time
}

// NewDiskStore creates the root directory when missing.
func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "create upload dir")
	}
	return &DiskStore{root: root, now: time.Now}, nil
}

// Root returns the directory files are written to.
func (s *DiskStore) Root() string {
	return s.root
}

// Save buffers at most maxSize bytes, sniffs the content type from the magic
// bytes and writes the file as <unix-ms>-<random>.<ext>.
func (s *DiskStore) Save(_ context.Context, r io.Reader, maxSize int64) (*image.Stored, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, errors.Wrap(err, "read upload")
	}
	if int64(len(data)) > maxSize {
		return nil, image.ErrTooLarge
	}

	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown || !filetype.IsImage(data) {
		return nil, image.ErrUnsupportedType
	}

	name := fmt.Sprintf("%d-%s.%s", s.now().UnixMilli(), randomName(), kind.Extension)
	if err := os.WriteFile(filepath.Join(s.root, name), data, 0o644); err != nil {
		return nil, errors.Wrap(err, "write upload")
	}
	return &image.Stored{
		Path:      name,
		Extension: kind.Extension,
		Size:      int64(len(data)),
	}, nil
}

// Remove deletes a stored file. Missing files are not an error.
func (s *DiskStore) Remove(_ context.Context, path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "remove upload")
	}
	return nil
}

func (s *DiskStore) resolve(path string) (string, error) {
	clean := filepath.Base(filepath.Clean(path))
	if clean != path || clean == "." || clean == string(filepath.Separator) {
		return "", errors.Errorf("invalid upload path %q", path)
	}
	return filepath.Join(s.root, clean), nil
}

func randomName() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:30]
}
