package image

import (
	"context"
	"io"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/fabianovilela/buymore/pkg/pagination"
)

// MaxSize is the largest accepted upload in bytes.
const MaxSize = 1 << 20

var (
	// ErrNotFound is returned when an image id does not resolve.
	ErrNotFound = errors.New("image not found")
	// ErrTooLarge is returned for uploads above MaxSize.
	ErrTooLarge = errors.New("file too large")
	// ErrUnsupportedType is returned when the content is not a recognised image.
	ErrUnsupportedType = errors.New("unsupported file type")
)

// Image is an uploaded picture referenced by products and users.
type Image struct {
	ID           int64
	Path         string
	Size         int64
	OriginalName string
	Extension    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Stored describes a file written by a FileStore.
type Stored struct {
	Path      string
	Extension string
	Size      int64
}

// FileStore persists image bytes.
type FileStore interface {
	// Save reads at most maxSize bytes from r and stores them under a fresh
	// name. It returns ErrTooLarge or ErrUnsupportedType without writing.
	Save(ctx context.Context, r io.Reader, maxSize int64) (*Stored, error)
	Remove(ctx context.Context, path string) error
}

// Repository defines persistence operations for image metadata. List
// returns the newest images first.
type Repository interface {
	Get(ctx context.Context, id int64) (*Image, error)
	List(ctx context.Context, p pagination.Request) (pagination.Page[Image], error)
	Create(ctx context.Context, img *Image) error
	Update(ctx context.Context, img *Image) error
	Delete(ctx context.Context, id int64) error
}

// Upload is one file of a multipart request.
type Upload struct {
	Name    string
	Size    int64
	Content io.Reader
}

// UploadError reports why a single file was rejected.
type UploadError struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// UploadResult lists the stored images and the rejected files of a batch.
type UploadResult struct {
	Successes []Image
	Errors    []UploadError
}

// Service stores image files and their metadata.
type Service struct {
	repo  Repository
	files FileStore
}

// NewService creates an image Service.
func NewService(repo Repository, files FileStore) *Service {
	return &Service{repo: repo, files: files}
}

// Get returns the image with the given id.
func (s *Service) Get(ctx context.Context, id int64) (*Image, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of images, newest first.
func (s *Service) List(ctx context.Context, p pagination.Request) (pagination.Page[Image], error) {
	return s.repo.List(ctx, p)
}

// Upload stores every file it can. Files that are too large or not images
// end up in the result's Errors; infrastructure failures abort the batch.
func (s *Service) Upload(ctx context.Context, uploads []Upload) (*UploadResult, error) {
	res := &UploadResult{
		Successes: []Image{},
		Errors:    []UploadError{},
	}
	for _, up := range uploads {
		img, err := s.store(ctx, up)
		switch {
		case err == nil:
			res.Successes = append(res.Successes, *img)
		case errors.Is(err, ErrTooLarge), errors.Is(err, ErrUnsupportedType):
			res.Errors = append(res.Errors, UploadError{Name: up.Name, Reason: err.Error()})
		default:
			return nil, err
		}
	}
	return res, nil
}

// Replace swaps the file behind an existing image.
func (s *Service) Replace(ctx context.Context, id int64, up Upload) (*Image, error) {
	img, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	stored, err := s.save(ctx, up)
	if err != nil {
		return nil, err
	}

	old := img.Path
	img.Path = stored.Path
	img.Size = stored.Size
	img.Extension = stored.Extension
	img.OriginalName = up.Name
	if err := s.repo.Update(ctx, img); err != nil {
		s.discard(ctx, stored.Path)
		return nil, errors.Wrap(err, "update image")
	}
	s.discard(ctx, old)
	return img, nil
}

// Delete removes the image row and its file.
func (s *Service) Delete(ctx context.Context, id int64) error {
	img, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete image")
	}
	s.discard(ctx, img.Path)
	return nil
}

func (s *Service) store(ctx context.Context, up Upload) (*Image, error) {
	stored, err := s.save(ctx, up)
	if err != nil {
		return nil, err
	}
	img := &Image{
		Path:         stored.Path,
		Size:         stored.Size,
		OriginalName: up.Name,
		Extension:    stored.Extension,
	}
	if err := s.repo.Create(ctx, img); err != nil {
		s.discard(ctx, stored.Path)
		return nil, errors.Wrap(err, "create image")
	}
	return img, nil
}

func (s *Service) save(ctx context.Context, up Upload) (*Stored, error) {
	if up.Size > MaxSize {
		return nil, ErrTooLarge
	}
	stored, err := s.files.Save(ctx, up.Content, MaxSize)
	if err != nil {
		return nil, errors.Wrapf(err, "save %q", up.Name)
	}
	return stored, nil
}

// discard removes a file that is no longer referenced. Failures are logged.
func (s *Service) discard(ctx context.Context, path string) {
	if err := s.files.Remove(ctx, path); err != nil {
		zctx.From(ctx).Warn("Remove image file", zap.String("path", path), zap.Error(err))
	}
}
