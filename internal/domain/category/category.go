package category

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/fabianovilela/buymore/pkg/pagination"
)

var (
	// ErrNotFound is returned when a requested category does not exist.
	ErrNotFound = errors.New("category not found")
	// ErrInvalid is returned when a category definition fails validation.
	ErrInvalid = errors.New("invalid category")
)

// Category groups catalog products for the storefront.
type Category struct {
	ID          int64
	Title       string
	Description string
	ImageID     *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Filter narrows category listings.
type Filter struct {
	// Title matches categories whose title contains the value, case-insensitively.
	Title string
}

type Repository interface {
	Get(ctx context.Context, id int64) (*Category, error)
	List(ctx context.Context, f Filter, p pagination.Request) (pagination.Page[Category], error)
	Create(ctx context.Context, c *Category) error
	Update(ctx context.Context, c *Category) error
	Delete(ctx context.Context, id int64) error
}

// Patch carries a partial category update. Nil fields are left untouched.
type Patch struct {
	Title       *string
	Description *string
	ImageID     *int64
	SetImage    bool
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, id int64) (*Category, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, p pagination.Request) (pagination.Page[Category], error) {
	return s.repo.List(ctx, f, p)
}

func (s *Service) Create(ctx context.Context, c *Category) error {
	if err := validate(c); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return errors.Wrap(err, "create category")
	}
	return nil
}

func (s *Service) Update(ctx context.Context, id int64, patch Patch) (*Category, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Title != nil {
		c.Title = *patch.Title
	}
	if patch.Description != nil {
		c.Description = *patch.Description
	}
	if patch.SetImage {
		c.ImageID = patch.ImageID
	}
	if err := validate(c); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, errors.Wrap(err, "update category")
	}
	return c, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func validate(c *Category) error {
	c.Title = strings.TrimSpace(c.Title)
	if c.Title == "" {
		return errors.Wrap(ErrInvalid, "title is required")
	}
	return nil
}
