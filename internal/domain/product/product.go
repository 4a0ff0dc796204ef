package product

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/fabianovilela/buymore/pkg/pagination"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrInvalid is returned when a product definition fails validation.
	ErrInvalid = errors.New("invalid product")
	// ErrInUse is returned when deleting a product that order items reference.
	ErrInUse = errors.New("product is referenced by orders")
)

// Product represents a catalog item available for purchase.
type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	ImageID     *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Filter narrows product listings.
type Filter struct {
	// Name matches products whose name contains the value, case-insensitively.
	Name string
}

// Repository defines persistence operations for the product catalog.
type Repository interface {
	Get(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
	List(ctx context.Context, f Filter, p pagination.Request) (pagination.Page[Product], error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id int64) error
}

// Patch carries a partial product update. Nil fields are left untouched.
type Patch struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	ImageID     *int64
	SetImage    bool
}

// Service implements catalog administration.
type Service struct {
	repo Repository
}

// NewService creates a product Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns the product with the given id.
func (s *Service) Get(ctx context.Context, id int64) (*Product, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of products matching f.
func (s *Service) List(ctx context.Context, f Filter, p pagination.Request) (pagination.Page[Product], error) {
	return s.repo.List(ctx, f, p)
}

// Create validates and stores a new product.
func (s *Service) Create(ctx context.Context, p *Product) error {
	if err := validate(p); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return errors.Wrap(err, "create product")
	}
	return nil
}

// Update applies patch to the product with the given id.
func (s *Service) Update(ctx context.Context, id int64, patch Patch) (*Product, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.SetImage {
		p.ImageID = patch.ImageID
	}
	if err := validate(p); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, errors.Wrap(err, "update product")
	}
	return p, nil
}

// Delete removes the product.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func validate(p *Product) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return errors.Wrap(ErrInvalid, "name is required")
	}
	if p.Price.IsNegative() {
		return errors.Wrap(ErrInvalid, "price must not be negative")
	}
	p.Price = p.Price.Round(2)
	return nil
}
