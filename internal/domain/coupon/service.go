package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/fabianovilela/buymore/pkg/pagination"
)

// InvalidError indicates a coupon definition that cannot be stored.
type InvalidError struct {
	Field  string
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid coupon %s: %s", e.Field, e.Reason)
}

// Patch carries a partial coupon update. Nil fields are left untouched.
// ValidUntil and the restriction sets are replaced only when their Set flag is
// true; an empty set clears the restriction.
type Patch struct {
	Code        *string
	Discount    *decimal.Decimal
	Type        *Type
	ValidFrom   *time.Time
	ValidUntil  *time.Time
	Quantity    *int
	Recursive   *bool
	ProductIDs  []int64
	CustomerIDs []int64

	SetValidUntil bool
	SetProducts   bool
	SetCustomers  bool
}

// Service implements coupon administration on top of a Repository.
type Service struct {
	repo Repository
}

// NewService creates a coupon Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns the coupon with the given id.
func (s *Service) Get(ctx context.Context, id int64) (*Coupon, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of coupons matching f.
func (s *Service) List(ctx context.Context, f Filter, p pagination.Request) (pagination.Page[Coupon], error) {
	return s.repo.List(ctx, f, p)
}

// Create validates and stores a new coupon together with its restriction sets.
func (s *Service) Create(ctx context.Context, c *Coupon) error {
	normalize(c)
	if err := validate(c); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return errors.Wrap(err, "create coupon")
	}
	return nil
}

// Update applies p to the coupon with the given id. The remaining quantity
// is written only when p.Quantity is set.
func (s *Service) Update(ctx context.Context, id int64, p Patch) (*Coupon, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Code != nil {
		c.Code = *p.Code
	}
	if p.Discount != nil {
		c.Discount = *p.Discount
	}
	if p.Type != nil {
		c.Type = *p.Type
	}
	if p.ValidFrom != nil {
		c.ValidFrom = *p.ValidFrom
	}
	if p.SetValidUntil {
		c.ValidUntil = p.ValidUntil
	}
	if p.Quantity != nil {
		c.Quantity = *p.Quantity
	}
	if p.Recursive != nil {
		c.Recursive = *p.Recursive
	}
	if p.SetProducts {
		c.ProductIDs = p.ProductIDs
	}
	if p.SetCustomers {
		c.CustomerIDs = p.CustomerIDs
	}

	normalize(c)
	if err := validate(c); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, c, p.Quantity != nil); err != nil {
		return nil, errors.Wrap(err, "update coupon")
	}
	return c, nil
}

// Delete removes a coupon, its restriction sets and any discounts it granted.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func normalize(c *Coupon) {
	c.Code = NormalizeCode(c.Code)
	c.ProductIDs = lo.Uniq(c.ProductIDs)
	c.CustomerIDs = lo.Uniq(c.CustomerIDs)
}

func validate(c *Coupon) error {
	switch {
	case c.Code == "":
		return &InvalidError{Field: "code", Reason: "must not be empty"}
	case !c.Type.Valid():
		return &InvalidError{Field: "type", Reason: fmt.Sprintf("unknown type %q", c.Type)}
	case c.Discount.IsNegative():
		return &InvalidError{Field: "discount", Reason: "must not be negative"}
	case c.Type == TypePercent && c.Discount.GreaterThan(hundred):
		return &InvalidError{Field: "discount", Reason: "percent must not exceed 100"}
	case c.Quantity < 0:
		return &InvalidError{Field: "quantity", Reason: "must not be negative"}
	case c.ValidFrom.IsZero():
		return &InvalidError{Field: "valid_from", Reason: "is required"}
	case c.ValidUntil != nil && !c.ValidUntil.After(c.ValidFrom):
		return &InvalidError{Field: "valid_until", Reason: "must be after valid_from"}
	}
	return nil
}
