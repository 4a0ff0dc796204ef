package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/fabianovilela/buymore/internal/domain/product"
	"github.com/fabianovilela/buymore/pkg/pagination"
)

// Sentinel errors for order validation.
var (
	ErrEmptyItems     = errors.New("items required")
	ErrInvalidStatus  = errors.New("invalid order status")
	ErrInvalidUser    = errors.New("unknown or missing user")
	ErrNegativePrice  = errors.New("price must not be negative")
	ErrDuplicateItems = errors.New("product listed more than once")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %d", e.ProductID)
}

// ItemInput is a requested order line. Price defaults to the current product
// price when nil.
type ItemInput struct {
	ProductID int64
	Quantity  int
	Price     *decimal.Decimal
}

// CreateRequest holds the input for creating an order.
type CreateRequest struct {
	UserID int64
	Status Status
	Items  []ItemInput
}

// UpdateRequest holds a partial order update. Items are replaced only when
// SetItems is true.
type UpdateRequest struct {
	Status   *Status
	Items    []ItemInput
	SetItems bool
}

// Service encapsulates order administration.
type Service struct {
	orders   Repository
	products product.Repository
}

// NewService creates an order Service.
func NewService(orders Repository, products product.Repository) *Service {
	return &Service{
		orders:   orders,
		products: products,
	}
}

// Get returns the order with items and discounts.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.Get(ctx, id)
}

// List returns a page of orders matching f.
func (s *Service) List(ctx context.Context, f Filter, p pagination.Request) (pagination.Page[Order], error) {
	if f.Status != "" && !f.Status.Valid() {
		return pagination.Page[Order]{}, ErrInvalidStatus
	}
	return s.orders.List(ctx, f, p)
}

// Create validates the request, resolves item prices and persists a new
// pending order.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	if req.UserID <= 0 {
		return nil, ErrInvalidUser
	}
	status := req.Status
	if status == "" {
		status = StatusPending
	}
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	items, err := s.resolveItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	o := &Order{
		ID:     uuid.New().String(),
		UserID: req.UserID,
		Status: status,
		Items:  items,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	return o, nil
}

// Update changes the status and optionally replaces the items of an order.
// Applied discounts keep the amount computed when they were applied.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Status != nil {
		if !req.Status.Valid() {
			return nil, ErrInvalidStatus
		}
		o.Status = *req.Status
	}
	if req.SetItems {
		items, err := s.resolveItems(ctx, req.Items)
		if err != nil {
			return nil, err
		}
		o.Items = items
	}

	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrap(err, "update order")
	}
	return o, nil
}

// Delete removes the order.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.orders.Delete(ctx, id)
}

// resolveItems validates quantities, fetches products in a single batch and
// fills in missing prices.
func (s *Service) resolveItems(ctx context.Context, in []ItemInput) ([]Item, error) {
	if len(in) == 0 {
		return nil, ErrEmptyItems
	}

	ids := make([]int64, len(in))
	for i, it := range in {
		if it.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: it.ProductID}
		}
		if it.Price != nil && it.Price.IsNegative() {
			return nil, ErrNegativePrice
		}
		ids[i] = it.ProductID
	}
	if len(lo.Uniq(ids)) != len(ids) {
		return nil, ErrDuplicateItems
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	byID := lo.KeyBy(fetched, func(p product.Product) int64 { return p.ID })

	items := make([]Item, len(in))
	for i, it := range in {
		p, ok := byID[it.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: it.ProductID}
		}
		price := p.Price
		if it.Price != nil {
			price = *it.Price
		}
		items[i] = Item{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     price.Round(2),
		}
	}
	return items, nil
}
