package order

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabianovilela/buymore/internal/domain/product"
	"github.com/fabianovilela/buymore/pkg/pagination"
)

// --- Mock implementations ---

type mockProductRepo struct {
	product.Repository

	byID   map[int64]product.Product
	getErr error
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockOrderRepo struct {
	byID      map[string]*Order
	lastOrder *Order
	filter    Filter
	err       error
}

func (m *mockOrderRepo) Get(_ context.Context, id string) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

func (m *mockOrderRepo) List(_ context.Context, f Filter, p pagination.Request) (pagination.Page[Order], error) {
	m.filter = f
	return pagination.NewPage[Order](nil, 0, p), m.err
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	m.lastOrder = o
	return m.err
}

func (m *mockOrderRepo) Update(_ context.Context, o *Order) error {
	m.lastOrder = o
	return m.err
}

func (m *mockOrderRepo) Delete(_ context.Context, _ string) error {
	return m.err
}

// --- Helpers ---

func newProductRepo(products ...product.Product) *mockProductRepo {
	byID := make(map[int64]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockProductRepo{byID: byID}
}

func widget(id int64, price string) product.Product {
	return product.Product{ID: id, Name: "Widget", Price: decimal.RequireFromString(price)}
}

// --- Tests ---

func TestCreate_EmptyItems(t *testing.T) {
	svc := NewService(&mockOrderRepo{}, newProductRepo())

	_, err := svc.Create(context.Background(), CreateRequest{UserID: 1})
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestCreate_InvalidUser(t *testing.T) {
	svc := NewService(&mockOrderRepo{}, newProductRepo(widget(1, "10")))

	_, err := svc.Create(context.Background(), CreateRequest{
		Items: []ItemInput{{ProductID: 1, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrInvalidUser)
}

func TestCreate_InvalidQuantity(t *testing.T) {
	svc := NewService(&mockOrderRepo{}, newProductRepo(widget(1, "10")))

	_, err := svc.Create(context.Background(), CreateRequest{
		UserID: 1,
		Items:  []ItemInput{{ProductID: 1, Quantity: 0}},
	})

	var iqErr *InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, int64(1), iqErr.ProductID)
}

func TestCreate_ProductNotFound(t *testing.T) {
	svc := NewService(&mockOrderRepo{}, newProductRepo())

	_, err := svc.Create(context.Background(), CreateRequest{
		UserID: 1,
		Items:  []ItemInput{{ProductID: 99, Quantity: 1}},
	})

	var pnfErr *ProductNotFoundError
	require.ErrorAs(t, err, &pnfErr)
	assert.Equal(t, int64(99), pnfErr.ProductID)
}

func TestCreate_DuplicateItems(t *testing.T) {
	svc := NewService(&mockOrderRepo{}, newProductRepo(widget(1, "10")))

	_, err := svc.Create(context.Background(), CreateRequest{
		UserID: 1,
		Items:  []ItemInput{{ProductID: 1, Quantity: 1}, {ProductID: 1, Quantity: 2}},
	})
	require.ErrorIs(t, err, ErrDuplicateItems)
}

func TestCreate_InvalidStatus(t *testing.T) {
	svc := NewService(&mockOrderRepo{}, newProductRepo(widget(1, "10")))

	_, err := svc.Create(context.Background(), CreateRequest{
		UserID: 1,
		Status: "lost",
		Items:  []ItemInput{{ProductID: 1, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestCreate_DefaultsPriceAndStatus(t *testing.T) {
	repo := &mockOrderRepo{}
	svc := NewService(repo, newProductRepo(widget(1, "10.00"), widget(2, "20.00")))

	custom := decimal.RequireFromString("15.50")
	o, err := svc.Create(context.Background(), CreateRequest{
		UserID: 7,
		Items: []ItemInput{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, Quantity: 1, Price: &custom},
		},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, int64(7), o.UserID)
	require.Len(t, o.Items, 2)
	assert.True(t, decimal.RequireFromString("10").Equal(o.Items[0].Price))
	assert.True(t, custom.Equal(o.Items[1].Price))
	assert.True(t, decimal.RequireFromString("35.50").Equal(o.Subtotal()))
	assert.Same(t, o, repo.lastOrder)
}

func TestCreate_ProductLookupError(t *testing.T) {
	products := newProductRepo()
	products.getErr = errors.New("connection refused")
	svc := NewService(&mockOrderRepo{}, products)

	_, err := svc.Create(context.Background(), CreateRequest{
		UserID: 1,
		Items:  []ItemInput{{ProductID: 1, Quantity: 1}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestCreate_RepositoryError(t *testing.T) {
	repo := &mockOrderRepo{err: errors.New("db down")}
	svc := NewService(repo, newProductRepo(widget(1, "10")))

	_, err := svc.Create(context.Background(), CreateRequest{
		UserID: 1,
		Items:  []ItemInput{{ProductID: 1, Quantity: 1}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
}

func TestUpdate_StatusAndItems(t *testing.T) {
	existing := &Order{
		ID:     "o-1",
		UserID: 1,
		Status: StatusPending,
		Items:  []Item{{ProductID: 1, Quantity: 1, Price: decimal.NewFromInt(10)}},
		Discounts: []Discount{
			{CouponID: 5, Amount: decimal.NewFromInt(2)},
		},
	}
	repo := &mockOrderRepo{byID: map[string]*Order{"o-1": existing}}
	svc := NewService(repo, newProductRepo(widget(1, "10"), widget(2, "30")))

	paid := StatusPaid
	o, err := svc.Update(context.Background(), "o-1", UpdateRequest{
		Status:   &paid,
		Items:    []ItemInput{{ProductID: 2, Quantity: 3}},
		SetItems: true,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPaid, o.Status)
	require.Len(t, o.Items, 1)
	assert.Equal(t, int64(2), o.Items[0].ProductID)
	// Applied discounts are kept as they were.
	require.Len(t, o.Discounts, 1)
	assert.True(t, decimal.NewFromInt(2).Equal(o.Discounts[0].Amount))
}

func TestUpdate_NotFound(t *testing.T) {
	svc := NewService(&mockOrderRepo{}, newProductRepo())

	_, err := svc.Update(context.Background(), "missing", UpdateRequest{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestList_InvalidStatus(t *testing.T) {
	svc := NewService(&mockOrderRepo{}, newProductRepo())

	_, err := svc.List(context.Background(), Filter{Status: "bogus"}, pagination.Request{Page: 1, Limit: 20})
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestList_PassesFilter(t *testing.T) {
	repo := &mockOrderRepo{}
	svc := NewService(repo, newProductRepo())

	_, err := svc.List(context.Background(), Filter{Status: StatusShipped, ID: "ab"}, pagination.Request{Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, Filter{Status: StatusShipped, ID: "ab"}, repo.filter)
}

func TestOrder_Totals(t *testing.T) {
	o := &Order{
		Items: []Item{
			{ProductID: 1, Quantity: 2, Price: decimal.RequireFromString("10.00")},
			{ProductID: 2, Quantity: 1, Price: decimal.RequireFromString("5.50")},
		},
		Discounts: []Discount{
			{CouponID: 1, Amount: decimal.RequireFromString("3.00")},
			{CouponID: 2, Amount: decimal.RequireFromString("30.00")},
		},
	}

	assert.True(t, decimal.RequireFromString("25.50").Equal(o.Subtotal()))
	assert.True(t, decimal.RequireFromString("33.00").Equal(o.DiscountTotal()))
	assert.True(t, decimal.Zero.Equal(o.Total()))
	assert.True(t, o.HasCoupon(2))
	assert.False(t, o.HasCoupon(3))
}

func TestOrder_CouponTarget(t *testing.T) {
	o := &Order{
		UserID: 4,
		Items:  []Item{{ProductID: 9, Quantity: 3, Price: decimal.NewFromInt(2)}},
		Discounts: []Discount{
			{CouponID: 11, Recursive: true},
		},
	}

	tgt := o.CouponTarget()
	assert.Equal(t, int64(4), tgt.CustomerID)
	require.Len(t, tgt.Lines, 1)
	assert.Equal(t, int64(9), tgt.Lines[0].ProductID)
	assert.Equal(t, 3, tgt.Lines[0].Quantity)
	require.Len(t, tgt.Applied, 1)
	assert.True(t, tgt.Applied[0].Recursive)
	assert.True(t, decimal.NewFromInt(6).Equal(tgt.Subtotal()))
}
