package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabianovilela/buymore/internal/domain/coupon"
)

var fixedNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

// memStore is an in-memory TxRunner. InTx serializes transactions and works
// on a copy of the state that is swapped in only on success.
type memStore struct {
	mu      sync.Mutex
	orders  map[string]*Order
	coupons map[int64]*coupon.Coupon
	nextID  int64
	txErr   error
}

func newMemStore() *memStore {
	return &memStore{
		orders:  make(map[string]*Order),
		coupons: make(map[int64]*coupon.Coupon),
	}
}

func (m *memStore) InTx(_ context.Context, fn func(tx DiscountTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.txErr != nil {
		return m.txErr
	}

	tx := &memTx{
		orders:  make(map[string]*Order, len(m.orders)),
		coupons: make(map[int64]*coupon.Coupon, len(m.coupons)),
		nextID:  m.nextID,
	}
	for id, o := range m.orders {
		cp := *o
		cp.Discounts = append([]Discount(nil), o.Discounts...)
		tx.orders[id] = &cp
	}
	for id, c := range m.coupons {
		cp := *c
		tx.coupons[id] = &cp
	}

	if err := fn(tx); err != nil {
		return err
	}
	m.orders, m.coupons, m.nextID = tx.orders, tx.coupons, tx.nextID
	return nil
}

func (m *memStore) addOrder(o *Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

func (m *memStore) addCoupon(c *coupon.Coupon) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coupons[c.ID] = c
}

func (m *memStore) quantity(couponID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coupons[couponID].Quantity
}

func (m *memStore) discounts(orderID string) []Discount {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[orderID].Discounts
}

type memTx struct {
	orders  map[string]*Order
	coupons map[int64]*coupon.Coupon
	nextID  int64
}

func (t *memTx) OrderForUpdate(_ context.Context, id string) (*Order, error) {
	o, ok := t.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

func (t *memTx) CouponByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	for _, c := range t.coupons {
		if c.Code == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, coupon.ErrNotFound
}

func (t *memTx) InsertDiscount(_ context.Context, d *Discount) error {
	o := t.orders[d.OrderID]
	if o.HasCoupon(d.CouponID) {
		return coupon.ErrDuplicateDiscount
	}
	t.nextID++
	d.ID = t.nextID
	d.CreatedAt = fixedNow
	o.Discounts = append(o.Discounts, *d)
	return nil
}

func (t *memTx) DeleteDiscount(_ context.Context, orderID string, couponID int64) error {
	o := t.orders[orderID]
	for i, d := range o.Discounts {
		if d.CouponID == couponID {
			o.Discounts = append(o.Discounts[:i:i], o.Discounts[i+1:]...)
			return nil
		}
	}
	return ErrDiscountNotFound
}

func (t *memTx) DecrementCouponQuantity(_ context.Context, couponID int64) error {
	c, ok := t.coupons[couponID]
	if !ok || c.Quantity <= 0 {
		return coupon.ErrExhausted
	}
	c.Quantity--
	return nil
}

func (t *memTx) IncrementCouponQuantity(_ context.Context, couponID int64) error {
	if c, ok := t.coupons[couponID]; ok {
		c.Quantity++
	}
	return nil
}

// previewCoupons and previewOrders serve Preview from the committed state.
type previewCoupons struct {
	coupon.Repository
	store *memStore
}

func (p previewCoupons) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	p.store.mu.Lock()
	defer p.store.mu.Unlock()
	for _, c := range p.store.coupons {
		if c.Code == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, coupon.ErrNotFound
}

type previewOrders struct {
	Repository
	store *memStore
}

func (p previewOrders) Get(_ context.Context, id string) (*Order, error) {
	p.store.mu.Lock()
	defer p.store.mu.Unlock()
	o, ok := p.store.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

// --- Helpers ---

func newDiscountService(t *testing.T, store *memStore) *DiscountService {
	t.Helper()
	svc, err := NewDiscountService(store,
		previewCoupons{store: store},
		previewOrders{store: store},
		WithClock(func() time.Time { return fixedNow }),
	)
	require.NoError(t, err)
	return svc
}

func testOrder(id string, customerID int64) *Order {
	return &Order{
		ID:     id,
		UserID: customerID,
		Status: StatusPending,
		Items: []Item{
			{ID: 1, ProductID: 100, Quantity: 2, Price: decimal.RequireFromString("50.00")},
			{ID: 2, ProductID: 200, Quantity: 1, Price: decimal.RequireFromString("100.00")},
		},
	}
}

func testCoupon(id int64, code string, opts ...func(*coupon.Coupon)) *coupon.Coupon {
	c := &coupon.Coupon{
		ID:        id,
		Code:      code,
		Discount:  decimal.NewFromInt(10),
		Type:      coupon.TypePercent,
		ValidFrom: fixedNow.AddDate(0, 0, -1),
		Quantity:  10,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func recursive(c *coupon.Coupon) { c.Recursive = true }

func quantity(q int) func(*coupon.Coupon) {
	return func(c *coupon.Coupon) { c.Quantity = q }
}

// --- Tests ---

func TestApply_Success(t *testing.T) {
	store := newMemStore()
	store.addOrder(testOrder("o-1", 7))
	store.addCoupon(testCoupon(1, "SAVE10"))
	svc := newDiscountService(t, store)

	res, err := svc.Apply(context.Background(), " save10 ", "o-1")
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.NotNil(t, res.Discount)

	assert.True(t, decimal.RequireFromString("20.00").Equal(res.Discount.Amount))
	assert.Equal(t, "SAVE10", res.Discount.CouponCode)
	assert.NotZero(t, res.Discount.ID)
	assert.Equal(t, 9, store.quantity(1))
	assert.Len(t, store.discounts("o-1"), 1)
}

func TestApply_Rejections(t *testing.T) {
	yesterday := fixedNow.AddDate(0, 0, -1)

	tests := []struct {
		name    string
		coupon  *coupon.Coupon
		code    string
		orderID string
		wantErr error
	}{
		{
			name:    "unknown coupon",
			coupon:  testCoupon(1, "SAVE10"),
			code:    "NOPE",
			orderID: "o-1",
			wantErr: coupon.ErrNotFound,
		},
		{
			name:    "unknown order",
			coupon:  testCoupon(1, "SAVE10"),
			code:    "SAVE10",
			orderID: "missing",
			wantErr: ErrNotFound,
		},
		{
			name: "expired",
			coupon: testCoupon(1, "SAVE10", func(c *coupon.Coupon) {
				c.ValidFrom = fixedNow.AddDate(0, -1, 0)
				c.ValidUntil = &yesterday
			}),
			code:    "SAVE10",
			orderID: "o-1",
			wantErr: coupon.ErrExpired,
		},
		{
			name: "not yet valid",
			coupon: testCoupon(1, "SAVE10", func(c *coupon.Coupon) {
				c.ValidFrom = fixedNow.AddDate(0, 0, 1)
			}),
			code:    "SAVE10",
			orderID: "o-1",
			wantErr: coupon.ErrNotYetValid,
		},
		{
			name: "scope mismatch",
			coupon: testCoupon(1, "SAVE10", func(c *coupon.Coupon) {
				c.ProductIDs = []int64{999}
			}),
			code:    "SAVE10",
			orderID: "o-1",
			wantErr: coupon.ErrScopeMismatch,
		},
		{
			name:    "exhausted",
			coupon:  testCoupon(1, "SAVE10", quantity(0)),
			code:    "SAVE10",
			orderID: "o-1",
			wantErr: coupon.ErrExhausted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			store.addOrder(testOrder("o-1", 7))
			store.addCoupon(tt.coupon)
			before := tt.coupon.Quantity
			svc := newDiscountService(t, store)

			res, err := svc.Apply(context.Background(), tt.code, tt.orderID)
			require.NoError(t, err)
			assert.False(t, res.Applied)
			assert.Nil(t, res.Discount)
			assert.ErrorIs(t, res.Err, tt.wantErr)
			assert.NotEmpty(t, res.Reason)

			assert.Empty(t, store.discounts("o-1"))
			assert.Equal(t, before, store.quantity(1))
		})
	}
}

func TestApply_Duplicate(t *testing.T) {
	store := newMemStore()
	store.addOrder(testOrder("o-1", 7))
	store.addCoupon(testCoupon(1, "SAVE10", recursive))
	svc := newDiscountService(t, store)
	ctx := context.Background()

	first, err := svc.Apply(ctx, "SAVE10", "o-1")
	require.NoError(t, err)
	require.True(t, first.Applied)

	second, err := svc.Apply(ctx, "save10", "o-1")
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.ErrorIs(t, second.Err, coupon.ErrDuplicateDiscount)

	assert.Len(t, store.discounts("o-1"), 1)
	assert.Equal(t, 9, store.quantity(1))
}

func TestApply_RecursionLaw(t *testing.T) {
	tests := []struct {
		name            string
		firstRecursive  bool
		secondRecursive bool
		wantApplied     bool
	}{
		{name: "non-recursive first blocks recursive second", firstRecursive: false, secondRecursive: true},
		{name: "non-recursive first blocks non-recursive second", firstRecursive: false, secondRecursive: false},
		{name: "recursive first blocks non-recursive second", firstRecursive: true, secondRecursive: false},
		{name: "recursive first allows recursive second", firstRecursive: true, secondRecursive: true, wantApplied: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			store.addOrder(testOrder("o-1", 7))
			store.addCoupon(testCoupon(1, "FIRST", func(c *coupon.Coupon) { c.Recursive = tt.firstRecursive }))
			store.addCoupon(testCoupon(2, "SECOND", func(c *coupon.Coupon) { c.Recursive = tt.secondRecursive }))
			svc := newDiscountService(t, store)
			ctx := context.Background()

			first, err := svc.Apply(ctx, "FIRST", "o-1")
			require.NoError(t, err)
			require.True(t, first.Applied)

			second, err := svc.Apply(ctx, "SECOND", "o-1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantApplied, second.Applied)
			if !tt.wantApplied {
				assert.ErrorIs(t, second.Err, coupon.ErrRecursionNotAllowed)
				assert.Equal(t, 10, store.quantity(2))
			}
		})
	}
}

func TestApply_InfrastructureError(t *testing.T) {
	store := newMemStore()
	store.txErr = errors.New("connection reset")
	svc := newDiscountService(t, store)

	res, err := svc.Apply(context.Background(), "SAVE10", "o-1")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestApply_LastUseRace(t *testing.T) {
	store := newMemStore()
	store.addCoupon(testCoupon(1, "LAST", quantity(1)))
	const n = 20
	for i := range n {
		store.addOrder(testOrder(orderName(i), 7))
	}
	svc := newDiscountService(t, store)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		applied   int
		exhausted int
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Apply(context.Background(), "LAST", orderName(i))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if res.Applied {
				applied++
			} else if errors.Is(res.Err, coupon.ErrExhausted) {
				exhausted++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.Equal(t, n-1, exhausted)
	assert.Equal(t, 0, store.quantity(1))
}

func TestLedgerConservation(t *testing.T) {
	const q = 5
	store := newMemStore()
	store.addCoupon(testCoupon(1, "LEDGER", quantity(q)))
	for i := range 4 {
		store.addOrder(testOrder(orderName(i), 7))
	}
	svc := newDiscountService(t, store)
	ctx := context.Background()

	applies := 0
	for i := range 4 {
		res, err := svc.Apply(ctx, "LEDGER", orderName(i))
		require.NoError(t, err)
		require.True(t, res.Applied)
		applies++
		assert.GreaterOrEqual(t, store.quantity(1), 0)
	}

	removes := 0
	for i := range 2 {
		require.NoError(t, svc.Remove(ctx, orderName(i), 1))
		removes++
	}

	// A second apply on a cleared order counts as a new use.
	res, err := svc.Apply(ctx, "LEDGER", orderName(0))
	require.NoError(t, err)
	require.True(t, res.Applied)
	applies++

	assert.Equal(t, q-applies+removes, store.quantity(1))
}

func TestRemove(t *testing.T) {
	store := newMemStore()
	store.addOrder(testOrder("o-1", 7))
	store.addCoupon(testCoupon(1, "SAVE10"))
	svc := newDiscountService(t, store)
	ctx := context.Background()

	res, err := svc.Apply(ctx, "SAVE10", "o-1")
	require.NoError(t, err)
	require.True(t, res.Applied)

	require.NoError(t, svc.Remove(ctx, "o-1", 1))
	assert.Empty(t, store.discounts("o-1"))
	assert.Equal(t, 10, store.quantity(1))

	// A non-recursive coupon can be applied again once the order is clear.
	res, err = svc.Apply(ctx, "SAVE10", "o-1")
	require.NoError(t, err)
	assert.True(t, res.Applied)
}

func TestRemove_NotFound(t *testing.T) {
	store := newMemStore()
	store.addOrder(testOrder("o-1", 7))
	store.addCoupon(testCoupon(1, "SAVE10"))
	svc := newDiscountService(t, store)
	ctx := context.Background()

	err := svc.Remove(ctx, "o-1", 1)
	require.ErrorIs(t, err, ErrDiscountNotFound)
	assert.Equal(t, 10, store.quantity(1))

	err = svc.Remove(ctx, "missing", 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPreview(t *testing.T) {
	store := newMemStore()
	store.addOrder(testOrder("o-1", 7))
	store.addCoupon(testCoupon(1, "ITEMS", func(c *coupon.Coupon) {
		c.Type = coupon.TypeCurrency
		c.Discount = decimal.NewFromInt(5)
		c.ProductIDs = []int64{100}
	}))
	store.addCoupon(testCoupon(2, "EMPTY", quantity(0)))
	svc := newDiscountService(t, store)
	ctx := context.Background()

	p, err := svc.Preview(ctx, "items", "o-1")
	require.NoError(t, err)
	assert.True(t, p.Eligible)
	assert.True(t, decimal.NewFromInt(10).Equal(p.Amount))
	assert.Empty(t, store.discounts("o-1"))
	assert.Equal(t, 10, store.quantity(1))

	p, err = svc.Preview(ctx, "EMPTY", "o-1")
	require.NoError(t, err)
	assert.False(t, p.Eligible)
	assert.ErrorIs(t, p.Err, coupon.ErrExhausted)

	p, err = svc.Preview(ctx, "ITEMS", "missing")
	require.NoError(t, err)
	assert.False(t, p.Eligible)
	assert.ErrorIs(t, p.Err, ErrNotFound)
}

func orderName(i int) string {
	return "order-" + string(rune('a'+i))
}
