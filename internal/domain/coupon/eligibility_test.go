package coupon

import (
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	fixedNow   = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	yesterday  = fixedNow.Add(-24 * time.Hour)
	tomorrow   = fixedNow.Add(24 * time.Hour)
	lastMonth  = fixedNow.AddDate(0, -1, 0)
	customerID = int64(7)
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newCoupon(opts ...func(*Coupon)) *Coupon {
	c := &Coupon{
		ID:        1,
		Code:      "SAVE10",
		Discount:  d("10"),
		Type:      TypePercent,
		ValidFrom: lastMonth,
		Quantity:  10,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func withProducts(ids ...int64) func(*Coupon) {
	return func(c *Coupon) { c.ProductIDs = ids }
}

func withCustomers(ids ...int64) func(*Coupon) {
	return func(c *Coupon) { c.CustomerIDs = ids }
}

func recursive(c *Coupon) { c.Recursive = true }

func target(customer int64, productIDs ...int64) Target {
	t := Target{CustomerID: customer}
	for _, id := range productIDs {
		t.Lines = append(t.Lines, Line{ProductID: id, Quantity: 1, Price: d("10.00")})
	}
	return t
}

func TestCoupon_Eligible(t *testing.T) {
	tests := []struct {
		name    string
		coupon  *Coupon
		target  Target
		wantErr error
	}{
		{
			name:   "unrestricted coupon applies to any order",
			coupon: newCoupon(),
			target: target(99, 1, 2),
		},
		{
			name:   "unrestricted coupon applies to an empty order",
			coupon: newCoupon(),
			target: Target{CustomerID: 99},
		},
		{
			name:    "expired yesterday",
			coupon:  newCoupon(func(c *Coupon) { c.ValidUntil = &yesterday }),
			target:  target(customerID, 1),
			wantErr: ErrExpired,
		},
		{
			name:    "valid_until equal to now is expired",
			coupon:  newCoupon(func(c *Coupon) { c.ValidUntil = &fixedNow }),
			target:  target(customerID, 1),
			wantErr: ErrExpired,
		},
		{
			name:    "valid_from in the future",
			coupon:  newCoupon(func(c *Coupon) { c.ValidFrom = tomorrow }),
			target:  target(customerID, 1),
			wantErr: ErrNotYetValid,
		},
		{
			name:   "valid_from equal to now is valid",
			coupon: newCoupon(func(c *Coupon) { c.ValidFrom = fixedNow }),
			target: target(customerID, 1),
		},
		{
			name:   "valid window containing now",
			coupon: newCoupon(func(c *Coupon) { c.ValidUntil = &tomorrow }),
			target: target(customerID, 1),
		},
		{
			name:    "product coupon without matching line",
			coupon:  newCoupon(withProducts(5, 6)),
			target:  target(customerID, 1, 2),
			wantErr: ErrScopeMismatch,
		},
		{
			name:   "product coupon with one matching line",
			coupon: newCoupon(withProducts(5, 6)),
			target: target(customerID, 1, 6),
		},
		{
			name:    "customer coupon for another customer",
			coupon:  newCoupon(withCustomers(1, 2)),
			target:  target(customerID, 1),
			wantErr: ErrScopeMismatch,
		},
		{
			name:   "customer coupon for listed customer",
			coupon: newCoupon(withCustomers(1, customerID)),
			target: target(customerID),
		},
		{
			name:    "non-recursive coupon on discounted order",
			coupon:  newCoupon(),
			target:  Target{CustomerID: customerID, Applied: []Applied{{CouponID: 2, Recursive: true}}},
			wantErr: ErrRecursionNotAllowed,
		},
		{
			name:   "recursive coupon on order with recursive discount",
			coupon: newCoupon(recursive),
			target: Target{CustomerID: customerID, Applied: []Applied{{CouponID: 2, Recursive: true}}},
		},
		{
			name:    "recursive coupon on order with non-recursive discount",
			coupon:  newCoupon(recursive),
			target:  Target{CustomerID: customerID, Applied: []Applied{{CouponID: 2}}},
			wantErr: ErrRecursionNotAllowed,
		},
		{
			name:    "expiry is reported before scope",
			coupon:  newCoupon(withProducts(5), func(c *Coupon) { c.ValidUntil = &yesterday }),
			target:  target(customerID, 1),
			wantErr: ErrExpired,
		},
		{
			name:    "recursion is reported before scope",
			coupon:  newCoupon(withProducts(5)),
			target:  Target{CustomerID: customerID, Applied: []Applied{{CouponID: 2}}},
			wantErr: ErrRecursionNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.coupon.Eligible(tt.target, fixedNow)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.False(t, tt.coupon.CanApply(tt.target, fixedNow))
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.coupon.CanApply(tt.target, fixedNow))
		})
	}
}

func TestCoupon_Eligible_NotYetValidMatchesExpired(t *testing.T) {
	c := newCoupon(func(c *Coupon) { c.ValidFrom = tomorrow })

	err := c.Eligible(target(customerID, 1), fixedNow)

	assert.True(t, errors.Is(err, ErrExpired))
	assert.True(t, errors.Is(err, ErrNotYetValid))
}

func TestCoupon_Eligible_ProductCustomer(t *testing.T) {
	c := newCoupon(withProducts(5), withCustomers(customerID))

	tests := []struct {
		name            string
		customer        int64
		products        []int64
		wantEligibility bool
	}{
		{name: "customer and product match", customer: customerID, products: []int64{5}, wantEligibility: true},
		{name: "customer matches, product does not", customer: customerID, products: []int64{1}},
		{name: "product matches, customer does not", customer: 99, products: []int64{5}},
		{name: "neither matches", customer: 99, products: []int64{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.CanApply(target(tt.customer, tt.products...), fixedNow)
			assert.Equal(t, tt.wantEligibility, got)
		})
	}
}

func TestCoupon_Eligible_AllScopeIgnoresOrderContents(t *testing.T) {
	c := newCoupon()
	for _, tgt := range []Target{
		{},
		target(1),
		target(2, 1, 2, 3),
		{CustomerID: 3, Lines: []Line{{ProductID: 9, Quantity: 100, Price: d("0.01")}}},
	} {
		assert.True(t, c.CanApply(tgt, fixedNow))
	}
}

func TestCoupon_Eligible_IsPure(t *testing.T) {
	c := newCoupon(withProducts(5), withCustomers(customerID))
	tgt := target(customerID, 5, 6)

	for range 3 {
		require.NoError(t, c.Eligible(tgt, fixedNow))
	}
	assert.Equal(t, []int64{5}, c.ProductIDs)
	assert.Len(t, tgt.Lines, 2)
}

func TestCoupon_MatchedLines(t *testing.T) {
	c := newCoupon(withProducts(2, 3))
	tgt := target(customerID, 1, 2, 3, 4)

	matched := c.MatchedLines(tgt)

	require.Len(t, matched, 2)
	assert.Equal(t, int64(2), matched[0].ProductID)
	assert.Equal(t, int64(3), matched[1].ProductID)
}

func TestTarget_HasCoupon(t *testing.T) {
	tgt := Target{Applied: []Applied{{CouponID: 4}}}

	assert.True(t, tgt.HasCoupon(4))
	assert.False(t, tgt.HasCoupon(5))
}
