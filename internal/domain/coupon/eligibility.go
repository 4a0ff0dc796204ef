package coupon

import (
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Line is an order line item as seen by the coupon engine.
type Line struct {
	ProductID int64
	Quantity  int
	Price     decimal.Decimal
}

// Subtotal returns quantity * unit price.
func (l Line) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Applied describes a discount already attached to the target order.
type Applied struct {
	CouponID  int64
	Recursive bool
}

// Target is the order a coupon is evaluated against.
type Target struct {
	CustomerID int64
	Lines      []Line
	Applied    []Applied
}

// Subtotal returns the sum of all line subtotals.
func (t Target) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range t.Lines {
		sum = sum.Add(l.Subtotal())
	}
	return sum
}

// HasCoupon reports whether a discount from the given coupon is already applied.
func (t Target) HasCoupon(couponID int64) bool {
	return lo.ContainsBy(t.Applied, func(a Applied) bool { return a.CouponID == couponID })
}

// Eligible checks whether c may be applied to t at the given instant. It
// returns nil when eligible, otherwise the first failing check: the validity
// window (ErrExpired, ErrNotYetValid), then combination with existing
// discounts (ErrRecursionNotAllowed), then product/customer scope
// (ErrScopeMismatch).
//
// Eligible does not consider remaining quantity or duplicates; those are
// enforced by the apply transaction.
func (c *Coupon) Eligible(t Target, now time.Time) error {
	if now.Before(c.ValidFrom) {
		return ErrNotYetValid
	}
	if c.ValidUntil != nil && !now.Before(*c.ValidUntil) {
		return ErrExpired
	}

	if len(t.Applied) > 0 && !c.combinable(t.Applied) {
		return ErrRecursionNotAllowed
	}

	if !c.inScope(t) {
		return ErrScopeMismatch
	}
	return nil
}

// CanApply is the boolean form of Eligible.
func (c *Coupon) CanApply(t Target, now time.Time) bool {
	return c.Eligible(t, now) == nil
}

// combinable requires the new coupon and every coupon already applied to be
// recursive.
func (c *Coupon) combinable(applied []Applied) bool {
	if !c.Recursive {
		return false
	}
	return lo.EveryBy(applied, func(a Applied) bool { return a.Recursive })
}

func (c *Coupon) inScope(t Target) bool {
	switch c.Scope() {
	case ScopeProduct:
		return c.matchesProducts(t)
	case ScopeCustomer:
		return c.matchesCustomer(t)
	case ScopeProductCustomer:
		return c.matchesCustomer(t) && c.matchesProducts(t)
	default:
		return true
	}
}

func (c *Coupon) matchesCustomer(t Target) bool {
	return lo.Contains(c.CustomerIDs, t.CustomerID)
}

func (c *Coupon) matchesProducts(t Target) bool {
	return len(c.MatchedLines(t)) > 0
}

// MatchedLines returns the lines whose product is in the coupon's product set.
func (c *Coupon) MatchedLines(t Target) []Line {
	return lo.Filter(t.Lines, func(l Line, _ int) bool {
		return lo.Contains(c.ProductIDs, l.ProductID)
	})
}
