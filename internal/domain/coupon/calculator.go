package coupon

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Compute returns the discount amount that c grants on t, rounded to cents.
//
// Product-scoped coupons discount each matching line: percent of the line
// subtotal, a fixed amount per unit, or the whole line. Other coupons
// discount the order subtotal: percent of it, a flat amount once, or all of
// it. Every contribution is clamped to the value it discounts, so the result
// never exceeds the order subtotal and is never negative.
//
// Compute assumes c is eligible for t; callers check Eligible first.
func Compute(c *Coupon, t Target) decimal.Decimal {
	subtotal := t.Subtotal()

	var amount decimal.Decimal
	if c.Scope().PerItem() {
		amount = decimal.Zero
		for _, l := range c.MatchedLines(t) {
			amount = amount.Add(clamp(lineDiscount(c, l), l.Subtotal()))
		}
	} else {
		amount = orderDiscount(c, subtotal)
	}

	return clamp(amount, subtotal).Round(2)
}

func lineDiscount(c *Coupon, l Line) decimal.Decimal {
	switch c.Type {
	case TypePercent:
		return l.Subtotal().Mul(c.Discount).Div(hundred)
	case TypeCurrency:
		return c.Discount.Mul(decimal.NewFromInt(int64(l.Quantity)))
	case TypeFull:
		return l.Subtotal()
	default:
		return decimal.Zero
	}
}

func orderDiscount(c *Coupon, subtotal decimal.Decimal) decimal.Decimal {
	switch c.Type {
	case TypePercent:
		return subtotal.Mul(c.Discount).Div(hundred)
	case TypeCurrency:
		// Flat once per order, not per unit.
		return c.Discount
	case TypeFull:
		return subtotal
	default:
		return decimal.Zero
	}
}

// clamp bounds v to [0, limit].
func clamp(v, limit decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	if limit.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(v, limit)
}
