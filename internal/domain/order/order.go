package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/fabianovilela/buymore/internal/domain/coupon"
	"github.com/fabianovilela/buymore/pkg/pagination"
)

var (
	// ErrNotFound is returned when an order id does not resolve.
	ErrNotFound = errors.New("order not found")
	// ErrDiscountNotFound is returned when the order carries no discount from
	// the given coupon.
	ErrDiscountNotFound = errors.New("discount not found")
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCancelled Status = "cancelled"
	StatusShipped   Status = "shipped"
	StatusPaid      Status = "paid"
	StatusFinished  Status = "finished"
)

// Statuses lists every valid order status.
var Statuses = []Status{StatusPending, StatusCancelled, StatusShipped, StatusPaid, StatusFinished}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return lo.Contains(Statuses, s)
}

// Order is a customer order together with its line items and applied discounts.
type Order struct {
	ID        string
	UserID    int64
	Status    Status
	Items     []Item
	Discounts []Discount
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item is a single order line.
type Item struct {
	ID        int64
	ProductID int64
	Quantity  int
	Price     decimal.Decimal
}

// Subtotal returns quantity * unit price.
func (i Item) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Discount links an order to the coupon that produced it.
type Discount struct {
	ID         int64
	OrderID    string
	CouponID   int64
	CouponCode string
	// Recursive mirrors the coupon flag so combination checks need no extra lookup.
	Recursive bool
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// Subtotal returns the sum of all item subtotals.
func (o *Order) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.Subtotal())
	}
	return sum
}

// DiscountTotal returns the sum of all applied discount amounts.
func (o *Order) DiscountTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, d := range o.Discounts {
		sum = sum.Add(d.Amount)
	}
	return sum
}

// Total returns the subtotal minus discounts, floored at zero.
func (o *Order) Total() decimal.Decimal {
	total := o.Subtotal().Sub(o.DiscountTotal())
	if total.IsNegative() {
		return decimal.Zero
	}
	return total.Round(2)
}

// HasCoupon reports whether a discount from couponID is applied.
func (o *Order) HasCoupon(couponID int64) bool {
	return lo.ContainsBy(o.Discounts, func(d Discount) bool { return d.CouponID == couponID })
}

// CouponTarget projects the order onto the view the coupon engine evaluates.
func (o *Order) CouponTarget() coupon.Target {
	return coupon.Target{
		CustomerID: o.UserID,
		Lines: lo.Map(o.Items, func(it Item, _ int) coupon.Line {
			return coupon.Line{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price}
		}),
		Applied: lo.Map(o.Discounts, func(d Discount, _ int) coupon.Applied {
			return coupon.Applied{CouponID: d.CouponID, Recursive: d.Recursive}
		}),
	}
}

// Filter narrows order listings.
type Filter struct {
	Status Status
	// ID matches orders whose id contains the value.
	ID string
}

// Repository defines persistence operations for orders.
//
// Get loads the order with items and discounts. Update replaces the status
// and the item set. Delete removes the order, its items and discounts, and
// returns one use to every coupon that discounted it.
type Repository interface {
	Get(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, f Filter, p pagination.Request) (pagination.Page[Order], error)
	Create(ctx context.Context, o *Order) error
	Update(ctx context.Context, o *Order) error
	Delete(ctx context.Context, id string) error
}
