package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/fabianovilela/buymore/pkg/pagination"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// TypePercent takes a percentage off the discounted value.
	TypePercent Type = "percent"
	// TypeCurrency takes a fixed monetary amount off.
	TypeCurrency Type = "currency"
	// TypeFull waives the discounted value entirely.
	TypeFull Type = "full"
)

// Types lists every valid coupon type.
var Types = []Type{TypePercent, TypeCurrency, TypeFull}

// Valid reports whether t is a known coupon type.
func (t Type) Valid() bool {
	return lo.Contains(Types, t)
}

var (
	// ErrNotFound is returned when a coupon code or id does not resolve.
	ErrNotFound = errors.New("coupon not found")
	// ErrExpired is returned when the coupon is outside its validity window.
	ErrExpired = errors.New("coupon expired")
	// ErrNotYetValid is returned when valid_from lies in the future. It
	// matches ErrExpired with errors.Is.
	ErrNotYetValid = errors.Wrap(ErrExpired, "coupon not yet valid")
	// ErrScopeMismatch is returned when neither the order products nor the
	// customer satisfy the coupon restrictions.
	ErrScopeMismatch = errors.New("coupon does not apply to this order")
	// ErrRecursionNotAllowed is returned when the order already carries a
	// discount and the coupon may not be combined with it.
	ErrRecursionNotAllowed = errors.New("coupon cannot be combined with other discounts")
	// ErrDuplicateDiscount is returned when the coupon is already applied to the order.
	ErrDuplicateDiscount = errors.New("coupon already applied to this order")
	// ErrExhausted is returned when the coupon has no remaining uses.
	ErrExhausted = errors.New("coupon exhausted")
	// ErrCodeTaken is returned when another coupon already uses the code.
	ErrCodeTaken = errors.New("coupon code already in use")
)

// Coupon is a discount voucher that admins hand out to customers.
//
// ProductIDs and CustomerIDs restrict where the coupon may be used; an empty
// set leaves that dimension unrestricted. The usage scope is derived from the
// two sets on every read, see Scope.
type Coupon struct {
	ID          int64
	Code        string
	Discount    decimal.Decimal
	Type        Type
	ValidFrom   time.Time
	ValidUntil  *time.Time
	Quantity    int
	Recursive   bool
	ProductIDs  []int64
	CustomerIDs []int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Scope returns the derived can_use_for value of the coupon.
func (c *Coupon) Scope() Scope {
	return ScopeOf(len(c.ProductIDs) > 0, len(c.CustomerIDs) > 0)
}

// NormalizeCode canonicalizes a coupon code for storage and lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Filter narrows coupon listings.
type Filter struct {
	// Code matches coupons whose code contains the value, case-insensitively.
	Code string
}

// Repository provides persistence for coupons and their restriction sets.
type Repository interface {
	Get(ctx context.Context, id int64) (*Coupon, error)
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	List(ctx context.Context, f Filter, p pagination.Request) (pagination.Page[Coupon], error)
	Create(ctx context.Context, c *Coupon) error
	// Update rewrites c. Quantity is written only when setQuantity is true;
	// otherwise c.Quantity is refreshed from the stored row.
	Update(ctx context.Context, c *Coupon, setQuantity bool) error
	Delete(ctx context.Context, id int64) error
}
