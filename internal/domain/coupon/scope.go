package coupon

// Scope describes which orders a coupon may be used on. It is never stored:
// it follows from whether the coupon restricts products, customers, or both.
type Scope string

const (
	ScopeAll             Scope = "all"
	ScopeProduct         Scope = "product"
	ScopeCustomer        Scope = "customer"
	ScopeProductCustomer Scope = "product_customer"
)

// ScopeOf maps the two restriction facts to a scope.
func ScopeOf(hasProductRestriction, hasCustomerRestriction bool) Scope {
	switch {
	case hasProductRestriction && hasCustomerRestriction:
		return ScopeProductCustomer
	case hasProductRestriction:
		return ScopeProduct
	case hasCustomerRestriction:
		return ScopeCustomer
	default:
		return ScopeAll
	}
}

// PerItem reports whether discounts for this scope are computed on the
// matching line items rather than on the whole order.
func (s Scope) PerItem() bool {
	return s == ScopeProduct || s == ScopeProductCustomer
}
