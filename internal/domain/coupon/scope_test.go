package coupon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopeOf(t *testing.T) {
	tests := []struct {
		products  bool
		customers bool
		want      Scope
	}{
		{products: false, customers: false, want: ScopeAll},
		{products: true, customers: false, want: ScopeProduct},
		{products: false, customers: true, want: ScopeCustomer},
		{products: true, customers: true, want: ScopeProductCustomer},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, ScopeOf(tt.products, tt.customers))
		})
	}
}

func TestCoupon_ScopeFollowsRestrictionSets(t *testing.T) {
	c := newCoupon()
	assert.Equal(t, ScopeAll, c.Scope())

	c.ProductIDs = []int64{1}
	assert.Equal(t, ScopeProduct, c.Scope())

	c.CustomerIDs = []int64{2}
	assert.Equal(t, ScopeProductCustomer, c.Scope())

	c.ProductIDs = nil
	assert.Equal(t, ScopeCustomer, c.Scope())
}

func TestScope_PerItem(t *testing.T) {
	assert.True(t, ScopeProduct.PerItem())
	assert.True(t, ScopeProductCustomer.PerItem())
	assert.False(t, ScopeCustomer.PerItem())
	assert.False(t, ScopeAll.PerItem())
}
