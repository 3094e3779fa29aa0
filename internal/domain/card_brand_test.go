package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestClassifyCardBrand tests prefix classification including overlapping ranges
func TestClassifyCardBrand(t *testing.T) {
	tests := []struct {
		number   string
		expected CardBrand
	}{
		{"4111111111111111", CardBrandVisa},
		{"4111 1111 1111 1111", CardBrandVisa},
		{"5105105105105100", CardBrandMastercard},
		{"2223000048400011", CardBrandMastercard},
		{"378282246310005", CardBrandAmex},
		{"341111111111111", CardBrandAmex},
		{"6011111111111117", CardBrandDiscover},
		{"6221260000000000", CardBrandDiscover},
		{"6500000000000002", CardBrandDiscover},
		{"6200000000000005", CardBrandUnionPay},
		{"3530111333300000", CardBrandJCB},
		{"30569309025904", CardBrandDiners},
		{"36000000000008", CardBrandDiners},
		{"6759649826438453", CardBrandMaestro},
		{"5018000000000009", CardBrandMaestro},
		{"411111", CardBrandVisa},
		{"9999999999999999", CardBrandUnknown},
		{"", CardBrandUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.number, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyCardBrand(tt.number))
		})
	}
}

// TestBrandPolicy_Allows tests per-site brand acceptance
func TestBrandPolicy_Allows(t *testing.T) {
	policy := NewBrandPolicy(map[string][]string{" VISA ": {"site-1", "site-2"}})

	assert.False(t, policy.Allows(CardBrandVisa, "site-1"))
	assert.False(t, policy.Allows(CardBrandVisa, "site-2"))
	assert.True(t, policy.Allows(CardBrandVisa, "site-3"))
	assert.True(t, policy.Allows(CardBrandMastercard, "site-1"))
	assert.True(t, policy.Allows(CardBrandUnknown, "site-1"))
	assert.True(t, BrandPolicy(nil).Allows(CardBrandVisa, "site-1"))
}
