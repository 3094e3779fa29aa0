package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPaymentData_Info tests that only sanitized card data survives
func TestPaymentData_Info(t *testing.T) {
	t.Run("new card", func(t *testing.T) {
		data := PaymentData{
			Kind:       PaymentKindNewCard,
			Type:       PaymentTypeCC,
			CardNumber: "4111-1111-1111-1234",
			CVV:        "123",
			ExpMonth:   11,
			ExpYear:    2031,
		}

		info := data.Info()
		require.NotNil(t, info.Card)
		assert.Equal(t, CardIdentity{First6: "411111", Last4: "1234", ExpMonth: 11, ExpYear: 2031}, *info.Card)
		assert.True(t, info.IsCard())
		assert.False(t, info.UsesExistingCard())
		assert.Equal(t, "411111", data.Bin())
	})

	t.Run("existing card", func(t *testing.T) {
		data := PaymentData{Kind: PaymentKindExistingCard, Type: PaymentTypeCC, TemplateID: "tpl-1", First6: "510510", Last4: "5100"}

		info := data.Info()
		assert.True(t, info.UsesExistingCard())
		assert.Equal(t, "tpl-1", info.TemplateID)
		assert.Equal(t, "510510", info.Card.First6)
	})

	t.Run("cheque", func(t *testing.T) {
		data := PaymentData{Kind: PaymentKindCheque, Type: PaymentTypeChecks, RoutingNumber: "999999999", AccountNumber: "000123456789"}

		info := data.Info()
		assert.True(t, info.IsCheque())
		assert.Nil(t, info.Card)
		assert.Equal(t, "6789", info.ChequeLast4)
		assert.Empty(t, data.Bin())
	})
}

// TestUserInfo_Merge tests that empty fields never overwrite stored data
func TestUserInfo_Merge(t *testing.T) {
	u := UserInfo{Email: "old@example.com", ZipCode: "H2X", Country: "CA"}
	u.Merge(UserInfo{Email: "new@example.com", City: "Montreal"})

	assert.Equal(t, UserInfo{Email: "new@example.com", ZipCode: "H2X", Country: "CA", City: "Montreal"}, u)
}
