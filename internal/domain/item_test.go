package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

// TestInitializedItem_Validate tests item amount rules
func TestInitializedItem_Validate(t *testing.T) {
	rebill := decimal.RequireFromString("19.99")
	zero := decimal.Zero

	tests := []struct {
		name    string
		item    InitializedItem
		wantErr error
	}{
		{"paid item", InitializedItem{ID: "i", SiteID: "s", ChargeInfo: ChargeInfo{InitialAmount: decimal.NewFromInt(10)}}, nil},
		{"free trial", InitializedItem{ID: "i", SiteID: "s", IsTrial: true}, nil},
		{"zero without trial", InitializedItem{ID: "i", SiteID: "s"}, ErrValidationAmountInvalid},
		{"missing id", InitializedItem{SiteID: "s"}, ErrValidationMissingField},
		{"missing site", InitializedItem{ID: "i"}, ErrValidationMissingField},
		{"recurring", InitializedItem{ID: "i", SiteID: "s", ChargeInfo: ChargeInfo{
			InitialAmount: decimal.NewFromInt(1), RebillAmount: &rebill, RebillDays: 30,
		}}, nil},
		{"rebill without period", InitializedItem{ID: "i", SiteID: "s", ChargeInfo: ChargeInfo{
			InitialAmount: decimal.NewFromInt(1), RebillAmount: &rebill,
		}}, ErrValidationAmountInvalid},
		{"zero rebill", InitializedItem{ID: "i", SiteID: "s", ChargeInfo: ChargeInfo{
			InitialAmount: decimal.NewFromInt(1), RebillAmount: &zero, RebillDays: 30,
		}}, ErrValidationAmountInvalid},
		{"negative tax", InitializedItem{ID: "i", SiteID: "s",
			ChargeInfo: ChargeInfo{InitialAmount: decimal.NewFromInt(1)},
			TaxInfo:    TaxInfo{InitialAmount: decimal.NewFromInt(-1)},
		}, ErrValidationAmountInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.item.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// TestInitializedItem_InitialTotal tests tax inclusion
func TestInitializedItem_InitialTotal(t *testing.T) {
	item := InitializedItem{
		ChargeInfo: ChargeInfo{InitialAmount: decimal.RequireFromString("10.00")},
		TaxInfo:    TaxInfo{InitialAmount: decimal.RequireFromString("1.50")},
	}
	assert.True(t, decimal.RequireFromString("11.50").Equal(item.InitialTotal()))
}
