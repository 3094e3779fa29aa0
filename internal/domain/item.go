package domain

import (
	"github.com/shopspring/decimal"
)

// ChargeInfo holds the amounts billed for an item
type ChargeInfo struct {
	InitialAmount decimal.Decimal  `json:"initial_amount"`
	RebillAmount  *decimal.Decimal `json:"rebill_amount,omitempty"`
	InitialDays   int              `json:"initial_days"`
	RebillDays    int              `json:"rebill_days,omitempty"`
}

// IsRecurring returns true if the item rebills after the initial period
func (c ChargeInfo) IsRecurring() bool {
	return c.RebillAmount != nil && c.RebillDays > 0
}

// TaxInfo holds the tax applied on top of the charge amounts
type TaxInfo struct {
	InitialAmount decimal.Decimal  `json:"initial_amount"`
	RebillAmount  *decimal.Decimal `json:"rebill_amount,omitempty"`
	TaxRate       decimal.Decimal  `json:"tax_rate"`
	TaxType       string           `json:"tax_type,omitempty"`
	DisplayName   string           `json:"display_name,omitempty"`
}

// InitializedItem is one purchasable line of a purchase process: the main item or a cross-sale
type InitializedItem struct {
	ChargeInfo     ChargeInfo            `json:"charge_info"`
	TaxInfo        TaxInfo               `json:"tax_info"`
	Transactions   TransactionCollection `json:"transactions"`
	ID             string                `json:"id"`
	SiteID         string                `json:"site_id"`
	BundleID       string                `json:"bundle_id"`
	AddonID        string                `json:"addon_id"`
	SubscriptionID string                `json:"subscription_id,omitempty"`
	NSFSupported   bool                  `json:"nsf_supported"`
	IsTrial        bool                  `json:"is_trial"`
	IsCrossSale    bool                  `json:"is_cross_sale"`
	Selected       bool                  `json:"selected"`
}

// LastTransaction returns the outcome of the most recent attempt
func (i *InitializedItem) LastTransaction() *Transaction {
	return i.Transactions.Last()
}

// IsApproved returns true if any attempt for the item approved
func (i *InitializedItem) IsApproved() bool {
	return i.Transactions.HasApproved()
}

// InitialTotal returns the initial charge including tax
func (i *InitializedItem) InitialTotal() decimal.Decimal {
	return i.ChargeInfo.InitialAmount.Add(i.TaxInfo.InitialAmount)
}

// Validate checks the amounts and identifiers the transaction service needs
func (i *InitializedItem) Validate() error {
	if i.ID == "" {
		return ErrValidationMissingField.WithDetail("field", "item_id")
	}
	if i.SiteID == "" {
		return ErrValidationMissingField.WithDetail("field", "site_id").WithDetail("item_id", i.ID)
	}
	if i.ChargeInfo.InitialAmount.IsNegative() {
		return ErrValidationAmountInvalid.WithDetail("item_id", i.ID)
	}
	// zero is reserved for free trials
	if i.ChargeInfo.InitialAmount.IsZero() && !i.IsTrial {
		return ErrValidationAmountInvalid.WithDetail("item_id", i.ID)
	}
	if i.TaxInfo.InitialAmount.IsNegative() {
		return ErrValidationAmountInvalid.WithDetail("item_id", i.ID).WithDetail("field", "tax")
	}
	if i.ChargeInfo.RebillAmount != nil {
		if !i.ChargeInfo.RebillAmount.IsPositive() || i.ChargeInfo.RebillDays <= 0 {
			return ErrValidationAmountInvalid.WithDetail("item_id", i.ID).WithDetail("field", "rebill")
		}
	}
	return nil
}
