package domain

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPurchase() *PurchaseProcess {
	return &PurchaseProcess{
		SessionID: "session-1",
		SiteID:    "site-1",
		Currency:  "USD",
		State:     PurchaseStateInitialized,
		UserInfo:  UserInfo{Email: "shopper@example.com", ZipCode: "H2X1Y4"},
		PaymentInfo: &PaymentInfo{
			Kind: PaymentKindNewCard,
			Type: PaymentTypeCC,
			Card: &CardIdentity{First6: "411111", Last4: "1111", ExpMonth: 12, ExpYear: 2030},
		},
		Items: []*InitializedItem{
			{ID: "main", SiteID: "site-1", ChargeInfo: ChargeInfo{InitialAmount: decimal.RequireFromString("29.99")}},
			{ID: "xsell-1", SiteID: "site-2", IsCrossSale: true, Selected: true, ChargeInfo: ChargeInfo{InitialAmount: decimal.RequireFromString("9.99")}},
			{ID: "xsell-2", SiteID: "site-3", IsCrossSale: true, ChargeInfo: ChargeInfo{InitialAmount: decimal.RequireFromString("4.99")}},
		},
	}
}

// TestPurchaseProcess_Transitions tests the state machine table
func TestPurchaseProcess_Transitions(t *testing.T) {
	tests := []struct {
		from    PurchaseState
		to      PurchaseState
		allowed bool
	}{
		{PurchaseStateInitialized, PurchaseStateValidating, true},
		{PurchaseStateInitialized, PurchaseStateProcessing, false},
		{PurchaseStateValidating, PurchaseStateProcessing, true},
		{PurchaseStateValidating, PurchaseStateBlocked, true},
		{PurchaseStateValidating, PurchaseStateAborted, true},
		{PurchaseStateProcessing, PurchaseStateProcessed, true},
		{PurchaseStateProcessing, PurchaseStatePending, true},
		{PurchaseStateProcessing, PurchaseStatePendingThirdParty, true},
		{PurchaseStateProcessing, PurchaseStateValidating, false},
		{PurchaseStatePending, PurchaseStateProcessing, true},
		{PurchaseStatePending, PurchaseStateValidating, false},
		{PurchaseStateAborted, PurchaseStateValidating, true},
		{PurchaseStateAborted, PurchaseStateProcessing, false},
		{PurchaseStateProcessed, PurchaseStateProcessing, false},
		{PurchaseStateBlocked, PurchaseStateValidating, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_to_%s", tt.from, tt.to), func(t *testing.T) {
			p := &PurchaseProcess{SessionID: "s", State: tt.from}
			err := p.TransitionTo(tt.to)
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, tt.to, p.State)
				return
			}
			require.Error(t, err)
			assert.True(t, IsStateError(err))
			assert.Equal(t, tt.from, p.State)
		})
	}
}

// TestPurchaseProcess_TerminalStatesReportAlreadyProcessed tests the error for terminal states
func TestPurchaseProcess_TerminalStatesReportAlreadyProcessed(t *testing.T) {
	for _, state := range []PurchaseState{PurchaseStateProcessed, PurchaseStateBlocked} {
		p := &PurchaseProcess{State: state}
		err := p.TransitionTo(PurchaseStateValidating)
		assert.ErrorIs(t, err, ErrPurchaseAlreadyProcessed)
		assert.True(t, state.IsTerminal())
	}
	assert.False(t, PurchaseStateAborted.IsTerminal())
	assert.True(t, PurchaseStatePendingThirdParty.IsPending())
}

// TestPurchaseProcess_Items tests main item and cross-sale lookups
func TestPurchaseProcess_Items(t *testing.T) {
	p := newTestPurchase()

	assert.Equal(t, "main", p.MainItem().ID)
	assert.Len(t, p.CrossSales(), 2)
	selected := p.SelectedCrossSales()
	require.Len(t, selected, 1)
	assert.Equal(t, "xsell-1", selected[0].ID)
	assert.Equal(t, "xsell-2", p.FindItem("xsell-2").ID)
	assert.Nil(t, p.FindItem("missing"))
}

// TestPurchaseProcess_Validate tests business invariants
func TestPurchaseProcess_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *PurchaseProcess)
		wantErr error
	}{
		{"valid", func(p *PurchaseProcess) {}, nil},
		{"missing email", func(p *PurchaseProcess) { p.UserInfo.Email = "" }, ErrValidationMissingField},
		{"bad currency", func(p *PurchaseProcess) { p.Currency = "US" }, ErrValidationFailed},
		{"missing payment info", func(p *PurchaseProcess) { p.PaymentInfo = nil }, ErrValidationMissingField},
		{"empty payment kind", func(p *PurchaseProcess) { p.PaymentInfo.Kind = "" }, ErrValidationFailed},
		{"unknown payment kind", func(p *PurchaseProcess) { p.PaymentInfo.Kind = "crypto" }, ErrValidationFailed},
		{"negative amount", func(p *PurchaseProcess) {
			p.Items[0].ChargeInfo.InitialAmount = decimal.NewFromInt(-1)
		}, ErrValidationAmountInvalid},
		{"two main items", func(p *PurchaseProcess) { p.Items[1].IsCrossSale = false }, ErrValidationFailed},
		{"no main item", func(p *PurchaseProcess) { p.Items = p.Items[1:] }, ErrValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPurchase()
			tt.mutate(p)
			err := p.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsValidationError(err))
		})
	}
}

// TestPurchaseProcess_BlacklistLimit tests the blacklist check cap
func TestPurchaseProcess_BlacklistLimit(t *testing.T) {
	p := newTestPurchase()

	p.RecordBlacklistCheck(true)
	assert.False(t, p.BlacklistLimitReached())

	p.RecordBlacklistCheck(true)
	assert.Equal(t, MaxBlacklistCheckAttempts, p.BlacklistAttempts)
	assert.True(t, p.BlacklistLimitReached())

	p.RecordBlacklistCheck(false)
	assert.False(t, p.BlacklistLimitReached())
}

// TestPurchaseProcess_BillerSubmits tests per-biller submit accounting
func TestPurchaseProcess_BillerSubmits(t *testing.T) {
	p := newTestPurchase()
	assert.Equal(t, 0, p.SubmitsFor("rocketgate"))

	p.RecordBillerSubmit("rocketgate")
	p.RecordBillerSubmit("rocketgate")
	assert.Equal(t, 2, p.SubmitsFor("rocketgate"))
}

// TestPurchaseProcess_AssignIdentifiers tests id assignment on approval
func TestPurchaseProcess_AssignIdentifiers(t *testing.T) {
	p := newTestPurchase()
	p.Items[0].Transactions.Add(&Transaction{ID: "t1", State: TransactionStateApproved})
	p.Items[1].Transactions.Add(&Transaction{ID: "t2", State: TransactionStateDeclined})
	p.MemberID = "existing-member"

	n := 0
	p.AssignIdentifiers(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	})

	assert.Equal(t, "id-1", p.Items[0].SubscriptionID)
	assert.Empty(t, p.Items[1].SubscriptionID)
	assert.Equal(t, "id-2", p.PurchaseID)
	assert.Equal(t, "existing-member", p.MemberID)
}
