package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestTransaction_AllowsRerouting tests which outcomes move on to the next routing row
func TestTransaction_AllowsRerouting(t *testing.T) {
	tests := []struct {
		name     string
		tx       *Transaction
		expected bool
	}{
		{"approved stops", &Transaction{State: TransactionStateApproved}, false},
		{"pending stops", &Transaction{State: TransactionStatePending}, false},
		{"aborted stops", &Transaction{State: TransactionStateAborted}, false},
		{"unclassified decline reroutes", &Transaction{State: TransactionStateDeclined}, true},
		{
			"soft decline reroutes",
			&Transaction{State: TransactionStateDeclined, ErrorClassification: &ErrorClassification{ErrorType: DeclineTypeSoft}},
			true,
		},
		{
			"hard decline stops",
			&Transaction{State: TransactionStateDeclined, ErrorClassification: &ErrorClassification{ErrorType: DeclineTypeHard}},
			false,
		},
		{
			"nsf decline stops",
			&Transaction{State: TransactionStateDeclined, ErrorClassification: &ErrorClassification{ErrorType: DeclineTypeSoft, NSF: true}},
			false,
		},
		{"nil transaction", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.tx.AllowsRerouting())
		})
	}
}

// TestTransaction_StatePredicates tests the state helpers including nil safety
func TestTransaction_StatePredicates(t *testing.T) {
	var nilTx *Transaction
	assert.False(t, nilTx.IsApproved())
	assert.False(t, nilTx.IsPending())
	assert.False(t, nilTx.IsNSF())
	assert.Equal(t, 0, nilTx.ThreeDVersion())

	tx := &Transaction{State: TransactionStatePending, ThreeD: &ThreeDSecure{Version: 2}}
	assert.True(t, tx.IsPending())
	assert.Equal(t, 2, tx.ThreeDVersion())
}

// TestTransactionCollection tests the append-only attempt history
func TestTransactionCollection(t *testing.T) {
	var c TransactionCollection
	assert.Nil(t, c.Last())
	assert.False(t, c.HasApproved())

	c.Add(&Transaction{ID: "t1", State: TransactionStateDeclined, BillerName: "rocketgate"})
	c.Add(&Transaction{ID: "t2", State: TransactionStateApproved, BillerName: "rocketgate"})
	c.Add(&Transaction{ID: "t3", State: TransactionStateDeclined, BillerName: "netbilling"})

	assert.Len(t, c, 3)
	assert.Equal(t, "t3", c.Last().ID)
	assert.True(t, c.HasApproved())
	assert.Equal(t, 2, c.CountByBiller("rocketgate"))
	assert.Equal(t, 0, c.CountByBiller("epoch"))
}
