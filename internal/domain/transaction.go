package domain

import (
	"time"
)

// TransactionState is the outcome reported by the transaction service for one attempt
type TransactionState string

const (
	TransactionStateApproved TransactionState = "approved"
	TransactionStateDeclined TransactionState = "declined"
	TransactionStateAborted  TransactionState = "aborted"
	TransactionStatePending  TransactionState = "pending" // 3DS challenge or third-party redirect outstanding
)

// DeclineType is the hard/soft decline taxonomy attached to declined transactions
type DeclineType string

const (
	DeclineTypeSoft DeclineType = "soft"
	DeclineTypeHard DeclineType = "hard"
)

// ErrorClassification describes why a transaction did not approve
type ErrorClassification struct {
	GroupDecline      string      `json:"group_decline"`
	ErrorType         DeclineType `json:"error_type"`
	GroupMessage      string      `json:"group_message"`
	RecommendedAction string      `json:"recommended_action"`
	NSF               bool        `json:"nsf"`
	FraudRelated      bool        `json:"fraud_related"` // stolen, lost, pick-up or suspected fraud
}

// IsHard reports a decline the issuer will not reverse on another route
func (c *ErrorClassification) IsHard() bool {
	return c != nil && c.ErrorType == DeclineTypeHard
}

// ThreeDSecure carries the 3-D-Secure markers returned with a transaction
type ThreeDSecure struct {
	Version             int    `json:"version"`
	Frictionless        bool   `json:"frictionless"`
	AuthURL             string `json:"auth_url,omitempty"`
	PaReq               string `json:"pareq,omitempty"`
	DeviceCollectionURL string `json:"device_collection_url,omitempty"`
}

// Transaction is one attempt recorded against an item. Immutable once created.
type Transaction struct {
	CreatedAt            time.Time            `json:"created_at"`
	ThreeD               *ThreeDSecure        `json:"three_d,omitempty"`
	ErrorClassification  *ErrorClassification `json:"error_classification,omitempty"`
	SuccessfulBinRouting *BinRouting          `json:"successful_bin_routing,omitempty"`
	ID                   string               `json:"id"`
	State                TransactionState     `json:"state"`
	BillerName           string               `json:"biller_name"`
	RedirectURL          string               `json:"redirect_url,omitempty"` // third-party biller page
	RoutingCode          string               `json:"routing_code,omitempty"`
	PaymentTemplateID    string               `json:"payment_template_id,omitempty"` // reusable card token issued on approval
}

// IsApproved returns true if the transaction was approved by the biller
func (t *Transaction) IsApproved() bool {
	return t != nil && t.State == TransactionStateApproved
}

// IsPending returns true if the shopper must complete an external step
func (t *Transaction) IsPending() bool {
	return t != nil && t.State == TransactionStatePending
}

// IsDeclined returns true if the biller declined the attempt
func (t *Transaction) IsDeclined() bool {
	return t != nil && t.State == TransactionStateDeclined
}

// IsNSF returns true for a decline classified as non-sufficient funds
func (t *Transaction) IsNSF() bool {
	return t != nil && t.ErrorClassification != nil && t.ErrorClassification.NSF
}

// ThreeDVersion returns the 3DS version used, 0 when 3DS was not involved
func (t *Transaction) ThreeDVersion() int {
	if t == nil || t.ThreeD == nil {
		return 0
	}
	return t.ThreeD.Version
}

// AllowsRerouting reports whether the next bin-routing row may be tried after this outcome.
// Only soft declines are rerouted; NSF declines are not, another acquirer does not add funds.
func (t *Transaction) AllowsRerouting() bool {
	if !t.IsDeclined() {
		return false
	}
	if t.ErrorClassification == nil {
		return true
	}
	return !t.ErrorClassification.IsHard() && !t.ErrorClassification.NSF
}

// TransactionCollection is the append-only attempt history of one item
type TransactionCollection []*Transaction

// Add appends an attempt
func (c *TransactionCollection) Add(tx *Transaction) {
	*c = append(*c, tx)
}

// Last returns the most recent attempt, nil if none
func (c TransactionCollection) Last() *Transaction {
	if len(c) == 0 {
		return nil
	}
	return c[len(c)-1]
}

// HasApproved reports whether any attempt approved
func (c TransactionCollection) HasApproved() bool {
	for _, tx := range c {
		if tx.IsApproved() {
			return true
		}
	}
	return false
}

// CountByBiller counts attempts submitted to the given biller
func (c TransactionCollection) CountByBiller(billerName string) int {
	n := 0
	for _, tx := range c {
		if tx.BillerName == billerName {
			n++
		}
	}
	return n
}
