package domain

import (
	"fmt"
	"time"
)

// MaxBlacklistCheckAttempts is the number of blacklisted checks a session may
// accumulate before further transaction attempts are refused
const MaxBlacklistCheckAttempts = 2

// PurchaseState is the lifecycle state of a purchase process
type PurchaseState string

const (
	PurchaseStateInitialized       PurchaseState = "initialized"
	PurchaseStateValidating        PurchaseState = "validating"
	PurchaseStateProcessing        PurchaseState = "processing"
	PurchaseStateProcessed         PurchaseState = "processed"
	PurchaseStatePending           PurchaseState = "pending" // 3DS challenge outstanding
	PurchaseStatePendingThirdParty PurchaseState = "pending_third_party"
	PurchaseStateBlocked           PurchaseState = "blocked"
	PurchaseStateAborted           PurchaseState = "aborted" // attempt failed, a new submit may retry
)

// purchaseTransitions maps each state to the states it may move to.
// Processed and Blocked have no exits.
var purchaseTransitions = map[PurchaseState][]PurchaseState{
	PurchaseStateInitialized: {PurchaseStateValidating},
	PurchaseStateValidating: {
		PurchaseStateProcessing,
		PurchaseStateBlocked,
		PurchaseStateAborted,
	},
	PurchaseStateProcessing: {
		PurchaseStateProcessed,
		PurchaseStatePending,
		PurchaseStatePendingThirdParty,
		PurchaseStateAborted,
	},
	PurchaseStatePending: {
		PurchaseStateProcessing,
		PurchaseStateProcessed,
		PurchaseStateAborted,
	},
	PurchaseStatePendingThirdParty: {
		PurchaseStateProcessing,
		PurchaseStateProcessed,
		PurchaseStateAborted,
	},
	PurchaseStateAborted:   {PurchaseStateValidating},
	PurchaseStateProcessed: {},
	PurchaseStateBlocked:   {},
}

// CanTransition checks if a purchase may move from one state to another
func CanTransition(from, to PurchaseState) bool {
	for _, s := range purchaseTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true for states no command may leave
func (s PurchaseState) IsTerminal() bool {
	return s == PurchaseStateProcessed || s == PurchaseStateBlocked
}

// IsPending returns true while the shopper must complete an external step
func (s PurchaseState) IsPending() bool {
	return s == PurchaseStatePending || s == PurchaseStatePendingThirdParty
}

// PurchaseProcess is the aggregate root of one purchase session
type PurchaseProcess struct {
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
	PaymentInfo         *PaymentInfo       `json:"payment_info,omitempty"`
	Cascade             *Cascade           `json:"cascade,omitempty"`
	BillerSubmits       map[string]int     `json:"biller_submits"`
	UserInfo            UserInfo           `json:"user_info"`
	FraudAdvice         FraudAdvice        `json:"fraud_advice"`
	Items               []*InitializedItem `json:"items"`
	SessionID           string             `json:"session_id"`
	PurchaseID          string             `json:"purchase_id,omitempty"`
	MemberID            string             `json:"member_id,omitempty"`
	SiteID              string             `json:"site_id"`
	Currency            string             `json:"currency"`
	State               PurchaseState      `json:"state"`
	GatewaySubmitNumber int                `json:"gateway_submit_number"`
	BlacklistAttempts   int                `json:"blacklist_attempts"`
	IsBlacklisted       bool               `json:"is_blacklisted"`
}

// TransitionTo moves the purchase to next or fails with a state error
func (p *PurchaseProcess) TransitionTo(next PurchaseState) error {
	if err := p.ValidateTransition(next); err != nil {
		return err
	}
	p.State = next
	return nil
}

// ValidateTransition returns the error TransitionTo would return, without moving
func (p *PurchaseProcess) ValidateTransition(next PurchaseState) error {
	if p.State.IsTerminal() {
		return ErrPurchaseAlreadyProcessed.
			WithDetail("session_id", p.SessionID).
			WithDetail("state", string(p.State))
	}
	if !CanTransition(p.State, next) {
		return WrapError(ErrorCodePurchaseInvalidState,
			ErrPurchaseInvalidState.Message,
			fmt.Errorf("transition %s -> %s not allowed", p.State, next)).
			WithDetail("session_id", p.SessionID)
	}
	return nil
}

// MainItem returns the item the purchase is about
func (p *PurchaseProcess) MainItem() *InitializedItem {
	for _, item := range p.Items {
		if !item.IsCrossSale {
			return item
		}
	}
	return nil
}

// CrossSales returns every cross-sale offered with the purchase, selected or not
func (p *PurchaseProcess) CrossSales() []*InitializedItem {
	var items []*InitializedItem
	for _, item := range p.Items {
		if item.IsCrossSale {
			items = append(items, item)
		}
	}
	return items
}

// SelectedCrossSales returns the cross-sales that take part in attempts
func (p *PurchaseProcess) SelectedCrossSales() []*InitializedItem {
	var items []*InitializedItem
	for _, item := range p.CrossSales() {
		if item.Selected {
			items = append(items, item)
		}
	}
	return items
}

// FindItem returns the item with the given id
func (p *PurchaseProcess) FindItem(itemID string) *InitializedItem {
	for _, item := range p.Items {
		if item.ID == itemID {
			return item
		}
	}
	return nil
}

// IncrementGatewaySubmitNumber counts a submit that passed the pre-checks
func (p *PurchaseProcess) IncrementGatewaySubmitNumber() {
	p.GatewaySubmitNumber++
}

// RecordBillerSubmit counts one submit against a biller's max-submit allowance
func (p *PurchaseProcess) RecordBillerSubmit(billerName string) {
	if p.BillerSubmits == nil {
		p.BillerSubmits = make(map[string]int)
	}
	p.BillerSubmits[billerName]++
}

// SubmitsFor returns how many submits went to a biller
func (p *PurchaseProcess) SubmitsFor(billerName string) int {
	return p.BillerSubmits[billerName]
}

// RecordBlacklistCheck stores the outcome of a blacklist lookup
func (p *PurchaseProcess) RecordBlacklistCheck(blacklisted bool) {
	if blacklisted {
		p.BlacklistAttempts++
	}
	p.IsBlacklisted = blacklisted
}

// BlacklistLimitReached returns true when the card is still flagged and the
// session used up its blacklist check attempts
func (p *PurchaseProcess) BlacklistLimitReached() bool {
	return p.IsBlacklisted && p.BlacklistAttempts >= MaxBlacklistCheckAttempts
}

// Validate checks the business invariants required before any attempt
func (p *PurchaseProcess) Validate() error {
	if p.SessionID == "" {
		return ErrValidationMissingField.WithDetail("field", "session_id")
	}
	if p.SiteID == "" {
		return ErrValidationMissingField.WithDetail("field", "site_id")
	}
	if len(p.Currency) != 3 {
		return ErrValidationFailed.WithDetail("field", "currency")
	}
	if p.UserInfo.Email == "" {
		return ErrValidationMissingField.WithDetail("field", "email")
	}
	if p.PaymentInfo == nil {
		return ErrValidationMissingField.WithDetail("field", "payment_info")
	}
	if err := p.PaymentInfo.Validate(); err != nil {
		return err
	}

	mainItems := 0
	for _, item := range p.Items {
		if !item.IsCrossSale {
			mainItems++
		}
		if err := item.Validate(); err != nil {
			return err
		}
	}
	if mainItems != 1 {
		return ErrValidationFailed.
			WithDetail("field", "items").
			WithDetail("main_items", mainItems)
	}
	return nil
}

// ApprovedItems returns the items with an approved transaction
func (p *PurchaseProcess) ApprovedItems() []*InitializedItem {
	var items []*InitializedItem
	for _, item := range p.Items {
		if item.IsApproved() {
			items = append(items, item)
		}
	}
	return items
}

// AssignIdentifiers gives approved items a subscription id and the purchase
// its purchase and member ids. Ids already assigned are kept.
func (p *PurchaseProcess) AssignIdentifiers(newID func() string) {
	for _, item := range p.ApprovedItems() {
		if item.SubscriptionID == "" {
			item.SubscriptionID = newID()
		}
	}
	if p.PurchaseID == "" {
		p.PurchaseID = newID()
	}
	if p.MemberID == "" {
		p.MemberID = newID()
	}
}
