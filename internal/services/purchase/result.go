package purchase

import (
	"github.com/kevin07696/purchase-service/internal/domain"
)

// NextActionType tells the caller what the shopper must do before the purchase can finish
type NextActionType string

const (
	NextActionNone               NextActionType = ""
	NextActionThreeDChallenge    NextActionType = "threed_challenge"
	NextActionDeviceCollection   NextActionType = "device_collection"
	NextActionThirdPartyRedirect NextActionType = "third_party_redirect"
	NextActionRenderCaptcha      NextActionType = "render_captcha"
	NextActionRestartProcess     NextActionType = "restart_process"
)

// NextAction describes the continuation of a pending or blocked purchase
type NextAction struct {
	Type          NextActionType `json:"type"`
	URL           string         `json:"url,omitempty"`
	PaReq         string         `json:"pareq,omitempty"`
	ThreeDVersion int            `json:"three_d_version,omitempty"`
}

// ItemResult is the outcome of one item
type ItemResult struct {
	ItemID         string                  `json:"item_id"`
	TransactionID  string                  `json:"transaction_id,omitempty"`
	State          domain.TransactionState `json:"state,omitempty"`
	SubscriptionID string                  `json:"subscription_id,omitempty"`
	IsCrossSale    bool                    `json:"is_cross_sale"`
}

// Result is returned by every purchase command that did not fail.
// A fraud block is a result, not an error.
type Result struct {
	NextAction  *NextAction          `json:"next_action,omitempty"`
	Items       []ItemResult         `json:"items"`
	SessionID   string               `json:"session_id"`
	PurchaseID  string               `json:"purchase_id,omitempty"`
	MemberID    string               `json:"member_id,omitempty"`
	BillerName  string               `json:"biller_name,omitempty"`
	State       domain.PurchaseState `json:"state"`
	BlockReason string               `json:"block_reason,omitempty"`
	Success     bool                 `json:"success"`
	Blocked     bool                 `json:"blocked"`
	CanRetry    bool                 `json:"can_retry"`
}

// MainItem returns the result of the main item
func (r *Result) MainItem() *ItemResult {
	for i := range r.Items {
		if !r.Items[i].IsCrossSale {
			return &r.Items[i]
		}
	}
	return nil
}

// newResult describes the purchase after a command
func newResult(purchase *domain.PurchaseProcess) *Result {
	r := &Result{
		SessionID:  purchase.SessionID,
		PurchaseID: purchase.PurchaseID,
		MemberID:   purchase.MemberID,
		State:      purchase.State,
		CanRetry:   purchase.State == domain.PurchaseStateAborted,
	}

	for _, item := range purchase.Items {
		if item.IsCrossSale && !item.Selected {
			continue
		}
		ir := ItemResult{
			ItemID:         item.ID,
			SubscriptionID: item.SubscriptionID,
			IsCrossSale:    item.IsCrossSale,
		}
		if tx := item.LastTransaction(); tx != nil {
			ir.TransactionID = tx.ID
			ir.State = tx.State
		}
		r.Items = append(r.Items, ir)
	}

	main := purchase.MainItem()
	if main == nil {
		return r
	}
	last := main.LastTransaction()
	if last != nil {
		r.BillerName = last.BillerName
	}
	r.Success = last.IsApproved() && purchase.State == domain.PurchaseStateProcessed

	switch purchase.State {
	case domain.PurchaseStatePending:
		r.NextAction = threeDAction(last)
	case domain.PurchaseStatePendingThirdParty:
		r.NextAction = &NextAction{Type: NextActionThirdPartyRedirect, URL: last.RedirectURL}
	case domain.PurchaseStateProcessed:
		if !r.Success {
			r.NextAction = &NextAction{Type: NextActionRestartProcess}
		}
	}
	return r
}

func threeDAction(tx *domain.Transaction) *NextAction {
	if tx == nil || tx.ThreeD == nil {
		return &NextAction{Type: NextActionThreeDChallenge}
	}
	if tx.ThreeD.DeviceCollectionURL != "" && tx.ThreeD.AuthURL == "" {
		return &NextAction{
			Type:          NextActionDeviceCollection,
			URL:           tx.ThreeD.DeviceCollectionURL,
			ThreeDVersion: tx.ThreeD.Version,
		}
	}
	return &NextAction{
		Type:          NextActionThreeDChallenge,
		URL:           tx.ThreeD.AuthURL,
		PaReq:         tx.ThreeD.PaReq,
		ThreeDVersion: tx.ThreeD.Version,
	}
}

// blockedResult describes a purchase stopped by fraud advice
func blockedResult(purchase *domain.PurchaseProcess, reason string) *Result {
	r := newResult(purchase)
	r.Blocked = true
	r.BlockReason = reason
	if reason == "captcha" {
		r.NextAction = &NextAction{Type: NextActionRenderCaptcha}
	}
	return r
}
