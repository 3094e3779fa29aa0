package billing

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kevin07696/purchase-service/internal/domain"
	"github.com/kevin07696/purchase-service/internal/domain/ports"
	pkghttp "github.com/kevin07696/purchase-service/pkg/http"
	"go.uber.org/zap"
)

type transactionItem struct {
	ID            string `json:"id"`
	SiteID        string `json:"site_id"`
	BundleID      string `json:"bundle_id"`
	AddonID       string `json:"addon_id"`
	InitialAmount string `json:"initial_amount"`
	InitialDays   int    `json:"initial_days"`
	RebillAmount  string `json:"rebill_amount,omitempty"`
	RebillDays    int    `json:"rebill_days,omitempty"`
	TaxAmount     string `json:"tax_amount"`
	TaxRate       string `json:"tax_rate"`
	TaxType       string `json:"tax_type,omitempty"`
	IsTrial       bool   `json:"is_trial"`
	IsCrossSale   bool   `json:"is_cross_sale"`
}

type transactionRequest struct {
	Mapping     *domain.BillerMapping `json:"biller_mapping,omitempty"`
	Payment     domain.PaymentData    `json:"payment"`
	User        domain.UserInfo       `json:"user"`
	Item        transactionItem       `json:"item"`
	SessionID   string                `json:"session_id"`
	SiteID      string                `json:"site_id"`
	Biller      string                `json:"biller"`
	BillerID    string                `json:"biller_id,omitempty"`
	Currency    string                `json:"currency"`
	RoutingCode string                `json:"routing_code,omitempty"`
	ReturnURL   string                `json:"return_url,omitempty"`
	UseThreeD   bool                  `json:"use_three_d"`
}

type completeThreeDRequest struct {
	TransactionID string `json:"transaction_id"`
	SessionID     string `json:"session_id"`
	PaRes         string `json:"pares"`
	MD            string `json:"md,omitempty"`
}

type transactionResponse struct {
	CreatedAt           *time.Time                  `json:"created_at,omitempty"`
	ThreeD              *domain.ThreeDSecure        `json:"three_d,omitempty"`
	ErrorClassification *domain.ErrorClassification `json:"error_classification,omitempty"`
	TransactionID       string                      `json:"transaction_id"`
	State               string                      `json:"state"`
	BillerName          string                      `json:"biller_name"`
	RedirectURL         string                      `json:"redirect_url,omitempty"`
	PaymentTemplateID   string                      `json:"payment_template_id,omitempty"`
}

// TransactionClient calls the transaction service. Calls are never retried:
// a retried charge could bill the shopper twice.
type TransactionClient struct {
	caller *caller
	logger *zap.Logger
}

// NewTransactionClient creates a transaction service client
func NewTransactionClient(cfg Config, doer pkghttp.Doer, logger *zap.Logger) *TransactionClient {
	if cfg.BreakerConfig.Name == "" {
		cfg.BreakerConfig.Name = "transaction-service"
	}
	return &TransactionClient{
		caller: newCaller(cfg, doer, logger),
		logger: logger,
	}
}

// PerformNewCardTransaction charges a card number
func (c *TransactionClient) PerformNewCardTransaction(ctx context.Context, req ports.TransactionRequest) (*domain.Transaction, error) {
	return c.perform(ctx, "/v1/transactions/new-card", req)
}

// PerformExistingCardTransaction charges a payment template
func (c *TransactionClient) PerformExistingCardTransaction(ctx context.Context, req ports.TransactionRequest) (*domain.Transaction, error) {
	return c.perform(ctx, "/v1/transactions/existing-card", req)
}

// PerformChequeTransaction debits a bank account
func (c *TransactionClient) PerformChequeTransaction(ctx context.Context, req ports.TransactionRequest) (*domain.Transaction, error) {
	return c.perform(ctx, "/v1/transactions/cheque", req)
}

// PerformThirdPartyTransaction starts a purchase on a third-party biller page
func (c *TransactionClient) PerformThirdPartyTransaction(ctx context.Context, req ports.TransactionRequest) (*domain.Transaction, error) {
	return c.perform(ctx, "/v1/transactions/third-party", req)
}

// PerformCompleteThreeDTransaction submits the issuer's challenge result
func (c *TransactionClient) PerformCompleteThreeDTransaction(ctx context.Context, req ports.CompleteThreeDRequest) (*domain.Transaction, error) {
	body := completeThreeDRequest{
		TransactionID: req.TransactionID,
		SessionID:     req.SessionID,
		PaRes:         req.PaRes,
		MD:            req.MD,
	}
	var resp transactionResponse
	if err := c.caller.write(ctx, http.MethodPost, "/v1/transactions/complete-threed", body, &resp); err != nil {
		return nil, fmt.Errorf("complete 3DS for %s: %w", req.TransactionID, err)
	}
	return resp.toDomain()
}

func (c *TransactionClient) perform(ctx context.Context, path string, req ports.TransactionRequest) (*domain.Transaction, error) {
	if req.Item == nil {
		return nil, fmt.Errorf("transaction request without item")
	}

	var resp transactionResponse
	if err := c.caller.write(ctx, http.MethodPost, path, newTransactionRequest(req), &resp); err != nil {
		c.logger.Error("Transaction service call failed",
			zap.String("session_id", req.SessionID),
			zap.String("item_id", req.Item.ID),
			zap.String("biller", req.Biller.Name),
			zap.Error(err),
		)
		return nil, fmt.Errorf("perform transaction for item %s: %w", req.Item.ID, err)
	}
	return resp.toDomain()
}

func newTransactionRequest(req ports.TransactionRequest) transactionRequest {
	item := req.Item
	ti := transactionItem{
		ID:            item.ID,
		SiteID:        item.SiteID,
		BundleID:      item.BundleID,
		AddonID:       item.AddonID,
		InitialAmount: item.ChargeInfo.InitialAmount.StringFixed(2),
		InitialDays:   item.ChargeInfo.InitialDays,
		TaxAmount:     item.TaxInfo.InitialAmount.StringFixed(2),
		TaxRate:       item.TaxInfo.TaxRate.String(),
		TaxType:       item.TaxInfo.TaxType,
		IsTrial:       item.IsTrial,
		IsCrossSale:   item.IsCrossSale,
	}
	if item.ChargeInfo.IsRecurring() {
		ti.RebillAmount = item.ChargeInfo.RebillAmount.StringFixed(2)
		ti.RebillDays = item.ChargeInfo.RebillDays
	}

	siteID := item.SiteID
	if req.Site != nil {
		siteID = req.Site.ID
	}

	return transactionRequest{
		Mapping:     req.Mapping,
		Payment:     req.Payment,
		User:        req.User,
		Item:        ti,
		SessionID:   req.SessionID,
		SiteID:      siteID,
		Biller:      req.Biller.Name,
		BillerID:    req.Biller.ID,
		Currency:    req.Currency,
		RoutingCode: req.RoutingCode,
		ReturnURL:   req.ReturnURL,
		UseThreeD:   req.UseThreeD,
	}
}

func (r transactionResponse) toDomain() (*domain.Transaction, error) {
	state := domain.TransactionState(r.State)
	switch state {
	case domain.TransactionStateApproved, domain.TransactionStateDeclined,
		domain.TransactionStateAborted, domain.TransactionStatePending:
	default:
		return nil, fmt.Errorf("unknown transaction state %q", r.State)
	}
	if r.TransactionID == "" {
		return nil, fmt.Errorf("transaction response without id")
	}

	tx := &domain.Transaction{
		ID:                  r.TransactionID,
		State:               state,
		BillerName:          r.BillerName,
		ThreeD:              r.ThreeD,
		ErrorClassification: r.ErrorClassification,
		RedirectURL:         r.RedirectURL,
		PaymentTemplateID:   r.PaymentTemplateID,
	}
	if r.CreatedAt != nil {
		tx.CreatedAt = *r.CreatedAt
	}
	return tx, nil
}
