package billing

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kevin07696/purchase-service/internal/domain"
	"github.com/kevin07696/purchase-service/internal/domain/ports"
	pkghttp "github.com/kevin07696/purchase-service/pkg/http"
	"go.uber.org/zap"
)

type binRoutingRequest struct {
	SessionID       string `json:"session_id"`
	ItemID          string `json:"item_id"`
	SiteID          string `json:"site_id"`
	BusinessGroupID string `json:"business_group_id,omitempty"`
	Biller          string `json:"biller,omitempty"`
	BillerID        string `json:"biller_id,omitempty"`
	Currency        string `json:"currency"`
	Bin             string `json:"bin"`
	Amount          string `json:"amount,omitempty"`
}

type binRoutingResponse struct {
	Routes []domain.BinRouting `json:"routes"`
}

// BinRoutingClient reads bank-routing fallbacks from the bin routing service
type BinRoutingClient struct {
	caller *caller
}

// NewBinRoutingClient creates a bin routing service client
func NewBinRoutingClient(cfg Config, doer pkghttp.Doer, logger *zap.Logger) *BinRoutingClient {
	if cfg.BreakerConfig.Name == "" {
		cfg.BreakerConfig.Name = "bin-routing-service"
	}
	return &BinRoutingClient{caller: newCaller(cfg, doer, logger)}
}

// RetrieveRoutingCodes returns routing rows for one item in priority order
func (c *BinRoutingClient) RetrieveRoutingCodes(ctx context.Context, req ports.BinRoutingRequest) (domain.BinRoutingCollection, error) {
	body := binRoutingRequest{
		ItemID: req.ItemID,
		Bin:    req.Bin,
	}
	if req.Purchase != nil {
		body.SessionID = req.Purchase.SessionID
		body.Currency = req.Purchase.Currency
		if item := req.Purchase.FindItem(req.ItemID); item != nil {
			body.Amount = item.ChargeInfo.InitialAmount.StringFixed(2)
		}
	}
	if req.Site != nil {
		body.SiteID = req.Site.ID
		body.BusinessGroupID = req.Site.BusinessGroupID
	}
	if req.Mapping != nil {
		body.Biller = req.Mapping.BillerName
		body.BillerID = req.Mapping.BillerID
	}

	var resp binRoutingResponse
	if err := c.caller.read(ctx, http.MethodPost, "/v1/bin-routing", body, &resp); err != nil {
		return nil, fmt.Errorf("retrieve routing codes for item %s: %w", req.ItemID, err)
	}
	return domain.BinRoutingCollection(resp.Routes), nil
}
