package billing

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/kevin07696/purchase-service/internal/domain"
	"github.com/kevin07696/purchase-service/internal/domain/ports"
	pkghttp "github.com/kevin07696/purchase-service/pkg/http"
	"go.uber.org/zap"
)

type cascadeResponse struct {
	Billers []domain.Biller `json:"billers"`
}

type mappingRequest struct {
	Biller          string `json:"biller"`
	BillerID        string `json:"biller_id,omitempty"`
	BusinessGroupID string `json:"business_group_id"`
	SiteID          string `json:"site_id"`
	Currency        string `json:"currency"`
	SessionID       string `json:"session_id,omitempty"`
}

// CascadeClient reads site cascades and biller mappings from the cascade service
type CascadeClient struct {
	caller *caller
}

// NewCascadeClient creates a cascade service client
func NewCascadeClient(cfg Config, doer pkghttp.Doer, logger *zap.Logger) *CascadeClient {
	if cfg.BreakerConfig.Name == "" {
		cfg.BreakerConfig.Name = "cascade-service"
	}
	return &CascadeClient{caller: newCaller(cfg, doer, logger)}
}

// RetrieveCascade returns the ordered billers configured for the purchase
func (c *CascadeClient) RetrieveCascade(ctx context.Context, req ports.CascadeRequest) ([]domain.Biller, error) {
	q := url.Values{}
	q.Set("business_group_id", req.BusinessGroupID)
	q.Set("currency", req.Currency)
	q.Set("payment_type", string(req.PaymentType))
	if req.PaymentMethod != "" {
		q.Set("payment_method", req.PaymentMethod)
	}
	path := fmt.Sprintf("/v1/sites/%s/cascade?%s", url.PathEscape(req.SiteID), q.Encode())

	var resp cascadeResponse
	if err := c.caller.read(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("retrieve cascade for site %s: %w", req.SiteID, err)
	}
	return resp.Billers, nil
}

// RetrieveBillerMapping resolves the merchant fields of a biller for a site
func (c *CascadeClient) RetrieveBillerMapping(ctx context.Context, req ports.BillerMappingRequest) (*domain.BillerMapping, error) {
	body := mappingRequest{
		Biller:          req.Biller.Name,
		BillerID:        req.Biller.ID,
		BusinessGroupID: req.BusinessGroupID,
		SiteID:          req.SiteID,
		Currency:        req.Currency,
		SessionID:       req.SessionID,
	}

	var mapping domain.BillerMapping
	if err := c.caller.read(ctx, http.MethodPost, "/v1/biller-mappings/resolve", body, &mapping); err != nil {
		return nil, fmt.Errorf("retrieve %s mapping for site %s: %w", req.Biller.Name, req.SiteID, err)
	}
	if mapping.BillerName == "" {
		mapping.BillerName = req.Biller.Name
	}
	if mapping.Currency == "" {
		mapping.Currency = req.Currency
	}
	return &mapping, nil
}
