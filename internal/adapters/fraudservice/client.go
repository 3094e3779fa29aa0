package fraudservice

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kevin07696/purchase-service/internal/domain"
	"github.com/kevin07696/purchase-service/internal/domain/ports"
	pkghttp "github.com/kevin07696/purchase-service/pkg/http"
	"github.com/kevin07696/purchase-service/pkg/resilience"
	"go.uber.org/zap"
)

// Config holds fraud collaborator settings
type Config struct {
	AdviceURL    string
	BlacklistURL string
	APIKey       string
	Timeout      time.Duration
	ReadAttempts int
}

type adviceRequest struct {
	ChangedFields map[string]string `json:"changed_fields"`
	SiteID        string            `json:"site_id"`
	SessionID     string            `json:"session_id"`
	Phase         string            `json:"phase"`
}

type adviceResponse struct {
	Blacklist    bool `json:"blacklist"`
	ForceCaptcha bool `json:"force_captcha"`
	Force3DS     bool `json:"force_3ds"`
}

type blacklistCheckResponse struct {
	Blacklisted bool `json:"blacklisted"`
}

type blacklistRecordRequest struct {
	First6        string `json:"first6"`
	Last4         string `json:"last4"`
	ExpMonth      int    `json:"exp_month,omitempty"`
	ExpYear       int    `json:"exp_year,omitempty"`
	SessionID     string `json:"session_id"`
	SiteID        string `json:"site_id"`
	TransactionID string `json:"transaction_id"`
	Reason        string `json:"reason"`
}

type endpoint struct {
	json     *pkghttp.JSONClient
	breaker  *resilience.CircuitBreaker
	backoff  resilience.BackoffStrategy
	timeout  time.Duration
	attempts int
}

func newEndpoint(name, baseURL, apiKey string, timeout time.Duration, attempts int, doer pkghttp.Doer, logger *zap.Logger) *endpoint {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if attempts <= 0 {
		attempts = 2
	}
	client := pkghttp.NewJSONClient(baseURL, doer)
	if apiKey != "" {
		client.WithHeader("X-API-Key", apiKey)
	}

	cfg := resilience.DefaultCircuitBreakerConfig(name)
	cfg.IsFailure = pkghttp.IsServerFailure
	cfg.OnStateChange = func(name string, from, to resilience.CircuitState) {
		logger.Warn("Circuit breaker state changed",
			zap.String("collaborator", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	return &endpoint{
		json:     client,
		breaker:  resilience.NewCircuitBreaker(cfg),
		backoff:  resilience.DefaultExponentialBackoff(),
		timeout:  timeout,
		attempts: attempts,
	}
}

func (e *endpoint) call(ctx context.Context, attempts int, method, path string, in, out interface{}) error {
	return resilience.Retry(ctx, e.backoff, attempts, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		err := e.breaker.Call(func() error {
			return e.json.Do(callCtx, method, path, in, out)
		})
		if err != nil && !pkghttp.IsServerFailure(err) {
			return resilience.Permanent(err)
		}
		return err
	})
}

// AdviceClient asks the fraud vendor for purchase advice
type AdviceClient struct {
	endpoint *endpoint
}

// NewAdviceClient creates a fraud advice client
func NewAdviceClient(cfg Config, doer pkghttp.Doer, logger *zap.Logger) *AdviceClient {
	return &AdviceClient{endpoint: newEndpoint("fraud-service", cfg.AdviceURL, cfg.APIKey, cfg.Timeout, cfg.ReadAttempts, doer, logger)}
}

// RetrieveAdvice returns the vendor recommendation for the changed fields
func (c *AdviceClient) RetrieveAdvice(ctx context.Context, req ports.FraudAdviceRequest) (domain.AdviceResult, error) {
	body := adviceRequest{
		ChangedFields: req.ChangedFields,
		SiteID:        req.SiteID,
		SessionID:     req.SessionID,
		Phase:         string(req.Phase),
	}
	var resp adviceResponse
	if err := c.endpoint.call(ctx, c.endpoint.attempts, http.MethodPost, "/v1/advice", body, &resp); err != nil {
		return domain.AdviceResult{}, fmt.Errorf("retrieve fraud advice: %w", err)
	}
	return domain.AdviceResult{
		Blacklist:    resp.Blacklist,
		ForceCaptcha: resp.ForceCaptcha,
		Force3DS:     resp.Force3DS,
	}, nil
}

// BlacklistClient reads and writes the central card blacklist
type BlacklistClient struct {
	endpoint *endpoint
}

// NewBlacklistClient creates a blacklist service client
func NewBlacklistClient(cfg Config, doer pkghttp.Doer, logger *zap.Logger) *BlacklistClient {
	return &BlacklistClient{endpoint: newEndpoint("blacklist-service", cfg.BlacklistURL, cfg.APIKey, cfg.Timeout, cfg.ReadAttempts, doer, logger)}
}

// Check reports whether the card is blacklisted
func (c *BlacklistClient) Check(ctx context.Context, card domain.CardIdentity) (bool, error) {
	path := fmt.Sprintf("/v1/blacklist/cards/%s/%s", card.First6, card.Last4)
	var resp blacklistCheckResponse
	err := c.endpoint.call(ctx, c.endpoint.attempts, http.MethodGet, path, nil, &resp)
	if pkghttp.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check blacklist: %w", err)
	}
	return resp.Blacklisted, nil
}

// Record adds a card to the blacklist. Sent once.
func (c *BlacklistClient) Record(ctx context.Context, record ports.BlacklistRecord) error {
	body := blacklistRecordRequest{
		First6:        record.Card.First6,
		Last4:         record.Card.Last4,
		ExpMonth:      record.Card.ExpMonth,
		ExpYear:       record.Card.ExpYear,
		SessionID:     record.SessionID,
		SiteID:        record.SiteID,
		TransactionID: record.TransactionID,
		Reason:        record.Reason,
	}
	if err := c.endpoint.call(ctx, 1, http.MethodPost, "/v1/blacklist/cards", body, nil); err != nil {
		return fmt.Errorf("record blacklist entry: %w", err)
	}
	return nil
}
