package billing

import (
	"context"
	"time"

	pkghttp "github.com/kevin07696/purchase-service/pkg/http"
	"github.com/kevin07696/purchase-service/pkg/resilience"
	"go.uber.org/zap"
)

// Config holds settings shared by the billing collaborators
type Config struct {
	BaseURL       string
	APIKey        string
	ReadTimeout   time.Duration // per read attempt
	WriteTimeout  time.Duration // per transaction call
	ReadAttempts  int
	BreakerConfig resilience.CircuitBreakerConfig
}

// caller applies the circuit breaker, timeouts and (for reads) retries to a
// JSON collaborator
type caller struct {
	json    *pkghttp.JSONClient
	breaker *resilience.CircuitBreaker
	backoff resilience.BackoffStrategy
	logger  *zap.Logger
	cfg     Config
}

func newCaller(cfg Config, doer pkghttp.Doer, logger *zap.Logger) *caller {
	if cfg.ReadAttempts <= 0 {
		cfg.ReadAttempts = 3
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}

	breakerCfg := cfg.BreakerConfig
	if breakerCfg.MaxFailures == 0 {
		breakerCfg = resilience.DefaultCircuitBreakerConfig(breakerCfg.Name)
	}
	breakerCfg.IsFailure = pkghttp.IsServerFailure
	breakerCfg.OnStateChange = func(name string, from, to resilience.CircuitState) {
		logger.Warn("Circuit breaker state changed",
			zap.String("collaborator", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	client := pkghttp.NewJSONClient(cfg.BaseURL, doer)
	if cfg.APIKey != "" {
		client.WithHeader("X-API-Key", cfg.APIKey)
	}

	return &caller{
		json:    client,
		breaker: resilience.NewCircuitBreaker(breakerCfg),
		backoff: resilience.DefaultExponentialBackoff(),
		logger:  logger,
		cfg:     cfg,
	}
}

// read performs an idempotent call, retrying server failures with backoff
func (c *caller) read(ctx context.Context, method, path string, in, out interface{}) error {
	return resilience.Retry(ctx, c.backoff, c.cfg.ReadAttempts, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.ReadTimeout)
		defer cancel()

		err := c.breaker.Call(func() error {
			return c.json.Do(attemptCtx, method, path, in, out)
		})
		if err != nil && !pkghttp.IsServerFailure(err) {
			return resilience.Permanent(err)
		}
		return err
	})
}

// write performs a single non-idempotent call
func (c *caller) write(ctx context.Context, method, path string, in, out interface{}) error {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()

	return c.breaker.Call(func() error {
		return c.json.Do(callCtx, method, path, in, out)
	})
}
