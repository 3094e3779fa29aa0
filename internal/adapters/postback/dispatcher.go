package postback

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/kevin07696/purchase-service/internal/domain/ports"
	"github.com/kevin07696/purchase-service/pkg/observability"
	pkghttp "github.com/kevin07696/purchase-service/pkg/http"
	"github.com/kevin07696/purchase-service/pkg/resilience"
	"go.uber.org/zap"
)

// Header names sent with every postback
const (
	HeaderSignature = "X-Postback-Signature"
	HeaderEventType = "X-Postback-Event-Type"
	HeaderTimestamp = "X-Postback-Timestamp"
)

// ErrQueueFull is returned when no worker can take the postback
var ErrQueueFull = errors.New("postback queue full")

// ErrClosed is returned after Close
var ErrClosed = errors.New("postback dispatcher closed")

// Config holds postback delivery settings
type Config struct {
	// SecretPathFormat is formatted with the site id to locate the signing key
	SecretPathFormat string
	Workers          int
	BufferSize       int
	MaxAttempts      int
	ShutdownTimeout  time.Duration
}

// DefaultConfig returns delivery defaults
func DefaultConfig() Config {
	return Config{
		SecretPathFormat: "purchase-service/sites/%s/postback",
		Workers:          4,
		BufferSize:       256,
		MaxAttempts:      5,
		ShutdownTimeout:  30 * time.Second,
	}
}

// Body is the JSON document POSTed to a site
type Body struct {
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	EventType string                 `json:"event_type"`
	SiteID    string                 `json:"site_id"`
	SessionID string                 `json:"session_id"`
}

// Dispatcher implements ports.PostbackQueue. Enqueue hands the postback to a
// pool of workers that sign it and POST it to the site, retrying transient
// failures with backoff.
type Dispatcher struct {
	client   pkghttp.Doer
	secrets  ports.SecretProvider
	backoff  resilience.BackoffStrategy
	timeouts *resilience.TimeoutConfig
	logger   *zap.Logger
	jobs     chan ports.Postback
	now      func() time.Time
	cfg      Config
	wg       sync.WaitGroup
	mu       sync.RWMutex
	started  sync.Once
	closed   bool
}

// NewDispatcher creates a postback dispatcher
func NewDispatcher(client pkghttp.Doer, secrets ports.SecretProvider, timeouts *resilience.TimeoutConfig, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	return &Dispatcher{
		client:   client,
		secrets:  secrets,
		backoff:  resilience.PostbackBackoff(),
		timeouts: timeouts,
		logger:   logger,
		jobs:     make(chan ports.Postback, cfg.BufferSize),
		now:      time.Now,
		cfg:      cfg,
	}
}

// Start launches the delivery workers. Cancelling ctx aborts in-flight
// retries; use Close to drain the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	d.started.Do(func() {
		for i := 0; i < d.cfg.Workers; i++ {
			d.wg.Add(1)
			go d.worker(ctx)
		}
		d.logger.Info("Postback dispatcher started", zap.Int("workers", d.cfg.Workers))
	})
}

// Enqueue schedules a postback without waiting for delivery
func (d *Dispatcher) Enqueue(_ context.Context, postback ports.Postback) error {
	if postback.URL == "" {
		return fmt.Errorf("postback for site %s has no url", postback.SiteID)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.jobs <- postback:
		return nil
	default:
		observability.RecordPostbackDelivery(postback.EventType, "dropped", 0)
		return ErrQueueFull
	}
}

// Close stops accepting postbacks and waits for queued ones to be delivered
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	d.Start(context.Background())

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(d.cfg.ShutdownTimeout):
		return fmt.Errorf("postback dispatcher: %d postbacks not delivered before shutdown", len(d.jobs))
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for postback := range d.jobs {
		d.deliver(ctx, postback)
	}
}

// deliver sends one postback and records the outcome. Failures are logged,
// never returned: a postback does not affect the purchase.
func (d *Dispatcher) deliver(ctx context.Context, postback ports.Postback) {
	start := d.now()
	logger := d.logger.With(
		zap.String("session_id", postback.SessionID),
		zap.String("site_id", postback.SiteID),
		zap.String("event_type", postback.EventType),
	)

	secret, err := d.secrets.GetSecret(ctx, fmt.Sprintf(d.cfg.SecretPathFormat, postback.SiteID))
	if err != nil {
		logger.Error("Failed to load postback signing key", zap.Error(err))
		observability.RecordPostbackDelivery(postback.EventType, "failed", time.Since(start).Seconds())
		return
	}

	timestamp := d.now().UTC()
	payload, err := json.Marshal(Body{
		Data:      postback.Payload,
		Timestamp: timestamp,
		EventType: postback.EventType,
		SiteID:    postback.SiteID,
		SessionID: postback.SessionID,
	})
	if err != nil {
		logger.Error("Failed to marshal postback", zap.Error(err))
		observability.RecordPostbackDelivery(postback.EventType, "failed", time.Since(start).Seconds())
		return
	}
	signature := Sign(payload, secret.Value)

	attempts := 0
	err = resilience.Retry(ctx, d.backoff, d.cfg.MaxAttempts, func(ctx context.Context) error {
		attempts++
		err := d.post(ctx, postback, payload, signature, timestamp)
		if err != nil && !pkghttp.IsServerFailure(err) {
			return resilience.Permanent(err)
		}
		if err != nil {
			logger.Warn("Postback attempt failed", zap.Int("attempt", attempts), zap.Error(err))
		}
		return err
	})

	elapsed := time.Since(start)
	if err != nil {
		logger.Error("Postback delivery failed",
			zap.Int("attempts", attempts),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		observability.RecordPostbackDelivery(postback.EventType, "failed", elapsed.Seconds())
		return
	}

	logger.Info("Postback delivered",
		zap.Int("attempts", attempts),
		zap.Duration("elapsed", elapsed),
	)
	observability.RecordPostbackDelivery(postback.EventType, "delivered", elapsed.Seconds())
}

func (d *Dispatcher) post(ctx context.Context, postback ports.Postback, payload []byte, signature string, timestamp time.Time) error {
	ctx, cancel := d.timeouts.PostbackContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postback.URL, bytes.NewReader(payload))
	if err != nil {
		return resilience.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, signature)
	req.Header.Set(HeaderEventType, postback.EventType)
	req.Header.Set(HeaderTimestamp, timestamp.Format(time.RFC3339))

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send postback: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &pkghttp.StatusError{
		Method:     http.MethodPost,
		URL:        postback.URL,
		Body:       string(body),
		StatusCode: resp.StatusCode,
	}
}

// Sign returns the hex HMAC-SHA256 of payload keyed by secret
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether signature matches payload
func Verify(payload []byte, secret, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hmac.Equal(h.Sum(nil), expected)
}
