package postback

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kevin07696/purchase-service/internal/domain/ports"
	"github.com/kevin07696/purchase-service/internal/testutil/mocks"
	"github.com/kevin07696/purchase-service/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const siteSecretPath = "purchase-service/sites/site-1/postback"

func newTestDispatcher(t *testing.T, secrets ports.SecretProvider) *Dispatcher {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Workers = 1
	cfg.MaxAttempts = 3
	cfg.ShutdownTimeout = 5 * time.Second
	d := NewDispatcher(http.DefaultClient, secrets, resilience.TestTimeoutConfig(), cfg, zap.NewNop())
	d.backoff = &resilience.FixedBackoff{Delay: time.Millisecond}
	return d
}

func testPostback(url string) ports.Postback {
	return ports.Postback{
		URL:       url,
		SiteID:    "site-1",
		SessionID: "sess-1",
		EventType: "purchase.processed",
		Payload:   map[string]interface{}{"purchase_id": "p-1"},
	}
}

func signingSecrets() *mocks.MockSecretProvider {
	secrets := &mocks.MockSecretProvider{}
	secrets.On("GetSecret", mock.Anything, siteSecretPath).
		Return(&ports.Secret{Value: "site-key", Version: "v1"}, nil)
	return secrets
}

func TestDispatcher_DeliversSignedPostback(t *testing.T) {
	received := make(chan *http.Request, 1)
	bodies := make(chan []byte, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- r
		bodies <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	secrets := signingSecrets()
	d := newTestDispatcher(t, secrets)
	d.Start(context.Background())

	require.NoError(t, d.Enqueue(context.Background(), testPostback(server.URL)))
	require.NoError(t, d.Close())

	req := <-received
	body := <-bodies
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "purchase.processed", req.Header.Get(HeaderEventType))
	assert.NotEmpty(t, req.Header.Get(HeaderTimestamp))
	assert.True(t, Verify(body, "site-key", req.Header.Get(HeaderSignature)))

	var decoded Body
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "sess-1", decoded.SessionID)
	assert.Equal(t, "p-1", decoded.Data["purchase_id"])
	secrets.AssertExpectations(t)
}

func TestDispatcher_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	d := newTestDispatcher(t, signingSecrets())
	d.Start(context.Background())
	require.NoError(t, d.Enqueue(context.Background(), testPostback(server.URL)))
	require.NoError(t, d.Close())

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDispatcher_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	d := newTestDispatcher(t, signingSecrets())
	d.Start(context.Background())
	require.NoError(t, d.Enqueue(context.Background(), testPostback(server.URL)))
	require.NoError(t, d.Close())

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDispatcher_MissingSecretSkipsDelivery(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	secrets := &mocks.MockSecretProvider{}
	secrets.On("GetSecret", mock.Anything, siteSecretPath).Return(nil, errors.New("not found"))

	d := newTestDispatcher(t, secrets)
	d.Start(context.Background())
	require.NoError(t, d.Enqueue(context.Background(), testPostback(server.URL)))
	require.NoError(t, d.Close())

	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestDispatcher_EnqueueRules(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferSize = 1
	d := NewDispatcher(http.DefaultClient, signingSecrets(), nil, cfg, zap.NewNop())

	assert.Error(t, d.Enqueue(context.Background(), ports.Postback{SiteID: "site-1"}))

	require.NoError(t, d.Enqueue(context.Background(), testPostback("http://127.0.0.1:1")))
	assert.ErrorIs(t, d.Enqueue(context.Background(), testPostback("http://127.0.0.1:1")), ErrQueueFull)

	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	assert.ErrorIs(t, d.Enqueue(context.Background(), testPostback("http://127.0.0.1:1")), ErrClosed)
}

func TestSignAndVerify(t *testing.T) {
	payload := []byte(`{"a":1}`)
	sig := Sign(payload, "k")

	assert.Len(t, sig, 64)
	assert.True(t, Verify(payload, "k", sig))
	assert.False(t, Verify(payload, "other", sig))
	assert.False(t, Verify(payload, "k", "not-hex"))
}
