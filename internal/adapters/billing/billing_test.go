package billing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kevin07696/purchase-service/internal/domain"
	"github.com/kevin07696/purchase-service/internal/domain/ports"
	"github.com/kevin07696/purchase-service/pkg/resilience"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingServer struct {
	*httptest.Server
	calls atomic.Int32
}

func newServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, call int32)) *countingServer {
	t.Helper()
	s := &countingServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler(w, r, s.calls.Add(1))
	}))
	t.Cleanup(s.Close)
	return s
}

func testConfig(url string) Config {
	return Config{
		BaseURL:      url,
		APIKey:       "key-1",
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		ReadAttempts: 3,
		BreakerConfig: resilience.CircuitBreakerConfig{
			MaxFailures:         5,
			Timeout:             time.Minute,
			MaxRequestsHalfOpen: 1,
		},
	}
}

func fastBackoff(c *caller) {
	c.backoff = &resilience.FixedBackoff{Delay: time.Millisecond}
}

func testRequest() ports.TransactionRequest {
	rebill := decimal.RequireFromString("19.99")
	return ports.TransactionRequest{
		Item: &domain.InitializedItem{
			ID:     "item-main",
			SiteID: "site-1",
			ChargeInfo: domain.ChargeInfo{
				InitialAmount: decimal.RequireFromString("1"),
				InitialDays:   3,
				RebillAmount:  &rebill,
				RebillDays:    30,
			},
		},
		Site:        &domain.Site{ID: "site-1"},
		Biller:      domain.Biller{Name: "rocketgate", ID: "rg"},
		Payment:     domain.PaymentData{Kind: domain.PaymentKindNewCard, Type: domain.PaymentTypeCC, CardNumber: "4111111111111111"},
		SessionID:   "session-1",
		Currency:    "USD",
		RoutingCode: "R1",
		UseThreeD:   true,
	}
}

func TestTransactionClient_NewCard(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		assert.Equal(t, "/v1/transactions/new-card", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("X-API-Key"))

		var body transactionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "R1", body.RoutingCode)
		assert.True(t, body.UseThreeD)
		assert.Equal(t, "1.00", body.Item.InitialAmount)
		assert.Equal(t, "19.99", body.Item.RebillAmount)

		_ = json.NewEncoder(w).Encode(transactionResponse{
			TransactionID: "tx-1",
			State:         "pending",
			ThreeD:        &domain.ThreeDSecure{Version: 2, AuthURL: "https://acs"},
		})
	})

	client := NewTransactionClient(testConfig(srv.URL), srv.Client(), zap.NewNop())
	tx, err := client.PerformNewCardTransaction(context.Background(), testRequest())

	require.NoError(t, err)
	assert.Equal(t, "tx-1", tx.ID)
	assert.True(t, tx.IsPending())
	assert.Equal(t, 2, tx.ThreeD.Version)
}

func TestTransactionClient_FailuresAreNotRetried(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		http.Error(w, "upstream", http.StatusBadGateway)
	})

	client := NewTransactionClient(testConfig(srv.URL), srv.Client(), zap.NewNop())
	_, err := client.PerformChequeTransaction(context.Background(), testRequest())

	require.Error(t, err)
	assert.Equal(t, int32(1), srv.calls.Load())
}

func TestTransactionClient_RejectsUnknownState(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		_, _ = w.Write([]byte(`{"transaction_id":"tx-1","state":"maybe"}`))
	})

	client := NewTransactionClient(testConfig(srv.URL), srv.Client(), zap.NewNop())
	_, err := client.PerformExistingCardTransaction(context.Background(), testRequest())
	assert.ErrorContains(t, err, "unknown transaction state")
}

func TestTransactionClient_BreakerOpens(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	cfg := testConfig(srv.URL)
	cfg.BreakerConfig.MaxFailures = 2
	client := NewTransactionClient(cfg, srv.Client(), zap.NewNop())

	for i := 0; i < 2; i++ {
		_, _ = client.PerformThirdPartyTransaction(context.Background(), testRequest())
	}
	_, err := client.PerformThirdPartyTransaction(context.Background(), testRequest())

	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
	assert.Equal(t, int32(2), srv.calls.Load())
}

func TestTransactionClient_CompleteThreeD(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		assert.Equal(t, "/v1/transactions/complete-threed", r.URL.Path)
		var body completeThreeDRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "pares-1", body.PaRes)

		_ = json.NewEncoder(w).Encode(transactionResponse{TransactionID: "tx-2", State: "approved", PaymentTemplateID: "tpl-1"})
	})

	client := NewTransactionClient(testConfig(srv.URL), srv.Client(), zap.NewNop())
	tx, err := client.PerformCompleteThreeDTransaction(context.Background(), ports.CompleteThreeDRequest{
		TransactionID: "tx-1", PaRes: "pares-1", SessionID: "session-1",
	})

	require.NoError(t, err)
	assert.True(t, tx.IsApproved())
	assert.Equal(t, "tpl-1", tx.PaymentTemplateID)
}

func TestCascadeClient_RetriesServerFailures(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request, call int32) {
		if call < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "/v1/sites/site-1/cascade", r.URL.Path)
		assert.Equal(t, "cc", r.URL.Query().Get("payment_type"))
		_ = json.NewEncoder(w).Encode(cascadeResponse{Billers: []domain.Biller{{Name: "rocketgate"}, {Name: "netbilling"}}})
	})

	client := NewCascadeClient(testConfig(srv.URL), srv.Client(), zap.NewNop())
	fastBackoff(client.caller)

	billers, err := client.RetrieveCascade(context.Background(), ports.CascadeRequest{
		SiteID: "site-1", Currency: "USD", PaymentType: domain.PaymentTypeCC,
	})

	require.NoError(t, err)
	assert.Len(t, billers, 2)
	assert.Equal(t, int32(3), srv.calls.Load())
}

func TestCascadeClient_ClientErrorsAreNotRetried(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		http.Error(w, "unknown biller", http.StatusNotFound)
	})

	client := NewCascadeClient(testConfig(srv.URL), srv.Client(), zap.NewNop())
	fastBackoff(client.caller)

	_, err := client.RetrieveBillerMapping(context.Background(), ports.BillerMappingRequest{
		Biller: domain.Biller{Name: "rocketgate"}, SiteID: "site-1", Currency: "EUR",
	})

	require.Error(t, err)
	assert.Equal(t, int32(1), srv.calls.Load())
}

func TestCascadeClient_MappingDefaults(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		_, _ = w.Write([]byte(`{"biller_id":"rg","fields":{"merchant_id":"m-1"}}`))
	})

	client := NewCascadeClient(testConfig(srv.URL), srv.Client(), zap.NewNop())
	mapping, err := client.RetrieveBillerMapping(context.Background(), ports.BillerMappingRequest{
		Biller: domain.Biller{Name: "rocketgate"}, SiteID: "site-1", Currency: "USD",
	})

	require.NoError(t, err)
	assert.Equal(t, "rocketgate", mapping.BillerName)
	assert.Equal(t, "USD", mapping.Currency)
	assert.Equal(t, "m-1", mapping.Fields["merchant_id"])
}

func TestBinRoutingClient_ReturnsRowsInOrder(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		var body binRoutingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "411111", body.Bin)
		assert.Equal(t, "rocketgate", body.Biller)

		_ = json.NewEncoder(w).Encode(binRoutingResponse{Routes: []domain.BinRouting{
			{Key: "item-main", RoutingCode: "R1", Ordinal: 1},
			{Key: "item-main_2", RoutingCode: "R2", Ordinal: 2},
		}})
	})

	client := NewBinRoutingClient(testConfig(srv.URL), srv.Client(), zap.NewNop())
	rows, err := client.RetrieveRoutingCodes(context.Background(), ports.BinRoutingRequest{
		ItemID:  "item-main",
		Bin:     "411111",
		Site:    &domain.Site{ID: "site-1"},
		Mapping: &domain.BillerMapping{BillerName: "rocketgate"},
	})

	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "R2", rows.ForItem("item-main")[1].RoutingCode)
}
