package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/purchase-service/internal/adapters/postgres"
	"github.com/kevin07696/purchase-service/internal/domain"
	"github.com/kevin07696/purchase-service/internal/testutil/fixtures"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSessionStore_RoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewSessionStore(postgres.NewDBExecutor(pool), zap.NewNop())

	p := fixtures.NewPurchase().Build()
	require.NoError(t, store.Create(ctx, p, time.Hour))

	t.Run("load returns the stored aggregate", func(t *testing.T) {
		loaded, err := store.Load(ctx, p.SessionID)
		require.NoError(t, err)
		assert.Equal(t, p.SessionID, loaded.SessionID)
		assert.Equal(t, p.State, loaded.State)
		require.Len(t, loaded.Items, len(p.Items))
		assert.True(t, p.MainItem().ChargeInfo.InitialAmount.Equal(loaded.MainItem().ChargeInfo.InitialAmount))
	})

	t.Run("update appends attempts once", func(t *testing.T) {
		main := p.MainItem()
		main.Transactions.Add(&domain.Transaction{
			ID:          uuid.New().String(),
			State:       domain.TransactionStateDeclined,
			BillerName:  "rocketgate",
			RoutingCode: "R1",
			CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
		})
		p.State = domain.PurchaseStateAborted
		p.GatewaySubmitNumber = 1

		require.NoError(t, store.Update(ctx, p))
		require.NoError(t, store.Update(ctx, p))

		attempts, err := store.Attempts(ctx, p.SessionID)
		require.NoError(t, err)
		require.Len(t, attempts, 1)
		assert.Equal(t, "R1", attempts[0].RoutingCode)
		assert.Equal(t, domain.TransactionStateDeclined, attempts[0].State)
		assert.True(t, decimal.RequireFromString("29.99").Equal(attempts[0].Amount))

		loaded, err := store.Load(ctx, p.SessionID)
		require.NoError(t, err)
		assert.Equal(t, domain.PurchaseStateAborted, loaded.State)
		assert.Len(t, loaded.MainItem().Transactions, 1)
	})
}

func TestSessionStore_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewSessionStore(postgres.NewDBExecutor(pool), zap.NewNop())

	_, err := store.Load(ctx, uuid.New().String())
	assert.ErrorIs(t, err, domain.ErrPurchaseNotFound)

	p := fixtures.NewPurchase().Build()
	assert.ErrorIs(t, store.Update(ctx, p), domain.ErrPurchaseNotFound)
}

func TestSessionStore_ExpiredSessionIsNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewSessionStore(postgres.NewDBExecutor(pool), zap.NewNop())

	p := fixtures.NewPurchase().Build()
	require.NoError(t, store.Create(ctx, p, -time.Minute))

	_, err := store.Load(ctx, p.SessionID)
	assert.ErrorIs(t, err, domain.ErrPurchaseNotFound)

	n, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))
}
