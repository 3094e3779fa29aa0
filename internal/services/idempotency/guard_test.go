package idempotency_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kevin07696/purchase-service/internal/domain"
	"github.com/kevin07696/purchase-service/internal/services/idempotency"
	"github.com/kevin07696/purchase-service/internal/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestGuard_BeginEnd(t *testing.T) {
	ctx := context.Background()
	guard := idempotency.NewGuard(idempotency.NewMemoryStore(), time.Minute, mocks.NewMockLogger())

	require.NoError(t, guard.Begin(ctx, "session-1"))
	assert.True(t, guard.InFlight(ctx, "session-1"))

	err := guard.Begin(ctx, "session-1")
	require.Error(t, err)
	assert.True(t, domain.IsDuplicateRequest(err))

	// other sessions never contend
	require.NoError(t, guard.Begin(ctx, "session-2"))

	guard.End(ctx, "session-1")
	assert.False(t, guard.InFlight(ctx, "session-1"))
	require.NoError(t, guard.Begin(ctx, "session-1"))
}

func TestGuard_ConcurrentBeginAdmitsOne(t *testing.T) {
	ctx := context.Background()
	guard := idempotency.NewGuard(idempotency.NewMemoryStore(), time.Minute, mocks.NewMockLogger())

	const workers = 16
	var admitted, rejected int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := guard.Begin(ctx, "session-1")
			switch {
			case err == nil:
				atomic.AddInt32(&admitted, 1)
			case domain.IsDuplicateRequest(err):
				atomic.AddInt32(&rejected, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), admitted)
	assert.Equal(t, int32(workers-1), rejected)
}

func TestGuard_StoreUnavailableFailsOpen(t *testing.T) {
	ctx := context.Background()
	store := new(mocks.MockIdempotencyStore)
	logger := mocks.NewMockLogger()
	guard := idempotency.NewGuard(store, time.Minute, logger)

	store.On("Acquire", mock.Anything, "purchase-status:session-1", "processing", time.Minute).
		Return(false, errors.New("dial tcp: connection refused"))
	store.On("Delete", mock.Anything, "purchase-status:session-1").
		Return(errors.New("dial tcp: connection refused"))

	require.NoError(t, guard.Begin(ctx, "session-1"))
	guard.End(ctx, "session-1")

	assert.True(t, logger.Warned("idempotency store unavailable, continuing without marker"))
	assert.True(t, logger.Warned("failed to clear idempotency marker"))
	store.AssertExpectations(t)
}

func TestGuard_EndSurvivesCancelledContext(t *testing.T) {
	store := new(mocks.MockIdempotencyStore)
	guard := idempotency.NewGuard(store, time.Minute, mocks.NewMockLogger())

	store.On("Delete", mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil }), "purchase-status:s").
		Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	guard.End(ctx, "s")

	store.AssertExpectations(t)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := idempotency.NewMemoryStore()

	ok, err := store.Acquire(ctx, "k", "processing", time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)

	_, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	ok, err = store.Acquire(ctx, "k", "processing", 0)
	require.NoError(t, err)
	assert.True(t, ok)
}
