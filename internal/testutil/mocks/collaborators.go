// Package mocks provides shared mock implementations of the purchase
// collaborator ports for service tests.
package mocks

import (
	"context"
	"time"

	"github.com/kevin07696/purchase-service/internal/domain"
	"github.com/kevin07696/purchase-service/internal/domain/ports"
	"github.com/stretchr/testify/mock"
)

// MockSessionStore mocks ports.SessionStore
type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) Load(ctx context.Context, sessionID string) (*domain.PurchaseProcess, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PurchaseProcess), args.Error(1)
}

func (m *MockSessionStore) Update(ctx context.Context, purchase *domain.PurchaseProcess) error {
	args := m.Called(ctx, purchase)
	return args.Error(0)
}

// MockSiteRepository mocks ports.SiteRepository
type MockSiteRepository struct {
	mock.Mock
}

func (m *MockSiteRepository) GetSite(ctx context.Context, siteID string) (*domain.Site, error) {
	args := m.Called(ctx, siteID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Site), args.Error(1)
}

// MockIdempotencyStore mocks ports.IdempotencyStore
type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) Acquire(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, value, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Get(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockIdempotencyStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// MockCascadeService mocks ports.CascadeService
type MockCascadeService struct {
	mock.Mock
}

func (m *MockCascadeService) RetrieveCascade(ctx context.Context, req ports.CascadeRequest) ([]domain.Biller, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Biller), args.Error(1)
}

// MockBillerMappingService mocks ports.BillerMappingService
type MockBillerMappingService struct {
	mock.Mock
}

func (m *MockBillerMappingService) RetrieveBillerMapping(ctx context.Context, req ports.BillerMappingRequest) (*domain.BillerMapping, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BillerMapping), args.Error(1)
}

// MockBinRoutingService mocks ports.BinRoutingService
type MockBinRoutingService struct {
	mock.Mock
}

func (m *MockBinRoutingService) RetrieveRoutingCodes(ctx context.Context, req ports.BinRoutingRequest) (domain.BinRoutingCollection, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.BinRoutingCollection), args.Error(1)
}

// MockTransactionBackend mocks ports.TransactionBackend
type MockTransactionBackend struct {
	mock.Mock
}

func (m *MockTransactionBackend) PerformNewCardTransaction(ctx context.Context, req ports.TransactionRequest) (*domain.Transaction, error) {
	return m.result(m.Called(ctx, req))
}

func (m *MockTransactionBackend) PerformExistingCardTransaction(ctx context.Context, req ports.TransactionRequest) (*domain.Transaction, error) {
	return m.result(m.Called(ctx, req))
}

func (m *MockTransactionBackend) PerformChequeTransaction(ctx context.Context, req ports.TransactionRequest) (*domain.Transaction, error) {
	return m.result(m.Called(ctx, req))
}

func (m *MockTransactionBackend) PerformThirdPartyTransaction(ctx context.Context, req ports.TransactionRequest) (*domain.Transaction, error) {
	return m.result(m.Called(ctx, req))
}

func (m *MockTransactionBackend) PerformCompleteThreeDTransaction(ctx context.Context, req ports.CompleteThreeDRequest) (*domain.Transaction, error) {
	return m.result(m.Called(ctx, req))
}

func (m *MockTransactionBackend) result(args mock.Arguments) (*domain.Transaction, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

// MockFraudAdviceService mocks ports.FraudAdviceService
type MockFraudAdviceService struct {
	mock.Mock
}

func (m *MockFraudAdviceService) RetrieveAdvice(ctx context.Context, req ports.FraudAdviceRequest) (domain.AdviceResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.AdviceResult), args.Error(1)
}

// MockBlacklistService mocks ports.BlacklistService
type MockBlacklistService struct {
	mock.Mock
}

func (m *MockBlacklistService) Check(ctx context.Context, card domain.CardIdentity) (bool, error) {
	args := m.Called(ctx, card)
	return args.Bool(0), args.Error(1)
}

func (m *MockBlacklistService) Record(ctx context.Context, record ports.BlacklistRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

// MockEventQueue mocks ports.EventQueue
type MockEventQueue struct {
	mock.Mock
}

func (m *MockEventQueue) Queue(ctx context.Context, event ports.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockPostbackQueue mocks ports.PostbackQueue
type MockPostbackQueue struct {
	mock.Mock
}

func (m *MockPostbackQueue) Enqueue(ctx context.Context, postback ports.Postback) error {
	args := m.Called(ctx, postback)
	return args.Error(0)
}

// MockSecretProvider mocks ports.SecretProvider
type MockSecretProvider struct {
	mock.Mock
}

func (m *MockSecretProvider) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.Secret), args.Error(1)
}
