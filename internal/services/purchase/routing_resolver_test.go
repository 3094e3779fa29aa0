package purchase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/kevin07696/purchase-service/internal/domain"
	"github.com/kevin07696/purchase-service/internal/services/purchase"
	"github.com/kevin07696/purchase-service/internal/testutil/fixtures"
	"github.com/kevin07696/purchase-service/internal/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestRoutingResolver_MergesItemsInOrder(t *testing.T) {
	service := new(mocks.MockBinRoutingService)
	resolver := purchase.NewRoutingResolver(service, mocks.NewMockLogger())
	p := fixtures.NewPurchase().WithCrossSale("item-xs", "site-xs").Build()

	service.On("RetrieveRoutingCodes", mock.Anything, forItem(mainItemID)).
		Return(routingRows(mainItemID, "R1", "R2"), nil)
	service.On("RetrieveRoutingCodes", mock.Anything, forItem("item-xs")).
		Return(routingRows("item-xs", "X1"), nil)

	routing := resolver.Resolve(context.Background(), p, fixtures.NewSite(p.SiteID), &domain.BillerMapping{}, p.Items, "411111")

	assert.Len(t, routing, 3)
	assert.Len(t, routing.ForItem(mainItemID), 2)
	assert.Equal(t, "X1", routing.ForItem("item-xs")[0].RoutingCode)
}

func TestRoutingResolver_FailureDegradesToNoRows(t *testing.T) {
	service := new(mocks.MockBinRoutingService)
	logger := mocks.NewMockLogger()
	resolver := purchase.NewRoutingResolver(service, logger)
	p := fixtures.NewPurchase().WithCrossSale("item-xs", "site-xs").Build()

	service.On("RetrieveRoutingCodes", mock.Anything, forItem(mainItemID)).
		Return(nil, errors.New("503 service unavailable"))
	service.On("RetrieveRoutingCodes", mock.Anything, forItem("item-xs")).
		Return(routingRows("item-xs", "X1"), nil)

	routing := resolver.Resolve(context.Background(), p, fixtures.NewSite(p.SiteID), &domain.BillerMapping{}, p.Items, "411111")

	assert.Empty(t, routing.ForItem(mainItemID))
	assert.Len(t, routing.ForItem("item-xs"), 1)
	assert.True(t, logger.Warned("bin routing unavailable, attempting without routing codes"))
}
