package purchase

import (
	"context"

	"github.com/kevin07696/purchase-service/internal/domain"
	"github.com/kevin07696/purchase-service/internal/domain/ports"
	"github.com/kevin07696/purchase-service/pkg/observability"
)

// RoutingResolver gathers bin-routing fallbacks for the items of a submit.
// Failures degrade to no routing codes for the affected item.
type RoutingResolver struct {
	service ports.BinRoutingService
	logger  ports.Logger
}

// NewRoutingResolver creates a routing resolver
func NewRoutingResolver(service ports.BinRoutingService, logger ports.Logger) *RoutingResolver {
	return &RoutingResolver{
		service: service,
		logger:  logger,
	}
}

// Resolve returns the routing rows of every item, in item order
func (r *RoutingResolver) Resolve(
	ctx context.Context,
	purchase *domain.PurchaseProcess,
	site *domain.Site,
	mapping *domain.BillerMapping,
	items []*domain.InitializedItem,
	bin string,
) domain.BinRoutingCollection {
	var routing domain.BinRoutingCollection
	for _, item := range items {
		rows, err := r.service.RetrieveRoutingCodes(ctx, ports.BinRoutingRequest{
			Purchase: purchase,
			ItemID:   item.ID,
			Site:     site,
			Mapping:  mapping,
			Bin:      bin,
		})
		if err != nil {
			observability.RecordDegradedCall("bin_routing")
			r.logger.Warn("bin routing unavailable, attempting without routing codes",
				ports.String("session_id", purchase.SessionID),
				ports.String("item_id", item.ID),
				ports.Err(err))
			continue
		}
		routing = routing.Merge(rows)
	}
	return routing
}
