package purchase

import (
	"context"

	"github.com/kevin07696/purchase-service/internal/domain"
	"github.com/kevin07696/purchase-service/internal/domain/ports"
)

// CascadeSelector builds the biller plan of a purchase and picks the biller
// for the next submit
type CascadeSelector struct {
	cascades ports.CascadeService
	mappings ports.BillerMappingService
	logger   ports.Logger
}

// NewCascadeSelector creates a cascade selector
func NewCascadeSelector(cascades ports.CascadeService, mappings ports.BillerMappingService, logger ports.Logger) *CascadeSelector {
	return &CascadeSelector{
		cascades: cascades,
		mappings: mappings,
		logger:   logger,
	}
}

// Build rebuilds the cascade from the cascade service, falling back to the
// site's configured billers when the service is unreachable. A forced 3DS
// advice removes billers that cannot run a challenge.
func (s *CascadeSelector) Build(ctx context.Context, purchase *domain.PurchaseProcess, site *domain.Site, payment domain.PaymentInfo) (*domain.Cascade, error) {
	billers, err := s.cascades.RetrieveCascade(ctx, ports.CascadeRequest{
		SessionID:       purchase.SessionID,
		SiteID:          site.ID,
		BusinessGroupID: site.BusinessGroupID,
		Currency:        purchase.Currency,
		PaymentType:     payment.Type,
		PaymentMethod:   payment.Method,
	})
	if err != nil {
		if len(site.Billers) == 0 {
			return nil, domain.WrapError(domain.ErrorCodeBillerUnavailable, domain.ErrBillerUnavailable.Message, err).
				WithDetail("site_id", site.ID)
		}
		s.logger.Warn("cascade service unavailable, using site billers",
			ports.String("session_id", purchase.SessionID),
			ports.String("site_id", site.ID),
			ports.Err(err))
		billers = site.Billers
	}

	cascade := domain.NewCascade(append([]domain.Biller(nil), billers...))
	if purchase.FraudAdvice.Force3DS {
		cascade.RemoveNonThreeDSBillers()
		for _, removed := range cascade.Removed {
			s.logger.Info("biller removed from cascade, 3DS required",
				ports.String("session_id", purchase.SessionID),
				ports.String("biller", removed.Name))
		}
	}
	if len(cascade.Billers) == 0 {
		return nil, domain.ErrBillerUnavailable.
			WithDetail("site_id", site.ID).
			WithDetail("force_3ds", purchase.FraudAdvice.Force3DS)
	}
	return cascade, nil
}

// Select points the purchase's cascade at the next biller with submits left
// and resolves its merchant mapping
func (s *CascadeSelector) Select(ctx context.Context, purchase *domain.PurchaseProcess, site *domain.Site) (domain.Biller, *domain.BillerMapping, error) {
	biller, ok := purchase.Cascade.SelectNext(purchase.SubmitsFor)
	if !ok {
		return domain.Biller{}, nil, domain.ErrCascadeExhausted.WithDetail("session_id", purchase.SessionID)
	}

	mapping, err := s.Mapping(ctx, purchase, site, biller)
	if err != nil {
		return domain.Biller{}, nil, err
	}
	return biller, mapping, nil
}

// Mapping resolves the merchant mapping of a biller for the purchase's site and currency
func (s *CascadeSelector) Mapping(ctx context.Context, purchase *domain.PurchaseProcess, site *domain.Site, biller domain.Biller) (*domain.BillerMapping, error) {
	mapping, err := s.mappings.RetrieveBillerMapping(ctx, ports.BillerMappingRequest{
		Biller:          biller,
		BusinessGroupID: site.BusinessGroupID,
		SiteID:          site.ID,
		Currency:        purchase.Currency,
		SessionID:       purchase.SessionID,
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeBillerMappingFailed, domain.ErrBillerMapping.Message, err).
			WithDetail("biller", biller.Name).
			WithDetail("site_id", site.ID).
			WithDetail("currency", purchase.Currency)
	}
	return mapping, nil
}
