package ports

import (
	"context"

	"github.com/kevin07696/purchase-service/internal/domain"
)

// FraudAdviceRequest carries the fields that changed since the last advice
type FraudAdviceRequest struct {
	ChangedFields map[string]string
	SiteID        string
	SessionID     string
	Phase         domain.FraudPhase
}

// FraudAdviceService asks the fraud vendor for a recommendation
type FraudAdviceService interface {
	RetrieveAdvice(ctx context.Context, req FraudAdviceRequest) (domain.AdviceResult, error)
}

// BlacklistRecord describes a card to add to the central blacklist
type BlacklistRecord struct {
	Card          domain.CardIdentity
	SessionID     string
	SiteID        string
	TransactionID string
	Reason        string
}

// BlacklistService is the central card blacklist
type BlacklistService interface {
	Check(ctx context.Context, card domain.CardIdentity) (bool, error)
	Record(ctx context.Context, record BlacklistRecord) error
}
